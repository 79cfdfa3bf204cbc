package pdf

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"qualtrack/internal/testkit"
)

func TestParseVariants(t *testing.T) {
	cases := []struct {
		name string
		opts testkit.PDFOptions
	}{
		{"classic xref", testkit.PDFOptions{Pages: 2, SignatureFields: []string{"Medical"}}},
		{"xref stream", testkit.PDFOptions{Pages: 2, SignatureFields: []string{"Medical"}, XrefStream: true}},
		{"object stream", testkit.PDFOptions{Pages: 2, SignatureFields: []string{"Medical"}, ObjectStream: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Parse(testkit.MinimalPDF(tc.opts))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			pages, err := doc.Pages()
			if err != nil {
				t.Fatalf("pages: %v", err)
			}
			if len(pages) != 2 {
				t.Fatalf("expected 2 pages, got %d", len(pages))
			}
			if pages[1].MediaBox != defaultMediaBox {
				t.Fatalf("expected inherited media box, got %v", pages[1].MediaBox)
			}
			f, err := doc.FindField("Medical")
			if err != nil || f == nil {
				t.Fatalf("expected Medical field, got %v %v", f, err)
			}
			if f.Type != "Sig" || f.Signed() {
				t.Fatalf("expected unsigned signature field, got type %q", f.Type)
			}
		})
	}
}

func TestParseRejectsNonPDF(t *testing.T) {
	if _, err := Parse([]byte("hello world")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func signOpts(t *testing.T, field string) SignOptions {
	t.Helper()
	cert, key := testkit.NewCredential(t, testkit.CredentialOptions{CommonName: "Jane Doe"})
	return SignOptions{
		FieldName:   field,
		SignerName:  "Jane Doe",
		Reason:      "Signed as Medical",
		SigningTime: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Sign:        CMSSigner(cert, key),
	}
}

func TestSignNewFieldVerifies(t *testing.T) {
	for _, xs := range []bool{false, true} {
		input := testkit.MinimalPDF(testkit.PDFOptions{XrefStream: xs})
		orig := append([]byte(nil), input...)

		out, err := Sign(input, signOpts(t, ""))
		if err != nil {
			t.Fatalf("sign (xref stream %v): %v", xs, err)
		}
		if !bytes.Equal(input, orig) {
			t.Fatalf("input was modified")
		}
		if !bytes.HasPrefix(out, orig) {
			t.Fatalf("output is not an incremental update of the input")
		}

		sigs, err := ExtractSignatures(out)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if len(sigs) != 1 {
			t.Fatalf("expected 1 signature, got %d", len(sigs))
		}
		sig := sigs[0]
		if sig.FieldName != "Signature1" || sig.SignerName != "Jane Doe" || sig.Reason != "Signed as Medical" {
			t.Fatalf("unexpected signature info: %+v", sig)
		}
		if !sig.SigningTime.Equal(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)) {
			t.Fatalf("unexpected signing time %v", sig.SigningTime)
		}
		if !sig.CoversWholeFile {
			t.Fatalf("expected signature to cover the whole file")
		}

		v := VerifySignature(out, sig)
		if !v.Valid {
			t.Fatalf("expected valid signature, got %v", v.Err)
		}
		if v.Certificate == nil || v.Certificate.Subject.CommonName != "Jane Doe" {
			t.Fatalf("unexpected signer certificate %v", v.Certificate)
		}
	}
}

func TestSignExistingField(t *testing.T) {
	input := testkit.MinimalPDF(testkit.PDFOptions{Pages: 2, SignatureFields: []string{"Medical", "AAE"}, ObjectStream: true})

	out, err := Sign(input, signOpts(t, "AAE"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	doc, err := Parse(out)
	if err != nil {
		t.Fatalf("parse signed: %v", err)
	}
	fields, err := doc.Fields()
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected existing field to be reused, got %d fields", len(fields))
	}

	sigs, err := ExtractSignatures(out)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(sigs) != 1 || sigs[0].FieldName != "AAE" {
		t.Fatalf("expected AAE signature, got %+v", sigs)
	}
	if v := VerifySignature(out, sigs[0]); !v.Valid {
		t.Fatalf("expected valid signature, got %v", v.Err)
	}

}

func TestSignAlreadySignedFieldAddsSibling(t *testing.T) {
	input := testkit.MinimalPDF(testkit.PDFOptions{SignatureFields: []string{"Medical", "AAE"}})

	first, err := Sign(input, signOpts(t, "Medical"))
	if err != nil {
		t.Fatalf("first sign: %v", err)
	}
	second, err := Sign(first, signOpts(t, "Medical"))
	if err != nil {
		t.Fatalf("signing an already signed field again: %v", err)
	}
	third, err := Sign(second, signOpts(t, "Medical"))
	if err != nil {
		t.Fatalf("third sign: %v", err)
	}

	sigs, err := ExtractSignatures(third)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var names []string
	for _, s := range sigs {
		names = append(names, s.FieldName)
		if v := VerifySignature(third, s); !v.Valid {
			t.Fatalf("signature %s invalid: %v", s.FieldName, v.Err)
		}
	}
	want := map[string]bool{"Medical": true, "Medical_2": true, "Medical_3": true}
	if len(names) != len(want) {
		t.Fatalf("expected %d signatures, got %v", len(want), names)
	}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected signature field %q in %v", n, names)
		}
	}

	doc, err := Parse(third)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	aae, err := doc.FindField("AAE")
	if err != nil || aae == nil || aae.Signed() {
		t.Fatalf("expected AAE to stay unsigned, got %v %v", aae, err)
	}
}

func TestWriteObjectRejectsKeyword(t *testing.T) {
	var b bytes.Buffer
	err := writeObject(&b, Dict{"Kids": Array{keyword("obj")}})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDamagedInputNeverPanics(t *testing.T) {
	variants := []testkit.PDFOptions{
		{SignatureFields: []string{"Medical"}},
		{Pages: 2, SignatureFields: []string{"Medical"}, XrefStream: true},
		{SignatureFields: []string{"Medical"}, ObjectStream: true},
	}
	flips := []byte{0x01, 0x20, 0x80, 0xff}

	for _, v := range variants {
		input := testkit.MinimalPDF(v)

		var damaged [][]byte
		for n := 0; n < len(input); n += 3 {
			damaged = append(damaged, input[:n])
		}
		for i := 0; i < len(input); i++ {
			for _, x := range flips {
				d := append([]byte(nil), input...)
				d[i] ^= x
				damaged = append(damaged, d)
			}
		}

		opts := signOpts(t, "Medical")
		opts.Sign = func([]byte) ([]byte, error) { return []byte{0x30, 0x00}, nil }
		for i, d := range damaged {
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("case %d panicked: %v", i, r)
					}
				}()
				if out, err := Sign(d, opts); err == nil && !bytes.HasPrefix(out, d) {
					t.Fatalf("case %d: output is not an incremental update", i)
				}
				_, _ = ExtractSignatures(d)
			}()
		}
	}
}

func TestSequentialSignaturesStayValid(t *testing.T) {
	input := testkit.MinimalPDF(testkit.PDFOptions{SignatureFields: []string{"Member"}})

	first, err := Sign(input, signOpts(t, "Member"))
	if err != nil {
		t.Fatalf("first sign: %v", err)
	}
	second, err := Sign(first, signOpts(t, "CommandingOfficer"))
	if err != nil {
		t.Fatalf("second sign: %v", err)
	}

	sigs, err := ExtractSignatures(second)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(sigs))
	}
	for _, s := range sigs {
		v := VerifySignature(second, s)
		if !v.Valid {
			t.Fatalf("signature %q invalid: %v", s.FieldName, v.Err)
		}
		switch s.FieldName {
		case "Member":
			if s.CoversWholeFile {
				t.Fatalf("earlier signature cannot cover the later revision")
			}
		case "CommandingOfficer":
			if !s.CoversWholeFile {
				t.Fatalf("latest signature should cover the whole file")
			}
		default:
			t.Fatalf("unexpected field %q", s.FieldName)
		}
	}
}

func TestTamperingIsDetected(t *testing.T) {
	out, err := Sign(testkit.MinimalPDF(testkit.PDFOptions{}), signOpts(t, ""))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigs, err := ExtractSignatures(out)
	if err != nil || len(sigs) != 1 {
		t.Fatalf("extract: %v", err)
	}

	tampered := append([]byte(nil), out...)
	tampered[len("%PDF-1.7\n%")] ^= 0x01
	if v := VerifySignature(tampered, sigs[0]); v.Valid {
		t.Fatalf("expected tampered document to fail verification")
	}
}

func TestSignErrors(t *testing.T) {
	input := testkit.MinimalPDF(testkit.PDFOptions{Pages: 1})

	opts := signOpts(t, "")
	opts.Page = 3
	if _, err := Sign(input, opts); !errors.Is(err, ErrPageOutOfRange) {
		t.Fatalf("expected ErrPageOutOfRange, got %v", err)
	}

	opts = signOpts(t, "")
	opts.ReservedSize = 64
	if _, err := Sign(input, opts); !errors.Is(err, ErrSignatureTooLarge) {
		t.Fatalf("expected ErrSignatureTooLarge, got %v", err)
	}

	opts = signOpts(t, "")
	opts.Sign = func([]byte) ([]byte, error) { return nil, errors.New("token removed") }
	if _, err := Sign(input, opts); err == nil {
		t.Fatalf("expected signing function error")
	}
}

func TestPlaceField(t *testing.T) {
	box := [4]float64{0, 0, 612, 792}
	l := Layout{Width: 200, Height: 60, Margin: 36}

	cases := []struct {
		corner   Corner
		existing int
		want     [4]float64
	}{
		{BottomRight, 0, [4]float64{376, 36, 576, 96}},
		{BottomRight, 1, [4]float64{376, 102, 576, 162}},
		{BottomLeft, 0, [4]float64{36, 36, 236, 96}},
		{TopRight, 0, [4]float64{376, 696, 576, 756}},
		{TopLeft, 1, [4]float64{36, 630, 236, 690}},
	}
	for _, tc := range cases {
		l.Corner = tc.corner
		if got := placeField(box, l, tc.existing); got != tc.want {
			t.Errorf("%s/%d: got %v, want %v", tc.corner, tc.existing, got, tc.want)
		}
	}
}

func TestPDFDateRoundTrip(t *testing.T) {
	in := time.Date(2026, 10, 16, 9, 30, 0, 0, time.FixedZone("", -5*3600))
	s := pdfDate(in)
	if s != "D:20261016093000-05'00'" {
		t.Fatalf("unexpected date %q", s)
	}
	got, err := parseDate(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(in) {
		t.Fatalf("got %v, want %v", got, in)
	}
}

func TestTextEncoding(t *testing.T) {
	for _, s := range []string{"Jane Doe", "José Núñez"} {
		if got := decodeText(encodeText(s)); got != s {
			t.Errorf("got %q, want %q", got, s)
		}
	}
}
