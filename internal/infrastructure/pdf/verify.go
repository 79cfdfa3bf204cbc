package pdf

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"strings"
	"time"

	"go.mozilla.org/pkcs7"
)

// SignatureInfo describes one signature value found in a document
type SignatureInfo struct {
	FieldName       string
	SignerName      string
	Reason          string
	SigningTime     time.Time
	ByteRange       [4]int64
	CoversWholeFile bool
	Contents        []byte // DER CMS blob without the zero padding
	SubFilter       Name
}

// VerifiedSignature is the result of checking one SignatureInfo
type VerifiedSignature struct {
	SignatureInfo
	Certificate *x509.Certificate
	Valid       bool
	Err         error
}

// ExtractSignatures lists the signed signature fields of data
func ExtractSignatures(data []byte) (sigs []SignatureInfo, err error) {
	defer guard(&err)

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	fields, err := doc.Fields()
	if err != nil {
		return nil, err
	}

	var out []SignatureInfo
	for _, f := range fields {
		if f.Type != "Sig" || f.Dict["V"] == nil {
			continue
		}
		v, err := doc.ResolveDict(f.Dict["V"])
		if err != nil {
			return nil, fmt.Errorf("pdf: field %q: %w", f.FullName, err)
		}
		info, err := signatureInfo(doc, f.FullName, v, int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("pdf: field %q: %w", f.FullName, err)
		}
		out = append(out, info)
	}
	return out, nil
}

func signatureInfo(doc *Document, field string, v Dict, size int64) (SignatureInfo, error) {
	info := SignatureInfo{FieldName: field}
	info.SubFilter, _ = v.Name("SubFilter")
	if s, ok := v["Name"].(String); ok {
		info.SignerName = decodeText(s)
	}
	if s, ok := v["Reason"].(String); ok {
		info.Reason = decodeText(s)
	}
	if s, ok := v["M"].(String); ok {
		if t, err := parseDate(string(s)); err == nil {
			info.SigningTime = t
		}
	}

	br, err := doc.ResolveArray(v["ByteRange"])
	if err != nil || len(br) != 4 {
		return info, fmt.Errorf("bad /ByteRange")
	}
	for i, o := range br {
		n, ok := o.(int64)
		if !ok || n < 0 {
			return info, fmt.Errorf("bad /ByteRange")
		}
		info.ByteRange[i] = n
	}
	info.CoversWholeFile = info.ByteRange[0] == 0 && info.ByteRange[2]+info.ByteRange[3] == size

	contents, ok := v["Contents"].(String)
	if !ok {
		return info, fmt.Errorf("missing /Contents")
	}
	// The placeholder is zero padded past the end of the DER value.
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(contents, &raw); err != nil {
		return info, fmt.Errorf("bad /Contents: %w", err)
	}
	info.Contents = raw.FullBytes
	return info, nil
}

// VerifySignature checks sig against the bytes of data it claims to cover
func VerifySignature(data []byte, sig SignatureInfo) VerifiedSignature {
	res := VerifiedSignature{SignatureInfo: sig}

	br := sig.ByteRange
	if br[0]+br[1] > int64(len(data)) || br[2]+br[3] > int64(len(data)) || br[1] > br[2] {
		res.Err = fmt.Errorf("byte range %v outside document", br)
		return res
	}
	signed := make([]byte, 0, br[1]+br[3])
	signed = append(signed, data[br[0]:br[0]+br[1]]...)
	signed = append(signed, data[br[2]:br[2]+br[3]]...)

	p7, err := pkcs7.Parse(sig.Contents)
	if err != nil {
		res.Err = fmt.Errorf("failed to parse signature: %w", err)
		return res
	}
	res.Certificate = p7.GetOnlySigner()
	p7.Content = signed
	if err := p7.Verify(); err != nil {
		res.Err = fmt.Errorf("signature does not verify: %w", err)
		return res
	}
	res.Valid = true
	return res
}

// parseDate reads the D:YYYYMMDDHHmmSSOHH'mm' form written by pdfDate,
// tolerating the shorter variants other writers use.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimPrefix(s, "D:")
	s = strings.ReplaceAll(s, "'", "")
	layouts := []string{"20060102150405-0700", "20060102150405Z0700", "20060102150405Z", "20060102150405"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("pdf: bad date %q", s)
}
