// Package testkit provides testing helpers: small PDF documents and
// throwaway signing credentials.
package testkit

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// PDFOptions shapes the document built by MinimalPDF
type PDFOptions struct {
	Pages int
	// SignatureFields adds empty signature fields on the first page
	SignatureFields []string
	// XrefStream writes a compressed cross-reference stream instead of a table
	XrefStream bool
	// ObjectStream packs the non-stream objects into an object stream; implies XrefStream
	ObjectStream bool
}

type pdfObject struct {
	num    int
	body   string
	stream []byte
}

// MinimalPDF builds a small valid PDF
func MinimalPDF(opts PDFOptions) []byte {
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.ObjectStream {
		opts.XrefStream = true
	}

	firstPage := 3
	firstField := firstPage + 2*opts.Pages

	var fieldRefs []string
	for i := range opts.SignatureFields {
		fieldRefs = append(fieldRefs, fmt.Sprintf("%d 0 R", firstField+i))
	}

	var objs []pdfObject
	catalog := "<< /Type /Catalog /Pages 2 0 R"
	if len(fieldRefs) > 0 {
		catalog += " /AcroForm << /Fields [" + strings.Join(fieldRefs, " ") + "] >>"
	}
	catalog += " >>"
	objs = append(objs, pdfObject{num: 1, body: catalog})

	var kids []string
	for i := 0; i < opts.Pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", firstPage+2*i))
	}
	objs = append(objs, pdfObject{num: 2, body: fmt.Sprintf(
		"<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), opts.Pages)})

	for i := 0; i < opts.Pages; i++ {
		num := firstPage + 2*i
		page := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R /Resources << >>", num+1)
		if i == 0 && len(fieldRefs) > 0 {
			page += " /Annots [" + strings.Join(fieldRefs, " ") + "]"
		}
		page += " >>"
		objs = append(objs, pdfObject{num: num, body: page})
		content := []byte(fmt.Sprintf("0 0 m %d %d l S", 100+i, 100+i))
		objs = append(objs, pdfObject{num: num + 1, stream: content})
	}

	for i, name := range opts.SignatureFields {
		y := 700 - 80*i
		objs = append(objs, pdfObject{num: firstField + i, body: fmt.Sprintf(
			"<< /Type /Annot /Subtype /Widget /FT /Sig /T (%s) /Rect [72 %d 272 %d] /P %d 0 R /F 4 >>",
			name, y, y+60, firstPage)})
	}

	size := firstField + len(opts.SignatureFields)
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make(map[int]int)
	compressed := make(map[int][2]int) // object -> (stream, index)

	writeStream := func(num int, dict string, data []byte) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<< %s/Length %d >>\nstream\n", num, dict, len(data))
		buf.Write(data)
		buf.WriteString("\nendstream\nendobj\n")
	}

	var packed []pdfObject
	for _, o := range objs {
		if o.stream != nil {
			writeStream(o.num, "", o.stream)
			continue
		}
		if opts.ObjectStream {
			packed = append(packed, o)
			continue
		}
		offsets[o.num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", o.num, o.body)
	}

	if len(packed) > 0 {
		num := size
		size++
		var header, body bytes.Buffer
		for i, o := range packed {
			fmt.Fprintf(&header, "%d %d ", o.num, body.Len())
			body.WriteString(o.body)
			body.WriteByte('\n')
			compressed[o.num] = [2]int{num, i}
		}
		data := deflate(append(header.Bytes(), body.Bytes()...))
		writeStream(num, fmt.Sprintf("/Type /ObjStm /N %d /First %d /Filter /FlateDecode ", len(packed), header.Len()), data)
	}

	if !opts.XrefStream {
		xref := buf.Len()
		fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", size)
		for n := 1; n < size; n++ {
			fmt.Fprintf(&buf, "%010d 00000 n\r\n", offsets[n])
		}
		fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
		return buf.Bytes()
	}

	xrefNum := size
	size++
	xref := buf.Len()
	offsets[xrefNum] = xref
	var rows bytes.Buffer
	rows.Write([]byte{0, 0, 0, 0, 0, 0xff})
	for n := 1; n < size; n++ {
		if c, ok := compressed[n]; ok {
			rows.Write([]byte{2, 0, 0, byte(c[0] >> 8), byte(c[0]), byte(c[1])})
			continue
		}
		off := offsets[n]
		rows.Write([]byte{1, byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off), 0})
	}
	writeStream(xrefNum, fmt.Sprintf("/Type /XRef /Size %d /W [1 4 1] /Root 1 0 R /Filter /FlateDecode ", size), deflate(rows.Bytes()))
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func deflate(data []byte) []byte {
	var b bytes.Buffer
	w := zlib.NewWriter(&b)
	_, _ = w.Write(data)
	_ = w.Close()
	return b.Bytes()
}

// WritePDF writes a MinimalPDF under dir and returns its path
func WritePDF(t *testing.T, dir, name string, opts PDFOptions) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, MinimalPDF(opts), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

// MustContain asserts that haystack contains needle
func MustContain(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}
