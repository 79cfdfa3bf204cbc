package pdf

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrPageOutOfRange is returned for a page number the document does not have
	ErrPageOutOfRange = errors.New("pdf: page number out of range")
	// ErrSignatureTooLarge is returned when the CMS blob exceeds the reserved space
	ErrSignatureTooLarge = errors.New("pdf: signature exceeds reserved space")
)

// Corner selects where a new signature field is anchored on the page
type Corner string

const (
	BottomRight Corner = "bottom-right"
	BottomLeft  Corner = "bottom-left"
	TopRight    Corner = "top-right"
	TopLeft     Corner = "top-left"
)

// Layout sizes and anchors newly created signature fields
type Layout struct {
	Width  float64
	Height float64
	Margin float64
	Corner Corner
}

// DefaultLayout is a 200x60pt box half an inch from the bottom-right corner
var DefaultLayout = Layout{Width: 200, Height: 60, Margin: 36, Corner: BottomRight}

// SignFunc produces a detached CMS signature over data
type SignFunc func(data []byte) ([]byte, error)

// SignOptions describes one signature to embed
type SignOptions struct {
	FieldName    string // existing field to fill, or name for a new field
	Page         int    // 1-based; 0 means first page
	SignerName   string
	Reason       string
	Location     string
	SigningTime  time.Time
	Layout       Layout
	ReservedSize int // bytes reserved for the CMS blob
	Sign         SignFunc
}

const (
	defaultReservedSize   = 16384
	byteRangePlaceholder  = "[0 0000000000 0000000000 0000000000]"
	annotFlagPrintLocked  = 132 // Print | Locked
	signatureFlagsDefault = 3   // SignaturesExist | AppendOnly
)

// Sign appends an incremental update to input that embeds a signature. The
// input slice is not modified; the returned slice starts with an exact copy
// of it. When the named field already holds a signature, a new field named
// <FieldName>_<n> is added on the same page so earlier signatures stay intact.
func Sign(input []byte, opts SignOptions) (_ []byte, err error) {
	defer guard(&err)

	if opts.Sign == nil {
		return nil, fmt.Errorf("pdf: no signing function")
	}
	if opts.ReservedSize <= 0 {
		opts.ReservedSize = defaultReservedSize
	}
	if opts.Layout.Width <= 0 || opts.Layout.Height <= 0 {
		opts.Layout = DefaultLayout
	}
	if opts.SigningTime.IsZero() {
		opts.SigningTime = time.Now()
	}

	doc, err := Parse(input)
	if err != nil {
		return nil, err
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf: document has no pages")
	}

	u := newUpdate(doc, input)

	// Resolve target field and page.
	pageIdx := 0
	if opts.Page > 0 {
		pageIdx = opts.Page - 1
	}
	var existing *Field
	if opts.FieldName != "" {
		existing, err = doc.FindField(opts.FieldName)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Type != "Sig" {
			return nil, fmt.Errorf("pdf: field %q is not a signature field", opts.FieldName)
		}
		if existing != nil {
			if idx := doc.pageIndexOf(pages, existing.WidgetRef, existing.Widget); idx >= 0 {
				pageIdx = idx
			}
		}
		if existing != nil && existing.Signed() {
			opts.FieldName = nextFreeName(doc, opts.FieldName)
			existing = nil
		}
	}
	if pageIdx >= len(pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageIdx+1, len(pages))
	}
	page := pages[pageIdx]

	var rect [4]float64
	if existing != nil {
		r, ok := doc.rect(existing.Widget["Rect"])
		if !ok {
			return nil, fmt.Errorf("pdf: field %q has no usable /Rect", opts.FieldName)
		}
		rect = r
	} else {
		rect = placeField(page.MediaBox, opts.Layout, doc.signatureWidgetsOn(page))
	}

	// Signature dictionary goes first so its placeholder offsets are known.
	sigNum := u.alloc()
	contentsAt, byteRangeAt := u.writeSignatureDict(sigNum, opts)
	sigRef := Ref{Num: sigNum}

	apNum := u.alloc()
	u.writeStream(apNum, 0, appearanceStream(rect, opts))
	apRef := Ref{Num: apNum}

	var fieldRef Ref
	newField := existing == nil
	if newField {
		name := opts.FieldName
		if name == "" {
			name = nextFieldName(doc)
		}
		fieldRef = Ref{Num: u.alloc()}
		u.writeObject(fieldRef.Num, 0, Dict{
			"Type":    Name("Annot"),
			"Subtype": Name("Widget"),
			"FT":      Name("Sig"),
			"T":       String(name),
			"V":       sigRef,
			"F":       int64(annotFlagPrintLocked),
			"Rect":    rectArray(rect),
			"P":       page.Ref,
			"AP":      Dict{"N": apRef},
		})
	} else {
		fieldRef = existing.Ref
		fd := existing.Dict.Clone()
		fd["V"] = sigRef
		if existing.WidgetRef == existing.Ref {
			fd["AP"] = Dict{"N": apRef}
			if _, ok := fd["F"]; !ok {
				fd["F"] = int64(annotFlagPrintLocked)
			}
			if _, ok := fd["P"]; !ok {
				fd["P"] = page.Ref
			}
		} else {
			wd := existing.Widget.Clone()
			wd["AP"] = Dict{"N": apRef}
			if _, ok := wd["P"]; !ok {
				wd["P"] = page.Ref
			}
			u.writeObject(existing.WidgetRef.Num, doc.Generation(existing.WidgetRef.Num), wd)
		}
		u.writeObject(fieldRef.Num, doc.Generation(fieldRef.Num), fd)
	}

	// A new widget must be listed in the page's /Annots.
	widgetRef := fieldRef
	if existing != nil {
		widgetRef = existing.WidgetRef
	}
	if doc.pageIndexOf([]Page{page}, widgetRef, Dict{}) < 0 {
		annots, err := doc.ResolveArray(page.Dict["Annots"])
		if err != nil {
			return nil, err
		}
		pd := page.Dict.Clone()
		pd["Annots"] = append(append(Array{}, annots...), widgetRef)
		u.writeObject(page.Ref.Num, page.Ref.Gen, pd)
	}

	if err := u.writeAcroForm(fieldRef, newField); err != nil {
		return nil, err
	}

	out, err := u.finish()
	if err != nil {
		return nil, err
	}

	return embedSignature(out, contentsAt, byteRangeAt, opts)
}

// placeField anchors a new field at a page corner, stacking away from the
// corner past signatures already on the page.
func placeField(box [4]float64, l Layout, existing int) [4]float64 {
	step := float64(existing) * (l.Height + 6)
	var x1, y1 float64
	switch l.Corner {
	case BottomLeft:
		x1, y1 = box[0]+l.Margin, box[1]+l.Margin+step
	case TopRight:
		x1, y1 = box[2]-l.Margin-l.Width, box[3]-l.Margin-l.Height-step
	case TopLeft:
		x1, y1 = box[0]+l.Margin, box[3]-l.Margin-l.Height-step
	default:
		x1, y1 = box[2]-l.Margin-l.Width, box[1]+l.Margin+step
	}
	return [4]float64{x1, y1, x1 + l.Width, y1 + l.Height}
}

func rectArray(r [4]float64) Array {
	return Array{r[0], r[1], r[2], r[3]}
}

func nextFieldName(doc *Document) string {
	taken := fieldNames(doc)
	for i := 1; ; i++ {
		name := fmt.Sprintf("Signature%d", i)
		if !taken[name] {
			return name
		}
	}
}

// nextFreeName returns <base>_2, <base>_3, ... whichever is unused first
func nextFreeName(doc *Document, base string) string {
	taken := fieldNames(doc)
	for i := 2; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if !taken[name] {
			return name
		}
	}
}

func fieldNames(doc *Document) map[string]bool {
	fields, _ := doc.Fields()
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[f.FullName] = true
	}
	return taken
}

// pdfDate formats t as a PDF date string
func pdfDate(t time.Time) string {
	z := t.Format("-0700")
	return "D:" + t.Format("20060102150405") + z[:3] + "'" + z[3:] + "'"
}

type update struct {
	doc     *Document
	buf     *bytes.Buffer
	offsets map[int]int64
	gens    map[int]int
	next    int
	err     error // first serialization failure
}

func newUpdate(doc *Document, input []byte) *update {
	buf := bytes.NewBuffer(make([]byte, 0, len(input)+32*1024))
	buf.Write(input)
	if len(input) > 0 && input[len(input)-1] != '\n' && input[len(input)-1] != '\r' {
		buf.WriteByte('\n')
	}
	return &update{
		doc:     doc,
		buf:     buf,
		offsets: make(map[int]int64),
		gens:    make(map[int]int),
		next:    doc.Size(),
	}
}

func (u *update) alloc() int {
	n := u.next
	u.next++
	return n
}

func (u *update) begin(num, gen int) {
	u.offsets[num] = int64(u.buf.Len())
	u.gens[num] = gen
	u.buf.WriteString(formatObjectHeader(num, gen))
}

func (u *update) write(o Object) {
	if err := writeObject(u.buf, o); err != nil && u.err == nil {
		u.err = err
	}
}

func (u *update) writeObject(num, gen int, o Object) {
	u.begin(num, gen)
	u.write(o)
	u.buf.WriteString("\nendobj\n")
}

func (u *update) writeStream(num, gen int, s *Stream) {
	d := s.Dict.Clone()
	d["Length"] = int64(len(s.Data))
	u.begin(num, gen)
	u.write(d)
	u.buf.WriteString("\nstream\n")
	u.buf.Write(s.Data)
	u.buf.WriteString("\nendstream\nendobj\n")
}

// writeSignatureDict writes the signature value with fixed-width placeholders
// and returns the offsets of the /Contents hex string and the /ByteRange array.
func (u *update) writeSignatureDict(num int, opts SignOptions) (int, int) {
	u.begin(num, 0)
	b := u.buf
	b.WriteString("<</Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached")
	if opts.SignerName != "" {
		b.WriteString(" /Name ")
		writeLiteral(b, encodeText(opts.SignerName))
	}
	if opts.Reason != "" {
		b.WriteString(" /Reason ")
		writeLiteral(b, encodeText(opts.Reason))
	}
	if opts.Location != "" {
		b.WriteString(" /Location ")
		writeLiteral(b, encodeText(opts.Location))
	}
	b.WriteString(" /M ")
	writeLiteral(b, []byte(pdfDate(opts.SigningTime)))
	b.WriteString(" /ByteRange ")
	byteRangeAt := b.Len()
	b.WriteString(byteRangePlaceholder)
	b.WriteString(" /Contents ")
	contentsAt := b.Len()
	b.WriteByte('<')
	b.Write(bytes.Repeat([]byte("0"), 2*opts.ReservedSize))
	b.WriteByte('>')
	b.WriteString(">>\nendobj\n")
	return contentsAt, byteRangeAt
}

func (u *update) writeAcroForm(fieldRef Ref, newField bool) error {
	catRef, cat, err := u.doc.Catalog()
	if err != nil {
		return err
	}

	var form Dict
	formRef, indirect := cat["AcroForm"].(Ref)
	if cat["AcroForm"] != nil {
		f, err := u.doc.ResolveDict(cat["AcroForm"])
		if err != nil {
			return err
		}
		form = f.Clone()
	} else {
		form = Dict{}
	}

	fields, err := u.doc.ResolveArray(form["Fields"])
	if err != nil {
		return err
	}
	fields = append(Array{}, fields...)
	if newField {
		fields = append(fields, fieldRef)
	}
	form["Fields"] = fields
	flags, _ := form.Int("SigFlags")
	form["SigFlags"] = flags | signatureFlagsDefault

	if indirect {
		u.writeObject(formRef.Num, formRef.Gen, form)
		return nil
	}
	c := cat.Clone()
	c["AcroForm"] = form
	u.writeObject(catRef.Num, catRef.Gen, c)
	return nil
}

func (u *update) finish() ([]byte, error) {
	prev := u.doc.startXref
	trailer := Dict{
		"Size": int64(u.next),
		"Root": u.doc.trailer["Root"],
		"Prev": prev,
	}
	for _, k := range []Name{"Info", "ID", "Encrypt"} {
		if v, ok := u.doc.trailer[k]; ok {
			trailer[k] = v
		}
	}
	if _, enc := trailer["Encrypt"]; enc {
		return nil, fmt.Errorf("pdf: encrypted documents are not supported")
	}

	if u.doc.usesXrefStream {
		u.writeXrefStream(trailer)
	} else {
		u.writeXrefTable(trailer)
	}
	if u.err != nil {
		return nil, u.err
	}
	return u.buf.Bytes(), nil
}

func (u *update) sortedNums() []int {
	nums := make([]int, 0, len(u.offsets))
	for n := range u.offsets {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// subsections groups sorted object numbers into contiguous runs
func subsections(nums []int) [][]int {
	var out [][]int
	for i := 0; i < len(nums); {
		j := i + 1
		for j < len(nums) && nums[j] == nums[j-1]+1 {
			j++
		}
		out = append(out, nums[i:j])
		i = j
	}
	return out
}

func (u *update) writeXrefTable(trailer Dict) {
	xrefAt := u.buf.Len()
	u.buf.WriteString("xref\n")
	for _, run := range subsections(u.sortedNums()) {
		fmt.Fprintf(u.buf, "%d %d\n", run[0], len(run))
		for _, n := range run {
			fmt.Fprintf(u.buf, "%010d %05d n\r\n", u.offsets[n], u.gens[n])
		}
	}
	u.buf.WriteString("trailer\n")
	u.write(trailer)
	fmt.Fprintf(u.buf, "\nstartxref\n%d\n%%%%EOF\n", xrefAt)
}

func (u *update) writeXrefStream(trailer Dict) {
	num := u.alloc()
	trailer["Size"] = int64(u.next)
	xrefAt := u.buf.Len()
	u.offsets[num] = int64(xrefAt)
	u.gens[num] = 0

	var rows bytes.Buffer
	index := Array{}
	for _, run := range subsections(u.sortedNums()) {
		index = append(index, int64(run[0]), int64(len(run)))
		for _, n := range run {
			off := u.offsets[n]
			gen := u.gens[n]
			rows.Write([]byte{1, byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off), byte(gen >> 8), byte(gen)})
		}
	}

	d := trailer.Clone()
	d["Type"] = Name("XRef")
	d["W"] = Array{int64(1), int64(4), int64(2)}
	d["Index"] = index
	d["Length"] = int64(rows.Len())

	u.buf.WriteString(formatObjectHeader(num, 0))
	u.write(d)
	u.buf.WriteString("\nstream\n")
	u.buf.Write(rows.Bytes())
	u.buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(u.buf, "startxref\n%d\n%%%%EOF\n", xrefAt)
}

// embedSignature fills the byte range, signs everything outside /Contents
// and writes the hex-encoded CMS blob into the placeholder.
func embedSignature(out []byte, contentsAt, byteRangeAt int, opts SignOptions) ([]byte, error) {
	contentsEnd := contentsAt + 2 + 2*opts.ReservedSize
	br := fmt.Sprintf("[0 %d %d %d]", contentsAt, contentsEnd, len(out)-contentsEnd)
	if len(br) > len(byteRangePlaceholder) {
		return nil, fmt.Errorf("pdf: byte range does not fit placeholder")
	}
	br += strings.Repeat(" ", len(byteRangePlaceholder)-len(br))
	copy(out[byteRangeAt:], br)

	signed := make([]byte, 0, len(out)-(contentsEnd-contentsAt))
	signed = append(signed, out[:contentsAt]...)
	signed = append(signed, out[contentsEnd:]...)

	cms, err := opts.Sign(signed)
	if err != nil {
		return nil, fmt.Errorf("pdf: creating signature: %w", err)
	}
	if len(cms) > opts.ReservedSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrSignatureTooLarge, len(cms), opts.ReservedSize)
	}

	enc := make([]byte, hex.EncodedLen(len(cms)))
	hex.Encode(enc, cms)
	copy(out[contentsAt+1:], bytes.ToUpper(enc))
	return out, nil
}
