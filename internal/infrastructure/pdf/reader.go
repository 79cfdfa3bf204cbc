package pdf

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrNotPDF is returned when the data has no PDF header or trailer
	ErrNotPDF = errors.New("pdf: not a PDF document")
	// ErrObjectNotFound is returned when a referenced object is missing from the xref
	ErrObjectNotFound = errors.New("pdf: object not found")
	// ErrMalformed is returned when a damaged file cannot be read or rewritten
	ErrMalformed = errors.New("pdf: malformed document")
)

const (
	xrefFree       = 0
	xrefInUse      = 1
	xrefCompressed = 2
)

type xrefEntry struct {
	typ    int
	offset int64 // byte offset for in-use objects
	gen    int
	stream int // object stream number for compressed objects
	index  int // index inside the object stream
}

// Document is a parsed, read-only view of a PDF file
type Document struct {
	data           []byte
	xref           map[int]xrefEntry
	trailer        Dict
	startXref      int64
	usesXrefStream bool
	cache          map[int]Object
	objStreams     map[int]*objectStream
	loading        map[int]bool // objects being parsed, to catch self references
}

type objectStream struct {
	data    []byte
	offsets map[int]int // object number to offset in data
}

// guard turns a panic raised while walking a damaged file into ErrMalformed
func guard(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformed, r)
	}
}

// Parse reads the cross-reference data and trailer of a PDF file
func Parse(data []byte) (doc *Document, err error) {
	defer guard(&err)

	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\n\f\r "), []byte("%PDF-")) {
		return nil, ErrNotPDF
	}

	start, err := findStartXref(data)
	if err != nil {
		return nil, err
	}

	doc = &Document{
		data:       data,
		xref:       make(map[int]xrefEntry),
		startXref:  start,
		cache:      make(map[int]Object),
		objStreams: make(map[int]*objectStream),
		loading:    make(map[int]bool),
	}

	if err := doc.loadXref(start, make(map[int64]bool), true); err != nil {
		return nil, err
	}
	if _, ok := doc.trailer["Root"].(Ref); !ok {
		return nil, fmt.Errorf("pdf: trailer has no /Root reference")
	}

	return doc, nil
}

func findStartXref(data []byte) (int64, error) {
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("%w: startxref not found", ErrNotPDF)
	}
	p := newParser(tail, i+len("startxref"))
	off, err := p.readInt()
	if err != nil {
		return 0, fmt.Errorf("pdf: bad startxref: %w", err)
	}
	if off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("pdf: startxref %d out of range", off)
	}
	return off, nil
}

// loadXref reads one xref section and follows /Prev. Newer sections are read
// first, so an entry is only recorded if no newer one exists.
func (d *Document) loadXref(offset int64, visited map[int64]bool, newest bool) error {
	if visited[offset] {
		return nil
	}
	visited[offset] = true

	p := newParser(d.data, int(offset))
	p.skipSpace()

	var trailer Dict
	if p.hasPrefix("xref") {
		p.pos += len("xref")
		t, err := d.parseXrefTable(p)
		if err != nil {
			return err
		}
		trailer = t
	} else {
		_, _, obj, err := d.parseIndirectAt(int(offset))
		if err != nil {
			return fmt.Errorf("pdf: reading xref stream at %d: %w", offset, err)
		}
		s, ok := obj.(*Stream)
		if !ok {
			return fmt.Errorf("pdf: no xref at offset %d", offset)
		}
		if t, _ := s.Dict.Name("Type"); t != "XRef" {
			return fmt.Errorf("pdf: object at %d is not an xref stream", offset)
		}
		if err := d.parseXrefStream(s); err != nil {
			return err
		}
		trailer = s.Dict
		if newest {
			d.usesXrefStream = true
		}
	}

	if newest {
		d.trailer = trailer
	}

	// Hybrid files keep compressed entries in a side stream.
	if xs, ok := trailer.Int("XRefStm"); ok {
		if err := d.loadXref(xs, visited, false); err != nil {
			return err
		}
	}
	if prev, ok := trailer.Int("Prev"); ok {
		return d.loadXref(prev, visited, false)
	}
	return nil
}

func (d *Document) parseXrefTable(p *parser) (Dict, error) {
	for {
		p.skipSpace()
		if p.eof() {
			return nil, errUnexpectedEOF
		}
		if p.hasPrefix("trailer") {
			p.pos += len("trailer")
			o, err := p.parseObject()
			if err != nil {
				return nil, fmt.Errorf("pdf: bad trailer: %w", err)
			}
			t, ok := o.(Dict)
			if !ok {
				return nil, fmt.Errorf("pdf: trailer is not a dictionary")
			}
			return t, nil
		}

		first, err := p.readInt()
		if err != nil {
			return nil, err
		}
		count, err := p.readInt()
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < count; i++ {
			off, err := p.readInt()
			if err != nil {
				return nil, err
			}
			gen, err := p.readInt()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			kind := p.readKeyword()
			num := int(first + i)
			if _, seen := d.xref[num]; seen {
				continue
			}
			switch kind {
			case "n":
				d.xref[num] = xrefEntry{typ: xrefInUse, offset: off, gen: int(gen)}
			case "f":
				d.xref[num] = xrefEntry{typ: xrefFree, gen: int(gen)}
			default:
				return nil, fmt.Errorf("pdf: bad xref entry type %q", kind)
			}
		}
	}
}

func (d *Document) parseXrefStream(s *Stream) error {
	data, err := d.decodeStream(s)
	if err != nil {
		return fmt.Errorf("pdf: decoding xref stream: %w", err)
	}

	wArr, ok := s.Dict["W"].(Array)
	if !ok || len(wArr) != 3 {
		return fmt.Errorf("pdf: xref stream has bad /W")
	}
	var w [3]int
	for i, o := range wArr {
		n, ok := o.(int64)
		if !ok || n < 0 || n > 8 {
			return fmt.Errorf("pdf: xref stream has bad /W")
		}
		w[i] = int(n)
	}

	size, _ := s.Dict.Int("Size")
	index := Array{int64(0), size}
	if idx, ok := s.Dict["Index"].(Array); ok {
		index = idx
	}

	rowLen := w[0] + w[1] + w[2]
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, _ := index[i].(int64)
		count, _ := index[i+1].(int64)
		for j := int64(0); j < count; j++ {
			if pos+rowLen > len(data) {
				return fmt.Errorf("pdf: xref stream truncated")
			}
			row := data[pos : pos+rowLen]
			pos += rowLen

			typ := int64(1)
			if w[0] > 0 {
				typ = readBE(row[:w[0]])
			}
			f2 := readBE(row[w[0] : w[0]+w[1]])
			f3 := readBE(row[w[0]+w[1]:])

			num := int(first + j)
			if _, seen := d.xref[num]; seen {
				continue
			}
			switch typ {
			case 0:
				d.xref[num] = xrefEntry{typ: xrefFree}
			case 1:
				d.xref[num] = xrefEntry{typ: xrefInUse, offset: f2, gen: int(f3)}
			case 2:
				d.xref[num] = xrefEntry{typ: xrefCompressed, stream: int(f2), index: int(f3)}
			}
		}
	}
	return nil
}

func readBE(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// parseIndirectAt parses "num gen obj ... endobj" at offset
func (d *Document) parseIndirectAt(offset int) (int, int, Object, error) {
	p := newParser(d.data, offset)
	num, err := p.readInt()
	if err != nil {
		return 0, 0, nil, err
	}
	gen, err := p.readInt()
	if err != nil {
		return 0, 0, nil, err
	}
	if err := p.expectKeyword("obj"); err != nil {
		return 0, 0, nil, err
	}
	obj, err := p.parseObject()
	if err != nil {
		return 0, 0, nil, err
	}

	dict, isDict := obj.(Dict)
	if !isDict {
		return int(num), int(gen), obj, nil
	}
	save := p.pos
	p.skipSpace()
	if !p.hasPrefix("stream") {
		p.pos = save
		return int(num), int(gen), obj, nil
	}
	p.pos += len("stream")
	if p.pos < len(p.buf) && p.buf[p.pos] == '\r' {
		p.pos++
	}
	if p.pos < len(p.buf) && p.buf[p.pos] == '\n' {
		p.pos++
	}

	data, err := d.streamData(p, dict)
	if err != nil {
		return 0, 0, nil, err
	}
	return int(num), int(gen), &Stream{Dict: dict, Data: data}, nil
}

func (d *Document) streamData(p *parser, dict Dict) ([]byte, error) {
	start := p.pos
	length := int64(-1)
	switch v := dict["Length"].(type) {
	case int64:
		length = v
	case Ref:
		if o, err := d.Object(v.Num); err == nil {
			if n, ok := o.(int64); ok {
				length = n
			}
		}
	}

	if length >= 0 && start+int(length) <= len(d.data) {
		q := newParser(d.data, start+int(length))
		q.skipSpace()
		if q.hasPrefix("endstream") {
			return d.data[start : start+int(length)], nil
		}
	}

	// Fall back to scanning for the end marker.
	end := bytes.Index(d.data[start:], []byte("endstream"))
	if end < 0 {
		return nil, fmt.Errorf("pdf: unterminated stream at offset %d", start)
	}
	data := d.data[start : start+end]
	data = bytes.TrimSuffix(data, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))
	return data, nil
}

// Object returns the object with the given number, loading it on first use
func (d *Document) Object(num int) (Object, error) {
	if o, ok := d.cache[num]; ok {
		return o, nil
	}
	e, ok := d.xref[num]
	if !ok || e.typ == xrefFree {
		return nil, fmt.Errorf("%w: %d", ErrObjectNotFound, num)
	}
	if d.loading[num] {
		return nil, fmt.Errorf("%w: object %d refers to itself", ErrMalformed, num)
	}
	d.loading[num] = true
	defer delete(d.loading, num)

	var obj Object
	switch e.typ {
	case xrefInUse:
		got, _, o, err := d.parseIndirectAt(int(e.offset))
		if err != nil {
			return nil, fmt.Errorf("pdf: object %d: %w", num, err)
		}
		if got != num {
			return nil, fmt.Errorf("pdf: xref points object %d at object %d", num, got)
		}
		obj = o
	case xrefCompressed:
		o, err := d.compressedObject(e.stream, num)
		if err != nil {
			return nil, err
		}
		obj = o
	}

	d.cache[num] = obj
	return obj, nil
}

// Generation returns the generation number recorded for num
func (d *Document) Generation(num int) int {
	return d.xref[num].gen
}

func (d *Document) compressedObject(streamNum, num int) (Object, error) {
	ostm, ok := d.objStreams[streamNum]
	if !ok {
		o, err := d.Object(streamNum)
		if err != nil {
			return nil, err
		}
		s, ok := o.(*Stream)
		if !ok {
			return nil, fmt.Errorf("pdf: object stream %d is not a stream", streamNum)
		}
		data, err := d.decodeStream(s)
		if err != nil {
			return nil, fmt.Errorf("pdf: decoding object stream %d: %w", streamNum, err)
		}
		n, _ := s.Dict.Int("N")
		first, _ := s.Dict.Int("First")

		ostm = &objectStream{data: data, offsets: make(map[int]int, n)}
		p := newParser(data, 0)
		for i := int64(0); i < n; i++ {
			objNum, err := p.readInt()
			if err != nil {
				return nil, err
			}
			off, err := p.readInt()
			if err != nil {
				return nil, err
			}
			ostm.offsets[int(objNum)] = int(first + off)
		}
		d.objStreams[streamNum] = ostm
	}

	off, ok := ostm.offsets[num]
	if !ok || off > len(ostm.data) {
		return nil, fmt.Errorf("%w: %d in object stream %d", ErrObjectNotFound, num, streamNum)
	}
	return newParser(ostm.data, off).parseObject()
}

// Resolve follows a reference; other values are returned as is
func (d *Document) Resolve(o Object) (Object, error) {
	for i := 0; i < 32; i++ {
		ref, ok := o.(Ref)
		if !ok {
			return o, nil
		}
		next, err := d.Object(ref.Num)
		if err != nil {
			return nil, err
		}
		o = next
	}
	return nil, fmt.Errorf("pdf: reference chain too deep")
}

// ResolveDict resolves o and requires a dictionary (a stream's dictionary is accepted)
func (d *Document) ResolveDict(o Object) (Dict, error) {
	r, err := d.Resolve(o)
	if err != nil {
		return nil, err
	}
	switch v := r.(type) {
	case Dict:
		return v, nil
	case *Stream:
		return v.Dict, nil
	}
	return nil, fmt.Errorf("pdf: expected dictionary, got %T", r)
}

// ResolveArray resolves o and requires an array; nil yields an empty array
func (d *Document) ResolveArray(o Object) (Array, error) {
	if o == nil {
		return Array{}, nil
	}
	r, err := d.Resolve(o)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return Array{}, nil
	}
	a, ok := r.(Array)
	if !ok {
		return nil, fmt.Errorf("pdf: expected array, got %T", r)
	}
	return a, nil
}

func (d *Document) decodeStream(s *Stream) ([]byte, error) {
	filters := Array{}
	switch f := s.Dict["Filter"].(type) {
	case Name:
		filters = Array{f}
	case Array:
		filters = f
	}
	var parms Array
	switch p := s.Dict["DecodeParms"].(type) {
	case Dict:
		parms = Array{p}
	case Array:
		parms = p
	}

	data := s.Data
	for i, f := range filters {
		name, _ := f.(Name)
		if name != "FlateDecode" {
			return nil, fmt.Errorf("pdf: unsupported filter %q", name)
		}
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		out, err := io.ReadAll(r)
		r.Close()
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		data = out

		if i < len(parms) {
			if pd, ok := parms[i].(Dict); ok {
				data, err = unpredict(data, pd)
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return data, nil
}

// unpredict reverses PNG row predictors
func unpredict(data []byte, parms Dict) ([]byte, error) {
	predictor, _ := parms.Int("Predictor")
	if predictor < 10 {
		if predictor > 1 {
			return nil, fmt.Errorf("pdf: unsupported predictor %d", predictor)
		}
		return data, nil
	}

	columns := int64(1)
	if c, ok := parms.Int("Columns"); ok {
		columns = c
	}
	colors := int64(1)
	if c, ok := parms.Int("Colors"); ok {
		colors = c
	}
	bpc := int64(8)
	if b, ok := parms.Int("BitsPerComponent"); ok {
		bpc = b
	}
	bpp := int((colors*bpc + 7) / 8)
	rowLen := int((columns*colors*bpc + 7) / 8)

	var out []byte
	prev := make([]byte, rowLen)
	for pos := 0; pos+rowLen+1 <= len(data); pos += rowLen + 1 {
		filter := data[pos]
		row := append([]byte(nil), data[pos+1:pos+1+rowLen]...)
		for i := range row {
			var left, up, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("pdf: bad png filter %d", filter)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Trailer returns the newest trailer dictionary
func (d *Document) Trailer() Dict {
	return d.trailer
}

// Catalog returns the document catalog
func (d *Document) Catalog() (Ref, Dict, error) {
	ref := d.trailer["Root"].(Ref)
	cat, err := d.ResolveDict(ref)
	if err != nil {
		return Ref{}, nil, fmt.Errorf("pdf: catalog: %w", err)
	}
	return ref, cat, nil
}

// Size returns the trailer /Size, or one past the largest known object number
func (d *Document) Size() int {
	size, _ := d.trailer.Int("Size")
	for num := range d.xref {
		if num+1 > int(size) {
			size = int64(num + 1)
		}
	}
	return int(size)
}

func formatObjectHeader(num, gen int) string {
	return strconv.Itoa(num) + " " + strconv.Itoa(gen) + " obj\n"
}
