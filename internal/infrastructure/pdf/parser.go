package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var errUnexpectedEOF = errors.New("pdf: unexpected end of data")

type parser struct {
	buf []byte
	pos int
}

func newParser(buf []byte, pos int) *parser {
	return &parser{buf: buf, pos: pos}
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool {
	return !isWhitespace(c) && !isDelimiter(c)
}

func (p *parser) eof() bool {
	return p.pos >= len(p.buf)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.buf) {
		c := p.buf[p.pos]
		if isWhitespace(c) {
			p.pos++
			continue
		}
		if c == '%' {
			for p.pos < len(p.buf) && p.buf[p.pos] != '\n' && p.buf[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		return
	}
}

func (p *parser) hasPrefix(s string) bool {
	return bytes.HasPrefix(p.buf[p.pos:], []byte(s))
}

// readKeyword reads a run of regular characters
func (p *parser) readKeyword() string {
	start := p.pos
	for p.pos < len(p.buf) && isRegular(p.buf[p.pos]) {
		p.pos++
	}
	return string(p.buf[start:p.pos])
}

func (p *parser) expectKeyword(kw string) error {
	p.skipSpace()
	got := p.readKeyword()
	if got != kw {
		return fmt.Errorf("pdf: expected %q at offset %d, got %q", kw, p.pos, got)
	}
	return nil
}

func (p *parser) readInt() (int64, error) {
	p.skipSpace()
	start := p.pos
	if p.pos < len(p.buf) && (p.buf[p.pos] == '+' || p.buf[p.pos] == '-') {
		p.pos++
	}
	for p.pos < len(p.buf) && p.buf[p.pos] >= '0' && p.buf[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("pdf: expected integer at offset %d", start)
	}
	return strconv.ParseInt(string(p.buf[start:p.pos]), 10, 64)
}

// parseObject parses one direct object, resolving "n g R" into a Ref.
func (p *parser) parseObject() (Object, error) {
	p.skipSpace()
	if p.eof() {
		return nil, errUnexpectedEOF
	}

	c := p.buf[p.pos]
	switch {
	case c == '/':
		p.pos++
		return p.parseName(), nil
	case c == '(':
		p.pos++
		return p.parseLiteral()
	case c == '<':
		if p.pos+1 < len(p.buf) && p.buf[p.pos+1] == '<' {
			p.pos += 2
			return p.parseDict()
		}
		p.pos++
		return p.parseHex()
	case c == '[':
		p.pos++
		return p.parseArray()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumberOrRef()
	}

	kw := p.readKeyword()
	switch kw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	case "":
		return nil, fmt.Errorf("pdf: unexpected byte %q at offset %d", c, p.pos)
	}
	return keyword(kw), nil
}

func (p *parser) parseName() Name {
	var b []byte
	for p.pos < len(p.buf) && isRegular(p.buf[p.pos]) {
		c := p.buf[p.pos]
		if c == '#' && p.pos+2 < len(p.buf) {
			if v, err := strconv.ParseUint(string(p.buf[p.pos+1:p.pos+3]), 16, 8); err == nil {
				b = append(b, byte(v))
				p.pos += 3
				continue
			}
		}
		b = append(b, c)
		p.pos++
	}
	return Name(b)
}

func (p *parser) parseLiteral() (Object, error) {
	var out []byte
	depth := 1
	for p.pos < len(p.buf) {
		c := p.buf[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return String(out), nil
			}
			out = append(out, c)
		case '\\':
			if p.eof() {
				return nil, errUnexpectedEOF
			}
			e := p.buf[p.pos]
			p.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if p.pos < len(p.buf) && p.buf[p.pos] == '\n' {
					p.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for i := 0; i < 2 && p.pos < len(p.buf) && p.buf[p.pos] >= '0' && p.buf[p.pos] <= '7'; i++ {
					v = v*8 + int(p.buf[p.pos]-'0')
					p.pos++
				}
				out = append(out, byte(v))
			default:
				out = append(out, e)
			}
		default:
			out = append(out, c)
		}
	}
	return nil, errUnexpectedEOF
}

func (p *parser) parseHex() (Object, error) {
	var digits []byte
	for p.pos < len(p.buf) {
		c := p.buf[p.pos]
		p.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := range out {
				v, err := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
				if err != nil {
					return nil, fmt.Errorf("pdf: bad hex string: %w", err)
				}
				out[i] = byte(v)
			}
			return String(out), nil
		}
		if isWhitespace(c) {
			continue
		}
		digits = append(digits, c)
	}
	return nil, errUnexpectedEOF
}

func (p *parser) parseArray() (Object, error) {
	arr := Array{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, errUnexpectedEOF
		}
		if p.buf[p.pos] == ']' {
			p.pos++
			return arr, nil
		}
		o, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, o)
	}
}

func (p *parser) parseDict() (Object, error) {
	d := Dict{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, errUnexpectedEOF
		}
		if p.hasPrefix(">>") {
			p.pos += 2
			return d, nil
		}
		k, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		key, ok := k.(Name)
		if !ok {
			return nil, fmt.Errorf("pdf: dictionary key is %T at offset %d", k, p.pos)
		}
		v, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		d[key] = v
	}
}

func (p *parser) parseNumberOrRef() (Object, error) {
	start := p.pos
	isFloat := false
	if p.buf[p.pos] == '+' || p.buf[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.buf) {
		c := p.buf[p.pos]
		if c == '.' {
			isFloat = true
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	text := string(p.buf[start:p.pos])

	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("pdf: bad number %q: %w", text, err)
		}
		return f, nil
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("pdf: bad number %q: %w", text, err)
	}

	// Look ahead for "gen R".
	save := p.pos
	p.skipSpace()
	genStart := p.pos
	for p.pos < len(p.buf) && p.buf[p.pos] >= '0' && p.buf[p.pos] <= '9' {
		p.pos++
	}
	if p.pos > genStart && n >= 0 {
		gen, _ := strconv.Atoi(string(p.buf[genStart:p.pos]))
		p.skipSpace()
		if p.pos < len(p.buf) && p.buf[p.pos] == 'R' && (p.pos+1 == len(p.buf) || !isRegular(p.buf[p.pos+1])) {
			p.pos++
			return Ref{Num: int(n), Gen: gen}, nil
		}
	}
	p.pos = save
	return n, nil
}
