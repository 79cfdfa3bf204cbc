// Package pdf reads PDF files and appends incremental updates that embed
// detached CMS signatures. Only the object model needed for signing is
// covered: catalog, page tree, interactive form fields and widgets.
package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Object is any PDF value: nil, bool, int64, float64, Name, String, Array,
// Dict, Ref or *Stream.
type Object interface{}

type Name string

// String holds the raw bytes of a literal or hex string
type String []byte

type Array []Object

type Dict map[Name]Object

// Ref is an indirect reference
type Ref struct {
	Num int
	Gen int
}

// Stream is a dictionary followed by raw (still encoded) stream bytes
type Stream struct {
	Dict Dict
	Data []byte
}

type keyword string

// Clone returns a shallow copy of the dictionary
func (d Dict) Clone() Dict {
	c := make(Dict, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Name returns the value for key if it is a name
func (d Dict) Name(key Name) (Name, bool) {
	n, ok := d[key].(Name)
	return n, ok
}

// Int returns the value for key if it is an integer
func (d Dict) Int(key Name) (int64, bool) {
	n, ok := d[key].(int64)
	return n, ok
}

func toFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// writeObject serializes o. Values the parser can produce but a writer must
// never emit, such as bare keywords from a damaged file, are an error.
func writeObject(b *bytes.Buffer, o Object) error {
	switch v := o.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if v {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case int:
		b.WriteString(strconv.Itoa(v))
	case float64:
		b.WriteString(formatFloat(v))
	case Name:
		writeName(b, v)
	case String:
		writeLiteral(b, v)
	case Ref:
		fmt.Fprintf(b, "%d %d R", v.Num, v.Gen)
	case Array:
		b.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				b.WriteByte(' ')
			}
			if err := writeObject(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case Dict:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		b.WriteString("<<")
		for _, k := range keys {
			writeName(b, Name(k))
			b.WriteByte(' ')
			if err := writeObject(b, v[Name(k)]); err != nil {
				return err
			}
			b.WriteByte(' ')
		}
		b.WriteString(">>")
	default:
		return fmt.Errorf("%w: cannot serialize %T", ErrMalformed, o)
	}
	return nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = trimZeros(s)
	if s == "-0" {
		return "0"
	}
	return s
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

func writeName(b *bytes.Buffer, n Name) {
	b.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			fmt.Fprintf(b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
}

func writeLiteral(b *bytes.Buffer, s []byte) {
	b.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
}
