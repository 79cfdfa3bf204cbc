package pdf

import (
	"bytes"
	"fmt"
	"unicode/utf16"
)

// appearanceStream draws the visible box of a signature field: a border,
// the signer, the signing time and the reason.
func appearanceStream(rect [4]float64, opts SignOptions) *Stream {
	w := rect[2] - rect[0]
	h := rect[3] - rect[1]

	lines := []string{"Digitally signed by " + opts.SignerName}
	lines = append(lines, "Date: "+opts.SigningTime.Format("2006-01-02 15:04:05 -07:00"))
	if opts.Reason != "" {
		lines = append(lines, opts.Reason)
	}

	size := h / float64(len(lines)+1)
	if size > 10 {
		size = 10
	}
	if size < 4 {
		size = 4
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "q 0.5 w 0 0 0 RG 0.25 0.25 %s %s re S Q\n", formatFloat(w-0.5), formatFloat(h-0.5))
	b.WriteString("BT\n")
	fmt.Fprintf(&b, "/Helv %s Tf\n", formatFloat(size))
	fmt.Fprintf(&b, "%s TL\n", formatFloat(size*1.2))
	fmt.Fprintf(&b, "3 %s Td\n", formatFloat(h-size-2))
	for i, l := range lines {
		if i > 0 {
			b.WriteString("T* ")
		}
		writeLiteral(&b, latin1(l))
		b.WriteString(" Tj\n")
	}
	b.WriteString("ET\n")

	return &Stream{
		Dict: Dict{
			"Type":    Name("XObject"),
			"Subtype": Name("Form"),
			"BBox":    Array{int64(0), int64(0), w, h},
			"Resources": Dict{
				"Font": Dict{
					"Helv": Dict{
						"Type":     Name("Font"),
						"Subtype":  Name("Type1"),
						"BaseFont": Name("Helvetica"),
						"Encoding": Name("WinAnsiEncoding"),
					},
				},
			},
		},
		Data: b.Bytes(),
	}
}

// latin1 maps text onto single bytes for the standard fonts, replacing
// anything outside Latin-1 with '?'.
func latin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}

// encodeText encodes a PDF text string: plain bytes for ASCII, UTF-16BE with
// a byte order mark otherwise.
func encodeText(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2, 2+2*len(units))
	out[0], out[1] = 0xFE, 0xFF
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

// decodeText reverses encodeText
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
