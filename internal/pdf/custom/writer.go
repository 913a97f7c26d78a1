package custom

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// WriteObject serializes obj in PDF syntax. Stream /Length is always
// rewritten to match Data.
func WriteObject(buf *bytes.Buffer, obj PDFObject) {
	switch o := obj.(type) {
	case nil:
		buf.WriteString("null")
	case *Dictionary:
		writeDictionary(buf, o)
	case *Array:
		buf.WriteByte('[')
		for i, elem := range o.Elements {
			if i > 0 {
				buf.WriteByte(' ')
			}
			WriteObject(buf, elem)
		}
		buf.WriteByte(']')
	case *Stream:
		dict := o.Dict
		if dict == nil {
			dict = NewDictionary()
		}
		dict.Set("Length", Int(int64(len(o.Data))))
		writeDictionary(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(o.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString(obj.String())
	}
}

func writeDictionary(buf *bytes.Buffer, d *Dictionary) {
	buf.WriteString("<<")
	for _, key := range d.Keys {
		buf.WriteString(key.String())
		buf.WriteByte(' ')
		WriteObject(buf, d.Values[key.Value])
	}
	buf.WriteString(">>")
}

// WriteIndirectObject writes "N G obj ... endobj" followed by a newline
func WriteIndirectObject(buf *bytes.Buffer, id ObjectID, obj PDFObject) {
	fmt.Fprintf(buf, "%d %d obj\n", id.Number, id.Generation)
	WriteObject(buf, obj)
	buf.WriteString("\nendobj\n")
}

// Serialize returns the PDF syntax for obj
func Serialize(obj PDFObject) []byte {
	var buf bytes.Buffer
	WriteObject(&buf, obj)
	return buf.Bytes()
}

func escapeLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if ch < 0x20 || ch > 0x7e {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	return b.String()
}

func encodeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < '!' || ch > '~' || ch == '#' || IsDelimiter(ch) {
			fmt.Fprintf(&b, "#%02X", ch)
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// NewTextString encodes s as a PDF text string: plain ASCII stays literal,
// anything else becomes UTF-16BE with a byte order mark.
func NewTextString(s string) *String {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7e || (s[i] < 0x20 && s[i] != '\n' && s[i] != '\r' && s[i] != '\t') {
			ascii = false
			break
		}
	}
	if ascii {
		return &String{Value: s}
	}

	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2+2*len(units))
	out = append(out, 0xFE, 0xFF)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return &String{Value: string(out), IsHex: true}
}

// DecodeTextString decodes a PDF text string to UTF-8
func DecodeTextString(raw string) string {
	b := []byte(raw)
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		units := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return string(b[3:])
	}
	if utf8.Valid(b) {
		return raw
	}
	// PDFDocEncoding matches Latin-1 for the printable range
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// FormatDate renders t as a PDF date string (D:YYYYMMDDHHmmSS+HH'mm')
func FormatDate(t time.Time) string {
	s := t.Format("D:20060102150405")
	_, offset := t.Zone()
	if offset == 0 {
		return s + "Z"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s%c%02d'%02d'", s, sign, offset/3600, (offset%3600)/60)
}
