package object

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

var (
	utf16be = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
)

// DecodeTextString interprets decoded string bytes as a PDF text
// string: UTF-16 with a BOM, or raw bytes otherwise.
func DecodeTextString(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}):
		if out, err := utf16be.Bytes(b); err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, []byte{0xFF, 0xFE}):
		if out, err := utf16le.Bytes(b); err == nil {
			return string(out)
		}
	}
	return string(b)
}

// TextValue returns the text-string interpretation of a string
// property.
func (d *Dict) TextValue(key string) (string, bool) {
	b, ok := d.StringValue(key)
	if !ok {
		return "", false
	}
	return DecodeTextString(b), true
}
