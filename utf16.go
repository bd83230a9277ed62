package pdfbridge

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeUTF16 returns s as UTF-16LE code units without a terminator.
func EncodeUTF16(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return b
}

// DecodeUTF16 decodes UTF-16LE code units, stopping at the first NUL unit.
// A trailing odd byte is ignored.
func DecodeUTF16(b []byte) string {
	b = b[:len(b)&^1]
	for i := 0; i < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]
			break
		}
	}
	s, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(bytes.ToValidUTF8(s, []byte("�")))
}
