package tally

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Tally exports carry raw control bytes and numeric character references
// to them, both of which are invalid XML 1.0. Both forms must go before
// a parser sees the document.
var (
	decCtrlRef = regexp.MustCompile(`&#0*(?:[0-8]|1[124-9]|2[0-9]|3[01]);`)
	hexCtrlRef = regexp.MustCompile(`&#[xX]0*(?:[0-8bcefBCEF]|1[0-9a-fA-F]);`)
)

// SanitizeXML strips characters a strict XML parser rejects.
func SanitizeXML(s string) string {
	s = decCtrlRef.ReplaceAllString(s, "")
	s = hexCtrlRef.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// DecodeExportFile converts a Tally file export to UTF-8. Tally writes
// masters exports as UTF-16LE with a BOM; HTTP responses and hand-saved
// files are UTF-8. Detection is by BOM, with a null-byte heuristic for
// BOM-less UTF-16.
func DecodeExportFile(raw []byte) (string, error) {
	var enc encoding.Encoding
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case looksUTF16LE(raw):
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	default:
		// Strip a UTF-8 BOM if present.
		return string(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func looksUTF16LE(raw []byte) bool {
	if len(raw) < 8 {
		return false
	}
	nulls := 0
	for i := 1; i < 64 && i < len(raw); i += 2 {
		if raw[i] == 0 {
			nulls++
		}
	}
	return nulls > 8
}
