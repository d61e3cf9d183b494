package coap

import (
	"encoding/hex"
	"strings"
)

// HexDump formats b as space-separated lowercase hex octets.
func HexDump(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(hex.EncodeToString([]byte{c}))
	}
	return sb.String()
}

// ParseHex decodes a hex string. Whitespace, colons and "0x" prefixes are
// ignored so that output of HexDump and captures from packet tools parse.
func ParseHex(s string) ([]byte, error) {
	var sb strings.Builder
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ':' || r == '\n' || r == '\t' || r == ','
	}) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		sb.WriteString(field)
	}
	return hex.DecodeString(sb.String())
}
