package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeProduct trims surrounding whitespace and upper-cases the first letter.
// The rest of the text is left as typed.
func NormalizeProduct(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
