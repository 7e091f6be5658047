// Package textnorm provides the case/accent folding used by the search
// fallback path and the sanitization applied to user-entered names.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips combining marks, so "João" folds to "joao".
func Fold(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// Sanitize collapses internal whitespace, trims, strips control characters
// and caps the result at max runes. max <= 0 means no cap.
func Sanitize(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			if unicode.IsSpace(r) {
				return ' '
			}
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if max > 0 {
		r := []rune(s)
		if len(r) > max {
			s = string(r[:max])
		}
	}
	return s
}
