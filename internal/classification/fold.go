package classification

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and trims surrounding space, so
// "Saúde " and "saude" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// ContainsWord reports whether any whitespace-separated token of text,
// stripped of punctuation, equals one of words after folding.
func ContainsWord(text string, words []string) bool {
	tokens := strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for _, tok := range tokens {
		for _, w := range words {
			if tok == Fold(w) {
				return true
			}
		}
	}
	return false
}
