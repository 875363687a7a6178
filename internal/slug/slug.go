// Package slug derives URL and mailbox friendly tokens from business names.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = map[string]struct{}{
	"llc": {}, "inc": {}, "ltd": {}, "co": {}, "corp": {}, "corporation": {},
	"company": {}, "llp": {}, "pllc": {}, "plc": {}, "gmbh": {}, "incorporated": {},
	"limited": {},
}

// Words lowercases name, folds accents and splits it into ASCII alphanumeric words.
// Ampersands become "and"; apostrophes are dropped so "Joe's" yields "joes".
func Words(name string) []string {
	folded := fold(strings.ToLower(name))
	folded = strings.ReplaceAll(folded, "&", " and ")
	folded = strings.NewReplacer("'", "", "’", "").Replace(folded)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// StripLegal drops trailing legal-entity suffixes such as "LLC" or "Inc".
func StripLegal(words []string) []string {
	end := len(words)
	for end > 1 {
		if _, ok := legalSuffixes[words[end-1]]; !ok {
			break
		}
		end--
	}
	return words[:end]
}

// Hyphenated joins words with "-".
func Hyphenated(words []string) string { return strings.Join(words, "-") }

// Concatenated joins words without a separator.
func Concatenated(words []string) string { return strings.Join(words, "") }

// Underscored joins words with "_".
func Underscored(words []string) string { return strings.Join(words, "_") }

// FirstWord returns the first word or "".
func FirstWord(words []string) string {
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
