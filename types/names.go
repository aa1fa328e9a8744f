package types

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName reduces a property name to its canonical form: accents are
// stripped, letters lowercased and anything outside [a-z0-9] dropped.
// "T_sat", "t-SAT" and "Tsät" all become "tsat".
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(t, name)
	if err != nil {
		decomposed = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(decomposed) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
