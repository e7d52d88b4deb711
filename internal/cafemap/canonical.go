package cafemap

import (
	"fmt"
	"strings"
	"unicode"
)

// CanonicalKey derives the stable identifier for a location from its
// normalized name and its coordinate rounded to four decimals (~11m).
// Identical input always yields the same key, which is what keeps rerun
// upserts and human-confirmed merges collapsing onto the same entry.
func CanonicalKey(name string, c Coordinate) string {
	return fmt.Sprintf("%s@%.4f,%.4f", NormalizeName(name), c.Lat, c.Lng)
}

// NormalizeName lowercases, strips punctuation and symbols, and collapses
// runs of whitespace so cosmetic variants of a store name compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}
