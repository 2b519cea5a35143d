package normalize

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// FuzzyRatio normalizes both company names and returns their similarity
// in [0, 1]. Either name normalizing to "" yields 0.
func FuzzyRatio(a, b string) float64 {
	return Similarity(CompanyName(a), CompanyName(b))
}

// Similarity compares two already-normalized strings with a normalized
// Levenshtein ratio: (maxLen - distance) / maxLen, counted in runes.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	maxLen := max(la, lb)
	dist := matchr.Levenshtein(a, b)
	if dist >= maxLen {
		return 0
	}
	return float64(maxLen-dist) / float64(maxLen)
}

// Prefix returns the first n runes of a normalized name, or "" when the
// name is shorter than n.
func Prefix(s string, n int) string {
	if utf8.RuneCountInString(s) < n {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
