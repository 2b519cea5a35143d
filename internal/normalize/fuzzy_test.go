package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyRatio_Identical(t *testing.T) {
	assert.Equal(t, 1.0, FuzzyRatio("ABC Solar LLC", "ABC Solar"))
	assert.Equal(t, 1.0, FuzzyRatio("Acme Heating & Air", "ACME HEATING AND AIR, INC."))
}

func TestFuzzyRatio_Empty(t *testing.T) {
	assert.Equal(t, 0.0, FuzzyRatio("", "ABC Solar"))
	assert.Equal(t, 0.0, FuzzyRatio("ABC Solar", ""))
	assert.Equal(t, 0.0, FuzzyRatio("...", "..."))
}

func TestFuzzyRatio_Disjoint(t *testing.T) {
	assert.Equal(t, 0.0, FuzzyRatio("abcd", "wxyz"))
	assert.Less(t, FuzzyRatio("Sunshine Roofing", "Mk Pool"), 0.3)
}

func TestSimilarity_Boundaries(t *testing.T) {
	// 20 runes, 3 substitutions -> 17/20.
	assert.Equal(t, 0.85, Similarity("abcdefghijklmnopqrst", "abcdefghijklmnopqxyz"))
	// 25 runes, 4 substitutions -> 21/25.
	assert.Equal(t, 0.84, Similarity("abcdefghijklmnopqrstuvwxy", "abcdefghijklmnopqrstuzzzz"))
}

func TestSimilarity_Symmetric(t *testing.T) {
	a, b := "sunshine air conditioning", "sunshine air"
	assert.Equal(t, Similarity(a, b), Similarity(b, a))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "abc", Prefix("abc solar", 3))
	assert.Equal(t, "", Prefix("ab", 3))
	assert.Equal(t, "caf", Prefix("cafe", 3))
	assert.Equal(t, "ñan", Prefix("ñandu", 3))
	assert.Equal(t, "abc", Prefix("abc", 3))
}
