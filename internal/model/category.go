package model

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed license_categories.yaml
var licenseCategoriesYAML []byte

// CategoryTable maps license type codes to trade categories.
type CategoryTable struct {
	States   map[string]map[string]string `yaml:"states"`
	Keywords []CategoryKeyword             `yaml:"keywords"`
}

// CategoryKeyword is a substring fallback used when a type has no state entry.
type CategoryKeyword struct {
	Match    string `yaml:"match"`
	Category string `yaml:"category"`
}

// ParseCategoryTable decodes a YAML category table.
func ParseCategoryTable(data []byte) (*CategoryTable, error) {
	var t CategoryTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "model: parse license categories")
	}
	return &t, nil
}

var defaultCategories = mustParseCategories(licenseCategoriesYAML)

func mustParseCategories(data []byte) *CategoryTable {
	t, err := ParseCategoryTable(data)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultCategories returns the embedded category table.
func DefaultCategories() *CategoryTable { return defaultCategories }

// Category returns the trade category for a license type in a state, or "".
func (t *CategoryTable) Category(state, licenseType string) string {
	state = strings.ToUpper(strings.TrimSpace(state))
	licenseType = strings.ToUpper(strings.TrimSpace(licenseType))
	if licenseType == "" {
		return ""
	}
	if byType, ok := t.States[state]; ok {
		if cat, ok := byType[licenseType]; ok {
			return cat
		}
	}
	for _, kw := range t.Keywords {
		if strings.Contains(licenseType, kw.Match) {
			return kw.Category
		}
	}
	return ""
}

// LicenseCategory derives a category from the embedded table.
func LicenseCategory(state, licenseType string) string {
	return defaultCategories.Category(state, licenseType)
}
