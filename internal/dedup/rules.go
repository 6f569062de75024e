package dedup

import (
	"regexp"
	"strings"
)

var (
	yearPattern  = regexp.MustCompile(`\b20\d{2}\b`)
	batchPattern = regexp.MustCompile(`(?i)batch\s*#?\s*(\w+)`)
)

// typeGroups lists spirit types that may describe the same product.
var typeGroups = [][]string{
	{"whiskey", "whisky", "bourbon", "rye", "rye whiskey", "scotch", "single malt",
		"blended whisky", "blended scotch", "irish whiskey", "tennessee whiskey", "canadian whisky"},
	{"vodka"},
	{"gin"},
	{"rum"},
	{"tequila", "mezcal"},
	{"brandy", "cognac", "armagnac"},
}

func years(name string) map[string]bool {
	matches := yearPattern.FindAllString(name, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make(map[string]bool, len(matches))
	for _, m := range matches {
		out[m] = true
	}
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func batchToken(name string) string {
	m := batchPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// CompatibleTypes reports whether two spirit types can name the same product.
// Comparison is case-insensitive; unknown types are only compatible with
// themselves.
func CompatibleTypes(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	for _, g := range typeGroups {
		var hasA, hasB bool
		for _, t := range g {
			hasA = hasA || t == a
			hasB = hasB || t == b
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}
