package validate

import (
	"regexp"
	"strings"
)

// QueryDetector decides whether an extracted name is really a search query.
type QueryDetector interface {
	LooksLikeQuery(name string) bool
}

// DefaultQueryPatterns match qualifier-led phrases, price-range phrases and
// bare category phrases.
var DefaultQueryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(budget|premium|best|top|cheap|expensive|affordable|rare|quality|smooth|craft)\s+`),
	regexp.MustCompile(`(?i)^(good|great|nice|bad|worst|overrated|underrated)\s+`),
	regexp.MustCompile(`(?i)^(find|search|looking for|where to buy|how to)\s+`),
	regexp.MustCompile(`(?i)^(types of|kinds of|list of|collection of)\s+`),
	regexp.MustCompile(`(?i)\s+(under|over|below|above)\s+\$\d+`),
	regexp.MustCompile(`(?i)^wheated bourbon whiskey$`),
	regexp.MustCompile(`(?i)^single malt scotch$`),
	regexp.MustCompile(`(?i)^blended scotch whisky$`),
	regexp.MustCompile(`(?i)^premium vodka$`),
	regexp.MustCompile(`(?i)^craft gin$`),
}

// DefaultGenericCategories are names that are only a category word.
var DefaultGenericCategories = []string{
	"bourbon", "whiskey", "whisky", "vodka", "gin", "rum", "tequila", "scotch",
}

// PatternDetector is a regexp-based QueryDetector.
type PatternDetector struct {
	patterns   []*regexp.Regexp
	categories map[string]bool
}

// NewPatternDetector returns a detector with the default patterns plus extra.
func NewPatternDetector(extra ...*regexp.Regexp) *PatternDetector {
	d := &PatternDetector{
		patterns:   append(append([]*regexp.Regexp{}, DefaultQueryPatterns...), extra...),
		categories: make(map[string]bool, len(DefaultGenericCategories)),
	}
	for _, c := range DefaultGenericCategories {
		d.categories[c] = true
	}
	return d
}

// LooksLikeQuery reports whether name matches a query pattern or is a bare
// category word. Empty names are not queries.
func (d *PatternDetector) LooksLikeQuery(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, re := range d.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return d.categories[strings.ToLower(name)]
}
