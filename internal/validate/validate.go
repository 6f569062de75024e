// Package validate cleans extracted records before they reach deduplication
// and detects extractor output that echoes the search query back.
package validate

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/model"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = eris.New("invalid spirit record")

// MaxDescriptionLen bounds descriptions, in runes.
const MaxDescriptionLen = 2000

var (
	volumeNoise = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*m\s*l\b`),
		regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(liter|litre|l)\b`),
	}
	priceNoise      = regexp.MustCompile(`\$[\d,]+\.?\d*`)
	vintageParens   = regexp.MustCompile(`\s*\(\d{4}\)\s*`)
	bottledInBond   = regexp.MustCompile(`(?i)bottled[\s-]*in[\s-]*bond`)
	edgePunctuation = regexp.MustCompile(`^[\s\-,]+|[\s\-,]+$`)
)

// Validator normalizes and checks extracted spirits.
type Validator struct{}

// New returns a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate returns a cleaned copy of s, or an error wrapping ErrInvalid that
// lists every violation found.
func (v *Validator) Validate(s model.Spirit) (model.Spirit, error) {
	s.Name = CleanName(s.Name)
	s.Brand = collapse(s.Brand)
	s.Type = collapse(s.Type)
	s.Category = collapse(s.Category)
	s.Description = truncate(collapse(s.Description), MaxDescriptionLen)
	s.OriginCountry = collapse(s.OriginCountry)
	s.Region = collapse(s.Region)

	var violations []string
	if s.Name == "" {
		violations = append(violations, "name is required")
	}
	if s.ABV != nil && (*s.ABV < 0 || *s.ABV > 100) {
		violations = append(violations, "abv out of range [0,100]")
	}
	if s.Price != nil && *s.Price < 0 {
		violations = append(violations, "price is negative")
	}
	if s.ImageURL != "" && !isHTTPURL(s.ImageURL) {
		s.ImageURL = ""
	}
	if s.SourceURL != "" && !isHTTPURL(s.SourceURL) {
		s.SourceURL = ""
	}

	if len(violations) > 0 {
		return s, eris.Wrap(ErrInvalid, strings.Join(violations, "; "))
	}
	return s, nil
}

// CleanName strips volume, price and vintage noise from an extracted name and
// collapses whitespace.
func CleanName(name string) string {
	for _, re := range volumeNoise {
		name = re.ReplaceAllString(name, "")
	}
	name = priceNoise.ReplaceAllString(name, "")
	name = vintageParens.ReplaceAllString(name, " ")
	name = bottledInBond.ReplaceAllString(name, "Bottled in Bond")
	name = collapse(name)
	return edgePunctuation.ReplaceAllString(name, "")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// truncate cuts s to max runes, preferring a sentence boundary in the last
// fifth and otherwise a word boundary.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := string([]rune(s)[:max])
	if i := strings.LastIndex(cut, "."); i > len(cut)*4/5 {
		return cut[:i+1]
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return strings.TrimSpace(cut[:i])
	}
	return cut
}
