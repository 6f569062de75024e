// Package brand canonicalizes free-text spirit brand names against a table of
// known brands and their spelling variations.
package brand

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Confidence grades how much a normalization result can be trusted.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets min.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.rank() >= min.rank()
}

// ParseConfidence parses "low", "medium" or "high" (case-insensitive).
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return c, nil
	}
	return "", eris.Errorf("brand: unknown confidence %q", s)
}

// Transformation names, in pipeline order.
const (
	TransformEmptyInput             = "empty_input"
	TransformNormalizeCase          = "normalize_case"
	TransformExpandAbbreviations    = "expand_abbreviations"
	TransformRemoveStopWords        = "remove_stop_words"
	TransformExtractCoreName        = "extract_core_name"
	TransformCanonicalLookup        = "canonical_lookup"
	TransformInsufficientConfidence = "insufficient_confidence"
)

// Config selects the optional pipeline stages and the acceptance floor.
type Config struct {
	// StrictMatching disables the fuzzy fallback; only exact lookups resolve.
	StrictMatching      bool       `json:"strict_matching" mapstructure:"strict_matching"`
	MinimumConfidence   Confidence `json:"minimum_confidence" mapstructure:"minimum_confidence"`
	ExpandAbbreviations bool       `json:"expand_abbreviations" mapstructure:"expand_abbreviations"`
	NormalizeCase       bool       `json:"normalize_case" mapstructure:"normalize_case"`
}

// DefaultConfig returns the configuration used when callers have no opinion.
func DefaultConfig() Config {
	return Config{
		StrictMatching:      false,
		MinimumConfidence:   ConfidenceMedium,
		ExpandAbbreviations: true,
		NormalizeCase:       true,
	}
}

// Result is the outcome of normalizing one raw brand string.
type Result struct {
	Normalized      string     `json:"normalized"`
	Canonical       string     `json:"canonical"`
	Confidence      Confidence `json:"confidence"`
	Transformations []string   `json:"transformations"`
	IsKnownBrand    bool       `json:"is_known_brand"`
}

// Group is a set of raw brand strings that share one canonical form.
type Group struct {
	Canonical  string     `json:"canonical"`
	Brands     []string   `json:"brands"`
	Confidence Confidence `json:"confidence"`
}
