// Package dedup decides whether an extracted spirit already exists in the
// store.
package dedup

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spirits-cli/internal/model"
	"github.com/sells-group/spirits-cli/internal/similarity"
)

const (
	// DefaultThreshold is the composite score a candidate must exceed.
	DefaultThreshold = 0.92
	// DefaultCandidateLimit bounds the prefilter query.
	DefaultCandidateLimit = 10
)

// Querier is the store capability the checker needs.
type Querier interface {
	Query(ctx context.Context, c model.Criteria) ([]model.StoredSpirit, error)
}

// BrandCanonicalizer maps raw brand strings to canonical names.
// *brand.Normalizer satisfies it.
type BrandCanonicalizer interface {
	Canonical(raw string) string
}

// Option configures a Checker.
type Option func(*Checker)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(c *Checker) {
		if t > 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// WithCandidateLimit overrides DefaultCandidateLimit.
func WithCandidateLimit(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithWeights overrides similarity.DefaultWeights.
func WithWeights(w similarity.Weights) Option {
	return func(c *Checker) {
		c.weights = w
	}
}

// Checker is safe for concurrent use if its Querier and BrandCanonicalizer are.
type Checker struct {
	store     Querier
	brands    BrandCanonicalizer
	threshold float64
	limit     int
	weights   similarity.Weights
}

// NewChecker returns a Checker. brands may be nil, in which case brands are
// compared as lowercased trimmed strings.
func NewChecker(store Querier, brands BrandCanonicalizer, opts ...Option) *Checker {
	c := &Checker{
		store:     store,
		brands:    brands,
		threshold: DefaultThreshold,
		limit:     DefaultCandidateLimit,
		weights:   similarity.DefaultWeights,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Threshold returns the configured composite threshold.
func (c *Checker) Threshold() float64 {
	return c.threshold
}

// Check looks for an existing record matching candidate. An exact
// (name, brand) hit wins immediately; otherwise the best prefiltered match
// whose composite score exceeds the threshold and survives the override rules
// is returned.
func (c *Checker) Check(ctx context.Context, candidate model.Spirit) (model.DuplicateDecision, error) {
	name := strings.TrimSpace(candidate.Name)
	rawBrand := strings.TrimSpace(candidate.Brand)
	if name == "" {
		return model.DuplicateDecision{}, nil
	}
	canonBrand := c.canonical(rawBrand)

	if rawBrand != "" {
		brands := []string{rawBrand}
		if canonBrand != "" && !strings.EqualFold(canonBrand, rawBrand) {
			brands = append(brands, canonBrand)
		}
		for _, b := range brands {
			hits, err := c.store.Query(ctx, model.Criteria{Name: name, Brand: b, Exact: true, Limit: 1})
			if err != nil {
				return model.DuplicateDecision{}, eris.Wrap(err, "dedup: exact lookup")
			}
			if len(hits) > 0 {
				hit := hits[0]
				return model.DuplicateDecision{
					IsDuplicate:   true,
					MatchedID:     hit.ID,
					MatchedRecord: &hit,
					Score:         1,
					Reason:        "exact name and brand match",
				}, nil
			}
		}
	}

	candidates, err := c.store.Query(ctx, model.Criteria{Name: name, Brand: canonBrand, Limit: c.limit})
	if err != nil {
		return model.DuplicateDecision{}, eris.Wrap(err, "dedup: candidate lookup")
	}

	var best model.DuplicateDecision
	for i := range candidates {
		existing := candidates[i]
		a := c.Analyze(candidate, existing.Spirit)
		if !a.IsDuplicate {
			if a.VoidReason != "" {
				zap.L().Debug("dedup: match voided",
					zap.String("candidate", name),
					zap.String("existing_id", existing.ID),
					zap.Float64("score", a.Composite),
					zap.String("reason", a.VoidReason),
				)
			}
			continue
		}
		if a.Identical {
			return model.DuplicateDecision{
				IsDuplicate:   true,
				MatchedID:     existing.ID,
				MatchedRecord: &existing,
				Score:         1,
				Reason:        "identical name and brand",
			}, nil
		}
		if a.Composite > best.Score {
			best = model.DuplicateDecision{
				IsDuplicate:   true,
				MatchedID:     existing.ID,
				MatchedRecord: &existing,
				Score:         a.Composite,
				Reason:        fmt.Sprintf("fuzzy match (score %.3f)", a.Composite),
			}
		}
	}
	return best, nil
}

// Analysis explains how two records compare.
type Analysis struct {
	NameScore   float64 `json:"name_score"`
	BrandScore  float64 `json:"brand_score"`
	Composite   float64 `json:"composite"`
	AboveThresh bool    `json:"above_threshold"`
	Identical   bool    `json:"identical"`
	VoidReason  string  `json:"void_reason,omitempty"`
	IsDuplicate bool    `json:"is_duplicate"`
}

// Analyze scores a against b and applies the override rules.
func (c *Checker) Analyze(a, b model.Spirit) Analysis {
	var out Analysis
	out.NameScore = similarity.Ratio(fold(a.Name), fold(b.Name))
	out.BrandScore = c.brandScore(a.Brand, b.Brand)
	out.Composite = similarity.Composite(out.NameScore, out.BrandScore, c.weights)
	out.AboveThresh = out.Composite > c.threshold
	// Identical name and brand is a duplicate regardless of the override rules.
	if fold(a.Name) == fold(b.Name) && out.BrandScore == 1 {
		out.Identical = true
		out.IsDuplicate = true
		return out
	}
	if out.AboveThresh {
		out.VoidReason = VoidReason(a, b)
		out.IsDuplicate = out.VoidReason == ""
	}
	return out
}

func (c *Checker) brandScore(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 1
	case a == "" || b == "":
		return 0
	}
	ca, cb := fold(c.canonical(a)), fold(c.canonical(b))
	if ca == cb {
		return 1
	}
	return similarity.Ratio(ca, cb)
}

func (c *Checker) canonical(raw string) string {
	if raw == "" || c.brands == nil {
		return raw
	}
	if canon := c.brands.Canonical(raw); canon != "" {
		return canon
	}
	return raw
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// MaxABVDelta is the largest ABV difference two duplicates may have.
const MaxABVDelta = 3.0

// VoidReason returns why two otherwise similar records must stay distinct, or
// "" if nothing distinguishes them.
func VoidReason(a, b model.Spirit) string {
	if ya, yb := years(a.Name), years(b.Name); len(ya) > 0 && len(yb) > 0 && !sameSet(ya, yb) {
		return "release year differs"
	}
	if ba, bb := batchToken(a.Name), batchToken(b.Name); ba != "" && bb != "" && ba != bb {
		return "batch differs"
	}
	if a.ABV != nil && b.ABV != nil && math.Abs(*a.ABV-*b.ABV) > MaxABVDelta {
		return "abv differs"
	}
	if a.Type != "" && b.Type != "" && !CompatibleTypes(a.Type, b.Type) {
		return "spirit type differs"
	}
	return ""
}
