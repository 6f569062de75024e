// Package model defines the records shared by the extraction pipeline, the
// deduplication checker and the stores.
package model

import "time"

// Spirit is the structured record produced by extraction and persisted by a
// store. Only the normalization steps mutate it before persistence.
type Spirit struct {
	Name          string   `json:"name"`
	Brand         string   `json:"brand,omitempty"`
	Type          string   `json:"type,omitempty"`
	Category      string   `json:"category,omitempty"`
	ABV           *float64 `json:"abv,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	PriceRange    string   `json:"price_range,omitempty"`
	Description   string   `json:"description,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
	OriginCountry string   `json:"origin_country,omitempty"`
	Region        string   `json:"region,omitempty"`
	AgeStatement  string   `json:"age_statement,omitempty"`
	Volume        string   `json:"volume,omitempty"`

	// Enrichment fields.
	CaskType       string   `json:"cask_type,omitempty"`
	MashBill       string   `json:"mash_bill,omitempty"`
	Distillery     string   `json:"distillery,omitempty"`
	Bottler        string   `json:"bottler,omitempty"`
	Vintage        string   `json:"vintage,omitempty"`
	BatchNumber    string   `json:"batch_number,omitempty"`
	ReleaseYear    string   `json:"release_year,omitempty"`
	LimitedEdition bool     `json:"limited_edition,omitempty"`
	Awards         []string `json:"awards,omitempty"`

	// IsSeeded marks records written by seed runs.
	IsSeeded  bool      `json:"is_seeded,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// StoredSpirit is a Spirit as it exists in a store.
type StoredSpirit struct {
	Spirit
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NeedsEnrichment reports whether any of the commonly missing fields is empty.
func (s Spirit) NeedsEnrichment() bool {
	return s.ABV == nil || s.Description == "" || (s.Price == nil && s.PriceRange == "") || s.ImageURL == ""
}

// Float returns a pointer to v, for building optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

// Criteria selects stored spirits. Exact requests case-insensitive equality on
// name and brand; otherwise a substring prefilter on name or brand is used.
type Criteria struct {
	Name  string `json:"name,omitempty"`
	Brand string `json:"brand,omitempty"`
	Exact bool   `json:"exact,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// DefaultCriteriaLimit bounds prefilter queries that do not set a limit.
const DefaultCriteriaLimit = 10

// EffectiveLimit returns Limit or DefaultCriteriaLimit.
func (c Criteria) EffectiveLimit() int {
	if c.Limit <= 0 {
		return DefaultCriteriaLimit
	}
	return c.Limit
}

// DuplicateDecision is the deduplication outcome for one candidate record.
type DuplicateDecision struct {
	IsDuplicate   bool          `json:"is_duplicate"`
	MatchedID     string        `json:"matched_id,omitempty"`
	MatchedRecord *StoredSpirit `json:"matched_record,omitempty"`
	Score         float64       `json:"score,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// FailureRecord is a TTL-bounded "this input failed terminally" ledger entry.
type FailureRecord struct {
	Key        string    `json:"key"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	RecordedAt time.Time `json:"recorded_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CatalogStats summarizes store contents.
type CatalogStats struct {
	Total           int            `json:"total"`
	NeedsEnrichment int            `json:"needs_enrichment"`
	ByType          map[string]int `json:"by_type"`
	ActiveFailures  int            `json:"active_failures"`
}

// FillMissing copies every field of from that is empty on s. Identity fields
// (Name, Brand) are never overwritten.
func (s *Spirit) FillMissing(from Spirit) {
	fillString := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fillString(&s.Type, from.Type)
	fillString(&s.Category, from.Category)
	fillString(&s.PriceRange, from.PriceRange)
	fillString(&s.Description, from.Description)
	fillString(&s.ImageURL, from.ImageURL)
	fillString(&s.SourceURL, from.SourceURL)
	fillString(&s.OriginCountry, from.OriginCountry)
	fillString(&s.Region, from.Region)
	fillString(&s.AgeStatement, from.AgeStatement)
	fillString(&s.Volume, from.Volume)
	fillString(&s.CaskType, from.CaskType)
	fillString(&s.MashBill, from.MashBill)
	fillString(&s.Distillery, from.Distillery)
	fillString(&s.Bottler, from.Bottler)
	fillString(&s.Vintage, from.Vintage)
	fillString(&s.BatchNumber, from.BatchNumber)
	fillString(&s.ReleaseYear, from.ReleaseYear)
	if s.ABV == nil {
		s.ABV = from.ABV
	}
	if s.Price == nil {
		s.Price = from.Price
	}
	if !s.LimitedEdition {
		s.LimitedEdition = from.LimitedEdition
	}
	if !s.IsSeeded {
		s.IsSeeded = from.IsSeeded
	}
	if len(s.Awards) == 0 {
		s.Awards = from.Awards
	}
	if s.ScrapedAt.IsZero() || from.ScrapedAt.After(s.ScrapedAt) {
		s.ScrapedAt = from.ScrapedAt
	}
}
