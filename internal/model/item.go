package model

import (
	"strconv"
	"strings"
)

// MetadataKey names one of the recognized work-item metadata entries.
type MetadataKey string

// Recognized metadata keys. MetaRecordID and MetaSource are read by the batch
// pipeline; the rest are applied to the extracted record by Metadata.Apply.
// Unknown keys are carried along untouched.
const (
	// MetaRecordID marks an item as an enrichment of an existing record; the
	// write path updates that record instead of inserting a new one.
	MetaRecordID MetadataKey = "record_id"
	// MetaCategory overrides the extracted category.
	MetaCategory MetadataKey = "category"
	// MetaType overrides the extracted spirit type.
	MetaType MetadataKey = "type"
	// MetaOrigin overrides the extracted origin country.
	MetaOrigin MetadataKey = "origin_country"
	// MetaSeeded flags items generated by seed runs; any strconv.ParseBool
	// form is accepted.
	MetaSeeded MetadataKey = "is_seeded"
	// MetaSource is a free-form tag describing where the item came from.
	MetaSource MetadataKey = "source"
)

// Metadata is an open key/value bag attached to a work item.
type Metadata map[MetadataKey]string

// Get returns the trimmed value for key, or "".
func (m Metadata) Get(key MetadataKey) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[key])
}

// Apply copies recognized overrides onto s.
func (m Metadata) Apply(s *Spirit) {
	if v := m.Get(MetaCategory); v != "" {
		s.Category = v
	}
	if v := m.Get(MetaType); v != "" {
		s.Type = v
	}
	if v := m.Get(MetaOrigin); v != "" {
		s.OriginCountry = v
	}
	if seeded, err := strconv.ParseBool(m.Get(MetaSeeded)); err == nil {
		s.IsSeeded = seeded
	}
}

// WorkItem is one unit of batch input: a name/brand pair to extract and store.
type WorkItem struct {
	Name     string   `json:"name" yaml:"name"`
	Brand    string   `json:"brand,omitempty" yaml:"brand,omitempty"`
	Metadata Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Label is the human-readable "brand name" form used in logs and results.
func (w WorkItem) Label() string {
	return strings.TrimSpace(strings.TrimSpace(w.Brand) + " " + strings.TrimSpace(w.Name))
}

// RecordID returns the existing record ID for enrichment items.
func (w WorkItem) RecordID() string {
	return w.Metadata.Get(MetaRecordID)
}
