package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata_Apply(t *testing.T) {
	t.Parallel()

	s := Spirit{Name: "Old No. 7", Category: "Whiskey"}
	Metadata{
		MetaCategory: " Tennessee Whiskey ",
		MetaOrigin:   "USA",
		"unknown":    "ignored",
	}.Apply(&s)

	assert.Equal(t, "Tennessee Whiskey", s.Category)
	assert.Equal(t, "USA", s.OriginCountry)
	assert.Empty(t, s.Type)
}

func TestMetadata_NilSafe(t *testing.T) {
	t.Parallel()

	var m Metadata
	assert.Empty(t, m.Get(MetaRecordID))
	s := Spirit{Type: "Bourbon"}
	m.Apply(&s)
	assert.Equal(t, "Bourbon", s.Type)
}

func TestWorkItem_Label(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		item WorkItem
		want string
	}{
		{"brand and name", WorkItem{Name: "Old No. 7", Brand: "Jack Daniels"}, "Jack Daniels Old No. 7"},
		{"name only", WorkItem{Name: " Lagavulin 16 "}, "Lagavulin 16"},
		{"empty", WorkItem{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.item.Label())
		})
	}
}

func TestMetadata_ApplySeeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		start bool
		want  bool
	}{
		{"true", "true", false, true},
		{"numeric", "1", false, true},
		{"false clears", "false", true, false},
		{"unparsable leaves unchanged", "yes", true, true},
		{"missing leaves unchanged", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Spirit{Name: "Weller", IsSeeded: tt.start}
			Metadata{MetaSeeded: tt.value}.Apply(&s)
			assert.Equal(t, tt.want, s.IsSeeded)
		})
	}
}

func TestSpirit_NeedsEnrichment(t *testing.T) {
	t.Parallel()

	full := Spirit{
		Name:        "Eagle Rare 10",
		ABV:         Float(45),
		Price:       Float(39.99),
		Description: "Single barrel bourbon",
		ImageURL:    "https://example.com/er.jpg",
	}
	assert.False(t, full.NeedsEnrichment())

	missing := full
	missing.ImageURL = ""
	assert.True(t, missing.NeedsEnrichment())

	rangeOnly := full
	rangeOnly.Price = nil
	rangeOnly.PriceRange = "$30-$40"
	assert.False(t, rangeOnly.NeedsEnrichment())
}

func TestCriteria_EffectiveLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultCriteriaLimit, Criteria{}.EffectiveLimit())
	assert.Equal(t, 3, Criteria{Limit: 3}.EffectiveLimit())
}

func TestBatchProgress_SuccessRate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, BatchProgress{}.SuccessRate())
	assert.InDelta(t, 75.0, BatchProgress{Completed: 4, Successful: 3}.SuccessRate(), 0.001)
}

func TestSpirit_FillMissing(t *testing.T) {
	t.Parallel()

	s := Spirit{Name: "Blanton's", Brand: "Blanton's", Description: "Original single barrel"}
	s.FillMissing(Spirit{
		Name:        "Blantons Gold",
		Brand:       "Buffalo Trace",
		ABV:         Float(46.5),
		Description: "ignored",
		ImageURL:    "https://example.com/b.jpg",
		Awards:      []string{"Double Gold"},
		IsSeeded:    true,
	})

	assert.Equal(t, "Blanton's", s.Name)
	assert.Equal(t, "Blanton's", s.Brand)
	assert.Equal(t, "Original single barrel", s.Description)
	assert.Equal(t, 46.5, *s.ABV)
	assert.Equal(t, "https://example.com/b.jpg", s.ImageURL)
	assert.Equal(t, []string{"Double Gold"}, s.Awards)
	assert.True(t, s.IsSeeded)
}
