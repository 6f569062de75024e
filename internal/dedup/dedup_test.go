package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spirits-cli/internal/brand"
	"github.com/sells-group/spirits-cli/internal/model"
	"github.com/sells-group/spirits-cli/internal/store"
)

type failingQuerier struct{}

func (failingQuerier) Query(context.Context, model.Criteria) ([]model.StoredSpirit, error) {
	return nil, errors.New("connection refused")
}

func newTestChecker(t *testing.T, existing ...model.Spirit) (*Checker, map[string]string) {
	t.Helper()
	st := store.NewMemory()
	ids := make(map[string]string, len(existing))
	for _, sp := range existing {
		id, err := st.Insert(context.Background(), sp)
		require.NoError(t, err)
		ids[sp.Name] = id
	}
	n, err := brand.NewDefault()
	require.NoError(t, err)
	return NewChecker(st, n), ids
}

func TestCheck_ExactMatch(t *testing.T) {
	t.Parallel()
	c, ids := newTestChecker(t, model.Spirit{Name: "Old No. 7", Brand: "Jack Daniels"})

	d, err := c.Check(context.Background(), model.Spirit{Name: "old no. 7", Brand: "JACK DANIELS"})
	require.NoError(t, err)
	assert.True(t, d.IsDuplicate)
	assert.Equal(t, ids["Old No. 7"], d.MatchedID)
	require.NotNil(t, d.MatchedRecord)
	assert.Equal(t, "Old No. 7", d.MatchedRecord.Name)
	assert.Equal(t, 1.0, d.Score)
}

func TestCheck_ExactMatchViaCanonicalBrand(t *testing.T) {
	t.Parallel()
	c, ids := newTestChecker(t, model.Spirit{Name: "Old No. 7", Brand: "Jack Daniels"})

	d, err := c.Check(context.Background(), model.Spirit{Name: "Old No. 7", Brand: "jack daniel's"})
	require.NoError(t, err)
	assert.True(t, d.IsDuplicate)
	assert.Equal(t, ids["Old No. 7"], d.MatchedID)
}

func TestCheck_IdenticalWithoutBrand(t *testing.T) {
	t.Parallel()
	c, _ := newTestChecker(t, model.Spirit{Name: "Mystery Reserve"})

	d, err := c.Check(context.Background(), model.Spirit{Name: "Mystery Reserve"})
	require.NoError(t, err)
	assert.True(t, d.IsDuplicate)
	assert.InDelta(t, 1.0, d.Score, 1e-9)
}

func TestCheck_IdenticalIgnoresOverrideRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing model.Spirit
		check    model.Spirit
	}{
		{
			name:     "no brand",
			existing: model.Spirit{Name: "Mystery Reserve", ABV: model.Float(40), Type: "Vodka"},
			check:    model.Spirit{Name: "Mystery Reserve", ABV: model.Float(50), Type: "Bourbon"},
		},
		{
			name:     "canonically equal brand",
			existing: model.Spirit{Name: "Old No. 7", Brand: "Jack Daniels", ABV: model.Float(40), Type: "Whiskey"},
			check:    model.Spirit{Name: "old no. 7", Brand: "JD", ABV: model.Float(45), Type: "Gin"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, ids := newTestChecker(t, tt.existing)

			a := c.Analyze(tt.check, tt.existing)
			assert.True(t, a.Identical)
			assert.True(t, a.IsDuplicate)
			assert.Empty(t, a.VoidReason)

			d, err := c.Check(context.Background(), tt.check)
			require.NoError(t, err)
			assert.True(t, d.IsDuplicate)
			assert.Equal(t, ids[tt.existing.Name], d.MatchedID)
			assert.InDelta(t, 1.0, d.Score, 1e-9)
		})
	}
}

func TestCheck_FuzzyMatch(t *testing.T) {
	t.Parallel()
	c, ids := newTestChecker(t, model.Spirit{Name: "Eagle Rare 10 Year Bourbon", Brand: "Buffalo Trace"})

	d, err := c.Check(context.Background(), model.Spirit{Name: "Eagle Rare 10 Year Bourbon.", Brand: "Buffalo Trace Distillery"})
	require.NoError(t, err)
	assert.True(t, d.IsDuplicate)
	assert.Equal(t, ids["Eagle Rare 10 Year Bourbon"], d.MatchedID)
	assert.Greater(t, d.Score, DefaultThreshold)
	assert.Contains(t, d.Reason, "fuzzy match")
}

func TestCheck_YearOverride(t *testing.T) {
	t.Parallel()
	c, _ := newTestChecker(t, model.Spirit{Name: "Booker's Bourbon Release 2021", Brand: "Booker's"})

	candidate := model.Spirit{Name: "Booker's Bourbon Release 2022", Brand: "Booker's"}
	a := c.Analyze(candidate, model.Spirit{Name: "Booker's Bourbon Release 2021", Brand: "Booker's"})
	require.True(t, a.AboveThresh, "raw similarity exceeds the threshold")
	assert.Equal(t, "release year differs", a.VoidReason)

	d, err := c.Check(context.Background(), candidate)
	require.NoError(t, err)
	assert.False(t, d.IsDuplicate)
}

func TestCheck_BatchOverride(t *testing.T) {
	t.Parallel()
	c, _ := newTestChecker(t, model.Spirit{Name: "Elijah Craig Barrel Proof Batch C923", Brand: "Elijah Craig"})

	d, err := c.Check(context.Background(), model.Spirit{Name: "Elijah Craig Barrel Proof Batch C924", Brand: "Elijah Craig"})
	require.NoError(t, err)
	assert.False(t, d.IsDuplicate)
}

func TestCheck_BelowThreshold(t *testing.T) {
	t.Parallel()
	c, _ := newTestChecker(t,
		model.Spirit{Name: "Weller Special Reserve", Brand: "Weller"},
		model.Spirit{Name: "Weller 12 Year", Brand: "Weller"},
	)

	d, err := c.Check(context.Background(), model.Spirit{Name: "Weller Full Proof", Brand: "Weller"})
	require.NoError(t, err)
	assert.False(t, d.IsDuplicate)
	assert.Empty(t, d.MatchedID)
}

func TestCheck_EmptyName(t *testing.T) {
	t.Parallel()
	c, _ := newTestChecker(t)

	d, err := c.Check(context.Background(), model.Spirit{Brand: "Weller"})
	require.NoError(t, err)
	assert.False(t, d.IsDuplicate)
}

func TestCheck_StoreError(t *testing.T) {
	t.Parallel()

	c := NewChecker(failingQuerier{}, nil)
	_, err := c.Check(context.Background(), model.Spirit{Name: "x", Brand: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exact lookup")

	_, err = c.Check(context.Background(), model.Spirit{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candidate lookup")
}

func TestAnalyze_CompositeNeverDuplicateBelowThreshold(t *testing.T) {
	t.Parallel()
	c := NewChecker(store.NewMemory(), nil)

	pairs := [][2]model.Spirit{
		{{Name: "Glenlivet 12"}, {Name: "Glenlivet 18"}},
		{{Name: "Maker's Mark", Brand: "Maker's Mark"}, {Name: "Maker's Mark 46", Brand: "Maker's Mark"}},
		{{Name: "Ardbeg 10", Brand: "Ardbeg"}, {Name: "Ardbeg 10"}},
	}
	for _, p := range pairs {
		a := c.Analyze(p[0], p[1])
		if a.Composite <= c.Threshold() {
			assert.False(t, a.IsDuplicate, "%s vs %s", p[0].Name, p[1].Name)
		}
	}
}

func TestWithOptions(t *testing.T) {
	t.Parallel()

	c := NewChecker(store.NewMemory(), nil, WithThreshold(0.8), WithCandidateLimit(3), WithThreshold(7))
	assert.Equal(t, 0.8, c.Threshold())
	assert.Equal(t, 3, c.limit)
}

func TestVoidReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b model.Spirit
		want string
	}{
		{"same year", model.Spirit{Name: "Release 2021"}, model.Spirit{Name: "Release 2021"}, ""},
		{"year on one side only", model.Spirit{Name: "Release 2021"}, model.Spirit{Name: "Release"}, ""},
		{"years differ", model.Spirit{Name: "Release 2021"}, model.Spirit{Name: "Release 2022"}, "release year differs"},
		{"batch differs", model.Spirit{Name: "Batch #12"}, model.Spirit{Name: "batch 13"}, "batch differs"},
		{"batch case-insensitive", model.Spirit{Name: "Batch A1"}, model.Spirit{Name: "BATCH a1"}, ""},
		{"abv differs", model.Spirit{Name: "x", ABV: model.Float(40)}, model.Spirit{Name: "x", ABV: model.Float(62.5)}, "abv differs"},
		{"abv close", model.Spirit{Name: "x", ABV: model.Float(45)}, model.Spirit{Name: "x", ABV: model.Float(47)}, ""},
		{"types incompatible", model.Spirit{Name: "x", Type: "Vodka"}, model.Spirit{Name: "x", Type: "Bourbon"}, "spirit type differs"},
		{"types compatible", model.Spirit{Name: "x", Type: "Bourbon"}, model.Spirit{Name: "x", Type: "whiskey"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VoidReason(tt.a, tt.b))
		})
	}
}

func TestCompatibleTypes(t *testing.T) {
	t.Parallel()

	assert.True(t, CompatibleTypes("Tequila", "Mezcal"))
	assert.True(t, CompatibleTypes("Cognac", "brandy"))
	assert.True(t, CompatibleTypes("Liqueur", "liqueur"))
	assert.False(t, CompatibleTypes("Gin", "Vodka"))
	assert.False(t, CompatibleTypes("Liqueur", "Rum"))
}
