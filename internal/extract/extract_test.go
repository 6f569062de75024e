package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spirits-cli/pkg/search"
	"github.com/sells-group/spirits-cli/pkg/search/mocks"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestExtractor(t *testing.T) (*SearchExtractor, *mocks.MockClient) {
	t.Helper()
	client := mocks.NewMockClient(t)
	e := NewSearchExtractor(client)
	e.nowFunc = func() time.Time { return fixedNow }
	return e, client
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Buffalo Trace Eagle Rare 10 price abv", BuildQuery(" Eagle Rare 10 ", "Buffalo Trace", true))
	assert.Equal(t, "Eagle Rare 10", BuildQuery("Eagle Rare 10", "", false))
	assert.Empty(t, BuildQuery("", "", true))
}

func TestExtract_StructuredResult(t *testing.T) {
	t.Parallel()
	e, client := newTestExtractor(t)

	client.On("Search", mock.Anything, "Buffalo Trace Eagle Rare 10").Return(&search.Response{
		Items: []search.Item{{
			Title:   "Eagle Rare 10 Year Bourbon | Total Wine & More",
			Link:    "https://www.totalwine.com/eagle-rare",
			Snippet: "Kentucky straight bourbon, 90 proof. Notes of toffee.",
			PageMap: search.PageMap{
				"cse_image": {{"src": "https://img.example.com/er.jpg"}},
				"offer":     {{"price": "39.99"}},
				"metatags":  {{"og:description": "A ten-year-old single barrel bourbon."}},
			},
		}},
	}, nil).Once()

	sp, err := e.Extract(context.Background(), "Eagle Rare 10", "Buffalo Trace", Options{MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, "Eagle Rare 10 Year Bourbon", sp.Name)
	assert.Equal(t, "Buffalo Trace", sp.Brand)
	assert.Equal(t, "Bourbon", sp.Type)
	require.NotNil(t, sp.ABV)
	assert.InDelta(t, 45.0, *sp.ABV, 0.001)
	require.NotNil(t, sp.Price)
	assert.InDelta(t, 39.99, *sp.Price, 0.001)
	assert.Equal(t, "https://img.example.com/er.jpg", sp.ImageURL)
	assert.Equal(t, "https://www.totalwine.com/eagle-rare", sp.SourceURL)
	assert.Equal(t, "A ten-year-old single barrel bourbon.", sp.Description)
	assert.Equal(t, fixedNow, sp.ScrapedAt)
}

func TestExtract_SnippetFallbacks(t *testing.T) {
	t.Parallel()
	e, client := newTestExtractor(t)

	client.On("Search", mock.Anything, "Hendrick's Gin").Return(&search.Response{
		Items: []search.Item{{
			Title:   "Hendrick's Gin",
			Snippet: "Scottish gin infused with cucumber. 41.4% ABV. Now $34.99.",
		}},
	}, nil).Once()

	sp, err := e.Extract(context.Background(), "Gin", "Hendrick's", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Gin", sp.Type)
	assert.InDelta(t, 41.4, *sp.ABV, 0.001)
	assert.InDelta(t, 34.99, *sp.Price, 0.001)
}

func TestExtract_DeepParseFillsGaps(t *testing.T) {
	t.Parallel()
	e, client := newTestExtractor(t)

	client.On("Search", mock.Anything, "Lagavulin 16").Return(&search.Response{
		Items: []search.Item{
			{Title: "Lagavulin 16 Year Old", Link: "https://a.example.com"},
			{Title: "Lagavulin 16 review", Snippet: "Islay single malt scotch, 43% abv.",
				PageMap: search.PageMap{"cse_image": {{"src": "https://img.example.com/l16.jpg"}}}},
		},
	}, nil)

	shallow, err := e.Extract(context.Background(), "Lagavulin 16", "", Options{MaxResults: 10})
	require.NoError(t, err)
	assert.Nil(t, shallow.ABV)

	deep, err := e.Extract(context.Background(), "Lagavulin 16", "", Options{MaxResults: 10, DeepParse: true})
	require.NoError(t, err)
	assert.Equal(t, "Lagavulin 16 Year Old", deep.Name)
	require.NotNil(t, deep.ABV)
	assert.InDelta(t, 43.0, *deep.ABV, 0.001)
	assert.Equal(t, "https://img.example.com/l16.jpg", deep.ImageURL)
	assert.Equal(t, "https://a.example.com", deep.SourceURL)
}

func TestExtract_PagesUntilShortPage(t *testing.T) {
	t.Parallel()
	e, client := newTestExtractor(t)

	full := make([]search.Item, search.MaxPageSize)
	for i := range full {
		full[i] = search.Item{Title: "Weller Special Reserve"}
	}
	client.On("Search", mock.Anything, "Weller").Return(&search.Response{Items: full}, nil).Once()
	client.On("Search", mock.Anything, "Weller").Return(&search.Response{Items: full[:3]}, nil).Once()

	sp, err := e.Extract(context.Background(), "Weller", "", Options{MaxResults: 30})
	require.NoError(t, err)
	assert.Equal(t, "Weller Special Reserve", sp.Name)
	client.AssertNumberOfCalls(t, "Search", 2)
}

func TestExtract_NoResults(t *testing.T) {
	t.Parallel()
	e, client := newTestExtractor(t)

	client.On("Search", mock.Anything, "Nonexistent").Return(&search.Response{}, nil).Once()

	_, err := e.Extract(context.Background(), "Nonexistent", "", Options{})
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestExtract_SearchError(t *testing.T) {
	t.Parallel()
	e, client := newTestExtractor(t)

	client.On("Search", mock.Anything, "Weller").Return(nil, errors.New("quota exceeded")).Once()

	_, err := e.Extract(context.Background(), "Weller", "", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestExtract_EmptyName(t *testing.T) {
	t.Parallel()
	e, _ := newTestExtractor(t)

	_, err := e.Extract(context.Background(), "  ", "Weller", Options{})
	assert.Error(t, err)
}

func TestDetectType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"Kentucky straight bourbon whiskey", "Bourbon"},
		{"Rittenhouse Rye", "Rye Whiskey"},
		{"Hendrick's Gin", "Gin"},
		{"Ginger liqueur", ""},
		{"Drum roll", ""},
		{"Del Maguey Mezcal", "Mezcal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectType(tt.text), tt.text)
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Eagle Rare 10", cleanTitle("Eagle Rare 10 | Total Wine"))
	assert.Equal(t, "Eagle Rare 10", cleanTitle("Eagle Rare 10 - Drizly"))
	assert.Equal(t, "Eagle Rare 10", cleanTitle("  Eagle Rare 10 "))
}
