// Package extract turns search results into spirit records. Fields come from
// the structured data the search engine already scraped and a handful of
// snippet patterns.
package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spirits-cli/internal/model"
	"github.com/sells-group/spirits-cli/pkg/search"
)

// ErrNoResults is returned when a query yields no usable result.
var ErrNoResults = eris.New("extract: no search results")

// Options tunes a single extraction.
type Options struct {
	MaxResults       int  `json:"max_results" mapstructure:"max_results"`
	IncludeRetailers bool `json:"include_retailers" mapstructure:"include_retailers"`
	DeepParse        bool `json:"deep_parse" mapstructure:"deep_parse"`
}

// DefaultOptions returns 20 results with retailer hints and shallow parsing.
func DefaultOptions() Options {
	return Options{MaxResults: 20, IncludeRetailers: true}
}

// Extractor produces a record for a (name, brand) pair.
type Extractor interface {
	Extract(ctx context.Context, name, brand string, opts Options) (*model.Spirit, error)
}

// retailerHint biases results toward product pages that carry price and ABV.
const retailerHint = "price abv"

var (
	abvPattern   = regexp.MustCompile(`(?i)(\d{2}(?:\.\d+)?)\s*%\s*(?:abv|alc)`)
	proofPattern = regexp.MustCompile(`(?i)(\d{2,3}(?:\.\d+)?)\s*proof`)
	pricePattern = regexp.MustCompile(`\$\s?(\d{1,5}(?:,\d{3})*(?:\.\d{2})?)`)
	titleSuffix  = regexp.MustCompile(`\s+[|\-–]\s+[^|\-–]+$`)
)

// typeKeywords are checked in order; the first hit names the spirit type.
var typeKeywords = []struct{ keyword, typ string }{
	{"bourbon", "Bourbon"},
	{"rye", "Rye Whiskey"},
	{"single malt", "Single Malt"},
	{"scotch", "Scotch"},
	{"whiskey", "Whiskey"},
	{"whisky", "Whiskey"},
	{"vodka", "Vodka"},
	{"gin", "Gin"},
	{"rum", "Rum"},
	{"mezcal", "Mezcal"},
	{"tequila", "Tequila"},
	{"cognac", "Cognac"},
	{"brandy", "Brandy"},
}

// SearchExtractor implements Extractor over a search.Client.
type SearchExtractor struct {
	client search.Client

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewSearchExtractor creates a SearchExtractor.
func NewSearchExtractor(client search.Client) *SearchExtractor {
	return &SearchExtractor{client: client, nowFunc: time.Now}
}

// BuildQuery returns the search query for a (name, brand) pair.
func BuildQuery(name, brand string, includeRetailers bool) string {
	q := strings.TrimSpace(strings.TrimSpace(brand) + " " + strings.TrimSpace(name))
	if includeRetailers && q != "" {
		q += " " + retailerHint
	}
	return q
}

// Extract searches for name/brand and assembles a record from the results.
func (e *SearchExtractor) Extract(ctx context.Context, name, brand string, opts Options) (*model.Spirit, error) {
	if strings.TrimSpace(name) == "" {
		return nil, eris.New("extract: empty name")
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}

	query := BuildQuery(name, brand, opts.IncludeRetailers)
	items, err := e.collect(ctx, query, opts.MaxResults)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, eris.Wrapf(ErrNoResults, "query %q", query)
	}

	sp := fromItem(items[0])
	if sp.Brand == "" {
		sp.Brand = strings.TrimSpace(brand)
	}
	if opts.DeepParse {
		for _, item := range items[1:] {
			if !sp.NeedsEnrichment() {
				break
			}
			sp.FillMissing(fromItem(item))
		}
	}
	sp.ScrapedAt = e.nowFunc().UTC()

	zap.L().Debug("extract: assembled record",
		zap.String("query", query),
		zap.Int("results", len(items)),
		zap.String("name", sp.Name),
	)
	return &sp, nil
}

// collect pages through results until max items or a short page.
func (e *SearchExtractor) collect(ctx context.Context, query string, max int) ([]search.Item, error) {
	var items []search.Item
	for start := 1; len(items) < max; start += search.MaxPageSize {
		want := min(search.MaxPageSize, max-len(items))
		resp, err := e.client.Search(ctx, query, search.WithNum(want), search.WithStart(start))
		if err != nil {
			return nil, eris.Wrapf(err, "extract: search %q", query)
		}
		items = append(items, resp.Items...)
		if len(resp.Items) < want {
			break
		}
	}
	if len(items) > max {
		items = items[:max]
	}
	return items, nil
}

// fromItem reads every field it can find in one result.
func fromItem(item search.Item) model.Spirit {
	pm := item.PageMap
	text := item.Title + " " + item.Snippet

	sp := model.Spirit{
		Name:        firstNonEmpty(pm.First("product", "name"), pm.First("metatags", "og:title"), cleanTitle(item.Title)),
		Brand:       pm.First("product", "brand"),
		Description: firstNonEmpty(pm.First("metatags", "og:description"), pm.First("product", "description"), item.Snippet),
		ImageURL:    firstNonEmpty(pm.First("cse_image", "src"), pm.First("metatags", "og:image")),
		SourceURL:   item.Link,
		Type:        detectType(text),
	}
	sp.Name = cleanTitle(sp.Name)

	if p, ok := parseNumber(firstNonEmpty(pm.First("offer", "price"), pm.First("product", "price"))); ok {
		sp.Price = &p
	} else if m := pricePattern.FindStringSubmatch(item.Snippet); m != nil {
		if p, ok := parseNumber(m[1]); ok {
			sp.Price = &p
		}
	}
	sp.ABV = parseABV(text)
	return sp
}

func parseABV(text string) *float64 {
	if m := abvPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			return &v
		}
	}
	if m := proofPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			v /= 2
			return &v
		}
	}
	return nil
}

func detectType(text string) string {
	lower := strings.ToLower(text)
	for _, k := range typeKeywords {
		if containsWord(lower, k.keyword) {
			return k.typ
		}
	}
	return ""
}

func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// cleanTitle drops a trailing " | Site" or " - Site" segment.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if stripped := titleSuffix.ReplaceAllString(title, ""); stripped != "" {
		return strings.TrimSpace(stripped)
	}
	return title
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
