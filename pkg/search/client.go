// Package search wraps the Google Custom Search JSON API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/spirits-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

	// MaxPageSize is the API's per-request result cap.
	MaxPageSize = 10
)

// Client performs Custom Search queries.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) (*Response, error)
}

// Response is one page of search results.
type Response struct {
	Items             []Item            `json:"items"`
	SearchInformation SearchInformation `json:"searchInformation"`
}

// SearchInformation carries result totals. The API reports totals as strings.
type SearchInformation struct {
	TotalResults string `json:"totalResults"`
}

// Total parses TotalResults, returning 0 when absent.
func (s SearchInformation) Total() int {
	n, _ := strconv.Atoi(s.TotalResults)
	return n
}

// Item is a single search result.
type Item struct {
	Title       string  `json:"title"`
	Link        string  `json:"link"`
	DisplayLink string  `json:"displayLink"`
	Snippet     string  `json:"snippet"`
	PageMap     PageMap `json:"pagemap,omitempty"`
}

// PageMap holds structured data the engine scraped from the page, keyed by
// type (product, offer, metatags, cse_image, ...).
type PageMap map[string][]map[string]any

// First returns the value of key in the first object of kind that has it.
func (p PageMap) First(kind, key string) string {
	for _, obj := range p[kind] {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return ""
}

// SearchOption adjusts a single query.
type SearchOption func(url.Values)

// WithNum sets the page size (1-10).
func WithNum(n int) SearchOption {
	return func(v url.Values) {
		if n > 0 {
			v.Set("num", strconv.Itoa(min(n, MaxPageSize)))
		}
	}
}

// WithStart sets the 1-based index of the first result.
func WithStart(i int) SearchOption {
	return func(v url.Values) {
		if i > 0 {
			v.Set("start", strconv.Itoa(i))
		}
	}
}

// WithSiteFilter restricts results to domain.
func WithSiteFilter(domain string) SearchOption {
	return func(v url.Values) {
		if domain != "" {
			v.Set("siteSearch", domain)
			v.Set("siteSearchFilter", "i")
		}
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles requests to perMinute. Zero disables throttling.
func WithRateLimit(perMinute int) Option {
	return func(c *httpClient) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey   string
	engineID string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a Custom Search client. By default requests are throttled
// to 100 per minute, the API's free-tier quota.
func NewClient(apiKey, engineID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/100), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "search: rate limit")
		}
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	for _, o := range opts {
		o(params)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "search: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "search: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "search: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Service: "search", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "search: unmarshal response")
	}
	return &result, nil
}
