// Package fetcher downloads remote item files over HTTP or FTP with retries.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/spirits-cli/internal/resilience"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	Retry         resilience.RetryConfig
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "spirits-cli/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("fetcher", "download")
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
	}
}

// Download fetches the URL and returns the response body. Transport errors and
// 408, 429 and 5xx responses are retried; other non-200 statuses fail
// immediately.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "fetcher: request")
			}
			// Transport failures (dropped connections, resets) are retried.
			return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: request"), 0)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, &resilience.StatusError{Service: "fetcher", StatusCode: resp.StatusCode}
		}
		return resp.Body, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	return body, nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	return copyToFile(ctx, f, rawURL, path)
}
