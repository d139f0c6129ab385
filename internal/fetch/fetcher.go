// Package fetch retrieves raw feed bodies over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/podhaven/crawler/internal/metrics"
)

// Fetcher retrieves the raw bytes of a feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Error wraps a transport failure for one URL.
type Error struct {
	URL   string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Config controls HTTPFetcher behavior.
type Config struct {
	Timeout       time.Duration
	RatePerSecond float64
	UserAgent     string
	MaxBodyBytes  int64
}

// HTTPFetcher fetches feeds with a shared rate-limited HTTP client.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
}

// NewHTTPFetcher constructs an HTTPFetcher from the given config.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 8
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1),
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBodyBytes,
	}
}

// Fetch performs a rate-limited GET and returns the body bytes. Network
// failures, timeouts and non-2xx statuses all produce an *Error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &Error{URL: url, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Cause: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Cause: err}
	}
	defer resp.Body.Close()
	metrics.ObserveFetch(time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: url, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, &Error{URL: url, Cause: err}
	}
	return body, nil
}

// Stub returns canned bytes for a fixed URL set. Used in tests.
type Stub struct {
	Responses map[string][]byte
}

// Fetch returns the canned body for the URL, or an *Error when the URL is
// unknown.
func (s *Stub) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := s.Responses[url]
	if !ok {
		return nil, &Error{URL: url, Cause: fmt.Errorf("no stubbed response")}
	}
	return body, nil
}

// PassThrough returns the same fixed bytes regardless of URL. The reingestion
// path uses it to replay stored feed content through the pipeline without
// touching the network.
type PassThrough struct {
	Data []byte
}

// Fetch returns the fixed data.
func (p *PassThrough) Fetch(context.Context, string) ([]byte, error) {
	return p.Data, nil
}
