// Package fetcher performs GitHub HTTP requests with retries, rate-limit
// awareness and conditional revalidation against the response cache.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quantmind-br/ghfetch/internal/cache"
	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/ratelimit"
	"github.com/quantmind-br/ghfetch/internal/utils"
	"github.com/quantmind-br/ghfetch/pkg/version"
)

// Client is the HTTP client for the GitHub API and content hosts
type Client struct {
	http    *http.Client
	retrier *Retrier
	cache   domain.ResponseCache
	limits  *ratelimit.State
	maxWait time.Duration
	token   string
	group   singleflight.Group
	logger  *utils.Logger
	now     func() time.Time
}

// ClientOptions contains options for creating a Client
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
	Token      string
	UserAgent  string
	// AuthHosts adds hosts that receive the token besides DefaultAuthHosts
	AuthHosts []string
	Cache     domain.ResponseCache
	RateLimit *ratelimit.State
	// MaxRateLimitWait is the longest the client sleeps for an exhausted quota
	MaxRateLimitWait time.Duration
	Transport        http.RoundTripper
	Retrier          *Retrier
	Logger           *utils.Logger
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		UserAgent:        version.UserAgent(),
		MaxRateLimitWait: 60 * time.Second,
	}
}

// NewClient creates a new GitHub HTTP client
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = version.UserAgent()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Disabled{}
	}
	if opts.RateLimit == nil {
		opts.RateLimit = ratelimit.New()
	}
	if opts.MaxRateLimitWait <= 0 {
		opts.MaxRateLimitWait = 60 * time.Second
	}

	logger := utils.OrNop(opts.Logger).WithComponent("fetcher")

	retrier := opts.Retrier
	if retrier == nil {
		retrier = NewRetrier(RetrierOptions{
			MaxRetries: opts.MaxRetries,
			Logger:     logger,
		})
	}

	return &Client{
		// the timeout bounds the wait for headers and every gap between body reads
		http: &http.Client{
			Transport: &timeoutTransport{
				base:    newGitHubTransport(opts.Transport, opts, logger),
				timeout: opts.Timeout,
			},
		},
		retrier: retrier,
		cache:   opts.Cache,
		limits:  opts.RateLimit,
		maxWait: opts.MaxRateLimitWait,
		token:   opts.Token,
		logger:  logger,
		now:     time.Now,
	}
}

// RateLimit returns the shared quota state
func (c *Client) RateLimit() *ratelimit.State {
	return c.limits
}

// Retrier returns the backoff policy requests are repeated with
func (c *Client) Retrier() *Retrier {
	return c.retrier
}

// Get fetches a small response (API metadata) through the cache.
// A fresh entry is served without contacting the server; a stale one is
// revalidated with If-None-Match / If-Modified-Since.
func (c *Client) Get(ctx context.Context, url, accept string) (*domain.Response, error) {
	key := cache.APIKey(url, accept, c.token)

	entry, err := c.cache.Lookup(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		c.logger.Debug().Err(err).Str("url", url).Msg("Cache lookup failed")
	}
	if entry != nil && c.cache.IsFresh(entry, c.now()) {
		return entryResponse(entry), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return RetryWithValue(ctx, c.retrier, func() (*domain.Response, error) {
			return c.revalidate(ctx, key, url, accept, entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Response), nil
}

func (c *Client) revalidate(ctx context.Context, key, url, accept string, entry *domain.CacheEntry) (*domain.Response, error) {
	if err := c.limits.Gate(ctx, c.maxWait); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Encoding", "gzip")
	if entry != nil {
		if entry.ETag != "" {
			req.Header.Set("If-None-Match", entry.ETag)
		}
		if entry.LastModified != "" {
			req.Header.Set("If-Modified-Since", entry.LastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		_, _ = io.Copy(io.Discard, resp.Body)
		if entry == nil {
			return nil, domain.NewFetchError(url, resp.StatusCode, errors.New("not modified without a cached entry"))
		}
		refreshed, err := c.cache.Record(ctx, key, &domain.Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			URL:        url,
		})
		if err != nil {
			c.logger.Debug().Err(err).Msg("Failed to refresh cache entry")
		}
		if refreshed == nil {
			refreshed = entry
		}
		c.logger.Debug().Str("url", url).Msg("Revalidated cached response")
		return entryResponse(refreshed), nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, c.transportError(ctx, url, err)
		}
		out := &domain.Response{
			StatusCode:  resp.StatusCode,
			Body:        body,
			Headers:     resp.Header,
			ContentType: resp.Header.Get("Content-Type"),
			URL:         url,
		}
		// the body is already decoded, so the wire length no longer applies
		out.Headers.Del("Content-Length")
		if _, err := c.cache.Record(ctx, key, out); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to store cache entry")
		}
		return out, nil

	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, c.statusError(url, resp)
	}
}

// Stream opens a byte stream. Responses 200, 206 and 416 are returned to the
// caller, who must close the body; other statuses become errors.
func (c *Client) Stream(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	return RetryWithValue(ctx, c.retrier, func() (*http.Response, error) {
		if err := c.limits.Gate(ctx, c.maxWait); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, c.transportError(ctx, url, err)
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusPartialContent, http.StatusRequestedRangeNotSatisfiable:
			return resp, nil
		}

		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, c.statusError(url, resp)
	})
}

// statusError classifies a failed response
func (c *Client) statusError(url string, resp *http.Response) error {
	status := resp.StatusCode
	fetchErr := domain.NewFetchError(url, status, fmt.Errorf("HTTP %d", status))

	switch {
	case status == http.StatusNotFound:
		return &domain.NotFoundError{Resource: url}

	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		wait, throttled := ratelimit.BackoffFor(status, resp.Header, c.now())
		if !throttled {
			if status == http.StatusTooManyRequests {
				return &domain.RetryableError{Err: fetchErr}
			}
			return fetchErr
		}
		if wait > c.maxWait {
			return c.limits.Err()
		}
		// the transport already blocked the gate; the next attempt waits there
		return &domain.RetryableError{Err: fetchErr}

	case ShouldRetryStatus(status):
		return &domain.RetryableError{Err: fetchErr}
	}

	return fetchErr
}

// transportError marks network failures retryable unless the caller gave up
func (c *Client) transportError(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, domain.ErrTimeout) {
		return &domain.RetryableError{Err: err}
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return &domain.RetryableError{Err: fmt.Errorf("%w: %s: %v", domain.ErrTimeout, url, err)}
	}
	return &domain.RetryableError{Err: domain.NewFetchError(url, 0, err)}
}

func entryResponse(e *domain.CacheEntry) *domain.Response {
	h := http.Header{}
	if e.ETag != "" {
		h.Set("ETag", e.ETag)
	}
	if e.LastModified != "" {
		h.Set("Last-Modified", e.LastModified)
	}
	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}
	return &domain.Response{
		StatusCode:  http.StatusOK,
		Body:        e.Body,
		Headers:     h,
		ContentType: e.ContentType,
		URL:         e.URL,
		FromCache:   true,
	}
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// timeoutTransport bounds the time to response headers for each attempt and
// then the idle time between body reads
type timeoutTransport struct {
	base    http.RoundTripper
	timeout time.Duration
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	expired := &atomic.Bool{}
	timer := time.AfterFunc(t.timeout, func() {
		expired.Store(true)
		cancel()
	})

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if !timer.Stop() {
		cancel()
		if resp != nil {
			resp.Body.Close()
		}
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, fmt.Errorf("%w: no response within %s", domain.ErrTimeout, t.timeout)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	timer.Reset(t.timeout)
	resp.Body = &idleBody{
		ReadCloser: resp.Body,
		parent:     req.Context(),
		timer:      timer,
		timeout:    t.timeout,
		expired:    expired,
		cancel:     cancel,
	}
	return resp, nil
}

// idleBody cancels its request when no bytes arrive within timeout
type idleBody struct {
	io.ReadCloser
	parent  context.Context
	timer   *time.Timer
	timeout time.Duration
	expired *atomic.Bool
	cancel  context.CancelFunc
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 && !b.expired.Load() {
		b.timer.Reset(b.timeout)
	}
	if err != nil && !errors.Is(err, io.EOF) && b.expired.Load() && b.parent.Err() == nil {
		return n, fmt.Errorf("%w: no data for %s", domain.ErrTimeout, b.timeout)
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
