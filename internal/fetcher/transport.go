package fetcher

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/quantmind-br/ghfetch/internal/ratelimit"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// DefaultAuthHosts are the hosts that receive the API token
var DefaultAuthHosts = []string{
	"api.github.com",
	"raw.githubusercontent.com",
	"codeload.github.com",
	"github.com",
}

// githubTransport is an http.RoundTripper that authenticates GitHub requests,
// records rate-limit headers and decodes gzip bodies it asked for
type githubTransport struct {
	base      http.RoundTripper
	token     string
	userAgent string
	authHosts map[string]bool
	limits    *ratelimit.State
	logger    *utils.Logger
	now       func() time.Time
}

func newGitHubTransport(base http.RoundTripper, opts ClientOptions, logger *utils.Logger) *githubTransport {
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		// byte counts must match the origin for resume and integrity checks
		t.DisableCompression = true
		base = t
	}

	hosts := make(map[string]bool)
	for _, h := range DefaultAuthHosts {
		hosts[h] = true
	}
	for _, h := range opts.AuthHosts {
		hosts[strings.ToLower(h)] = true
	}

	return &githubTransport{
		base:      base,
		token:     opts.Token,
		userAgent: opts.UserAgent,
		authHosts: hosts,
		limits:    opts.RateLimit,
		logger:    logger,
		now:       time.Now,
	}
}

// RoundTrip implements http.RoundTripper
func (t *githubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip must not modify the caller's request
	req = req.Clone(req.Context())

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if t.token != "" && t.authHosts[strings.ToLower(req.URL.Host)] {
		req.Header.Set("Authorization", "token "+t.token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	t.observe(resp)

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") &&
		strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body = &gzipBody{zr: zr, underlying: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Uncompressed = true
	}

	return resp, nil
}

// observe feeds quota headers into the shared rate-limit state
func (t *githubTransport) observe(resp *http.Response) {
	if t.limits == nil {
		return
	}

	if update, ok := t.limits.Update(resp.Header); ok {
		if update.Changed {
			t.logger.Debug().
				Int64("limit", update.Snapshot.Limit).
				Int64("remaining", update.Snapshot.Remaining).
				Int64("used", update.Snapshot.Used).
				Msg("Rate limit")
		}
		if update.Warn {
			t.logger.Warn().
				Int64("remaining", update.Snapshot.Remaining).
				Int64("limit", update.Snapshot.Limit).
				Time("reset", update.Snapshot.Reset).
				Msg("GitHub API quota is running low")
		}
	}

	now := t.now()
	if wait, ok := ratelimit.BackoffFor(resp.StatusCode, resp.Header, now); ok {
		t.limits.Block(now.Add(wait))
	}
}

type gzipBody struct {
	zr         *gzip.Reader
	underlying io.ReadCloser
}

func (g *gzipBody) Read(p []byte) (int, error) {
	return g.zr.Read(p)
}

func (g *gzipBody) Close() error {
	zerr := g.zr.Close()
	if err := g.underlying.Close(); err != nil {
		return err
	}
	return zerr
}
