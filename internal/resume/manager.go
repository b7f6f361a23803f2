// Package resume moves file bytes to disk, continuing interrupted downloads where the origin allows it.
package resume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/quantmind-br/ghfetch/internal/cache"
	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/fetcher"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// PartSuffix is appended to the destination to name the in-progress file
const PartSuffix = ".ghfetch-part"

// PartPath returns the partial file path for a destination
func PartPath(dest string) string {
	return dest + PartSuffix
}

// Decision is what to do with a partial file
type Decision int

const (
	// Restart discards any partial bytes and fetches from zero
	Restart Decision = iota
	// Resume requests the remaining bytes with a range request
	Resume
)

func (d Decision) String() string {
	if d == Resume {
		return "resume"
	}
	return "restart"
}

// PartialState is what is known about an interrupted transfer
type PartialState struct {
	Path           string
	Written        int64
	RangeSupported bool
	ETag           string
	// Size is the full object size recorded by an earlier response, or zero
	Size int64
}

// Decide resumes only when the origin supports ranges and the partial holds
// some but not all of the expected bytes
func Decide(state PartialState, expected int64) Decision {
	if state.RangeSupported && state.Written > 0 && expected > 0 && state.Written < expected {
		return Resume
	}
	return Restart
}

// BlobFetcher opens byte streams for file URLs.
// It returns responses for 200, 206 and 416 and an error for anything else.
type BlobFetcher interface {
	FetchBlob(ctx context.Context, req domain.BlobRequest) (*domain.BlobResponse, error)
}

// Verifier re-checks a destination right before it is written
type Verifier interface {
	Verify(dest string) error
}

// Request describes one file transfer
type Request struct {
	TaskID       string
	URL          string
	Dest         string
	ExpectedSize int64  // -1 when unknown
	ExpectedSHA  string // git blob id, empty to skip the hash check
}

// Options configures a Manager
type Options struct {
	Fetcher BlobFetcher
	Cache   domain.ResponseCache
	Guard   Verifier
	// Retrier bounds the attempts after a stalled or broken body
	Retrier *fetcher.Retrier
	Logger  *utils.Logger
}

// Manager performs resumable transfers
type Manager struct {
	fetcher BlobFetcher
	cache   domain.ResponseCache
	guard   Verifier
	retrier *fetcher.Retrier
	logger  *utils.Logger
}

// NewManager creates a Manager
func NewManager(opts Options) *Manager {
	c := opts.Cache
	if c == nil {
		c = cache.Disabled{}
	}
	logger := utils.OrNop(opts.Logger).WithComponent("resume")
	retrier := opts.Retrier
	if retrier == nil {
		retrier = fetcher.NewRetrier(fetcher.RetrierOptions{Logger: logger})
	}
	return &Manager{
		fetcher: opts.Fetcher,
		cache:   c,
		guard:   opts.Guard,
		retrier: retrier,
		logger:  logger,
	}
}

// Inspect reads the partial file for dest and the range support recorded for url
func (m *Manager) Inspect(ctx context.Context, url, dest string) PartialState {
	state := PartialState{Path: PartPath(dest)}
	if info, err := os.Stat(state.Path); err == nil && info.Mode().IsRegular() {
		state.Written = info.Size()
	}
	if entry, err := m.cache.Lookup(ctx, cache.BlobKey(url)); err == nil {
		state.RangeSupported = entry.AcceptRanges
		state.ETag = entry.ETag
		state.Size = entry.Size
	}
	return state
}

// Transfer downloads req.URL into req.Dest. A stalled or broken body is
// retried with backoff, resuming from the partial file where the origin
// allows it. An integrity failure discards the partial file and retries once
// from zero. Cancellation leaves the partial file in place so the next run
// can resume it.
func (m *Manager) Transfer(ctx context.Context, req Request, sink domain.ProgressSink) (domain.TransferResult, error) {
	if sink == nil {
		sink = domain.NopProgress{}
	}

	result, err := m.transfer(ctx, req, sink, true)
	var integrity *domain.TransferIntegrityError
	if errors.As(err, &integrity) {
		m.logger.Warn().Err(err).Str("path", req.Dest).Msg("Integrity check failed, retrying from zero")
		_ = os.Remove(PartPath(req.Dest))
		result, err = m.transfer(ctx, req, sink, false)
		if err != nil && ctx.Err() == nil {
			_ = os.Remove(PartPath(req.Dest))
		}
	}
	return result, err
}

// transfer repeats attempt for retryable failures. Only the first attempt
// honours allowResume; later ones continue whatever the failed one wrote.
func (m *Manager) transfer(ctx context.Context, req Request, sink domain.ProgressSink, allowResume bool) (domain.TransferResult, error) {
	first := true
	return fetcher.RetryWithValue(ctx, m.retrier, func() (domain.TransferResult, error) {
		resume := allowResume || !first
		first = false
		return m.attempt(ctx, req, sink, resume)
	})
}

func (m *Manager) attempt(ctx context.Context, req Request, sink domain.ProgressSink, allowResume bool) (domain.TransferResult, error) {
	part := PartPath(req.Dest)

	if m.guard != nil {
		if err := m.guard.Verify(part); err != nil {
			return domain.TransferResult{}, err
		}
	}
	if err := utils.EnsureDir(req.Dest); err != nil {
		return domain.TransferResult{}, fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	state := m.Inspect(ctx, req.URL, req.Dest)
	expected := req.ExpectedSize
	if expected < 0 && state.Size > 0 {
		expected = state.Size
	}
	decision := Restart
	if allowResume {
		decision = Decide(state, expected)
	}

	var offset int64
	if decision == Resume {
		offset = state.Written
		m.logger.Debug().Str("path", req.Dest).Int64("offset", offset).Msg("Resuming partial download")
	} else if state.Written > 0 {
		_ = os.Remove(part)
	}

	resp, err := m.open(ctx, req.URL, offset, state.ETag)
	if err != nil {
		return domain.TransferResult{}, err
	}
	if restartable(resp, offset) {
		// stale partial or a range other than the one asked for; start over once
		m.logger.Debug().Str("path", req.Dest).Int("status", resp.StatusCode).
			Int64("offset", offset).Int64("range_start", resp.RangeStart).Msg("Discarding partial download")
		resp.Body.Close()
		_ = os.Remove(part)
		offset = 0
		resp, err = m.open(ctx, req.URL, 0, "")
		if err != nil {
			return domain.TransferResult{}, err
		}
		if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
			resp.Body.Close()
			return domain.TransferResult{}, domain.NewFetchError(req.URL, resp.StatusCode, errors.New("range not satisfiable"))
		}
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	resumed := false
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		resumed = offset > 0
	default:
		// the origin ignored the range
		flags |= os.O_TRUNC
		offset = 0
	}

	total := resp.TotalSize
	if total < 0 && resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	sink.Start(req.TaskID, total)

	f, err := os.OpenFile(part, flags, 0644)
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	n, copyErr := io.Copy(f, &progressReader{r: resp.Body, sink: sink, id: req.TaskID})
	closeErr := f.Close()

	m.remember(ctx, req.URL, resp, total)

	if copyErr != nil {
		if ctx.Err() != nil {
			return domain.TransferResult{Bytes: n, Resumed: resumed}, ctx.Err()
		}
		return domain.TransferResult{Bytes: n, Resumed: resumed}, &domain.RetryableError{Err: copyErr}
	}
	if closeErr != nil {
		return domain.TransferResult{}, fmt.Errorf("%w: %v", domain.ErrWriteFailed, closeErr)
	}

	written := offset + n
	if err := reconcile(req, part, written, total); err != nil {
		return domain.TransferResult{Bytes: n, Resumed: resumed}, err
	}

	if m.guard != nil {
		if err := m.guard.Verify(req.Dest); err != nil {
			return domain.TransferResult{}, err
		}
	}
	if err := os.Rename(part, req.Dest); err != nil {
		return domain.TransferResult{}, fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	return domain.TransferResult{Bytes: written, Resumed: resumed}, nil
}

// restartable reports a 416, or a 206 whose body does not begin at offset
func restartable(resp *domain.BlobResponse, offset int64) bool {
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		return true
	case http.StatusPartialContent:
		return resp.RangeStart >= 0 && resp.RangeStart != offset
	}
	return false
}

func (m *Manager) open(ctx context.Context, url string, offset int64, etag string) (*domain.BlobResponse, error) {
	breq := domain.BlobRequest{URL: url}
	if offset > 0 {
		breq.Offset = offset
		breq.IfRange = etag
	}
	return m.fetcher.FetchBlob(ctx, breq)
}

// remember records range support and validators so the next run can resume
func (m *Manager) remember(ctx context.Context, url string, resp *domain.BlobResponse, total int64) {
	h := http.Header{}
	if resp.ETag != "" {
		h.Set("ETag", resp.ETag)
	}
	if resp.LastModified != "" {
		h.Set("Last-Modified", resp.LastModified)
	}
	if resp.AcceptRanges || resp.StatusCode == http.StatusPartialContent {
		h.Set("Accept-Ranges", "bytes")
	}
	if total >= 0 {
		h.Set("Content-Length", strconv.FormatInt(total, 10))
	}
	_, err := m.cache.Record(ctx, cache.BlobKey(url), &domain.Response{
		StatusCode: http.StatusOK,
		Headers:    h,
		URL:        url,
	})
	if err != nil {
		m.logger.Debug().Err(err).Str("url", url).Msg("Failed to record transfer metadata")
	}
}

// reconcile compares what landed on disk with what the origin promised
func reconcile(req Request, part string, written, total int64) error {
	expected := req.ExpectedSize
	if expected < 0 {
		expected = total
	}
	if expected >= 0 && written != expected {
		return &domain.TransferIntegrityError{Path: req.Dest, Expected: expected, Actual: written}
	}

	if req.ExpectedSHA != "" {
		sha, err := utils.GitBlobSHA(part)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
		}
		if sha != req.ExpectedSHA {
			return &domain.TransferIntegrityError{
				Path:     req.Dest,
				Expected: expected,
				Actual:   written,
				Detail:   fmt.Sprintf("blob sha %s does not match %s", sha, req.ExpectedSHA),
			}
		}
	}
	return nil
}

type progressReader struct {
	r    io.Reader
	sink domain.ProgressSink
	id   string
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sink.Advance(p.id, int64(n))
	}
	return n, err
}
