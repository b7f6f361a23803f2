package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

const (
	defaultRetries         = 3
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
)

// Retrier bounds how often and how fast a failed request is repeated
type Retrier struct {
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	logger          *utils.Logger
}

// RetrierOptions contains options for creating a Retrier
type RetrierOptions struct {
	// MaxRetries of zero means the default; negative disables retries
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Logger          *utils.Logger
}

// NewRetrier creates a new Retrier with the given options
func NewRetrier(opts RetrierOptions) *Retrier {
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = defaultMaxInterval
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	return &Retrier{
		maxRetries:      opts.MaxRetries,
		initialInterval: opts.InitialInterval,
		maxInterval:     opts.MaxInterval,
		multiplier:      opts.Multiplier,
		logger:          utils.OrNop(opts.Logger),
	}
}

// hintedBackOff waits at least as long as the server asked for
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next != backoff.Stop && h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}

func (r *Retrier) newBackoff() *hintedBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.Multiplier = r.multiplier
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	b.Reset()

	return &hintedBackOff{BackOff: backoff.WithMaxRetries(b, uint64(r.maxRetries))}
}

// RetryWithValue runs operation until it succeeds, fails permanently or the
// retries run out. Only errors domain.IsRetryable accepts are repeated, and a
// RetryableError.RetryAfter stretches the next wait.
func RetryWithValue[T any](ctx context.Context, r *Retrier, operation func() (T, error)) (T, error) {
	b := r.newBackoff()

	notify := func(err error, wait time.Duration) {
		r.logger.Debug().Err(err).Dur("wait", wait).Msg("Retrying request")
	}

	return backoff.RetryNotifyWithData(func() (T, error) {
		result, err := operation()
		if err == nil {
			return result, nil
		}
		if !domain.IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		var retryable *domain.RetryableError
		if errors.As(err, &retryable) {
			b.hint = retryable.RetryAfter
		}
		return result, err
	}, backoff.WithContext(b, ctx), notify)
}

// ShouldRetryStatus reports whether a server-side status is worth repeating
func ShouldRetryStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
