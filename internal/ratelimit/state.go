// Package ratelimit tracks the GitHub API quota reported in response headers.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// Header names reported by the GitHub API, in canonical form
const (
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
	HeaderUsed      = "X-Ratelimit-Used"
	HeaderReset     = "X-Ratelimit-Reset"
)

// warnFloor is the smallest remaining quota that triggers a low-quota warning
const warnFloor = 50

// Snapshot is the last quota observed. Negative fields were absent from the response.
type Snapshot struct {
	Limit     int64
	Remaining int64
	Used      int64
	Reset     time.Time
}

// Known reports whether the snapshot carries limit and remaining counts
func (s Snapshot) Known() bool {
	return s.Limit >= 0 && s.Remaining >= 0
}

// ParseHeaders extracts a snapshot; ok is false when no rate-limit header is present
func ParseHeaders(h http.Header) (Snapshot, bool) {
	s := Snapshot{
		Limit:     headerInt(h, HeaderLimit),
		Remaining: headerInt(h, HeaderRemaining),
		Used:      headerInt(h, HeaderUsed),
	}
	reset := headerInt(h, HeaderReset)
	if reset >= 0 {
		s.Reset = time.Unix(reset, 0)
	}
	ok := s.Limit >= 0 || s.Remaining >= 0 || s.Used >= 0 || reset >= 0
	return s, ok
}

func headerInt(h http.Header, name string) int64 {
	v := h.Get(name)
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Update describes what changed when headers were recorded
type Update struct {
	Snapshot Snapshot
	Changed  bool
	// Warn is set the first time remaining drops to a new low under the warning threshold
	Warn bool
}

// State is the shared quota view; safe for concurrent use
type State struct {
	mu           sync.Mutex
	last         Snapshot
	seen         bool
	lastWarned   int64
	lowest       int64
	blockedUntil time.Time
}

// New creates an empty State
func New() *State {
	return &State{lastWarned: -1, lowest: -1}
}

// Update records the quota from a response. ok is false when the response carried none.
func (s *State) Update(h http.Header) (Update, bool) {
	snap, ok := ParseHeaders(h)
	if !ok {
		return Update{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := Update{Snapshot: snap, Changed: !s.seen || s.last != snap}
	s.last = snap
	s.seen = true

	if snap.Remaining >= 0 && (s.lowest < 0 || snap.Remaining < s.lowest) {
		s.lowest = snap.Remaining
	}

	if ShouldWarn(snap) && (s.lastWarned < 0 || snap.Remaining < s.lastWarned) {
		s.lastWarned = snap.Remaining
		u.Warn = true
	}
	return u, true
}

// Block records a server-imposed pause, such as a Retry-After on a 429
func (s *State) Block(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.blockedUntil) {
		s.blockedUntil = until
	}
}

// Snapshot returns the last observed quota and whether any was seen
func (s *State) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.seen
}

// Lowest returns the lowest remaining count seen during the run, or -1
func (s *State) Lowest() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lowest
}

// Exhausted reports whether no request should be issued at now
func (s *State) Exhausted(now time.Time) bool {
	return s.WaitDuration(now) > 0
}

// WaitDuration is how long to hold requests at now; zero means go ahead
func (s *State) WaitDuration(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wait time.Duration
	if now.Before(s.blockedUntil) {
		wait = s.blockedUntil.Sub(now)
	}
	if s.seen && s.last.Remaining == 0 && !s.last.Reset.IsZero() && now.Before(s.last.Reset) {
		if d := s.last.Reset.Sub(now) + time.Second; d > wait {
			wait = d
		}
	}
	return wait
}

// Err returns the error reported to tasks that cannot start because the quota is spent
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := int(s.last.Limit)
	if limit < 0 {
		limit = 0
	}
	reset := s.last.Reset
	if s.blockedUntil.After(reset) {
		reset = s.blockedUntil
	}
	return &domain.RateLimitExceeded{Limit: limit, ResetAt: reset}
}

// Gate blocks until requests may proceed. When the pause would exceed maxWait
// it returns RateLimitExceeded immediately instead of sleeping.
func (s *State) Gate(ctx context.Context, maxWait time.Duration) error {
	wait := s.WaitDuration(time.Now())
	if wait <= 0 {
		return nil
	}
	if wait > maxWait {
		return s.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WarnThreshold is the remaining count at or below which a warning is due:
// min(limit, max(50, ceil(10% of limit)))
func WarnThreshold(limit int64) int64 {
	threshold := int64(math.Ceil(float64(limit) * 0.1))
	if threshold < warnFloor {
		threshold = warnFloor
	}
	if threshold > limit {
		threshold = limit
	}
	return threshold
}

// ShouldWarn reports whether the snapshot is under the low-quota threshold
func ShouldWarn(s Snapshot) bool {
	if !s.Known() {
		return false
	}
	return s.Remaining <= WarnThreshold(s.Limit)
}

// BackoffFor returns how long to pause after a throttling response.
// A 429 honours Retry-After; a 403 or 429 with no remaining quota waits until reset plus one second.
func BackoffFor(status int, h http.Header, now time.Time) (time.Duration, bool) {
	if status != http.StatusTooManyRequests && status != http.StatusForbidden {
		return 0, false
	}

	if status == http.StatusForbidden && headerInt(h, HeaderRemaining) != 0 {
		// a plain permission error
		return 0, false
	}

	if d := ParseRetryAfter(h.Get("Retry-After"), now); d > 0 {
		return d, true
	}

	if reset := headerInt(h, HeaderReset); reset >= 0 {
		if d := time.Unix(reset, 0).Sub(now); d > 0 {
			return d + time.Second, true
		}
	}
	return 0, false
}

// ParseRetryAfter parses delay-seconds or an HTTP date
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
