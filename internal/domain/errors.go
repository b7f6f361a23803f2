package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	// ErrNotFound indicates a remote path or ref does not exist
	ErrNotFound = errors.New("not found")

	// ErrCacheMiss indicates a cache miss
	ErrCacheMiss = errors.New("cache miss")

	// ErrRateLimited indicates rate limiting was encountered
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates a timeout occurred
	ErrTimeout = errors.New("timeout")

	// ErrInvalidURL indicates an invalid URL was provided
	ErrInvalidURL = errors.New("invalid URL")

	// ErrPathTraversal indicates a destination escaped the output root
	ErrPathTraversal = errors.New("path escapes output root")

	// ErrIntegrity indicates written bytes do not match the remote content
	ErrIntegrity = errors.New("transfer integrity check failed")

	// ErrStrategyUnavailable indicates the selected strategy cannot run on this host
	ErrStrategyUnavailable = errors.New("strategy unavailable")

	// ErrOverwriteRefused indicates existing files would be overwritten without consent
	ErrOverwriteRefused = errors.New("refusing to overwrite existing file")

	// ErrOverwriteDeclined indicates the user declined the overwrite prompt
	ErrOverwriteDeclined = errors.New("overwrite declined")

	// ErrNotStarted marks tasks that were never dispatched because the run stopped
	ErrNotStarted = errors.New("task not started")

	// ErrWriteFailed indicates writing output failed
	ErrWriteFailed = errors.New("write failed")
)

// ParseError reports a browsing URL that does not describe repository content
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidURL
}

// NewParseError creates a new ParseError
func NewParseError(input, reason string) *ParseError {
	return &ParseError{Input: input, Reason: reason}
}

// NotFoundError reports a missing remote path or ref
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitExceeded reports an exhausted API quota
type RateLimitExceeded struct {
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitExceeded) Error() string {
	msg := "GitHub API rate limit exceeded"
	if !e.ResetAt.IsZero() {
		msg += fmt.Sprintf("; resets at %s", e.ResetAt.Local().Format(time.RFC3339))
	}
	if e.Limit > 0 && e.Limit <= 60 {
		msg += "; pass --token or set GITHUB_TOKEN for a higher limit"
	}
	return msg
}

func (e *RateLimitExceeded) Unwrap() error {
	return ErrRateLimited
}

// PathTraversalError reports a destination that resolves outside the output root
type PathTraversalError struct {
	Root string
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("%s resolves outside output root %s", e.Path, e.Root)
}

func (e *PathTraversalError) Unwrap() error {
	return ErrPathTraversal
}

// TransferIntegrityError reports a byte count or hash mismatch after a transfer
type TransferIntegrityError struct {
	Path     string
	Expected int64
	Actual   int64
	Detail   string
}

func (e *TransferIntegrityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("integrity check failed for %s: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("integrity check failed for %s: expected %d bytes, got %d", e.Path, e.Expected, e.Actual)
}

func (e *TransferIntegrityError) Unwrap() error {
	return ErrIntegrity
}

// StrategyUnavailableError reports a forced strategy whose tool is missing
type StrategyUnavailableError struct {
	Strategy Strategy
	Reason   string
}

func (e *StrategyUnavailableError) Error() string {
	return fmt.Sprintf("strategy %s unavailable: %s", e.Strategy, e.Reason)
}

func (e *StrategyUnavailableError) Unwrap() error {
	return ErrStrategyUnavailable
}

// FetchError represents an error during fetching
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError
func NewFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// RetryableError indicates an error that can be retried
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("retryable error (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("retryable error: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var exceeded *RateLimitExceeded
	if errors.As(err, &exceeded) {
		return false
	}

	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return true
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}

	return errors.Is(err, ErrTimeout)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// StrategyError represents an error in strategy execution
type StrategyError struct {
	Strategy string
	URL      string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s failed for %s: %v", e.Strategy, e.URL, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// NewStrategyError creates a new StrategyError
func NewStrategyError(strategy, url string, err error) *StrategyError {
	return &StrategyError{
		Strategy: strategy,
		URL:      url,
		Err:      err,
	}
}
