package cache

import (
	"time"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// Ensure implementations satisfy domain.ResponseCache
var (
	_ domain.ResponseCache = (*BadgerCache)(nil)
	_ domain.ResponseCache = (*Disabled)(nil)
)

// DefaultTTL applies when a response carries no freshness information
const DefaultTTL = time.Hour

// Options contains cache configuration options
type Options struct {
	Directory  string
	InMemory   bool
	Logger     bool
	DefaultTTL time.Duration
	// Now overrides the clock, for tests
	Now func() time.Time
}

// DefaultOptions returns default cache options
func DefaultOptions() Options {
	return Options{
		Directory:  "",
		InMemory:   false,
		Logger:     false,
		DefaultTTL: DefaultTTL,
	}
}
