package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Directives holds the Cache-Control directives that matter to a private client cache
type Directives struct {
	NoStore   bool
	NoCache   bool
	MaxAge    time.Duration
	HasMaxAge bool
}

// ParseCacheControl parses a Cache-Control header value
func ParseCacheControl(value string) Directives {
	var d Directives
	for _, part := range strings.Split(value, ",") {
		name, arg, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "no-store":
			d.NoStore = true
		case "no-cache":
			d.NoCache = true
		case "max-age":
			secs, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(arg), `"`), 10, 64)
			if err == nil && secs >= 0 {
				d.MaxAge = time.Duration(secs) * time.Second
				d.HasMaxAge = true
			}
		}
	}
	return d
}

// IsStorable reports whether a response may be written to the cache.
// Only 200 and 304 qualify, and never when marked no-store.
func IsStorable(status int, header http.Header) bool {
	if status != http.StatusOK && status != http.StatusNotModified {
		return false
	}
	return !ParseCacheControl(header.Get("Cache-Control")).NoStore
}

// FreshUntil computes the absolute freshness deadline for a response received at now.
// max-age wins over Expires; no-cache means the entry must always be revalidated.
func FreshUntil(header http.Header, now time.Time, defaultTTL time.Duration) time.Time {
	d := ParseCacheControl(header.Get("Cache-Control"))
	switch {
	case d.NoCache:
		return now
	case d.HasMaxAge:
		return now.Add(d.MaxAge)
	}

	if exp := header.Get("Expires"); exp != "" {
		t, err := http.ParseTime(exp)
		if err != nil {
			// an invalid Expires means already expired
			return now
		}
		return t
	}

	return now.Add(defaultTTL)
}

// IsFresh reports whether now is strictly before the entry's deadline
func isFresh(freshUntil, now time.Time) bool {
	return now.Before(freshUntil)
}
