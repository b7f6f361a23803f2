package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"sort"
	"strings"
)

// GenerateKey generates a cache key from a URL
// The key is a SHA256 hash of the normalized URL
func GenerateKey(rawURL string) string {
	normalized := normalizeForKey(rawURL)
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

// GenerateKeyWithPrefix generates a cache key with a prefix
func GenerateKeyWithPrefix(prefix, rawURL string) string {
	key := GenerateKey(rawURL)
	return prefix + ":" + key
}

// normalizeForKey normalizes a URL for consistent key generation
func normalizeForKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}

	u.Host = strings.ToLower(u.Host)

	// Remove default ports
	if (u.Scheme == "http" && u.Port() == "80") ||
		(u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}

	if u.Path == "" {
		u.Path = "/"
	} else {
		u.Path = path.Clean(u.Path)
	}

	// Query order does not change the resource
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	u.Fragment = ""

	return u.String()
}

// KeyPrefix constants for different cache types
const (
	PrefixAPI  = "api"
	PrefixBlob = "blob"
)

// RequestKey derives a key from the URL plus the request inputs the response varies on.
// vary values are sorted so callers need not agree on order.
func RequestKey(prefix, rawURL string, vary ...string) string {
	parts := append([]string(nil), vary...)
	sort.Strings(parts)
	material := normalizeForKey(rawURL)
	for _, p := range parts {
		if p != "" {
			material += "\n" + p
		}
	}
	hash := sha256.Sum256([]byte(material))
	return prefix + ":" + hex.EncodeToString(hash[:])
}

// TokenFingerprint identifies credentials in a key without storing them
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return "auth=" + hex.EncodeToString(hash[:8])
}

// APIKey generates a cache key for a metadata API response
func APIKey(rawURL, accept, token string) string {
	return RequestKey(PrefixAPI, rawURL, "accept="+accept, TokenFingerprint(token))
}

// BlobKey generates a cache key for a file download's transfer metadata
func BlobKey(rawURL string) string {
	return GenerateKeyWithPrefix(PrefixBlob, rawURL)
}
