package github

import (
	"net/url"
	"strings"
)

func escape(s string) string {
	return url.PathEscape(s)
}

// escapePath escapes each slash separated segment
func escapePath(p string) string {
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func escapeQuery(s string) string {
	return url.QueryEscape(s)
}
