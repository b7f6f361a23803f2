// Package reference turns GitHub browsing URLs into repository references.
package reference

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

var (
	githubHosts = map[string]bool{
		"github.com":     true,
		"www.github.com": true,
	}

	// owner and repository names as GitHub accepts them
	namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Parse converts a file view (/blob/) or directory view (/tree/) URL into a reference.
// It performs no I/O.
func Parse(rawURL string) (domain.RepositoryReference, error) {
	var ref domain.RepositoryReference

	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ref, domain.NewParseError(rawURL, "empty URL")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return ref, domain.NewParseError(rawURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ref, domain.NewParseError(rawURL, "unsupported scheme "+u.Scheme)
	}
	if !githubHosts[strings.ToLower(u.Hostname())] {
		return ref, domain.NewParseError(rawURL, "not a github.com URL")
	}

	escaped := u.EscapedPath()
	trailingSlash := strings.HasSuffix(escaped, "/") && len(escaped) > 1

	raw := strings.Split(strings.Trim(escaped, "/"), "/")
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			// collapse duplicate slashes
			continue
		}
		decoded, err := url.PathUnescape(s)
		if err != nil {
			return ref, domain.NewParseError(rawURL, "invalid escape in path")
		}
		if reason := unsafeSegment(decoded); reason != "" {
			return ref, domain.NewParseError(rawURL, reason)
		}
		segments = append(segments, decoded)
	}

	if len(segments) < 3 {
		return ref, domain.NewParseError(rawURL, "expected /{owner}/{repo}/{blob|tree}/{ref}[/{path}]")
	}

	owner, repo, view := segments[0], strings.TrimSuffix(segments[1], ".git"), segments[2]
	if !namePattern.MatchString(owner) || !namePattern.MatchString(repo) {
		return ref, domain.NewParseError(rawURL, "invalid owner or repository name")
	}
	if view != "blob" && view != "tree" {
		return ref, domain.NewParseError(rawURL, "URL must point at a file (/blob/) or directory (/tree/) view")
	}
	if len(segments) < 4 || segments[3] == "" {
		return ref, domain.NewParseError(rawURL, "missing ref segment")
	}

	remotePath := strings.Join(segments[4:], "/")
	kind := domain.Subtree
	switch {
	case remotePath == "":
		kind = domain.WholeRepository
	case view == "blob":
		kind = domain.SingleFile
	}

	return domain.RepositoryReference{
		Owner:         owner,
		Repo:          repo,
		Ref:           segments[3],
		Path:          remotePath,
		Kind:          kind,
		URL:           rawURL,
		TrailingSlash: trailingSlash,
	}, nil
}

// unsafeSegment returns a reason when a decoded path segment could escape its parent
func unsafeSegment(s string) string {
	switch {
	case s == "..":
		return "path contains '..'"
	case s == ".":
		return "path contains '.' segment"
	case strings.ContainsRune(s, '/'):
		// an encoded slash would smuggle extra segments past the checks above
		return "path segment contains an encoded '/'"
	case strings.ContainsRune(s, '\\'):
		return "path contains a backslash"
	case strings.ContainsRune(s, 0):
		return "path contains a NUL byte"
	case len(s) >= 2 && s[1] == ':' && isLetter(s[0]):
		return "path contains a drive letter"
	}
	return ""
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// DefaultOutputDir is the output directory used when none is given:
// files land in the current directory, directories in a folder named after them.
func DefaultOutputDir(ref domain.RepositoryReference) string {
	switch ref.Kind {
	case domain.SingleFile:
		return "."
	case domain.WholeRepository:
		return ref.Repo
	default:
		return path.Base(ref.Path)
	}
}
