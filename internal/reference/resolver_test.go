package reference

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// TestParse tests the two recognized URL shapes
func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		owner    string
		repo     string
		ref      string
		path     string
		kind     domain.RefKind
		trailing bool
	}{
		{
			name:  "single file",
			url:   "https://github.com/rust-lang/rust/blob/master/README.md",
			owner: "rust-lang", repo: "rust", ref: "master", path: "README.md",
			kind: domain.SingleFile,
		},
		{
			name:  "nested file",
			url:   "https://github.com/o/r/blob/v1.2.0/src/lib/mod.rs",
			owner: "o", repo: "r", ref: "v1.2.0", path: "src/lib/mod.rs",
			kind: domain.SingleFile,
		},
		{
			name:  "subtree",
			url:   "https://github.com/o/r/tree/main/docs/guide",
			owner: "o", repo: "r", ref: "main", path: "docs/guide",
			kind: domain.Subtree,
		},
		{
			name:  "subtree with trailing slash",
			url:   "https://github.com/o/r/tree/main/docs/",
			owner: "o", repo: "r", ref: "main", path: "docs",
			kind: domain.Subtree, trailing: true,
		},
		{
			name:  "whole repository",
			url:   "https://github.com/o/r/tree/develop",
			owner: "o", repo: "r", ref: "develop", path: "",
			kind: domain.WholeRepository,
		},
		{
			name:  "blob without path is the whole repository",
			url:   "https://github.com/o/r/blob/main",
			owner: "o", repo: "r", ref: "main", path: "",
			kind: domain.WholeRepository,
		},
		{
			name:  "scheme-less",
			url:   "github.com/o/r/tree/main/a",
			owner: "o", repo: "r", ref: "main", path: "a",
			kind: domain.Subtree,
		},
		{
			name:  "www host, query and fragment ignored",
			url:   "https://www.github.com/o/r/blob/main/a.md?plain=1#L10",
			owner: "o", repo: "r", ref: "main", path: "a.md",
			kind: domain.SingleFile,
		},
		{
			name:  "percent-encoded segment",
			url:   "https://github.com/o/r/blob/main/docs/hello%20world.md",
			owner: "o", repo: "r", ref: "main", path: "docs/hello world.md",
			kind: domain.SingleFile,
		},
		{
			name:  "commit ref",
			url:   "https://github.com/o/r/tree/0123456789abcdef0123456789abcdef01234567/pkg",
			owner: "o", repo: "r", ref: "0123456789abcdef0123456789abcdef01234567", path: "pkg",
			kind: domain.Subtree,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, ref.Owner)
			assert.Equal(t, tt.repo, ref.Repo)
			assert.Equal(t, tt.ref, ref.Ref)
			assert.Equal(t, tt.path, ref.Path)
			assert.Equal(t, tt.kind, ref.Kind)
			assert.Equal(t, tt.trailing, ref.TrailingSlash)
			assert.Equal(t, tt.url, ref.URL)
		})
	}
}

// TestParse_Rejects tests malformed and unsafe URLs
func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"not github", "https://gitlab.com/o/r/tree/main"},
		{"ftp scheme", "ftp://github.com/o/r/tree/main"},
		{"repository root", "https://github.com/o/r"},
		{"no ref", "https://github.com/o/r/tree"},
		{"no ref trailing slash", "https://github.com/o/r/tree/"},
		{"unknown view", "https://github.com/o/r/commits/main"},
		{"issues", "https://github.com/o/r/issues/1"},
		{"dot-dot", "https://github.com/o/r/tree/main/docs/../../etc"},
		{"encoded dot-dot", "https://github.com/o/r/blob/main/%2e%2e/secret"},
		{"encoded slash", "https://github.com/o/r/blob/main/a%2F..%2Fb"},
		{"dot segment", "https://github.com/o/r/tree/main/./docs"},
		{"backslash", "https://github.com/o/r/blob/main/a%5Cb"},
		{"nul byte", "https://github.com/o/r/blob/main/a%00b"},
		{"drive letter", "https://github.com/o/r/blob/main/C:%5Cwindows"},
		{"bad owner", "https://github.com/o$/r/tree/main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.url)
			require.Error(t, err)

			var perr *domain.ParseError
			assert.True(t, errors.As(err, &perr))
			assert.ErrorIs(t, err, domain.ErrInvalidURL)
		})
	}
}

// TestDefaultOutputDir tests output naming for each reference kind
func TestDefaultOutputDir(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://github.com/o/r/blob/main/docs/a.md", "."},
		{"https://github.com/o/r/tree/main/docs/guide", "guide"},
		{"https://github.com/o/r/tree/main/docs/guide/", "guide"},
		{"https://github.com/o/repo/tree/main", "repo"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			ref, err := Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, DefaultOutputDir(ref))
		})
	}
}
