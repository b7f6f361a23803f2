// Package pathguard keeps every write inside the output root.
package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/quantmind-br/ghfetch/internal/domain"
)

// Guard resolves destinations under a single output root
type Guard struct {
	root     string
	realRoot string
}

// New creates a Guard for root. The root need not exist yet.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs = filepath.Clean(abs)

	resolved, err := realPath(abs)
	if err != nil {
		return nil, err
	}
	return &Guard{root: abs, realRoot: resolved}, nil
}

// Root returns the absolute output root
func (g *Guard) Root() string {
	return g.root
}

// Resolve maps a slash-separated relative path to an absolute destination under the root.
// The path is rejected when it is absolute, climbs with '..', or reaches outside
// the root through an existing symlink.
func (g *Guard) Resolve(rel string) (string, error) {
	if err := g.checkLexical(rel); err != nil {
		return "", err
	}

	dest := filepath.Join(g.root, filepath.FromSlash(rel))
	if !within(g.root, dest) {
		return "", &domain.PathTraversalError{Root: g.root, Path: rel}
	}

	if err := g.checkCanonical(dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Verify repeats the canonical check on an already resolved destination.
// Call it right before writing so a symlink planted after Resolve is caught.
func (g *Guard) Verify(dest string) error {
	if !within(g.root, filepath.Clean(dest)) {
		return &domain.PathTraversalError{Root: g.root, Path: dest}
	}
	return g.checkCanonical(filepath.Clean(dest))
}

func (g *Guard) checkLexical(rel string) error {
	reject := func() error {
		return &domain.PathTraversalError{Root: g.root, Path: rel}
	}

	if rel == "" || strings.ContainsRune(rel, 0) {
		return reject()
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) ||
		filepath.VolumeName(rel) != "" || hasDriveLetter(rel) {
		return reject()
	}

	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return reject()
		}
	}
	return nil
}

// checkCanonical rejects destinations whose existing ancestors resolve outside the real root
func (g *Guard) checkCanonical(dest string) error {
	rel, err := filepath.Rel(g.root, dest)
	if err != nil {
		return &domain.PathTraversalError{Root: g.root, Path: dest}
	}

	// SecureJoin resolves symlinks while clamping to root; any difference
	// from the lexical join means an existing component is a symlink.
	scoped, err := securejoin.SecureJoin(g.root, rel)
	if err != nil {
		return &domain.PathTraversalError{Root: g.root, Path: dest}
	}
	if filepath.Clean(scoped) == dest {
		return nil
	}

	ancestor := deepestExisting(dest, g.root)
	resolved, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		// dangling link
		return &domain.PathTraversalError{Root: g.root, Path: dest}
	}
	if !within(g.realRoot, resolved) {
		return &domain.PathTraversalError{Root: g.root, Path: dest}
	}
	return nil
}

// deepestExisting walks up from p until a path that exists (without following the final link)
func deepestExisting(p, stop string) string {
	for {
		if _, err := os.Lstat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if p == stop || parent == p {
			return p
		}
		p = parent
	}
}

// realPath resolves symlinks in the existing prefix of p and re-appends the rest
func realPath(p string) (string, error) {
	var rest []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
