package pathguard

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

func newGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "out")
	g, err := New(root)
	require.NoError(t, err)
	return g, g.Root()
}

func assertTraversal(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var pte *domain.PathTraversalError
	assert.True(t, errors.As(err, &pte))
	assert.ErrorIs(t, err, domain.ErrPathTraversal)
}

// TestGuard_Resolve tests lexical containment
func TestGuard_Resolve(t *testing.T) {
	g, root := newGuard(t)

	tests := []struct {
		name     string
		rel      string
		expected string
	}{
		{"plain file", "a.txt", filepath.Join(root, "a.txt")},
		{"nested", "docs/guide/intro.md", filepath.Join(root, "docs", "guide", "intro.md")},
		{"dot segment collapses", "docs/./a.md", filepath.Join(root, "docs", "a.md")},
		{"unicode", "docs/naïve.md", filepath.Join(root, "docs", "naïve.md")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := g.Resolve(tt.rel)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dest)
		})
	}
}

// TestGuard_Resolve_Rejects tests paths that must never be written
func TestGuard_Resolve_Rejects(t *testing.T) {
	g, _ := newGuard(t)

	tests := []struct {
		name string
		rel  string
	}{
		{"empty", ""},
		{"parent", "../escape.txt"},
		{"nested parent", "docs/../../escape.txt"},
		{"absolute", "/etc/passwd"},
		{"backslash absolute", `\windows\system32`},
		{"backslash parent", `docs\..\..\x`},
		{"drive letter", "C:/x"},
		{"nul", "a\x00b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Resolve(tt.rel)
			assertTraversal(t, err)
		})
	}
}

// TestGuard_SymlinkEscape tests that existing symlinks cannot redirect writes outside the root
func TestGuard_SymlinkEscape(t *testing.T) {
	g, root := newGuard(t)
	outside := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0755))

	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := g.Resolve("link/pwned.txt")
	assertTraversal(t, err)

	t.Run("final component link", func(t *testing.T) {
		target := filepath.Join(outside, "victim.txt")
		require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
		require.NoError(t, os.Symlink(target, filepath.Join(root, "file.txt")))

		_, err := g.Resolve("file.txt")
		assertTraversal(t, err)
	})

	t.Run("link inside root is allowed", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0755))
		require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))

		dest, err := g.Resolve("alias/ok.txt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "alias", "ok.txt"), dest)
	})
}

// TestGuard_Verify tests the re-check before a write
func TestGuard_Verify(t *testing.T) {
	g, root := newGuard(t)
	require.NoError(t, os.MkdirAll(root, 0755))

	dest, err := g.Resolve("sub/a.txt")
	require.NoError(t, err)
	require.NoError(t, g.Verify(dest))

	// a link planted after resolution
	require.NoError(t, os.Symlink(t.TempDir(), filepath.Join(root, "sub")))
	assertTraversal(t, g.Verify(dest))

	assertTraversal(t, g.Verify(filepath.Join(root, "..", "x")))
}

// TestGuard_SymlinkedRoot tests a root reached through a symlink
func TestGuard_SymlinkedRoot(t *testing.T) {
	base := t.TempDir()
	realDir := filepath.Join(base, "real")
	require.NoError(t, os.MkdirAll(realDir, 0755))
	require.NoError(t, os.Symlink(realDir, filepath.Join(base, "alias")))

	g, err := New(filepath.Join(base, "alias"))
	require.NoError(t, err)

	_, err = g.Resolve("a/b.txt")
	assert.NoError(t, err)
}

// TestOverwritePolicy_Check tests the batched overwrite decision
func TestOverwritePolicy_Check(t *testing.T) {
	files := []string{"a.txt", "b.txt"}

	t.Run("nothing existing", func(t *testing.T) {
		p := &OverwritePolicy{}
		assert.NoError(t, p.Check(nil))
	})

	t.Run("force approves", func(t *testing.T) {
		p := &OverwritePolicy{Force: true}
		assert.NoError(t, p.Check(files))
	})

	t.Run("non-interactive refuses", func(t *testing.T) {
		p := &OverwritePolicy{}
		err := p.Check(files)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrOverwriteRefused)
		assert.Equal(t, "Refusing to overwrite 2 existing file(s) in non-interactive mode. Use --force to override.", err.Error())
	})

	t.Run("interactive yes", func(t *testing.T) {
		var out bytes.Buffer
		p := &OverwritePolicy{Interactive: true, In: strings.NewReader("Y\n"), Out: &out}
		assert.NoError(t, p.Check(files))
		assert.Contains(t, out.String(), "The following 2 file(s) already exist")
		assert.Contains(t, out.String(), "  - a.txt")
		assert.Contains(t, out.String(), "[y/N]")
	})

	t.Run("interactive default is no", func(t *testing.T) {
		p := &OverwritePolicy{Interactive: true, In: strings.NewReader("\n"), Out: &bytes.Buffer{}}
		assert.ErrorIs(t, p.Check(files), domain.ErrOverwriteDeclined)
	})

	t.Run("interactive eof is no", func(t *testing.T) {
		p := &OverwritePolicy{Interactive: true, In: strings.NewReader(""), Out: &bytes.Buffer{}}
		assert.ErrorIs(t, p.Check(files), domain.ErrOverwriteDeclined)
	})

	t.Run("prompt lists at most ten", func(t *testing.T) {
		many := make([]string, 13)
		for i := range many {
			many[i] = filepath.Join("dir", string(rune('a'+i))+".txt")
		}
		var out bytes.Buffer
		p := &OverwritePolicy{Interactive: true, In: strings.NewReader("yes\n"), Out: &out}
		require.NoError(t, p.Check(many))
		assert.Equal(t, 10, strings.Count(out.String(), "  - "))
		assert.Contains(t, out.String(), "... and 3 more")
	})
}
