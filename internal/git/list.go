package git

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// List enumerates the checked out entries under the reference path. Paths are
// repository relative; StagedPath points into the working tree.
// The HEAD tree is walked with go-git so file modes identify symlinks and
// submodules. When go-git cannot read the repository the working tree is
// walked instead.
func (a *Adapter) List(ref domain.RepositoryReference, dir string) (*domain.TreeListing, error) {
	listing, err := a.listTree(ref, dir)
	if err == nil {
		return listing, nil
	}
	if errors.Is(err, errPathMissing) {
		return nil, &domain.NotFoundError{Resource: ref.String()}
	}

	a.logger.Debug().Err(err).Str("dir", dir).Msg("go-git walk failed, walking working tree")
	return walkWorktree(ref, dir)
}

var errPathMissing = errors.New("path not in tree")

func (a *Adapter) listTree(ref domain.RepositoryReference, dir string) (*domain.TreeListing, error) {
	repo, err := a.client.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	root, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read HEAD tree: %w", err)
	}

	listing := &domain.TreeListing{}

	if ref.Kind == domain.SingleFile {
		entry, err := root.FindEntry(ref.Path)
		if err != nil {
			return nil, errPathMissing
		}
		listing.Entries = append(listing.Entries, stagedEntry(dir, ref.Path, entry.Mode, entry.Hash.String()))
		return listing, nil
	}

	tree := root
	if ref.Path != "" {
		tree, err = root.Tree(ref.Path)
		if err != nil {
			return nil, errPathMissing
		}
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree: %w", err)
		}

		full := name
		if ref.Path != "" {
			full = path.Join(ref.Path, name)
		}
		listing.Entries = append(listing.Entries, stagedEntry(dir, full, entry.Mode, entry.Hash.String()))
	}

	return listing, nil
}

func stagedEntry(dir, repoPath string, mode filemode.FileMode, sha string) domain.EntryMetadata {
	entry := domain.EntryMetadata{
		Path: repoPath,
		Size: -1,
		SHA:  sha,
	}

	switch mode {
	case filemode.Regular, filemode.Executable, filemode.Deprecated:
		entry.Type = domain.EntryFile
		entry.StagedPath = filepath.Join(dir, filepath.FromSlash(repoPath))
		if info, err := os.Lstat(entry.StagedPath); err == nil && info.Mode().IsRegular() {
			entry.Size = info.Size()
		}
	case filemode.Dir:
		entry.Type = domain.EntryDir
	case filemode.Symlink:
		entry.Type = domain.EntrySymlink
	case filemode.Submodule:
		entry.Type = domain.EntrySubmodule
	default:
		entry.Type = domain.EntryOther
	}
	return entry
}

// walkWorktree lists the working tree from disk. Submodules cannot be told
// apart from empty directories here, so they produce no entry.
func walkWorktree(ref domain.RepositoryReference, dir string) (*domain.TreeListing, error) {
	base := filepath.Join(dir, filepath.FromSlash(ref.Path))
	info, err := os.Lstat(base)
	if err != nil {
		return nil, &domain.NotFoundError{Resource: ref.String()}
	}

	listing := &domain.TreeListing{}
	if ref.Kind == domain.SingleFile || !info.IsDir() {
		listing.Entries = append(listing.Entries, diskEntry(ref.Path, base, info))
		return listing, nil
	}

	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == base {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		listing.Entries = append(listing.Entries, diskEntry(filepath.ToSlash(rel), p, fi))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working tree: %w", err)
	}
	return listing, nil
}

func diskEntry(repoPath, full string, info fs.FileInfo) domain.EntryMetadata {
	entry := domain.EntryMetadata{Path: repoPath, Size: -1}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		entry.Type = domain.EntrySymlink
	case info.IsDir():
		entry.Type = domain.EntryDir
	case info.Mode().IsRegular():
		entry.Type = domain.EntryFile
		entry.Size = info.Size()
		entry.StagedPath = full
	default:
		entry.Type = domain.EntryOther
	}
	return entry
}
