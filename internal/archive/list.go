package archive

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// linkIndex records the symlink entries that extraction skipped
const linkIndex = ".ghfetch-links"

func writeLinkIndex(dest string, links map[string]string) error {
	names := make([]string, 0, len(links))
	for rel := range links {
		names = append(names, rel)
	}
	sort.Strings(names)

	content := strings.Join(names, "\n")
	if err := os.WriteFile(filepath.Join(dest, linkIndex), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to record skipped links: %w", err)
	}
	return nil
}

func readLinkIndex(dest string) []string {
	f, err := os.Open(filepath.Join(dest, linkIndex))
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// List enumerates staged entries under the reference path with repository
// relative paths. Symlinks skipped during extraction are listed without a staged file.
func (a *Adapter) List(ref domain.RepositoryReference, stageDir string) (*domain.TreeListing, error) {
	listing := &domain.TreeListing{}
	links := readLinkIndex(stageDir)

	if ref.Kind == domain.SingleFile {
		for _, l := range links {
			if l == ref.Path {
				listing.Entries = append(listing.Entries, domain.EntryMetadata{Path: l, Type: domain.EntrySymlink, Size: -1})
				return listing, nil
			}
		}
		staged := filepath.Join(stageDir, filepath.FromSlash(ref.Path))
		info, err := os.Lstat(staged)
		if err != nil || !info.Mode().IsRegular() {
			return nil, &domain.NotFoundError{Resource: ref.String()}
		}
		listing.Entries = append(listing.Entries, domain.EntryMetadata{
			Path:       ref.Path,
			Type:       domain.EntryFile,
			Size:       info.Size(),
			StagedPath: staged,
		})
		return listing, nil
	}

	base := filepath.Join(stageDir, filepath.FromSlash(ref.Path))
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return nil, &domain.NotFoundError{Resource: ref.String()}
	}

	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == base {
			return nil
		}

		rel, err := filepath.Rel(stageDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == completeMarker || rel == linkIndex {
			return nil
		}

		if d.IsDir() {
			listing.Entries = append(listing.Entries, domain.EntryMetadata{Path: rel, Type: domain.EntryDir, Size: -1})
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		listing.Entries = append(listing.Entries, domain.EntryMetadata{
			Path:       rel,
			Type:       domain.EntryFile,
			Size:       info.Size(),
			StagedPath: p,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk staged files: %w", err)
	}

	prefix := ref.Path + "/"
	for _, l := range links {
		if ref.Path == "" || strings.HasPrefix(l, prefix) {
			listing.Entries = append(listing.Entries, domain.EntryMetadata{Path: l, Type: domain.EntrySymlink, Size: -1})
		}
	}

	return listing, nil
}
