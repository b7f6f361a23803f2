// Package tasks turns a repository reference into the concrete list of files to download.
package tasks

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// Options configures a Builder
type Options struct {
	Meta   domain.MetadataClient
	Logger *utils.Logger
}

// Builder counts and enumerates download tasks.
// A tree listing fetched for Count is reused when the plan is built for the api strategy.
type Builder struct {
	meta   domain.MetadataClient
	logger *utils.Logger

	mu       sync.Mutex
	listings map[string]*domain.TreeListing
}

// NewBuilder creates a Builder
func NewBuilder(opts Options) *Builder {
	return &Builder{
		meta:     opts.Meta,
		logger:   utils.OrNop(opts.Logger).WithComponent("tasks"),
		listings: make(map[string]*domain.TreeListing),
	}
}

// Count returns the number of regular files under the reference
func (b *Builder) Count(ctx context.Context, ref domain.RepositoryReference) (int, error) {
	if ref.Kind == domain.SingleFile {
		return 1, nil
	}

	listing, err := b.meta.ListTree(ctx, ref)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.listings[ref.String()] = listing
	b.mu.Unlock()

	n := 0
	for _, e := range listing.Entries {
		if e.Type == domain.EntryFile {
			n++
		}
	}
	return n, nil
}

// cached returns the listing remembered by Count, if any
func (b *Builder) cached(ref domain.RepositoryReference) *domain.TreeListing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listings[ref.String()]
}

// Build enumerates the tasks for ref. Local paths are joined onto root
// lexically; the scheduler resolves them through the path guard before writing.
func (b *Builder) Build(ctx context.Context, ref domain.RepositoryReference, strategy domain.Strategy, lister domain.EntryLister, root string) (*domain.Plan, error) {
	if !strategy.IsConcrete() {
		return nil, domain.NewValidationError("strategy", fmt.Sprintf("%q must be resolved before building tasks", strategy))
	}

	var listing *domain.TreeListing
	if strategy == domain.StrategyAPI && ref.Kind != domain.SingleFile {
		listing = b.cached(ref)
	}
	if listing == nil {
		var err error
		listing, err = lister.List(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	plan := &domain.Plan{Reference: ref, Strategy: strategy}
	if listing.Truncated {
		plan.Warnings = append(plan.Warnings, domain.Warning{
			Path:    ref.Path,
			Message: "tree listing was truncated by the API; some files may be missing",
		})
	}

	if ref.Kind == domain.SingleFile {
		if err := b.singleFile(plan, listing, root); err != nil {
			return nil, err
		}
		return plan, nil
	}

	seen := make(map[string]string)
	for _, entry := range listing.Entries {
		switch entry.Type {
		case domain.EntryFile:
		case domain.EntryDir:
			continue
		default:
			plan.Warnings = append(plan.Warnings, skipWarning(entry))
			continue
		}

		rel, ok := relativeTo(ref.Path, entry.Path)
		if !ok {
			plan.Warnings = append(plan.Warnings, domain.Warning{Path: entry.Path, Message: "outside the requested path, skipped"})
			continue
		}
		if prev, dup := seen[rel]; dup {
			plan.Warnings = append(plan.Warnings, domain.Warning{
				Path:    entry.Path,
				Message: fmt.Sprintf("same local name as %s after normalization, skipped", prev),
			})
			continue
		}
		seen[rel] = entry.Path

		plan.Tasks = append(plan.Tasks, newTask(entry, rel, root))
	}

	sort.Slice(plan.Tasks, func(i, j int) bool { return plan.Tasks[i].RemotePath < plan.Tasks[j].RemotePath })

	b.logger.Debug().
		Str("ref", ref.String()).
		Str("strategy", string(strategy)).
		Int("tasks", len(plan.Tasks)).
		Int("warnings", len(plan.Warnings)).
		Msg("Built plan")
	return plan, nil
}

func (b *Builder) singleFile(plan *domain.Plan, listing *domain.TreeListing, root string) error {
	ref := plan.Reference
	want := utils.NormalizeRelPath(ref.Path)
	var entry *domain.EntryMetadata
	for i := range listing.Entries {
		if utils.NormalizeRelPath(listing.Entries[i].Path) == want {
			entry = &listing.Entries[i]
			break
		}
	}
	if entry == nil {
		return &domain.NotFoundError{Resource: ref.String()}
	}

	switch entry.Type {
	case domain.EntryFile:
		plan.Tasks = []domain.DownloadTask{newTask(*entry, utils.NormalizeRelPath(path.Base(entry.Path)), root)}
	case domain.EntryDir:
		return domain.NewValidationError("url", fmt.Sprintf("%s is a directory; use a /tree/ URL", ref.Path))
	default:
		plan.Warnings = append(plan.Warnings, skipWarning(*entry))
	}
	return nil
}

func newTask(entry domain.EntryMetadata, rel, root string) domain.DownloadTask {
	return domain.DownloadTask{
		ID:           entry.Path,
		RemotePath:   entry.Path,
		RelativePath: rel,
		LocalPath:    filepath.Join(root, filepath.FromSlash(rel)),
		ExpectedSize: entry.Size,
		Identity:     domain.ContentIdentity{SHA: entry.SHA},
		SourceURL:    entry.DownloadURL,
		StagedPath:   entry.StagedPath,
	}
}

// relativeTo returns p relative to the subtree root, NFC normalized
func relativeTo(root, p string) (string, bool) {
	if root == "" {
		return utils.NormalizeRelPath(p), p != ""
	}
	rest, ok := strings.CutPrefix(p, root+"/")
	if !ok || rest == "" {
		return "", false
	}
	return utils.NormalizeRelPath(rest), true
}

func skipWarning(entry domain.EntryMetadata) domain.Warning {
	switch entry.Type {
	case domain.EntrySymlink:
		return domain.Warning{Path: entry.Path, Message: "symbolic link skipped"}
	case domain.EntrySubmodule:
		return domain.Warning{Path: entry.Path, Message: "submodule skipped"}
	default:
		return domain.Warning{Path: entry.Path, Message: fmt.Sprintf("unsupported entry type %q skipped", entry.Type)}
	}
}
