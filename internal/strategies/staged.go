package strategies

import (
	"context"
	"fmt"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/output"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// Checkout stages a reference with a sparse checkout
type Checkout interface {
	Checkout(ctx context.Context, ref domain.RepositoryReference) (string, error)
	List(ref domain.RepositoryReference, dir string) (*domain.TreeListing, error)
}

// Archive stages a reference from a repository archive
type Archive interface {
	DownloadAndExtract(ctx context.Context, ref domain.RepositoryReference, sink domain.ProgressSink) (*domain.TreeListing, error)
}

// StagedCopier copies a staged file into the output root
type StagedCopier interface {
	CopyStaged(ctx context.Context, src, dest, taskID string, sink domain.ProgressSink) (int64, error)
}

// stagedTransfer copies files that a lister already placed on disk
type stagedTransfer struct {
	writer StagedCopier
}

func (s stagedTransfer) Transfer(ctx context.Context, task domain.DownloadTask, dest string, sink domain.ProgressSink) (domain.TransferResult, error) {
	if task.StagedPath == "" {
		return domain.TransferResult{}, fmt.Errorf("no staged copy of %s", task.RemotePath)
	}
	n, err := s.writer.CopyStaged(ctx, task.StagedPath, dest, task.ID, sink)
	if err != nil {
		return domain.TransferResult{}, err
	}
	return domain.TransferResult{Bytes: n}, nil
}

// GitStrategy stages files with a sparse, blobless checkout
type GitStrategy struct {
	stagedTransfer
	checkout Checkout
	logger   *utils.Logger
}

// NewGitStrategy creates a new git strategy
func NewGitStrategy(checkout Checkout, writer StagedCopier, logger *utils.Logger) *GitStrategy {
	return &GitStrategy{
		stagedTransfer: stagedTransfer{writer: writer},
		checkout:       checkout,
		logger:         utils.OrNop(logger).WithStrategy(string(domain.StrategyGit)),
	}
}

// Name returns the strategy name
func (s *GitStrategy) Name() domain.Strategy {
	return domain.StrategyGit
}

// List checks out the reference and walks the resulting tree
func (s *GitStrategy) List(ctx context.Context, ref domain.RepositoryReference) (*domain.TreeListing, error) {
	dir, err := s.checkout.Checkout(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("dir", dir).Str("ref", ref.String()).Msg("Checkout ready")
	return s.checkout.List(ref, dir)
}

// ZipStrategy stages files from the repository archive
type ZipStrategy struct {
	stagedTransfer
	archive  Archive
	progress domain.ProgressSink
	logger   *utils.Logger
}

// NewZipStrategy creates a new zip strategy
func NewZipStrategy(archive Archive, writer StagedCopier, logger *utils.Logger) *ZipStrategy {
	return &ZipStrategy{
		stagedTransfer: stagedTransfer{writer: writer},
		archive:        archive,
		progress:       domain.NopProgress{},
		logger:         utils.OrNop(logger).WithStrategy(string(domain.StrategyZip)),
	}
}

// SetProgress reports the archive download to sink
func (s *ZipStrategy) SetProgress(sink domain.ProgressSink) {
	if sink != nil {
		s.progress = sink
	}
}

// Name returns the strategy name
func (s *ZipStrategy) Name() domain.Strategy {
	return domain.StrategyZip
}

// List downloads and extracts the archive, then lists the staged entries
func (s *ZipStrategy) List(ctx context.Context, ref domain.RepositoryReference) (*domain.TreeListing, error) {
	return s.archive.DownloadAndExtract(ctx, ref, s.progress)
}

// compile-time checks
var (
	_ Strategy     = (*APIStrategy)(nil)
	_ Strategy     = (*GitStrategy)(nil)
	_ Strategy     = (*ZipStrategy)(nil)
	_ StagedCopier = (*output.Writer)(nil)
)
