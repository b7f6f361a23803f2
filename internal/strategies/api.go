package strategies

import (
	"context"
	"fmt"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/resume"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// Transfer is the byte transfer the api strategy delegates to
type Transfer interface {
	Transfer(ctx context.Context, req resume.Request, sink domain.ProgressSink) (domain.TransferResult, error)
}

// APIStrategy lists through the metadata API and downloads each file on its own
type APIStrategy struct {
	meta     domain.MetadataClient
	transfer Transfer
	logger   *utils.Logger
}

// NewAPIStrategy creates a new api strategy
func NewAPIStrategy(meta domain.MetadataClient, transfer Transfer, logger *utils.Logger) *APIStrategy {
	return &APIStrategy{
		meta:     meta,
		transfer: transfer,
		logger:   utils.OrNop(logger).WithStrategy(string(domain.StrategyAPI)),
	}
}

// Name returns the strategy name
func (s *APIStrategy) Name() domain.Strategy {
	return domain.StrategyAPI
}

// List returns the file a SingleFile reference points at, or the recursive tree otherwise
func (s *APIStrategy) List(ctx context.Context, ref domain.RepositoryReference) (*domain.TreeListing, error) {
	if ref.Kind != domain.SingleFile {
		return s.meta.ListTree(ctx, ref)
	}

	entry, err := s.meta.GetEntry(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &domain.TreeListing{Entries: []domain.EntryMetadata{*entry}}, nil
}

// Transfer downloads the task's source URL onto dest, resuming a partial file when possible
func (s *APIStrategy) Transfer(ctx context.Context, task domain.DownloadTask, dest string, sink domain.ProgressSink) (domain.TransferResult, error) {
	if task.SourceURL == "" {
		return domain.TransferResult{}, fmt.Errorf("no download URL for %s", task.RemotePath)
	}

	return s.transfer.Transfer(ctx, resume.Request{
		TaskID:       task.ID,
		URL:          task.SourceURL,
		Dest:         dest,
		ExpectedSize: task.ExpectedSize,
		ExpectedSHA:  task.Identity.SHA,
	}, sink)
}
