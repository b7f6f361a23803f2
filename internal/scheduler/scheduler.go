// Package scheduler executes a plan's download tasks on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/ratelimit"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// DefaultWorkers is the default number of concurrent transfers
const DefaultWorkers = 4

// Guard resolves task destinations inside the output root
type Guard interface {
	Resolve(rel string) (string, error)
}

// OverwriteChecker decides once for all destinations that already exist
type OverwriteChecker interface {
	Check(existing []string) error
}

// Options configures a Scheduler
type Options struct {
	Workers  int
	RunID    string
	Guard    Guard
	Policy   OverwriteChecker
	Limits   *ratelimit.State
	MaxWait  time.Duration
	Progress domain.ProgressSink
	Logger   *utils.Logger
}

// Scheduler runs download tasks with fault isolation: one task's failure never
// cancels its siblings
type Scheduler struct {
	workers  int
	runID    string
	guard    Guard
	policy   OverwriteChecker
	limits   *ratelimit.State
	maxWait  time.Duration
	progress domain.ProgressSink
	logger   *utils.Logger

	stopped atomic.Bool
	haltMu  sync.Mutex
	halt    error
}

// New creates a Scheduler
func New(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Limits == nil {
		opts.Limits = ratelimit.New()
	}
	if opts.Progress == nil {
		opts.Progress = domain.NopProgress{}
	}
	return &Scheduler{
		workers:  opts.Workers,
		runID:    opts.RunID,
		guard:    opts.Guard,
		policy:   opts.Policy,
		limits:   opts.Limits,
		maxWait:  opts.MaxWait,
		progress: opts.Progress,
		logger:   utils.OrNop(opts.Logger).WithComponent("scheduler").WithRunID(opts.RunID),
	}
}

// Stop stops handing out new tasks. Transfers already running finish on their own.
func (s *Scheduler) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Stopping: no new transfers will start")
	}
}

// Stopped reports whether Stop was called
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}

// haltWith stops the run and records why remaining tasks never started
func (s *Scheduler) haltWith(err error) {
	s.haltMu.Lock()
	if s.halt == nil {
		s.halt = err
	}
	s.haltMu.Unlock()
	s.stopped.Store(true)
}

func (s *Scheduler) haltErr() error {
	s.haltMu.Lock()
	defer s.haltMu.Unlock()
	return s.halt
}

// Run executes every task in plan through transfer and returns the summary.
// Per task: guard, then the batched overwrite decision, then the rate-limit
// gate, then the transfer.
func (s *Scheduler) Run(ctx context.Context, plan *domain.Plan, transfer domain.Transferer) *Summary {
	start := time.Now()
	outcomes := make([]domain.TaskOutcome, len(plan.Tasks))
	for i, task := range plan.Tasks {
		outcomes[i] = domain.TaskOutcome{Task: task, Status: domain.StatusFailed, Err: domain.ErrNotStarted}
	}

	pending := s.prepare(plan, outcomes)

	logger := s.logger.WithStrategy(string(plan.Strategy))
	logger.Debug().Int("tasks", len(plan.Tasks)).Int("pending", len(pending)).Int("workers", s.workers).Msg("Dispatching tasks")

	utils.ParallelForEach(ctx, pending, s.workers, func(ctx context.Context, idx int) error {
		if s.Stopped() || ctx.Err() != nil {
			return nil
		}
		outcomes[idx] = s.execute(ctx, outcomes[idx].Task, transfer, logger)
		return nil
	})

	if err := s.haltErr(); err != nil {
		for i := range outcomes {
			if errors.Is(outcomes[i].Err, domain.ErrNotStarted) {
				outcomes[i].Err = err
			}
		}
	}

	return newSummary(s.runID, plan, outcomes, time.Since(start))
}

// prepare resolves destinations, detects unchanged files and applies the
// overwrite policy. It returns the indices of tasks left to transfer.
func (s *Scheduler) prepare(plan *domain.Plan, outcomes []domain.TaskOutcome) []int {
	var pending, conflicts []int
	var existing []string

	for i := range outcomes {
		task := &outcomes[i].Task
		if s.guard != nil {
			dest, err := s.guard.Resolve(task.RelativePath)
			if err != nil {
				outcomes[i].Err = err
				s.logger.Warn().Err(err).Str("path", task.RemotePath).Msg("Destination rejected")
				continue
			}
			task.LocalPath = dest
		}

		info, err := os.Lstat(task.LocalPath)
		switch {
		case err != nil:
			pending = append(pending, i)
		case info.Mode().IsRegular() && unchanged(*task, info.Size()):
			outcomes[i].Status = domain.StatusUnchanged
			outcomes[i].Err = nil
		default:
			conflicts = append(conflicts, i)
			existing = append(existing, task.LocalPath)
		}
	}

	if len(existing) == 0 {
		return pending
	}

	var err error
	if s.policy != nil {
		err = s.policy.Check(existing)
	}
	switch {
	case err == nil:
		return append(pending, conflicts...)
	case errors.Is(err, domain.ErrOverwriteDeclined):
		for _, i := range conflicts {
			outcomes[i].Status = domain.StatusSkipped
			outcomes[i].Err = err
		}
		return pending
	default:
		// refused: leave every file on disk as it is
		for _, i := range append(pending, conflicts...) {
			outcomes[i].Err = err
		}
		return nil
	}
}

// unchanged reports whether the file on disk already holds the task's content
func unchanged(task domain.DownloadTask, size int64) bool {
	if task.SizeKnown() && task.ExpectedSize != size {
		return false
	}

	want := task.Identity.SHA
	if want == "" && task.StagedPath != "" {
		want, _ = utils.GitBlobSHA(task.StagedPath)
	}
	if want == "" {
		return false
	}

	got, err := utils.GitBlobSHA(task.LocalPath)
	return err == nil && got == want
}

func (s *Scheduler) execute(ctx context.Context, task domain.DownloadTask, transfer domain.Transferer, logger *utils.Logger) domain.TaskOutcome {
	outcome := domain.TaskOutcome{Task: task, Status: domain.StatusFailed}

	if err := s.limits.Gate(ctx, s.maxWait); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			s.haltWith(err)
		}
		outcome.Err = err
		return outcome
	}

	start := time.Now()
	result, err := transfer.Transfer(ctx, task, task.LocalPath, s.progress)
	s.progress.Finish(task.ID, err)

	outcome.Duration = time.Since(start)
	outcome.Bytes = result.Bytes
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			s.haltWith(err)
		}
		outcome.Err = err
		logger.Warn().Err(err).Str("path", task.RemotePath).Msg("Transfer failed")
		return outcome
	}

	outcome.Status = domain.StatusDownloaded
	if result.Resumed {
		outcome.Status = domain.StatusResumed
	}
	logger.Debug().
		Str("path", task.RemotePath).
		Int64("bytes", result.Bytes).
		Bool("resumed", result.Resumed).
		Dur("duration", outcome.Duration).
		Msg("Transfer completed")
	return outcome
}
