package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// Summary aggregates the outcomes of one plan
type Summary struct {
	RunID     string
	Reference domain.RepositoryReference
	Strategy  domain.Strategy
	Outcomes  []domain.TaskOutcome
	Warnings  []domain.Warning
	Counts    map[domain.TaskStatus]int
	Bytes     int64
	Duration  time.Duration
}

func newSummary(runID string, plan *domain.Plan, outcomes []domain.TaskOutcome, d time.Duration) *Summary {
	s := &Summary{
		RunID:     runID,
		Reference: plan.Reference,
		Strategy:  plan.Strategy,
		Outcomes:  outcomes,
		Warnings:  plan.Warnings,
		Counts:    make(map[domain.TaskStatus]int),
		Duration:  d,
	}
	for _, o := range outcomes {
		s.Counts[o.Status]++
		if o.Status == domain.StatusDownloaded || o.Status == domain.StatusResumed {
			s.Bytes += o.Bytes
		}
	}
	return s
}

// Failures returns the failed outcomes
func (s *Summary) Failures() []domain.TaskOutcome {
	var failed []domain.TaskOutcome
	for _, o := range s.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Result classifies the run. A plan with no tasks succeeds.
func (s *Summary) Result() domain.RunResult {
	failed := s.Counts[domain.StatusFailed]
	switch {
	case failed == 0:
		return domain.ResultSuccess
	case failed == len(s.Outcomes):
		return domain.ResultFailure
	default:
		return domain.ResultPartialFailure
	}
}

// Err returns nil on success and an error naming the failure count otherwise.
// When every failure shares one cause, that cause is wrapped.
func (s *Summary) Err() error {
	failures := s.Failures()
	if len(failures) == 0 {
		return nil
	}

	var cause error
	for _, o := range failures {
		if cause == nil {
			cause = o.Err
			continue
		}
		if o.Err == nil || cause.Error() != o.Err.Error() {
			cause = nil
			break
		}
	}

	msg := fmt.Sprintf("%s: %d of %d file(s) failed", s.Reference, len(failures), len(s.Outcomes))
	if cause != nil {
		return fmt.Errorf("%s: %w", msg, cause)
	}
	return errors.New(msg)
}

// Log writes the per-file breakdown and the totals
func (s *Summary) Log(logger *utils.Logger) {
	logger = utils.OrNop(logger).WithRunID(s.RunID)

	for _, w := range s.Warnings {
		logger.Warn().Str("path", w.Path).Msg(w.Message)
	}
	for _, o := range s.Failures() {
		logger.Error().Err(o.Err).Str("path", o.Task.RemotePath).Msg("File failed")
	}

	event := logger.Info()
	if s.Result() != domain.ResultSuccess {
		event = logger.Warn()
	}
	event.
		Str("source", s.Reference.String()).
		Str("strategy", string(s.Strategy)).
		Str("result", string(s.Result())).
		Int("downloaded", s.Counts[domain.StatusDownloaded]).
		Int("resumed", s.Counts[domain.StatusResumed]).
		Int("unchanged", s.Counts[domain.StatusUnchanged]).
		Int("skipped", s.Counts[domain.StatusSkipped]).
		Int("failed", s.Counts[domain.StatusFailed]).
		Int("warnings", len(s.Warnings)).
		Int64("bytes", s.Bytes).
		Dur("duration", s.Duration).
		Msg("Download finished")
}
