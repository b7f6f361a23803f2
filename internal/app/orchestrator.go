// Package app wires the download pipeline: reference parsing, strategy
// selection, task building and scheduling.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quantmind-br/ghfetch/internal/config"
	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/manifest"
	"github.com/quantmind-br/ghfetch/internal/output"
	"github.com/quantmind-br/ghfetch/internal/pathguard"
	"github.com/quantmind-br/ghfetch/internal/ratelimit"
	"github.com/quantmind-br/ghfetch/internal/reference"
	"github.com/quantmind-br/ghfetch/internal/scheduler"
	"github.com/quantmind-br/ghfetch/internal/strategies"
	"github.com/quantmind-br/ghfetch/internal/tasks"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// StrategyFactory creates the named strategy writing under guard
type StrategyFactory func(name domain.Strategy, guard *pathguard.Guard) (strategies.Strategy, error)

// PolicyFactory creates the overwrite policy for one source
type PolicyFactory func(force bool) scheduler.OverwriteChecker

// progressSetter is implemented by strategies that report their own download progress
type progressSetter interface {
	SetProgress(sink domain.ProgressSink)
}

// Orchestrator coordinates the download of one or more sources
type Orchestrator struct {
	config    *config.Config
	deps      *strategies.Dependencies
	ownsDeps  bool
	builder   *tasks.Builder
	limits    *ratelimit.State
	collector *output.Collector
	logger    *utils.Logger
	runID     string
	strategy  domain.Strategy
	output    string
	workers   int
	force     bool
	progress  io.Writer

	strategyFactory StrategyFactory
	policyFactory   PolicyFactory

	mu      sync.Mutex
	active  map[*scheduler.Scheduler]struct{}
	stopped atomic.Bool
}

// OrchestratorOptions contains options for creating an orchestrator
type OrchestratorOptions struct {
	domain.CommonOptions
	Config *config.Config
	// Strategy overrides the configured strategy when set
	Strategy string
	// Output overrides the configured output root when set
	Output string
	// Workers overrides the configured concurrency when positive
	Workers int
	// Report overrides the configured report path when set
	Report string
	// Progress receives progress bars; nil disables them
	Progress io.Writer
	Logger   *utils.Logger

	// Dependencies replaces the dependencies built from Config
	Dependencies    *strategies.Dependencies
	StrategyFactory StrategyFactory
	PolicyFactory   PolicyFactory
}

// Source is one URL to download
type Source struct {
	URL      string
	Strategy domain.Strategy
	// Output is the output root; empty derives it from the URL
	Output string
	Force  bool
}

// SourceResult is the outcome of one source
type SourceResult struct {
	Source   Source
	Summary  *scheduler.Summary
	Error    error
	Duration time.Duration
}

// NewOrchestrator creates a new orchestrator with the given configuration
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger(utils.LoggerOptions{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: opts.Verbose,
		})
	}

	strategyName := cfg.Strategy
	if opts.Strategy != "" {
		strategyName = opts.Strategy
	}
	strategy, err := domain.ParseStrategy(strategyName)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger = logger.WithRunID(runID)

	deps := opts.Dependencies
	ownsDeps := false
	if deps == nil {
		retries := cfg.Concurrency.MaxRetries
		if retries == 0 {
			// the fetcher reads zero as its default
			retries = -1
		}
		deps, err = strategies.NewDependencies(strategies.DependencyOptions{
			Timeout:          cfg.Concurrency.Timeout,
			MaxRetries:       retries,
			EnableCache:      cfg.Cache.Enabled && !opts.NoCache,
			CacheDir:         cfg.HTTPCacheDir(),
			CacheTTL:         cfg.Cache.TTL,
			StagingDir:       cfg.StagingDir(),
			Token:            cfg.ResolveToken(opts.Token),
			MaxRateLimitWait: cfg.RateLimit.MaxWait,
			RateLimit:        ratelimit.New(),
			GitBinary:        cfg.Git.Binary,
			GitMinVersion:    cfg.Git.MinVersion,
			Logger:           logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create dependencies: %w", err)
		}
		ownsDeps = true
	}

	workers := cfg.Concurrency.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	out := cfg.Output.Directory
	if opts.Output != "" {
		out = opts.Output
	}
	report := cfg.Output.Report
	if opts.Report != "" {
		report = opts.Report
	}

	o := &Orchestrator{
		config:   cfg,
		deps:     deps,
		ownsDeps: ownsDeps,
		builder:  tasks.NewBuilder(tasks.Options{Meta: deps.GitHub, Logger: logger}),
		limits:   deps.HTTP.RateLimit(),
		collector: output.NewCollector(output.CollectorOptions{
			Path:    utils.ExpandPath(report),
			BaseDir: utils.ExpandPath(out),
			RunID:   runID,
		}),
		logger:          logger,
		runID:           runID,
		strategy:        strategy,
		output:          utils.ExpandPath(out),
		workers:         workers,
		force:           opts.Force || cfg.Output.Force,
		progress:        opts.Progress,
		strategyFactory: opts.StrategyFactory,
		policyFactory:   opts.PolicyFactory,
		active:          make(map[*scheduler.Scheduler]struct{}),
	}
	if o.strategyFactory == nil {
		o.strategyFactory = deps.New
	}
	if o.policyFactory == nil {
		o.policyFactory = func(force bool) scheduler.OverwriteChecker {
			return pathguard.NewOverwritePolicy(force, logger)
		}
	}
	return o, nil
}

// RunID returns the identifier shared by every log line of this run
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Stop stops starting new transfers and new sources. Running transfers finish on their own.
func (o *Orchestrator) Stop() {
	if !o.stopped.CompareAndSwap(false, true) {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for s := range o.active {
		s.Stop()
	}
}

// Run downloads every URL in order. A URL that fails does not prevent the
// others; the returned error reports how many failed.
func (o *Orchestrator) Run(ctx context.Context, urls []string) error {
	sources := make([]Source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, o.newSource(u, domain.StrategyAuto, "", o.force))
	}
	return o.runSources(ctx, sources, 1, true)
}

// newSource applies the orchestrator defaults to a source
func (o *Orchestrator) newSource(url string, strategy domain.Strategy, out string, force bool) Source {
	if strategy == domain.StrategyAuto || strategy == "" {
		strategy = o.strategy
	}
	return Source{URL: url, Strategy: strategy, Output: out, Force: force}
}

// RunSource runs the whole pipeline for one URL: parse, select, build, schedule
func (o *Orchestrator) RunSource(ctx context.Context, src Source) (*scheduler.Summary, error) {
	logger := o.logger.WithURL(src.URL)

	ref, err := reference.Parse(src.URL)
	if err != nil {
		return nil, err
	}

	root := src.Output
	if root == "" {
		root = o.output
	}
	if root == "" {
		root = reference.DefaultOutputDir(ref)
	}
	guard, err := pathguard.New(utils.ExpandPath(root))
	if err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}

	requested := src.Strategy
	if requested == "" {
		requested = domain.StrategyAuto
	}

	gitOK, gitReason := false, ""
	if requested == domain.StrategyAuto || requested == domain.StrategyGit {
		gitOK, gitReason = o.deps.Git.IsAvailable(ctx)
	}

	count := 0
	if NeedsCount(requested, gitOK, ref.Kind) {
		count, err = o.count(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	chosen := SelectStrategy(SelectionInput{
		Requested:    requested,
		GitAvailable: gitOK,
		Kind:         ref.Kind,
		Count:        count,
	})
	if err := ValidateAvailability(chosen, gitOK, gitReason); err != nil {
		return nil, err
	}

	logger = logger.WithStrategy(string(chosen))
	logger.Info().
		Str("reference", ref.String()).
		Str("kind", ref.Kind.String()).
		Str("output", guard.Root()).
		Int("count", count).
		Bool("git_available", gitOK).
		Msg("Selected strategy")

	strategy, err := o.strategyFactory(chosen, guard)
	if err != nil {
		return nil, err
	}

	var archiveBar *utils.BarSink
	if setter, ok := strategy.(progressSetter); ok && o.progress != nil {
		archiveBar = utils.NewBarSink(o.progress, 1, -1)
		setter.SetProgress(archiveBar)
	}
	plan, err := o.builder.Build(ctx, ref, chosen, strategy, guard.Root())
	if archiveBar != nil {
		_ = archiveBar.Close()
	}
	if err != nil {
		return nil, err
	}
	for _, w := range plan.Warnings {
		logger.Warn().Str("path", w.Path).Msg(w.Message)
	}

	var sink domain.ProgressSink = domain.NopProgress{}
	var bar *utils.BarSink
	if o.progress != nil && len(plan.Tasks) > 0 {
		bar = utils.NewBarSink(o.progress, len(plan.Tasks), plannedBytes(plan))
		sink = bar
	}

	sched := scheduler.New(scheduler.Options{
		Workers:  o.workers,
		RunID:    o.runID,
		Guard:    guard,
		Policy:   o.policyFactory(src.Force),
		Limits:   o.limits,
		MaxWait:  o.config.RateLimit.MaxWait,
		Progress: sink,
		Logger:   logger,
	})
	o.track(sched)
	defer o.untrack(sched)

	summary := sched.Run(ctx, plan, strategy)
	if bar != nil {
		_ = bar.Close()
	}

	summary.Log(logger)
	o.warnQuota(logger)

	return summary, summary.Err()
}

// count lists the tree once to size the request, showing a spinner meanwhile
func (o *Orchestrator) count(ctx context.Context, ref domain.RepositoryReference) (int, error) {
	if o.progress == nil {
		return o.builder.Count(ctx, ref)
	}
	spinner := utils.NewProgressBar(o.progress, -1, utils.DescCounting)
	defer func() {
		_ = spinner.Finish()
	}()
	return o.builder.Count(ctx, ref)
}

func (o *Orchestrator) track(s *scheduler.Scheduler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[s] = struct{}{}
	if o.stopped.Load() {
		s.Stop()
	}
}

func (o *Orchestrator) untrack(s *scheduler.Scheduler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, s)
}

// warnQuota logs once the remaining API quota gets low
func (o *Orchestrator) warnQuota(logger *utils.Logger) {
	snap, ok := o.limits.Snapshot()
	if !ok || !ratelimit.ShouldWarn(snap) {
		return
	}
	logger.Warn().
		Int64("remaining", snap.Remaining).
		Int64("limit", snap.Limit).
		Time("reset", snap.Reset).
		Msg("GitHub API quota is running low; pass --token or set GITHUB_TOKEN for a higher limit")
}

func plannedBytes(plan *domain.Plan) int64 {
	var total int64
	for _, t := range plan.Tasks {
		if !t.SizeKnown() {
			return -1
		}
		total += t.ExpectedSize
	}
	return total
}

// RunManifest executes all sources defined in the manifest
func (o *Orchestrator) RunManifest(ctx context.Context, m *manifest.Config) error {
	sources := make([]Source, 0, len(m.Sources))
	for _, src := range m.Sources {
		derived := ""
		if ref, err := reference.Parse(src.URL); err == nil {
			derived = reference.DefaultOutputDir(ref)
		}
		out := m.OutputFor(src, derived)
		if out == derived && o.output != "" {
			out = ""
		}
		sources = append(sources, o.newSource(src.URL, m.StrategyFor(src), out, m.ForceFor(src, o.force)))
	}

	o.logger.Info().
		Int("sources", len(sources)).
		Bool("continue_on_error", m.Options.ContinueOnError).
		Int("parallel", m.Options.Parallel).
		Msg("Starting manifest execution")

	return o.runSources(ctx, sources, m.Options.Parallel, m.Options.ContinueOnError)
}

// runSources runs sources on up to parallel workers and writes the report.
// Without continueOnError the first failure stops sources that have not started.
func (o *Orchestrator) runSources(ctx context.Context, sources []Source, parallel int, continueOnError bool) error {
	startTime := time.Now()
	total := len(sources)
	if total == 0 {
		return nil
	}
	if parallel < 1 {
		parallel = 1
	}

	results := make([]SourceResult, total)
	var halt atomic.Pointer[error]

	type indexed struct {
		source Source
		index  int
	}
	items := make([]indexed, total)
	for i, s := range sources {
		items[i] = indexed{source: s, index: i}
	}

	_ = utils.ParallelForEach(ctx, items, parallel, func(ctx context.Context, item indexed) error {
		src := item.source
		if stop := halt.Load(); stop != nil {
			results[item.index] = SourceResult{Source: src, Error: *stop}
			return nil
		}
		if o.stopped.Load() {
			results[item.index] = SourceResult{Source: src, Error: domain.ErrNotStarted}
			return nil
		}

		o.logger.Info().
			Int("source_idx", item.index).
			Int("total", total).
			Str("source_url", src.URL).
			Str("strategy", string(src.Strategy)).
			Msg("Processing source")

		start := time.Now()
		summary, err := o.RunSource(ctx, src)
		results[item.index] = SourceResult{Source: src, Summary: summary, Error: err, Duration: time.Since(start)}

		if summary != nil {
			o.collector.Add(src.URL, summary.Strategy, summary.Result(), summary.Warnings, summary.Outcomes)
		} else {
			o.collector.AddFailure(src.URL, src.Strategy, err)
		}

		if err == nil {
			return nil
		}
		o.logger.Error().
			Err(err).
			Int("source_idx", item.index).
			Str("source_url", src.URL).
			Dur("duration", time.Since(start)).
			Msg("Source failed")

		var parseErr *domain.ParseError
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			// every remaining source would hit the same wall
			halt.CompareAndSwap(nil, &err)
		case !continueOnError && !errors.As(err, &parseErr):
			stop := fmt.Errorf("stopped after %s failed: %w", src.URL, err)
			halt.CompareAndSwap(nil, &stop)
		case !continueOnError:
			halt.CompareAndSwap(nil, &err)
		}
		return nil
	})

	if err := o.collector.Flush(); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to write report")
	}

	errs := make([]error, total)
	parseFailed := 0
	for i := range results {
		r := results[i]
		if r.Error == nil && r.Summary == nil {
			// never reached: cancelled before the worker picked it up
			r.Error = ctx.Err()
			if r.Error == nil {
				r.Error = domain.ErrNotStarted
			}
		}
		errs[i] = r.Error
		var parseErr *domain.ParseError
		if errors.As(r.Error, &parseErr) {
			parseFailed++
		}
	}
	failures := utils.CollectErrors(errs)
	failed := len(failures)
	firstErr := utils.FirstError(failures)

	o.logger.Info().
		Dur("total_duration", time.Since(startTime)).
		Int("total", total).
		Int("success", total-failed).
		Int("failed", failed).
		Msg("Run completed")

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed == 0 {
		return nil
	}
	if total == 1 {
		return firstErr
	}
	if parseFailed == total {
		return fmt.Errorf("none of the %d URL(s) could be parsed: %w", total, firstErr)
	}
	return fmt.Errorf("%d of %d source(s) failed: %w", failed, total, firstErr)
}

// Close releases all resources held by the orchestrator
func (o *Orchestrator) Close() error {
	if o.ownsDeps && o.deps != nil {
		return o.deps.Close()
	}
	return nil
}
