// Package strategies implements the retrieval mechanisms (api, git, zip)
// behind a single interface the scheduler drives.
package strategies

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/quantmind-br/ghfetch/internal/archive"
	"github.com/quantmind-br/ghfetch/internal/cache"
	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/fetcher"
	"github.com/quantmind-br/ghfetch/internal/git"
	"github.com/quantmind-br/ghfetch/internal/github"
	"github.com/quantmind-br/ghfetch/internal/output"
	"github.com/quantmind-br/ghfetch/internal/pathguard"
	"github.com/quantmind-br/ghfetch/internal/ratelimit"
	"github.com/quantmind-br/ghfetch/internal/resume"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// Strategy lists the entries it can deliver for a reference and moves one
// task's bytes to a guarded destination
type Strategy interface {
	// Name returns the strategy name
	Name() domain.Strategy
	domain.EntryLister
	domain.Transferer
}

// Dependencies contains shared dependencies for all strategies
type Dependencies struct {
	Cache   domain.ResponseCache
	HTTP    *fetcher.Client
	GitHub  *github.Client
	Git     *git.Adapter
	Archive *archive.Adapter
	Logger  *utils.Logger
}

// DependencyOptions contains options for creating dependencies
type DependencyOptions struct {
	Timeout          time.Duration
	MaxRetries       int
	EnableCache      bool
	CacheDir         string // badger store; empty uses the default location
	CacheTTL         time.Duration
	InMemoryCache    bool
	StagingDir       string // sparse checkouts and archives
	Token            string
	UserAgent        string
	MaxRateLimitWait time.Duration
	RateLimit        *ratelimit.State
	GitBinary        string
	GitMinVersion    string
	GitClient        git.Client
	Transport        http.RoundTripper
	APIBaseURL       string
	RawBaseURL       string
	CodeloadBaseURL  string
	GitRemoteBase    string
	Logger           *utils.Logger
}

// NewDependencies creates new dependencies for strategies
func NewDependencies(opts DependencyOptions) (*Dependencies, error) {
	logger := utils.OrNop(opts.Logger)

	var store domain.ResponseCache = cache.Disabled{}
	if opts.EnableCache {
		badgerCache, err := cache.NewBadgerCache(cache.Options{
			Directory:  opts.CacheDir,
			InMemory:   opts.InMemoryCache,
			DefaultTTL: opts.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		store = badgerCache
	}

	httpClient := fetcher.NewClient(fetcher.ClientOptions{
		Timeout:          opts.Timeout,
		MaxRetries:       opts.MaxRetries,
		Token:            opts.Token,
		UserAgent:        opts.UserAgent,
		Cache:            store,
		RateLimit:        opts.RateLimit,
		MaxRateLimitWait: opts.MaxRateLimitWait,
		Transport:        opts.Transport,
		Logger:           logger,
	})

	gh := github.NewClient(github.Options{
		HTTP:       httpClient,
		APIBaseURL: opts.APIBaseURL,
		RawBaseURL: opts.RawBaseURL,
		Logger:     logger,
	})

	gitAdapter, err := git.NewAdapter(git.Options{
		Client:     gitClient(opts),
		CacheDir:   opts.StagingDir,
		Token:      opts.Token,
		MinVersion: opts.GitMinVersion,
		RemoteBase: opts.GitRemoteBase,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	archiveAdapter := archive.NewAdapter(archive.Options{
		Downloader: resume.NewManager(resume.Options{
			Fetcher: gh,
			Cache:   store,
			Retrier: httpClient.Retrier(),
			Logger:  logger,
		}),
		CacheDir:        opts.StagingDir,
		CodeloadBaseURL: opts.CodeloadBaseURL,
		Logger:          logger,
	})

	return &Dependencies{
		Cache:   store,
		HTTP:    httpClient,
		GitHub:  gh,
		Git:     gitAdapter,
		Archive: archiveAdapter,
		Logger:  logger,
	}, nil
}

func gitClient(opts DependencyOptions) git.Client {
	if opts.GitClient != nil {
		return opts.GitClient
	}
	return git.NewClient(opts.GitBinary)
}

// GitAvailable reports whether the sparse checkout strategy can run on this host
func (d *Dependencies) GitAvailable(ctx context.Context) bool {
	ok, _ := d.Git.IsAvailable(ctx)
	return ok
}

// New creates the named strategy writing under guard
func (d *Dependencies) New(name domain.Strategy, guard *pathguard.Guard) (Strategy, error) {
	writer := output.NewWriter(output.WriterOptions{Guard: guard, Logger: d.Logger})

	switch name {
	case domain.StrategyAPI:
		return NewAPIStrategy(d.GitHub, resume.NewManager(resume.Options{
			Fetcher: d.GitHub,
			Cache:   d.Cache,
			Guard:   guard,
			Retrier: d.HTTP.Retrier(),
			Logger:  d.Logger,
		}), d.Logger), nil
	case domain.StrategyGit:
		return NewGitStrategy(d.Git, writer, d.Logger), nil
	case domain.StrategyZip:
		return NewZipStrategy(d.Archive, writer, d.Logger), nil
	default:
		return nil, domain.NewValidationError("strategy", fmt.Sprintf("%q is not an executable strategy", name))
	}
}

// Close releases all resources
func (d *Dependencies) Close() error {
	if d.HTTP != nil {
		d.HTTP.Close()
	}
	if d.Cache != nil {
		return d.Cache.Close()
	}
	return nil
}
