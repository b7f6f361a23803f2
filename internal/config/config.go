package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// Config represents the application configuration
type Config struct {
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Strategy    string            `mapstructure:"strategy" yaml:"strategy"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit" yaml:"ratelimit"`
	Git         GitConfig         `mapstructure:"git" yaml:"git"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// Directory is the output root; empty derives it from each URL
	Directory string `mapstructure:"directory" yaml:"directory"`
	// Report is an optional JSON report of every file written
	Report string `mapstructure:"report" yaml:"report"`
	Force  bool   `mapstructure:"force" yaml:"force"`
}

// ConcurrencyConfig contains concurrency settings
type ConcurrencyConfig struct {
	Workers    int           `mapstructure:"workers" yaml:"workers"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Directory string        `mapstructure:"directory" yaml:"directory"`
}

// AuthConfig contains credentials
type AuthConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
}

// RateLimitConfig contains API quota settings
type RateLimitConfig struct {
	// MaxWait is the longest a run pauses for an exhausted quota before failing
	MaxWait time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// GitConfig contains git strategy settings
type GitConfig struct {
	Binary     string `mapstructure:"binary" yaml:"binary"`
	MinVersion string `mapstructure:"min_version" yaml:"min_version"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency.Workers < 1 {
		c.Concurrency.Workers = DefaultWorkers
	}
	if c.Concurrency.Timeout < time.Second {
		c.Concurrency.Timeout = DefaultTimeout
	}
	if c.Concurrency.MaxRetries < 0 {
		c.Concurrency.MaxRetries = 0
	}
	if c.Cache.TTL < time.Minute {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.Directory == "" {
		c.Cache.Directory = CacheDir()
	}
	c.Cache.Directory = utils.ExpandPath(c.Cache.Directory)
	if c.RateLimit.MaxWait < 0 {
		c.RateLimit.MaxWait = 0
	}
	if c.Git.Binary == "" {
		c.Git.Binary = DefaultGitBinary
	}
	if c.Git.MinVersion == "" {
		c.Git.MinVersion = DefaultGitMinVersion
	} else if _, err := goversion.NewVersion(c.Git.MinVersion); err != nil {
		return fmt.Errorf("invalid git.min_version: %w", err)
	}

	strategy, err := domain.ParseStrategy(c.Strategy)
	if err != nil {
		return err
	}
	c.Strategy = string(strategy)
	return nil
}

// ResolveToken picks the API token: the flag value, then GITHUB_TOKEN,
// then GH_TOKEN, then auth.token from the config
func (c *Config) ResolveToken(flag string) string {
	for _, candidate := range []string{flag, os.Getenv("GITHUB_TOKEN"), os.Getenv("GH_TOKEN"), c.Auth.Token} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// HTTPCacheDir is where the response store lives
func (c *Config) HTTPCacheDir() string {
	return filepath.Join(c.Cache.Directory, "http")
}

// StagingDir is where sparse checkouts and archives are kept between runs
func (c *Config) StagingDir() string {
	return filepath.Join(c.Cache.Directory, "staging")
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.Auth.Token != "" {
		out.Auth.Token = "<redacted>"
	}
	return &out
}
