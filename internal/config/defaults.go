package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values
const (
	// Concurrency defaults
	DefaultWorkers    = 4
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3

	// Cache defaults
	DefaultCacheEnabled = true
	DefaultCacheTTL     = time.Hour

	DefaultStrategy = "auto"

	// Rate limit defaults
	DefaultRateLimitMaxWait = 60 * time.Second

	// Git defaults
	DefaultGitBinary     = "git"
	DefaultGitMinVersion = "2.25.0"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "pretty"
)

// ConfigDir returns the config directory path
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ghfetch"
	}
	return filepath.Join(home, ".ghfetch")
}

// CacheDir returns the cache directory path, honouring XDG_CACHE_HOME
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ghfetch")
	}
	return filepath.Join(ConfigDir(), "cache")
}

// ConfigFilePath returns the config file path
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Concurrency: ConcurrencyConfig{
			Workers:    DefaultWorkers,
			Timeout:    DefaultTimeout,
			MaxRetries: DefaultMaxRetries,
		},
		Cache: CacheConfig{
			Enabled:   DefaultCacheEnabled,
			TTL:       DefaultCacheTTL,
			Directory: CacheDir(),
		},
		Strategy: DefaultStrategy,
		RateLimit: RateLimitConfig{
			MaxWait: DefaultRateLimitMaxWait,
		},
		Git: GitConfig{
			Binary:     DefaultGitBinary,
			MinVersion: DefaultGitMinVersion,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
