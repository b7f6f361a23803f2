package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// TestConfig_Validate tests configuration validation
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		check   func(*testing.T, *Config)
		wantErr bool
	}{
		{
			name: "valid config",
			modify: func(c *Config) {
				c.Concurrency.Workers = 8
				c.Strategy = "git"
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 8, c.Concurrency.Workers)
				assert.Equal(t, "git", c.Strategy)
			},
		},
		{
			name: "workers below minimum defaults to 4",
			modify: func(c *Config) {
				c.Concurrency.Workers = 0
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultWorkers, c.Concurrency.Workers)
			},
		},
		{
			name: "timeout below minimum defaults to 30s",
			modify: func(c *Config) {
				c.Concurrency.Timeout = 10 * time.Millisecond
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultTimeout, c.Concurrency.Timeout)
			},
		},
		{
			name: "negative retries clamp to zero",
			modify: func(c *Config) {
				c.Concurrency.MaxRetries = -2
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 0, c.Concurrency.MaxRetries)
			},
		},
		{
			name: "cache ttl below minimum defaults to 1h",
			modify: func(c *Config) {
				c.Cache.TTL = time.Second
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultCacheTTL, c.Cache.TTL)
			},
		},
		{
			name: "empty strategy becomes auto",
			modify: func(c *Config) {
				c.Strategy = ""
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, string(domain.StrategyAuto), c.Strategy)
			},
		},
		{
			name: "strategy is normalized",
			modify: func(c *Config) {
				c.Strategy = " ZIP "
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "zip", c.Strategy)
			},
		},
		{
			name: "unknown strategy",
			modify: func(c *Config) {
				c.Strategy = "rsync"
			},
			wantErr: true,
		},
		{
			name: "invalid git min version",
			modify: func(c *Config) {
				c.Git.MinVersion = "not.a.version!"
			},
			wantErr: true,
		},
		{
			name: "empty git settings get defaults",
			modify: func(c *Config) {
				c.Git = GitConfig{}
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultGitBinary, c.Git.Binary)
				assert.Equal(t, DefaultGitMinVersion, c.Git.MinVersion)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// TestDefault tests the default configuration
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultWorkers, cfg.Concurrency.Workers)
	assert.Equal(t, DefaultTimeout, cfg.Concurrency.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.Concurrency.MaxRetries)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "auto", cfg.Strategy)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.MaxWait)
	assert.Equal(t, "git", cfg.Git.Binary)
	assert.Equal(t, "2.25.0", cfg.Git.MinVersion)
	assert.Empty(t, cfg.Output.Directory)
	assert.NoError(t, cfg.Validate())
}

// TestCacheDir tests the cache location with and without XDG_CACHE_HOME
func TestCacheDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	t.Setenv("XDG_CACHE_HOME", "")
	assert.Equal(t, filepath.Join(home, ".ghfetch", "cache"), CacheDir())

	xdg := filepath.Join(home, "xdg")
	t.Setenv("XDG_CACHE_HOME", xdg)
	assert.Equal(t, filepath.Join(xdg, "ghfetch"), CacheDir())

	cfg := Default()
	assert.Equal(t, filepath.Join(xdg, "ghfetch", "http"), cfg.HTTPCacheDir())
	assert.Equal(t, filepath.Join(xdg, "ghfetch", "staging"), cfg.StagingDir())
}

// TestConfigFilePath tests config file path
func TestConfigFilePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, ".ghfetch", "config.yaml"), ConfigFilePath())
}

// TestEnsureDirs tests creating the config and cache directories
func TestEnsureDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CACHE_HOME", "")

	require.NoError(t, EnsureConfigDir())
	require.NoError(t, EnsureCacheDir())

	for _, dir := range []string{ConfigDir(), CacheDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

// TestResolveToken tests token precedence
func TestResolveToken(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		github   string
		gh       string
		config   string
		expected string
	}{
		{"flag wins", "flag", "env1", "env2", "cfg", "flag"},
		{"GITHUB_TOKEN next", "", "env1", "env2", "cfg", "env1"},
		{"GH_TOKEN next", "", "", "env2", "cfg", "env2"},
		{"config last", "", "", "", "cfg", "cfg"},
		{"anonymous", "", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GITHUB_TOKEN", tt.github)
			t.Setenv("GH_TOKEN", tt.gh)
			cfg := Default()
			cfg.Auth.Token = tt.config

			assert.Equal(t, tt.expected, cfg.ResolveToken(tt.flag))
		})
	}
}

// TestRedacted tests that printed configs never carry the token
func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Auth.Token = "ghp_secret"

	red := cfg.Redacted()
	assert.Equal(t, "<redacted>", red.Auth.Token)
	assert.Equal(t, "ghp_secret", cfg.Auth.Token)

	cfg.Auth.Token = ""
	assert.Empty(t, cfg.Redacted().Auth.Token)
}

// TestLoad_LoadWithMissingConfig tests loading with no config file
func TestLoad_LoadWithMissingConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, _, err := LoadWithViper("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, cfg.Concurrency.Workers)
	assert.Equal(t, "auto", cfg.Strategy)
	assert.NotEmpty(t, cfg.Cache.Directory)
}

// TestLoad_WithInvalidConfigFile tests loading with invalid config file
func TestLoad_WithInvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("invalid: yaml: content: ["), 0644))
	t.Chdir(tmpDir)

	cfg, _, err := LoadWithViper("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

// TestLoad_ExplicitFileMissing tests that a named config file must exist
func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, _, err := LoadWithViper(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestLoad_WithValidConfigFile tests loading with valid config file
func TestLoad_WithValidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ghfetch.yaml")
	configContent := `
output:
  directory: "./test-output"
concurrency:
  workers: 12
  timeout: 45s
strategy: zip
ratelimit:
  max_wait: 5s
git:
  min_version: "2.30.0"
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, _, err := LoadWithViper(configPath)
	require.NoError(t, err)

	assert.Equal(t, "./test-output", cfg.Output.Directory)
	assert.Equal(t, 12, cfg.Concurrency.Workers)
	assert.Equal(t, 45*time.Second, cfg.Concurrency.Timeout)
	assert.Equal(t, "zip", cfg.Strategy)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.MaxWait)
	assert.Equal(t, "2.30.0", cfg.Git.MinVersion)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

// TestLoadWithEnvironmentVariable tests loading with environment variable
func TestLoadWithEnvironmentVariable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GHFETCH_OUTPUT_DIRECTORY", "./env-output")
	t.Setenv("GHFETCH_CONCURRENCY_WORKERS", "9")
	t.Chdir(t.TempDir())

	cfg, _, err := LoadWithViper("")
	require.NoError(t, err)

	assert.Equal(t, "./env-output", cfg.Output.Directory)
	assert.Equal(t, 9, cfg.Concurrency.Workers)
}

// TestLoad_InvalidStrategyFromEnv tests that validation errors surface from Load
func TestLoad_InvalidStrategyFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GHFETCH_STRATEGY", "ftp")
	t.Chdir(t.TempDir())

	_, _, err := LoadWithViper("")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}
