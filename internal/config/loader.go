package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file, environment, and defaults.
// It uses the global viper instance so CLI flag bindings apply.
// An explicit configFile must exist; otherwise the default locations are optional.
func Load(configFile string) (*Config, error) {
	cfg, _, err := load(viper.GetViper(), configFile)
	return cfg, err
}

// LoadWithViper loads configuration into a fresh viper instance and returns it
func LoadWithViper(configFile string) (*Config, *viper.Viper, error) {
	return load(viper.New(), configFile)
}

func load(v *viper.Viper, configFile string) (*Config, *viper.Viper, error) {
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, nil, err
		}
	}

	// Environment variables (GHFETCH_*)
	v.SetEnvPrefix("GHFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	// Validate and apply defaults for invalid values
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("output.directory", "")
	v.SetDefault("output.report", "")
	v.SetDefault("output.force", false)

	v.SetDefault("concurrency.workers", DefaultWorkers)
	v.SetDefault("concurrency.timeout", DefaultTimeout)
	v.SetDefault("concurrency.max_retries", DefaultMaxRetries)

	v.SetDefault("cache.enabled", DefaultCacheEnabled)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.directory", CacheDir())

	v.SetDefault("strategy", DefaultStrategy)
	v.SetDefault("auth.token", "")
	v.SetDefault("ratelimit.max_wait", DefaultRateLimitMaxWait)

	v.SetDefault("git.binary", DefaultGitBinary)
	v.SetDefault("git.min_version", DefaultGitMinVersion)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0755)
}

// EnsureCacheDir creates the cache directory if it doesn't exist
func EnsureCacheDir() error {
	return os.MkdirAll(CacheDir(), 0755)
}
