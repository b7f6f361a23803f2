package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// Config represents the complete manifest configuration
type Config struct {
	Sources []Source `yaml:"sources" json:"sources" toml:"sources"`
	Options Options  `yaml:"options" json:"options" toml:"options"`
}

// Source is one URL to download
type Source struct {
	URL string `yaml:"url" json:"url" toml:"url"`
	// Strategy overrides Options.Strategy for this source
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty" toml:"strategy,omitempty"`
	// Output is the output root for this source; relative paths are taken from Options.Output
	Output string `yaml:"output,omitempty" json:"output,omitempty" toml:"output,omitempty"`
	Force  *bool  `yaml:"force,omitempty" json:"force,omitempty" toml:"force,omitempty"`
}

// Options represents global manifest options
type Options struct {
	ContinueOnError bool   `yaml:"continue_on_error" json:"continue_on_error" toml:"continue_on_error"`
	Output          string `yaml:"output,omitempty" json:"output,omitempty" toml:"output,omitempty"`
	Strategy        string `yaml:"strategy,omitempty" json:"strategy,omitempty" toml:"strategy,omitempty"`
	// Parallel is how many sources run at once; files within a source use the worker setting
	Parallel int `yaml:"parallel,omitempty" json:"parallel,omitempty" toml:"parallel,omitempty"`
}

// Validate validates the manifest configuration
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	for i, src := range c.Sources {
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("source %d: %w", i, ErrEmptyURL)
		}
		if _, err := domain.ParseStrategy(src.Strategy); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
	}
	if _, err := domain.ParseStrategy(c.Options.Strategy); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}

// StrategyFor returns the effective strategy of a source
func (c *Config) StrategyFor(src Source) domain.Strategy {
	name := src.Strategy
	if name == "" {
		name = c.Options.Strategy
	}
	s, err := domain.ParseStrategy(name)
	if err != nil {
		return domain.StrategyAuto
	}
	return s
}

// OutputFor returns the output root of a source. derived is the directory
// named after the URL, used when the source sets none.
func (c *Config) OutputFor(src Source, derived string) string {
	dir := src.Output
	if dir == "" {
		dir = derived
	}
	if c.Options.Output != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(c.Options.Output, dir)
	}
	return dir
}

// ForceFor reports whether existing files of a source may be replaced
func (c *Config) ForceFor(src Source, global bool) bool {
	if src.Force != nil {
		return *src.Force
	}
	return global
}

// DefaultOptions returns options with sensible defaults
func DefaultOptions() Options {
	return Options{
		ContinueOnError: false,
		Strategy:        string(domain.StrategyAuto),
		Parallel:        1,
	}
}
