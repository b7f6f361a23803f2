package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader_Load_FileNotFound(t *testing.T) {
	loader := NewLoader()

	cfg, err := loader.Load("/nonexistent/path/manifest.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoader_Load_ValidYAML(t *testing.T) {
	path := writeManifest(t, "sources.yaml", `
sources:
  - url: https://github.com/org/repo/tree/main/docs
    output: ./vendor/docs
  - url: " https://github.com/org/other/blob/v1.2.0/LICENSE "
    strategy: api
    force: true
options:
  output: ./downloads
  continue_on_error: true
`)

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "https://github.com/org/repo/tree/main/docs", cfg.Sources[0].URL)
	assert.Equal(t, "./vendor/docs", cfg.Sources[0].Output)
	assert.Equal(t, "https://github.com/org/other/blob/v1.2.0/LICENSE", cfg.Sources[1].URL)
	assert.Equal(t, "api", cfg.Sources[1].Strategy)
	require.NotNil(t, cfg.Sources[1].Force)
	assert.True(t, *cfg.Sources[1].Force)
	assert.True(t, cfg.Options.ContinueOnError)
	assert.Equal(t, "./downloads", cfg.Options.Output)
	assert.Equal(t, "auto", cfg.Options.Strategy)
	assert.Equal(t, 1, cfg.Options.Parallel)
}

func TestLoader_Load_ValidJSON(t *testing.T) {
	path := writeManifest(t, "sources.json", `{
		"sources": [
			{"url": "https://github.com/org/repo", "strategy": "git"},
			{"url": "https://github.com/org/repo2"}
		],
		"options": {"strategy": "zip", "parallel": 3}
	}`)

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Sources, 2)
	assert.Equal(t, "zip", cfg.Options.Strategy)
	assert.Equal(t, 3, cfg.Options.Parallel)
}

func TestLoader_Load_ValidTOML(t *testing.T) {
	path := writeManifest(t, "sources.toml", `
[options]
continue_on_error = true
output = "/tmp/out"

[[sources]]
url = "https://github.com/org/repo/tree/main/docs"
strategy = "api"

[[sources]]
url = "https://github.com/org/repo/blob/main/README.md"
force = false
`)

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "api", cfg.Sources[0].Strategy)
	require.NotNil(t, cfg.Sources[1].Force)
	assert.False(t, *cfg.Sources[1].Force)
	assert.Equal(t, "/tmp/out", cfg.Options.Output)
	assert.True(t, cfg.Options.ContinueOnError)
}

// TestLoader_Load_UnknownKey tests that every format rejects keys it does not know
func TestLoader_Load_UnknownKey(t *testing.T) {
	tests := []struct {
		file    string
		content string
	}{
		{"sources.toml", "[[sources]]\nurl = \"https://github.com/org/repo\"\ninclude = [\"docs/**\"]\n"},
		{"sources.yaml", "sources:\n  - url: https://github.com/org/repo\n    include: [\"docs/**\"]\n"},
		{"sources.json", `{"sources": [{"url": "https://github.com/org/repo", "include": ["docs/**"]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := NewLoader().Load(writeManifest(t, tt.file, tt.content))
			assert.ErrorIs(t, err, ErrInvalidFormat)
			assert.Contains(t, err.Error(), "include")
		})
	}
}

func TestLoader_Load_EmptyYAML(t *testing.T) {
	_, err := NewLoader().Load(writeManifest(t, "empty.yaml", ""))
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestLoader_Load_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		expected error
	}{
		{"invalid yaml", "m.yaml", "sources:\n  - url: [", ErrInvalidFormat},
		{"invalid json", "m.json", `{"sources": [`, ErrInvalidFormat},
		{"invalid toml", "m.toml", "sources = [", ErrInvalidFormat},
		{"unsupported extension", "m.txt", "sources: []", ErrUnsupportedExt},
		{"no sources", "m.yaml", "sources: []", ErrNoSources},
		{"empty url", "m.yaml", "sources:\n  - url: \"  \"", ErrEmptyURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewLoader().Load(writeManifest(t, tt.file, tt.content))
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestLoader_Load_UnknownStrategy(t *testing.T) {
	path := writeManifest(t, "m.yml", "sources:\n  - url: https://github.com/o/r\n    strategy: crawler\n")

	_, err := NewLoader().Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source 0")
	assert.Contains(t, err.Error(), "crawler")
}

func TestLoadFromBytes_CaseInsensitiveExt(t *testing.T) {
	for _, ext := range []string{".YAML", ".Yml", ".JSON", ".TOML"} {
		t.Run(ext, func(t *testing.T) {
			var data string
			switch ext {
			case ".JSON":
				data = `{"sources": [{"url": "https://github.com/o/r"}]}`
			case ".TOML":
				data = "[[sources]]\nurl = \"https://github.com/o/r\"\n"
			default:
				data = "sources:\n  - url: https://github.com/o/r\n"
			}
			cfg, err := NewLoader().LoadFromBytes([]byte(data), ext)
			require.NoError(t, err)
			assert.Len(t, cfg.Sources, 1)
		})
	}
}
