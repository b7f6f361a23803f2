package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quantmind-br/ghfetch/internal/config"
	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/mocks"
	"github.com/quantmind-br/ghfetch/internal/strategies"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// writeConfig points the CLI at an isolated home, cache and config file
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")

	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	stderr = &out
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		stderr = os.Stderr
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	assert.Equal(t, "ghfetch [url...]", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"output", "o", ""},
		{"parallel", "p", "4"},
		{"strategy", "", "auto"},
		{"force", "f", "false"},
		{"clear-cache", "", "false"},
		{"manifest", "m", ""},
		{"report", "", ""},
		{"timeout", "", "30s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := rootCmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
			assert.Equal(t, tt.defValue, flag.DefValue)
		})
	}

	for _, name := range []string{"config", "verbose", "token", "no-cache"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"version", "doctor", "cache", "config"})
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ghfetch dev")
}

func TestRun_NoArgsShowsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
}

func TestRun_InvalidURL(t *testing.T) {
	cfgPath := writeConfig(t, "logging:\n  level: error\n")

	_, err := execute(t, "--config", cfgPath, "https://example.com/not/github")
	require.Error(t, err)
	var perr *domain.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestRun_MissingManifest(t *testing.T) {
	cfgPath := writeConfig(t, "")

	_, err := execute(t, "--config", cfgPath, "--manifest", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load manifest")
}

func TestConfigShow(t *testing.T) {
	cfgPath := writeConfig(t, "auth:\n  token: ghp_secret\nstrategy: zip\n")

	out, err := execute(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "strategy: zip")
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "ghp_secret")
}

func TestCacheCommands(t *testing.T) {
	cfgPath := writeConfig(t, "")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	out, err := execute(t, "--config", cfgPath, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Staged:    0 files, 0 bytes")

	staged := filepath.Join(cfg.StagingDir(), "o", "r")
	require.NoError(t, os.MkdirAll(staged, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "a.md"), []byte("alpha\n"), 0644))

	out, err = execute(t, "--config", cfgPath, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:   0")
	assert.Contains(t, out, cfg.Cache.Directory)
	assert.Contains(t, out, "Staged:    1 files, 6 bytes")

	out, err = execute(t, "--config", cfgPath, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")
	assert.NoDirExists(t, cfg.StagingDir())
}

type countingStopper struct {
	stops atomic.Int32
}

func (s *countingStopper) Stop() { s.stops.Add(1) }

func TestHandleSignals(t *testing.T) {
	var captured chan<- os.Signal
	orig := notifySignal
	notifySignal = func(c chan<- os.Signal, sig ...os.Signal) { captured = c }
	t.Cleanup(func() { notifySignal = orig })

	s := &countingStopper{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := handleSignals(s, cancel, utils.NewNopLogger())
	defer stop()
	require.NotNil(t, captured)

	captured <- os.Interrupt
	assert.Eventually(t, func() bool { return s.stops.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.NoError(t, ctx.Err())

	captured <- os.Interrupt
	assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), s.stops.Load())
}

func TestRunDoctor(t *testing.T) {
	tests := []struct {
		name       string
		rateLimit  string
		gitVersion string
		gitErr     error
		probe      string
		passed     bool
		contains   []string
	}{
		{
			name:       "all good",
			rateLimit:  `{"resources":{"core":{"limit":5000,"remaining":4999,"used":1,"reset":1700000000}}}`,
			gitVersion: "git version 2.43.0\n",
			passed:     true,
			contains:   []string{"Git: OK (2.43.0)", "HEAD -> master", "OK (4999/5000 remaining)", "All critical checks passed!"},
		},
		{
			name:      "no git and exhausted quota",
			rateLimit: `{"resources":{"core":{"limit":60,"remaining":0,"used":60,"reset":1700000000}}}`,
			gitErr:    errors.New("executable file not found"),
			passed:    false,
			contains:  []string{"Git: UNAVAILABLE", "EXHAUSTED (0/60", "Some checks failed"},
		},
		{
			name:       "low quota",
			rateLimit:  `{"resources":{"core":{"limit":60,"remaining":3,"used":57,"reset":1700000000}}}`,
			gitVersion: "git version 2.20.1\n",
			passed:     true,
			contains:   []string{"older than 2.25.0", "LOW (3/60"},
		},
		{
			name:       "readable repository",
			rateLimit:  `{"resources":{"core":{"limit":5000,"remaining":4000,"used":1000,"reset":1700000000}}}`,
			gitVersion: "git version 2.43.0\n",
			probe:      "octo/demo",
			passed:     true,
			contains:   []string{"Repository: OK (octo/demo, private, default branch trunk)"},
		},
		{
			name:       "unreadable repository",
			rateLimit:  `{"resources":{"core":{"limit":5000,"remaining":4000,"used":1000,"reset":1700000000}}}`,
			gitVersion: "git version 2.43.0\n",
			probe:      "octo/missing",
			passed:     false,
			contains:   []string{"Repository: FAILED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch r.URL.Path {
				case "/rate_limit":
					_, _ = w.Write([]byte(tt.rateLimit))
				case "/repos/octo/demo":
					_, _ = w.Write([]byte(`{"full_name":"octo/demo","default_branch":"trunk","private":true}`))
				default:
					http.NotFound(w, r)
				}
			}))
			defer server.Close()

			gitClient := &mocks.MockGitClient{}
			if tt.gitErr != nil {
				gitClient.On("Run", mock.Anything, "", []string{"version"}).Return(nil, tt.gitErr)
			} else {
				gitClient.On("Run", mock.Anything, "", []string{"version"}).Return([]byte(tt.gitVersion), nil)
			}
			gitClient.On("ListRemote", mock.Anything, mock.Anything, mock.Anything).Return([]*plumbing.Reference{
				plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master")),
			}, nil)

			deps, err := strategies.NewDependencies(strategies.DependencyOptions{
				MaxRetries:    -1,
				GitClient:     gitClient,
				GitMinVersion: "2.25.0",
				APIBaseURL:    server.URL,
				StagingDir:    t.TempDir(),
			})
			require.NoError(t, err)
			defer deps.Close()

			cfg := config.Default()
			cfg.Cache.Directory = t.TempDir()

			var out bytes.Buffer
			passed := runDoctor(context.Background(), &out, cfg, deps, tt.probe)
			assert.Equal(t, tt.passed, passed)
			for _, want := range tt.contains {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		in    string
		owner string
		repo  string
		ok    bool
	}{
		{"octo/demo", "octo", "demo", true},
		{"/octo/demo/", "octo", "demo", true},
		{"octo", "", "", false},
		{"octo/", "", "", false},
		{"octo/demo/tree", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		owner, repo, ok := splitRepo(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.owner, owner, tt.in)
		assert.Equal(t, tt.repo, repo, tt.in)
	}
}

func TestCheckCacheDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, checkCacheDir(dir))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.False(t, checkCacheDir(file))
	assert.False(t, checkCacheDir(filepath.Join(dir, "missing")))
}
