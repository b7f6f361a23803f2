package strategies

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/mocks"
	"github.com/quantmind-br/ghfetch/internal/output"
	"github.com/quantmind-br/ghfetch/internal/pathguard"
	"github.com/quantmind-br/ghfetch/internal/resume"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

var (
	fileRef = domain.RepositoryReference{Owner: "o", Repo: "r", Ref: "main", Path: "docs/a.md", Kind: domain.SingleFile}
	treeRef = domain.RepositoryReference{Owner: "o", Repo: "r", Ref: "main", Path: "docs", Kind: domain.Subtree}
)

type fakeTransfer struct {
	req    resume.Request
	result domain.TransferResult
	err    error
}

func (f *fakeTransfer) Transfer(ctx context.Context, req resume.Request, sink domain.ProgressSink) (domain.TransferResult, error) {
	f.req = req
	return f.result, f.err
}

type fakeCheckout struct {
	dir     string
	err     error
	listing *domain.TreeListing
	listed  string
}

func (f *fakeCheckout) Checkout(ctx context.Context, ref domain.RepositoryReference) (string, error) {
	return f.dir, f.err
}

func (f *fakeCheckout) List(ref domain.RepositoryReference, dir string) (*domain.TreeListing, error) {
	f.listed = dir
	return f.listing, nil
}

type fakeArchive struct {
	listing *domain.TreeListing
	sink    domain.ProgressSink
}

func (f *fakeArchive) DownloadAndExtract(ctx context.Context, ref domain.RepositoryReference, sink domain.ProgressSink) (*domain.TreeListing, error) {
	f.sink = sink
	return f.listing, nil
}

// TestAPIStrategy_List tests that single files use the contents API and trees the tree API
func TestAPIStrategy_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	meta := mocks.NewMockMetadataClient(ctrl)
	s := NewAPIStrategy(meta, &fakeTransfer{}, nil)

	assert.Equal(t, domain.StrategyAPI, s.Name())

	t.Run("single file", func(t *testing.T) {
		entry := &domain.EntryMetadata{Path: "docs/a.md", Type: domain.EntryFile, Size: 3}
		meta.EXPECT().GetEntry(gomock.Any(), fileRef).Return(entry, nil)

		listing, err := s.List(context.Background(), fileRef)
		require.NoError(t, err)
		require.Len(t, listing.Entries, 1)
		assert.Equal(t, "docs/a.md", listing.Entries[0].Path)
	})

	t.Run("subtree", func(t *testing.T) {
		want := &domain.TreeListing{Entries: []domain.EntryMetadata{{Path: "docs/a.md"}, {Path: "docs/b.md"}}}
		meta.EXPECT().ListTree(gomock.Any(), treeRef).Return(want, nil)

		listing, err := s.List(context.Background(), treeRef)
		require.NoError(t, err)
		assert.Same(t, want, listing)
	})

	t.Run("not found", func(t *testing.T) {
		meta.EXPECT().GetEntry(gomock.Any(), fileRef).Return(nil, &domain.NotFoundError{Resource: "o/r@main:docs/a.md"})

		_, err := s.List(context.Background(), fileRef)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// TestAPIStrategy_Transfer tests the request handed to the resume manager
func TestAPIStrategy_Transfer(t *testing.T) {
	ft := &fakeTransfer{result: domain.TransferResult{Bytes: 5, Resumed: true}}
	s := NewAPIStrategy(nil, ft, nil)

	task := domain.DownloadTask{
		ID:           "docs/a.md",
		RemotePath:   "docs/a.md",
		ExpectedSize: 5,
		Identity:     domain.ContentIdentity{SHA: "abc"},
		SourceURL:    "https://raw.githubusercontent.com/o/r/main/docs/a.md",
	}
	result, err := s.Transfer(context.Background(), task, "/out/a.md", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.TransferResult{Bytes: 5, Resumed: true}, result)
	assert.Equal(t, resume.Request{
		TaskID:       "docs/a.md",
		URL:          task.SourceURL,
		Dest:         "/out/a.md",
		ExpectedSize: 5,
		ExpectedSHA:  "abc",
	}, ft.req)

	t.Run("missing download url", func(t *testing.T) {
		_, err := s.Transfer(context.Background(), domain.DownloadTask{RemotePath: "x"}, "/out/x", nil)
		assert.Error(t, err)
	})
}

// TestGitStrategy tests listing a checkout and copying staged files
func TestGitStrategy(t *testing.T) {
	stage := t.TempDir()
	staged := filepath.Join(stage, "docs", "a.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(staged), 0755))
	require.NoError(t, os.WriteFile(staged, []byte("hello"), 0644))

	checkout := &fakeCheckout{
		dir:     stage,
		listing: &domain.TreeListing{Entries: []domain.EntryMetadata{{Path: "docs/a.md", StagedPath: staged}}},
	}
	out := t.TempDir()
	guard, err := pathguard.New(out)
	require.NoError(t, err)
	s := NewGitStrategy(checkout, output.NewWriter(output.WriterOptions{Guard: guard}), nil)

	assert.Equal(t, domain.StrategyGit, s.Name())

	listing, err := s.List(context.Background(), treeRef)
	require.NoError(t, err)
	assert.Equal(t, stage, checkout.listed)
	require.Len(t, listing.Entries, 1)

	dest := filepath.Join(out, "a.md")
	result, err := s.Transfer(context.Background(), domain.DownloadTask{ID: "a", RemotePath: "docs/a.md", StagedPath: staged}, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Bytes)
	assert.False(t, result.Resumed)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	t.Run("checkout failure", func(t *testing.T) {
		failing := NewGitStrategy(&fakeCheckout{err: errors.New("fetch failed")}, nil, nil)
		_, err := failing.List(context.Background(), treeRef)
		assert.EqualError(t, err, "fetch failed")
	})

	t.Run("task without staged copy", func(t *testing.T) {
		_, err := s.Transfer(context.Background(), domain.DownloadTask{RemotePath: "docs/b.md"}, filepath.Join(out, "b.md"), nil)
		assert.Error(t, err)
		assert.NoFileExists(t, filepath.Join(out, "b.md"))
	})
}

// TestZipStrategy tests that the archive download reports to the configured sink
func TestZipStrategy(t *testing.T) {
	archive := &fakeArchive{listing: &domain.TreeListing{}}
	s := NewZipStrategy(archive, nil, nil)
	assert.Equal(t, domain.StrategyZip, s.Name())

	_, err := s.List(context.Background(), treeRef)
	require.NoError(t, err)
	assert.Equal(t, domain.NopProgress{}, archive.sink)

	sink := utils.NewBarSink(&nopWriter{}, 1, -1)
	s.SetProgress(sink)
	_, err = s.List(context.Background(), treeRef)
	require.NoError(t, err)
	assert.Same(t, sink, archive.sink)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestDependencies(t *testing.T, serverURL string) (*Dependencies, *mocks.MockGitClient) {
	t.Helper()
	gitClient := &mocks.MockGitClient{}
	deps, err := NewDependencies(DependencyOptions{
		Timeout:         5 * time.Second,
		MaxRetries:      -1,
		EnableCache:     true,
		InMemoryCache:   true,
		StagingDir:      t.TempDir(),
		GitClient:       gitClient,
		APIBaseURL:      serverURL,
		RawBaseURL:      serverURL + "/raw",
		CodeloadBaseURL: serverURL + "/codeload",
	})
	require.NoError(t, err)
	t.Cleanup(func() { deps.Close() })
	return deps, gitClient
}

// TestNewDependencies tests creating dependencies
func TestNewDependencies(t *testing.T) {
	deps, gitClient := newTestDependencies(t, "http://127.0.0.1:1")

	assert.NotNil(t, deps.Cache)
	assert.NotNil(t, deps.HTTP)
	assert.NotNil(t, deps.GitHub)
	assert.NotNil(t, deps.Git)
	assert.NotNil(t, deps.Archive)
	assert.NotNil(t, deps.Logger)

	gitClient.On("Run", mock.Anything, "", []string{"version"}).Return([]byte("git version 2.43.0\n"), nil).Once()
	assert.True(t, deps.GitAvailable(context.Background()))
	assert.True(t, deps.GitAvailable(context.Background()))
	gitClient.AssertNumberOfCalls(t, "Run", 1)

	t.Run("invalid git minimum version", func(t *testing.T) {
		_, err := NewDependencies(DependencyOptions{GitMinVersion: "not-a-version"})
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

// TestDependencies_New tests building each strategy by name
func TestDependencies_New(t *testing.T) {
	deps, _ := newTestDependencies(t, "http://127.0.0.1:1")
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name     domain.Strategy
		expected interface{}
	}{
		{domain.StrategyAPI, &APIStrategy{}},
		{domain.StrategyGit, &GitStrategy{}},
		{domain.StrategyZip, &ZipStrategy{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			s, err := deps.New(tt.name, guard)
			require.NoError(t, err)
			assert.IsType(t, tt.expected, s)
			assert.Equal(t, tt.name, s.Name())
		})
	}

	_, err = deps.New(domain.StrategyAuto, guard)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// TestAPIStrategy_EndToEnd tests a download through the real client stack
func TestAPIStrategy_EndToEnd(t *testing.T) {
	content := []byte("# Title\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/raw/o/r/main/docs/a.md" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(content)
	}))
	defer server.Close()

	deps, _ := newTestDependencies(t, server.URL)
	out := t.TempDir()
	guard, err := pathguard.New(out)
	require.NoError(t, err)

	s, err := deps.New(domain.StrategyAPI, guard)
	require.NoError(t, err)

	dest, err := guard.Resolve("a.md")
	require.NoError(t, err)

	task := domain.DownloadTask{
		ID:           "docs/a.md",
		RemotePath:   "docs/a.md",
		ExpectedSize: int64(len(content)),
		Identity:     domain.ContentIdentity{SHA: utils.GitBlobSHABytes(content)},
		SourceURL:    deps.GitHub.RawURL(treeRef, "docs/a.md"),
	}
	result, err := s.Transfer(context.Background(), task, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), result.Bytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.NoFileExists(t, resume.PartPath(dest))
}
