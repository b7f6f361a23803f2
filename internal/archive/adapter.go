// Package archive retrieves a repository as a zip from codeload and stages the
// requested paths on disk.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mholt/archives"
	"golang.org/x/sync/singleflight"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/pathguard"
	"github.com/quantmind-br/ghfetch/internal/resume"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// DefaultCodeloadBaseURL serves repository archives
const DefaultCodeloadBaseURL = "https://codeload.github.com"

// completeMarker is written once a staging directory is fully extracted
const completeMarker = ".ghfetch-complete"

var commitPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Downloader moves the archive bytes to disk
type Downloader interface {
	Transfer(ctx context.Context, req resume.Request, sink domain.ProgressSink) (domain.TransferResult, error)
}

// Options configures an Adapter
type Options struct {
	Downloader      Downloader
	CacheDir        string // archives land in <CacheDir>/downloads, staged files in <CacheDir>/archives
	CodeloadBaseURL string
	Logger          *utils.Logger
}

// Adapter downloads and extracts repository archives.
// Each staging directory is prepared at most once per Adapter; concurrent
// callers for the same ref share that work.
type Adapter struct {
	downloader Downloader
	cacheDir   string
	baseURL    string
	logger     *utils.Logger

	group  singleflight.Group
	mu     sync.Mutex
	staged map[string]bool
}

// NewAdapter creates an Adapter
func NewAdapter(opts Options) *Adapter {
	if opts.CodeloadBaseURL == "" {
		opts.CodeloadBaseURL = DefaultCodeloadBaseURL
	}
	return &Adapter{
		downloader: opts.Downloader,
		cacheDir:   opts.CacheDir,
		baseURL:    strings.TrimRight(opts.CodeloadBaseURL, "/"),
		logger:     utils.OrNop(opts.Logger).WithComponent("archive"),
		staged:     make(map[string]bool),
	}
}

// ArchiveURL returns the zip URL for the reference's ref
func (a *Adapter) ArchiveURL(ref domain.RepositoryReference) string {
	return fmt.Sprintf("%s/%s/%s/zip/%s", a.baseURL, ref.Owner, ref.Repo, ref.Ref)
}

func refHash(ref domain.RepositoryReference) string {
	sum := sha256.Sum256([]byte(ref.Owner + "/" + ref.Repo + "@" + ref.Ref))
	return hex.EncodeToString(sum[:8])
}

// ArchivePath returns where the downloaded zip is kept
func (a *Adapter) ArchivePath(ref domain.RepositoryReference) string {
	return filepath.Join(a.cacheDir, "downloads", fmt.Sprintf("%s-%s-%s.zip", ref.Owner, ref.Repo, refHash(ref)))
}

// StagingDir returns where extracted files are placed
func (a *Adapter) StagingDir(ref domain.RepositoryReference) string {
	return filepath.Join(a.cacheDir, "archives", refHash(ref))
}

// DownloadAndExtract fetches the archive for the reference and lists the
// entries under the reference path. The whole archive is extracted once and
// every caller filters its own path. Archives of a full commit id are
// immutable and reused across runs; branch and tag archives are fetched again
// by each new Adapter.
func (a *Adapter) DownloadAndExtract(ctx context.Context, ref domain.RepositoryReference, sink domain.ProgressSink) (*domain.TreeListing, error) {
	stageDir := a.StagingDir(ref)

	_, err, _ := a.group.Do(stageDir, func() (interface{}, error) {
		return nil, a.stage(ctx, ref, stageDir, sink)
	})
	if err != nil {
		return nil, err
	}
	return a.List(ref, stageDir)
}

func (a *Adapter) stage(ctx context.Context, ref domain.RepositoryReference, stageDir string, sink domain.ProgressSink) error {
	a.mu.Lock()
	done := a.staged[stageDir]
	a.mu.Unlock()
	if done {
		a.logger.Debug().Str("dir", stageDir).Msg("Archive already staged")
		return nil
	}

	archivePath := a.ArchivePath(ref)
	immutable := commitPattern.MatchString(ref.Ref)

	if !(immutable && utils.FileExists(archivePath)) {
		a.logger.Info().Str("url", a.ArchiveURL(ref)).Msg("Downloading archive")
		_, err := a.downloader.Transfer(ctx, resume.Request{
			TaskID:       "archive:" + ref.FullName(),
			URL:          a.ArchiveURL(ref),
			Dest:         archivePath,
			ExpectedSize: -1,
		}, sink)
		if err != nil {
			return fmt.Errorf("download archive: %w", err)
		}
		_ = os.RemoveAll(stageDir)
	} else {
		a.logger.Debug().Str("path", archivePath).Msg("Reusing cached archive")
	}

	if !utils.FileExists(filepath.Join(stageDir, completeMarker)) {
		if err := a.Extract(ctx, archivePath, stageDir); err != nil {
			_ = os.RemoveAll(stageDir)
			return err
		}
	}

	a.mu.Lock()
	a.staged[stageDir] = true
	a.mu.Unlock()
	return nil
}

// Extract unpacks a repository zip into dest, dropping the top-level
// "<repo>-<ref>/" directory. Symlinks are not materialized. Entries that would
// land outside dest are refused.
func (a *Adapter) Extract(ctx context.Context, archivePath, dest string) error {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	guard, err := pathguard.New(dest)
	if err != nil {
		return err
	}

	links := make(map[string]string)

	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, ok := StripTopLevel(name)
		if !ok {
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info for %s: %w", name, err)
		}

		if info.Mode()&fs.ModeSymlink != 0 {
			links[rel] = name
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		target, err := guard.Resolve(rel)
		if err != nil {
			return err
		}
		return writeRegularFile(fsys, name, target, info)
	})
	if err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(archivePath), err)
	}

	if err := writeLinkIndex(dest, links); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, completeMarker), nil, 0644)
}

// StripTopLevel removes the archive's leading directory from an entry name
func StripTopLevel(name string) (string, bool) {
	name = strings.TrimPrefix(path.Clean(name), "./")
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return "", false
	}
	rest := name[i+1:]
	if rest == "" {
		return "", false
	}
	return rest, true
}

func writeRegularFile(fsys fs.FS, name, target string, info fs.FileInfo) error {
	src, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", name, err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", name, err)
	}

	perm := info.Mode().Perm() | 0600
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create staged file %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy file %s: %w", name, err)
	}
	return dst.Close()
}
