// Package output materializes files in the output root and records what a run wrote.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// tmpSuffix names the file a copy is written to before the final rename
const tmpSuffix = ".ghfetch-tmp"

// Verifier re-checks a destination right before it is written
type Verifier interface {
	Verify(dest string) error
}

// Writer copies staged files into the output root atomically
type Writer struct {
	guard  Verifier
	logger *utils.Logger
}

// WriterOptions contains options for the writer
type WriterOptions struct {
	Guard  Verifier
	Logger *utils.Logger
}

// NewWriter creates a new output writer
func NewWriter(opts WriterOptions) *Writer {
	return &Writer{
		guard:  opts.Guard,
		logger: utils.OrNop(opts.Logger).WithComponent("output"),
	}
}

// CopyStaged copies src onto dest through a temporary sibling and a rename, so
// dest either keeps its old content or holds the complete new file
func (w *Writer) CopyStaged(ctx context.Context, src, dest, taskID string, sink domain.ProgressSink) (int64, error) {
	if sink == nil {
		sink = domain.NopProgress{}
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open staged file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat staged file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("staged path %s is not a regular file", src)
	}

	tmp := dest + tmpSuffix
	if err := w.verify(tmp); err != nil {
		return 0, err
	}
	if err := utils.EnsureDir(dest); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0600)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	sink.Start(taskID, info.Size())
	n, copyErr := io.Copy(out, &contextReader{ctx: ctx, r: in, sink: sink, id: taskID})
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if copyErr == nil {
			copyErr = closeErr
		}
		return n, fmt.Errorf("%w: %v", domain.ErrWriteFailed, copyErr)
	}

	if n != info.Size() {
		_ = os.Remove(tmp)
		return n, &domain.TransferIntegrityError{Path: dest, Expected: info.Size(), Actual: n}
	}

	if err := w.verify(dest); err != nil {
		_ = os.Remove(tmp)
		return n, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	w.logger.Debug().Str("path", dest).Int64("bytes", n).Msg("Wrote file")
	return n, nil
}

func (w *Writer) verify(p string) error {
	if w.guard == nil {
		return nil
	}
	return w.guard.Verify(p)
}

// Stats returns the regular file count and total size under dir.
// A missing dir is empty.
func Stats(dir string) (int, int64, error) {
	var count int
	var size int64

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		size += info.Size()
		return nil
	})

	return count, size, err
}

// contextReader stops a copy when the context ends and reports progress
type contextReader struct {
	ctx  context.Context
	r    io.Reader
	sink domain.ProgressSink
	id   string
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.sink.Advance(c.id, int64(n))
	}
	return n, err
}
