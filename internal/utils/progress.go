package utils

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Standard progress bar descriptions
const (
	DescDownloading = "Downloading"
	DescExtracting  = "Extracting"
	DescCounting    = "Counting"
)

// NewProgressBar creates a consistently styled item-count bar on out.
// A negative total renders a spinner.
func NewProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
	}

	if total < 0 {
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		)
	} else {
		opts = append(opts,
			progressbar.OptionShowIts(),
		)
	}

	return progressbar.NewOptions(total, opts...)
}

// BarSink renders transfer progress as a single byte bar for the whole run.
// It implements domain.ProgressSink.
type BarSink struct {
	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	files    int
	finished int
	failed   int
}

// NewBarSink creates a sink for files transfers totalling totalBytes (-1 when unknown)
func NewBarSink(out io.Writer, files int, totalBytes int64) *BarSink {
	if totalBytes <= 0 {
		totalBytes = -1
	}
	bar := progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(describe(0, files)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
	)
	return &BarSink{bar: bar, files: files}
}

func describe(done, total int) string {
	return fmt.Sprintf("%s (%d/%d)", DescDownloading, done, total)
}

// Start is called when a transfer opens its stream
func (s *BarSink) Start(taskID string, total int64) {}

// Advance adds transferred bytes
func (s *BarSink) Advance(taskID string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.bar.Add64(n)
}

// Finish counts a completed transfer
func (s *BarSink) Finish(taskID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	if err != nil {
		s.failed++
	}
	s.bar.Describe(describe(s.finished, s.files))
}

// Counts returns finished and failed transfer counts
func (s *BarSink) Counts() (finished, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, s.failed
}

// Close completes the bar
func (s *BarSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bar.Finish()
}
