package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// FileRecord is one task in the run report
type FileRecord struct {
	Path     string            `json:"path"`
	Remote   string            `json:"remote"`
	Status   domain.TaskStatus `json:"status"`
	Bytes    int64             `json:"bytes"`
	SHA      string            `json:"sha,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// SourceReport groups the files fetched for one URL
type SourceReport struct {
	URL      string       `json:"url"`
	Strategy string       `json:"strategy"`
	Result   string       `json:"result"`
	Error    string       `json:"error,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Files    []FileRecord `json:"files"`
}

// Report is the JSON document written at the end of a run
type Report struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	TotalFiles  int            `json:"total_files"`
	TotalBytes  int64          `json:"total_bytes"`
	Sources     []SourceReport `json:"sources"`
}

// Collector accumulates task outcomes for the optional run report
type Collector struct {
	mu      sync.RWMutex
	path    string
	baseDir string
	runID   string
	sources []SourceReport
}

// CollectorOptions contains options for the collector
type CollectorOptions struct {
	// Path of the report file; empty disables the collector
	Path    string
	BaseDir string
	RunID   string
}

// NewCollector creates a Collector
func NewCollector(opts CollectorOptions) *Collector {
	return &Collector{
		path:    opts.Path,
		baseDir: opts.BaseDir,
		runID:   opts.RunID,
	}
}

// IsEnabled reports whether a report will be written
func (c *Collector) IsEnabled() bool {
	return c.path != ""
}

// Add records the outcomes for one source
func (c *Collector) Add(url string, strategy domain.Strategy, result domain.RunResult, warnings []domain.Warning, outcomes []domain.TaskOutcome) {
	if !c.IsEnabled() {
		return
	}

	src := SourceReport{
		URL:      url,
		Strategy: string(strategy),
		Result:   string(result),
		Files:    make([]FileRecord, 0, len(outcomes)),
	}
	for _, w := range warnings {
		src.Warnings = append(src.Warnings, w.String())
	}
	for _, o := range outcomes {
		src.Files = append(src.Files, c.record(o))
	}
	sort.Slice(src.Files, func(i, j int) bool { return src.Files[i].Path < src.Files[j].Path })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, src)
}

// AddFailure records a source that failed before any file was scheduled
func (c *Collector) AddFailure(url string, strategy domain.Strategy, err error) {
	if !c.IsEnabled() || err == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, SourceReport{
		URL:      url,
		Strategy: string(strategy),
		Result:   string(domain.ResultFailure),
		Error:    err.Error(),
		Files:    []FileRecord{},
	})
}

func (c *Collector) record(o domain.TaskOutcome) FileRecord {
	rel := o.Task.LocalPath
	if c.baseDir != "" {
		if r, err := filepath.Rel(c.baseDir, o.Task.LocalPath); err == nil {
			rel = r
		}
	}

	rec := FileRecord{
		Path:   filepath.ToSlash(rel),
		Remote: o.Task.RemotePath,
		Status: o.Status,
		Bytes:  o.Bytes,
		SHA:    o.Task.Identity.SHA,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if o.Duration > 0 {
		rec.Duration = o.Duration.Round(time.Millisecond).String()
	}
	return rec
}

// Count returns the number of recorded files
func (c *Collector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.sources {
		n += len(s.Files)
	}
	return n
}

// GetReport builds the report from what was recorded so far
func (c *Collector) GetReport() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := &Report{
		RunID:       c.runID,
		GeneratedAt: time.Now(),
		Sources:     append([]SourceReport(nil), c.sources...),
	}
	for _, s := range c.sources {
		for _, f := range s.Files {
			report.TotalFiles++
			report.TotalBytes += f.Bytes
		}
	}
	return report
}

// Flush writes the report file
func (c *Collector) Flush() error {
	if !c.IsEnabled() {
		return nil
	}

	data, err := json.MarshalIndent(c.GetReport(), "", "  ")
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(c.path); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}
