package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// RefKind describes what part of a repository a reference points at
type RefKind int

const (
	SingleFile RefKind = iota
	Subtree
	WholeRepository
)

func (k RefKind) String() string {
	switch k {
	case SingleFile:
		return "file"
	case Subtree:
		return "subtree"
	case WholeRepository:
		return "repository"
	default:
		return "unknown"
	}
}

// RepositoryReference identifies remote content: owner/repo at a ref, optionally narrowed to a path
type RepositoryReference struct {
	Owner         string
	Repo          string
	Ref           string
	Path          string // slash separated, no leading slash, empty for the repository root
	Kind          RefKind
	URL           string // original browsing URL
	TrailingSlash bool
}

// FullName returns owner/repo
func (r RepositoryReference) FullName() string {
	return r.Owner + "/" + r.Repo
}

// IsWholeRepository reports whether the reference covers the repository root
func (r RepositoryReference) IsWholeRepository() bool {
	return r.Kind == WholeRepository
}

// SubtreeRoot returns the remote directory that local paths are computed relative to
func (r RepositoryReference) SubtreeRoot() string {
	if r.Kind == SingleFile {
		dir := path.Dir(r.Path)
		if dir == "." {
			return ""
		}
		return dir
	}
	return r.Path
}

func (r RepositoryReference) String() string {
	if r.Path == "" {
		return fmt.Sprintf("%s@%s", r.FullName(), r.Ref)
	}
	return fmt.Sprintf("%s@%s:%s", r.FullName(), r.Ref, r.Path)
}

// Strategy is a retrieval mechanism
type Strategy string

const (
	StrategyAPI  Strategy = "api"
	StrategyGit  Strategy = "git"
	StrategyZip  Strategy = "zip"
	StrategyAuto Strategy = "auto"
)

// ParseStrategy converts a user supplied name into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case StrategyAPI, StrategyGit, StrategyZip, StrategyAuto:
		return s, nil
	case "":
		return StrategyAuto, nil
	default:
		return "", NewValidationError("strategy", fmt.Sprintf("unknown strategy %q (want api, git, zip or auto)", name))
	}
}

// IsConcrete reports whether the strategy can run as is
func (s Strategy) IsConcrete() bool {
	return s == StrategyAPI || s == StrategyGit || s == StrategyZip
}

// EntryType classifies an entry in a remote listing
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDir       EntryType = "dir"
	EntrySymlink   EntryType = "symlink"
	EntrySubmodule EntryType = "submodule"
	EntryOther     EntryType = "other"
)

// EntryMetadata describes one remote entry
type EntryMetadata struct {
	Path        string    `json:"path"`
	Type        EntryType `json:"type"`
	Size        int64     `json:"size"` // -1 when unknown
	SHA         string    `json:"sha,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	StagedPath  string    `json:"-"` // set by checkout and archive listers
}

// ContentIdentity is what a task knows about the remote bytes before fetching them
type ContentIdentity struct {
	SHA          string // git blob id
	ETag         string
	LastModified string
}

// DownloadTask is one file to materialize
type DownloadTask struct {
	ID           string
	RemotePath   string
	RelativePath string // relative to the requested subtree root, slash separated
	LocalPath    string // resolved by the path guard before execution
	ExpectedSize int64  // -1 when unknown
	Identity     ContentIdentity
	SourceURL    string // download URL for byte transfers
	StagedPath   string // local staged copy for checkout and archive strategies
}

// SizeKnown reports whether the expected size is known
func (t DownloadTask) SizeKnown() bool {
	return t.ExpectedSize >= 0
}

// Warning is a recoverable condition reported alongside a plan or run
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Message
	}
	return w.Path + ": " + w.Message
}

// Plan is the set of tasks built for one reference
type Plan struct {
	Reference RepositoryReference
	Strategy  Strategy
	Tasks     []DownloadTask
	Warnings  []Warning
}

// TaskStatus is the final state of a task
type TaskStatus string

const (
	StatusDownloaded TaskStatus = "downloaded"
	StatusResumed    TaskStatus = "resumed"
	StatusUnchanged  TaskStatus = "unchanged"
	StatusSkipped    TaskStatus = "skipped"
	StatusFailed     TaskStatus = "failed"
)

// TaskOutcome records how a task finished
type TaskOutcome struct {
	Task     DownloadTask
	Status   TaskStatus
	Bytes    int64
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the task left the destination in the requested state
func (o TaskOutcome) Succeeded() bool {
	return o.Status != StatusFailed
}

// RunResult classifies a whole run
type RunResult string

const (
	ResultSuccess        RunResult = "success"
	ResultPartialFailure RunResult = "partial_failure"
	ResultFailure        RunResult = "failure"
)
