package domain

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Response represents an HTTP response
type Response struct {
	StatusCode  int
	Body        []byte
	Headers     http.Header
	ContentType string
	URL         string
	FromCache   bool
}

// CacheEntry is a stored HTTP response with its validators
type CacheEntry struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	StatusCode   int       `json:"status_code"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	Body         []byte    `json:"body,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	FreshUntil   time.Time `json:"fresh_until"`
	AcceptRanges bool      `json:"accept_ranges,omitempty"`
	Size         int64     `json:"size,omitempty"`
}

// HasValidators reports whether the entry can be revalidated conditionally
func (e *CacheEntry) HasValidators() bool {
	return e.ETag != "" || e.LastModified != ""
}

// ResponseCache stores HTTP responses for conditional revalidation
type ResponseCache interface {
	// Lookup returns the entry for key or ErrCacheMiss
	Lookup(ctx context.Context, key string) (*CacheEntry, error)
	// Record stores a 200 or refreshes freshness on a 304; other statuses are ignored
	Record(ctx context.Context, key string, resp *Response) (*CacheEntry, error)
	// IsFresh reports whether the entry can be served without revalidation
	IsFresh(entry *CacheEntry, now time.Time) bool
	// Clear removes every entry
	Clear(ctx context.Context) error
	// Close releases resources
	Close() error
}

// TreeListing is the recursive content of a remote directory
type TreeListing struct {
	Entries   []EntryMetadata
	Truncated bool
}

// BlobRequest asks for file bytes, optionally from an offset
type BlobRequest struct {
	URL     string
	Offset  int64
	IfRange string
}

// BlobResponse is an open byte stream for a file
type BlobResponse struct {
	Body          io.ReadCloser
	StatusCode    int
	ContentLength int64
	TotalSize     int64 // -1 when unknown
	RangeStart    int64 // first byte of a 206 body, -1 when unknown
	ETag          string
	LastModified  string
	AcceptRanges  bool
}

//go:generate mockgen -destination=../mocks/metadata_client.go -package=mocks github.com/quantmind-br/ghfetch/internal/domain MetadataClient

// MetadataClient is the remote metadata and content API
type MetadataClient interface {
	// GetEntry returns metadata for the path a reference points at
	GetEntry(ctx context.Context, ref RepositoryReference) (*EntryMetadata, error)
	// ListTree returns every entry below the reference path, with repository-relative paths
	ListTree(ctx context.Context, ref RepositoryReference) (*TreeListing, error)
	// FetchBlob opens a byte stream for a file
	FetchBlob(ctx context.Context, req BlobRequest) (*BlobResponse, error)
}

// EntryLister enumerates the entries a strategy can deliver for a reference
type EntryLister interface {
	List(ctx context.Context, ref RepositoryReference) (*TreeListing, error)
}

// TransferResult describes bytes written for one task
type TransferResult struct {
	Bytes   int64
	Resumed bool
}

// Transferer moves one task's bytes to a guarded destination
type Transferer interface {
	Transfer(ctx context.Context, task DownloadTask, dest string, sink ProgressSink) (TransferResult, error)
}

// ProgressSink observes transfer progress; it never influences scheduling
type ProgressSink interface {
	Start(taskID string, total int64)
	Advance(taskID string, n int64)
	Finish(taskID string, err error)
}

// NopProgress discards progress events
type NopProgress struct{}

func (NopProgress) Start(string, int64) {}
func (NopProgress) Advance(string, int64) {}
func (NopProgress) Finish(string, error) {}
