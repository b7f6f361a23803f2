// Package github talks to the GitHub REST API and raw content host.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/ratelimit"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

const (
	// DefaultAPIBaseURL is the REST API root
	DefaultAPIBaseURL = "https://api.github.com"
	// DefaultRawBaseURL serves file bytes by ref and path
	DefaultRawBaseURL = "https://raw.githubusercontent.com"

	acceptJSON = "application/vnd.github+json"
)

// Compile-time interface check
var _ domain.MetadataClient = (*Client)(nil)

// HTTPClient is the transport the metadata client needs
type HTTPClient interface {
	Get(ctx context.Context, url, accept string) (*domain.Response, error)
	Stream(ctx context.Context, url string, header http.Header) (*http.Response, error)
}

// Options configures a Client
type Options struct {
	HTTP       HTTPClient
	APIBaseURL string
	RawBaseURL string
	Logger     *utils.Logger
}

// Client implements domain.MetadataClient against the GitHub API
type Client struct {
	http    HTTPClient
	apiBase string
	rawBase string
	logger  *utils.Logger
}

// NewClient creates a Client
func NewClient(opts Options) *Client {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = DefaultAPIBaseURL
	}
	if opts.RawBaseURL == "" {
		opts.RawBaseURL = DefaultRawBaseURL
	}
	return &Client{
		http:    opts.HTTP,
		apiBase: strings.TrimRight(opts.APIBaseURL, "/"),
		rawBase: strings.TrimRight(opts.RawBaseURL, "/"),
		logger:  utils.OrNop(opts.Logger).WithComponent("github"),
	}
}

// contentItem is one element of a contents API response
type contentItem struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	SHA         string `json:"sha"`
	DownloadURL string `json:"download_url"`
}

// treeItem is one element of a git trees API response
type treeItem struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size *int64 `json:"size"`
}

type treeResponse struct {
	SHA       string     `json:"sha"`
	Tree      []treeItem `json:"tree"`
	Truncated bool       `json:"truncated"`
}

// GetEntry returns metadata for the path the reference points at.
// Directories come back from the contents API as arrays.
func (c *Client) GetEntry(ctx context.Context, ref domain.RepositoryReference) (*domain.EntryMetadata, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.apiBase, escape(ref.Owner), escape(ref.Repo), escapePath(ref.Path), escapeQuery(ref.Ref))

	resp, err := c.http.Get(ctx, u, acceptJSON)
	if err != nil {
		return nil, notFound(err, ref)
	}

	body := strings.TrimSpace(string(resp.Body))
	if strings.HasPrefix(body, "[") {
		return &domain.EntryMetadata{Path: ref.Path, Type: domain.EntryDir, Size: -1}, nil
	}

	var item contentItem
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return nil, fmt.Errorf("failed to decode contents response for %s: %w", ref, err)
	}

	entry := &domain.EntryMetadata{
		Path:        item.Path,
		Type:        contentType(item.Type),
		Size:        item.Size,
		SHA:         item.SHA,
		DownloadURL: item.DownloadURL,
	}
	if entry.Path == "" {
		entry.Path = ref.Path
	}
	if entry.Type == domain.EntryFile && entry.DownloadURL == "" {
		entry.DownloadURL = c.RawURL(ref, entry.Path)
	}
	return entry, nil
}

// ListTree returns every entry below the reference path with one recursive
// trees call. Paths are repository relative.
func (c *Client) ListTree(ctx context.Context, ref domain.RepositoryReference) (*domain.TreeListing, error) {
	treeish := escapePath(ref.Ref)
	if ref.Path != "" {
		treeish += ":" + escapePath(ref.Path)
	}
	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.apiBase, escape(ref.Owner), escape(ref.Repo), treeish)

	resp, err := c.http.Get(ctx, u, acceptJSON)
	if err != nil {
		return nil, notFound(err, ref)
	}

	var tree treeResponse
	if err := json.Unmarshal(resp.Body, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode tree response for %s: %w", ref, err)
	}

	listing := &domain.TreeListing{
		Entries:   make([]domain.EntryMetadata, 0, len(tree.Tree)),
		Truncated: tree.Truncated,
	}
	for _, item := range tree.Tree {
		full := item.Path
		if ref.Path != "" {
			full = ref.Path + "/" + item.Path
		}

		entry := domain.EntryMetadata{
			Path: full,
			Type: treeType(item),
			Size: -1,
			SHA:  item.SHA,
		}
		if entry.Type == domain.EntryFile {
			if item.Size != nil {
				entry.Size = *item.Size
			}
			entry.DownloadURL = c.RawURL(ref, full)
		}
		listing.Entries = append(listing.Entries, entry)
	}

	c.logger.Debug().
		Str("ref", ref.String()).
		Int("entries", len(listing.Entries)).
		Bool("truncated", listing.Truncated).
		Msg("Listed tree")

	return listing, nil
}

// FetchBlob opens a byte stream, asking for a suffix when Offset is set
func (c *Client) FetchBlob(ctx context.Context, req domain.BlobRequest) (*domain.BlobResponse, error) {
	header := http.Header{}
	if req.Offset > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", req.Offset))
		if req.IfRange != "" {
			header.Set("If-Range", req.IfRange)
		}
	}

	resp, err := c.http.Stream(ctx, req.URL, header)
	if err != nil {
		return nil, err
	}

	return &domain.BlobResponse{
		Body:          resp.Body,
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		TotalSize:     totalSize(resp),
		RangeStart:    rangeStart(resp),
		ETag:          resp.Header.Get("ETag"),
		LastModified:  resp.Header.Get("Last-Modified"),
		AcceptRanges:  strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
	}, nil
}

// RawURL returns the raw content URL for a repository path at the reference's ref
func (c *Client) RawURL(ref domain.RepositoryReference, p string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		c.rawBase, escape(ref.Owner), escape(ref.Repo), escapePath(ref.Ref), escapePath(p))
}

// RepositoryInfo is the subset of repository metadata ghfetch uses
type RepositoryInfo struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// Repository returns repository metadata
func (c *Client) Repository(ctx context.Context, owner, repo string) (*RepositoryInfo, error) {
	u := fmt.Sprintf("%s/repos/%s/%s", c.apiBase, escape(owner), escape(repo))
	resp, err := c.http.Get(ctx, u, acceptJSON)
	if err != nil {
		return nil, err
	}

	var info RepositoryInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode repository response: %w", err)
	}
	return &info, nil
}

type rateLimitResponse struct {
	Resources struct {
		Core struct {
			Limit     int64 `json:"limit"`
			Remaining int64 `json:"remaining"`
			Used      int64 `json:"used"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

// RateLimit queries the core quota; the endpoint itself is free
func (c *Client) RateLimit(ctx context.Context) (ratelimit.Snapshot, error) {
	resp, err := c.http.Get(ctx, c.apiBase+"/rate_limit", acceptJSON)
	if err != nil {
		return ratelimit.Snapshot{}, err
	}

	var rl rateLimitResponse
	if err := json.Unmarshal(resp.Body, &rl); err != nil {
		return ratelimit.Snapshot{}, fmt.Errorf("failed to decode rate limit response: %w", err)
	}

	core := rl.Resources.Core
	return ratelimit.Snapshot{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Used:      core.Used,
		Reset:     time.Unix(core.Reset, 0),
	}, nil
}

func contentType(t string) domain.EntryType {
	switch t {
	case "file":
		return domain.EntryFile
	case "dir":
		return domain.EntryDir
	case "symlink":
		return domain.EntrySymlink
	case "submodule":
		return domain.EntrySubmodule
	default:
		return domain.EntryOther
	}
}

func treeType(item treeItem) domain.EntryType {
	switch {
	case item.Mode == "120000":
		return domain.EntrySymlink
	case item.Mode == "160000" || item.Type == "commit":
		return domain.EntrySubmodule
	case item.Type == "tree":
		return domain.EntryDir
	case item.Type == "blob":
		return domain.EntryFile
	default:
		return domain.EntryOther
	}
}

// totalSize reads the full object size from Content-Range, or from
// Content-Length on a plain 200
func totalSize(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(strings.TrimSpace(cr[i+1:]), 10, 64); err == nil {
				return n
			}
		}
		return -1
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	return -1
}

// rangeStart reads the first byte position from a "bytes start-end/size" Content-Range
func rangeStart(resp *http.Response) int64 {
	cr := strings.TrimSpace(resp.Header.Get("Content-Range"))
	rng, ok := strings.CutPrefix(cr, "bytes ")
	if !ok {
		return -1
	}
	first, _, ok := strings.Cut(rng, "-")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// notFound names the reference in a missing-resource error
func notFound(err error, ref domain.RepositoryReference) error {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return &domain.NotFoundError{Resource: ref.String()}
	}
	return err
}
