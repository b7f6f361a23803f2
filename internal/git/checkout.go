// Package git materializes repository subsets with a sparse, blobless checkout
// and lists them with go-git.
package git

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	goversion "github.com/hashicorp/go-version"
	"golang.org/x/sync/singleflight"

	"github.com/quantmind-br/ghfetch/internal/domain"
	"github.com/quantmind-br/ghfetch/internal/utils"
)

// DefaultMinVersion is the oldest git with sparse-checkout and partial clone filters
const DefaultMinVersion = "2.25.0"

// DefaultRemoteBase is where repositories are fetched from
const DefaultRemoteBase = "https://github.com"

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// Options configures an Adapter
type Options struct {
	Client     Client
	CacheDir   string // checkouts land in <CacheDir>/repos/<hash>
	Token      string
	MinVersion string
	RemoteBase string
	Logger     *utils.Logger
}

// Adapter runs sparse checkouts through the git binary
type Adapter struct {
	client     Client
	cacheDir   string
	token      string
	minVersion *goversion.Version
	remoteBase string
	logger     *utils.Logger

	probeOnce sync.Once
	available bool
	reason    string
	version   *goversion.Version

	// checkouts done by this Adapter; a working tree is prepared once and then only read
	mu     sync.Mutex
	ready  map[string]bool
	flight singleflight.Group
}

// NewAdapter creates an Adapter
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Client == nil {
		opts.Client = NewClient("")
	}
	if opts.MinVersion == "" {
		opts.MinVersion = DefaultMinVersion
	}
	if opts.RemoteBase == "" {
		opts.RemoteBase = DefaultRemoteBase
	}

	minVersion, err := goversion.NewVersion(opts.MinVersion)
	if err != nil {
		return nil, domain.NewValidationError("git.min_version", err.Error())
	}

	return &Adapter{
		client:     opts.Client,
		cacheDir:   opts.CacheDir,
		token:      opts.Token,
		minVersion: minVersion,
		remoteBase: strings.TrimRight(opts.RemoteBase, "/"),
		logger:     utils.OrNop(opts.Logger).WithComponent("git"),
		ready:      make(map[string]bool),
	}, nil
}

// ParseVersion extracts the version from `git version` output
func ParseVersion(output string) (*goversion.Version, error) {
	m := versionPattern.FindString(output)
	if m == "" {
		return nil, fmt.Errorf("unrecognized git version output %q", strings.TrimSpace(output))
	}
	return goversion.NewVersion(m)
}

// IsAvailable reports whether a git binary new enough for sparse checkout exists.
// The probe runs once per Adapter.
func (a *Adapter) IsAvailable(ctx context.Context) (bool, string) {
	a.probeOnce.Do(func() {
		out, err := a.client.Run(ctx, "", "version")
		if err != nil {
			a.reason = fmt.Sprintf("git not runnable: %v", err)
			return
		}
		v, err := ParseVersion(string(out))
		if err != nil {
			a.reason = err.Error()
			return
		}
		a.version = v
		if v.LessThan(a.minVersion) {
			a.reason = fmt.Sprintf("git %s is older than %s", v, a.minVersion)
			return
		}
		a.available = true
	})

	if !a.available {
		a.logger.Debug().Str("reason", a.reason).Msg("Git strategy unavailable")
	}
	return a.available, a.reason
}

// Version returns the detected git version, or nil before a successful probe
func (a *Adapter) Version(ctx context.Context) *goversion.Version {
	a.IsAvailable(ctx)
	return a.version
}

// CheckoutDir returns the cache directory used for a reference. The sparse
// set is part of the key, so sources on different paths of one ref never
// reconfigure each other's working tree.
func (a *Adapter) CheckoutDir(ref domain.RepositoryReference) string {
	key := fmt.Sprintf("%s/%s@%s:%d:%s", ref.Owner, ref.Repo, ref.Ref, ref.Kind, ref.Path)
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(a.cacheDir, "repos", hex.EncodeToString(sum[:8]))
}

// RemoteURL returns the clone URL for a reference
func (a *Adapter) RemoteURL(ref domain.RepositoryReference) string {
	return fmt.Sprintf("%s/%s/%s.git", a.remoteBase, ref.Owner, ref.Repo)
}

// Checkout materializes the reference's path (or the whole tree) and returns the
// working tree directory. A checkout left by an earlier run is refreshed in
// place; within one Adapter each directory is checked out once and concurrent
// callers wait for that checkout.
func (a *Adapter) Checkout(ctx context.Context, ref domain.RepositoryReference) (string, error) {
	dir := a.CheckoutDir(ref)

	_, err, _ := a.flight.Do(dir, func() (interface{}, error) {
		a.mu.Lock()
		done := a.ready[dir]
		a.mu.Unlock()
		if done {
			a.logger.Debug().Str("dir", dir).Msg("Checkout already prepared")
			return nil, nil
		}
		if err := a.checkout(ctx, ref, dir); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.ready[dir] = true
		a.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

func (a *Adapter) checkout(ctx context.Context, ref domain.RepositoryReference, dir string) error {
	logger := a.logger.WithURL(ref.URL)

	_, statErr := os.Stat(filepath.Join(dir, ".git"))
	reuse := statErr == nil

	if !reuse {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkout dir: %w", err)
		}
	}

	steps := a.plan(ref, reuse)
	logger.Info().
		Str("ref", ref.String()).
		Str("dir", dir).
		Bool("reuse", reuse).
		Msg("Sparse checkout")

	for _, args := range steps {
		if _, err := a.client.Run(ctx, dir, args...); err != nil {
			if !reuse {
				_ = os.RemoveAll(dir)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return a.classify(ref, err)
		}
	}
	return nil
}

// plan returns the git invocations for a checkout
func (a *Adapter) plan(ref domain.RepositoryReference, reuse bool) [][]string {
	var steps [][]string
	if reuse {
		steps = append(steps, []string{"remote", "set-url", "origin", a.RemoteURL(ref)})
	} else {
		steps = append(steps,
			[]string{"init", "--quiet"},
			[]string{"remote", "add", "origin", a.RemoteURL(ref)},
		)
	}

	switch {
	case ref.IsWholeRepository():
		if reuse {
			steps = append(steps, []string{"sparse-checkout", "disable"})
		}
	case ref.Kind == domain.SingleFile:
		steps = append(steps,
			[]string{"sparse-checkout", "init"},
			[]string{"config", "core.sparseCheckoutCone", "false"},
			[]string{"sparse-checkout", "set", "/" + ref.Path},
		)
	default:
		steps = append(steps,
			[]string{"sparse-checkout", "init", "--cone"},
			[]string{"config", "core.sparseCheckoutCone", "true"},
			[]string{"sparse-checkout", "set", ref.Path},
		)
	}

	// checkout may lazily fetch missing blobs, so it needs the credential too
	steps = append(steps,
		a.withAuth("fetch", "--quiet", "--depth", "1", "--filter=blob:none", "origin", ref.Ref),
		a.withAuth("checkout", "--quiet", "--force", "--detach", "FETCH_HEAD"),
	)
	return steps
}

func (a *Adapter) withAuth(args ...string) []string {
	if a.token == "" {
		return args
	}
	return append([]string{"-c", "http.extraHeader=Authorization: Basic " + a.basicCredential()}, args...)
}

func (a *Adapter) basicCredential() string {
	return base64.StdEncoding.EncodeToString([]byte("x-access-token:" + a.token))
}

// classify maps git failures onto domain errors with the credential removed
func (a *Adapter) classify(ref domain.RepositoryReference, err error) error {
	msg := a.redact(err.Error())

	lower := strings.ToLower(msg)
	if strings.Contains(lower, "couldn't find remote ref") ||
		strings.Contains(lower, "repository not found") ||
		strings.Contains(lower, "not found") {
		return fmt.Errorf("%w: %s", &domain.NotFoundError{Resource: ref.String()}, msg)
	}
	return errors.New(msg)
}

func (a *Adapter) redact(s string) string {
	if a.token == "" {
		return s
	}
	s = strings.ReplaceAll(s, a.basicCredential(), "***")
	return strings.ReplaceAll(s, a.token, "***")
}
