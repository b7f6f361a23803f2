package git

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Client defines the interface for Git operations
type Client interface {
	// Run executes the git binary in dir and returns its standard output
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
	// PlainOpen opens an existing working tree
	PlainOpen(path string) (*git.Repository, error)
	// ListRemote returns the references advertised by a remote
	ListRemote(ctx context.Context, url string, auth transport.AuthMethod) ([]*plumbing.Reference, error)
}
