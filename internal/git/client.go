package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

// CommandError reports a failed git invocation
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// RealClient implements Client with the git binary and go-git
type RealClient struct {
	binary string
}

// NewClient creates a new RealClient. An empty binary means "git" from PATH.
func NewClient(binary string) *RealClient {
	if binary == "" {
		binary = "git"
	}
	return &RealClient{binary: binary}
}

// Binary returns the configured git executable
func (c *RealClient) Binary() string {
	return c.binary
}

// Run executes git with prompts disabled so a missing credential fails fast
func (c *RealClient) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=",
		"LC_ALL=C",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return out, nil
}

// PlainOpen calls git.PlainOpen
func (c *RealClient) PlainOpen(path string) (*git.Repository, error) {
	return git.PlainOpen(path)
}

// ListRemote lists remote references without a local repository
func (c *RealClient) ListRemote(ctx context.Context, url string, auth transport.AuthMethod) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	return remote.ListContext(ctx, &git.ListOptions{Auth: auth})
}
