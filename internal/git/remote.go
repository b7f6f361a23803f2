package git

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/quantmind-br/ghfetch/internal/domain"
)

// RemoteHead returns the branch the remote HEAD points at. It needs no git
// binary, so doctor can check reachability even when sparse checkout is unavailable.
func (a *Adapter) RemoteHead(ctx context.Context, owner, repo string) (string, error) {
	ref := domain.RepositoryReference{Owner: owner, Repo: repo}

	var auth transport.AuthMethod
	if a.token != "" {
		auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: a.token,
		}
	}

	refs, err := a.client.ListRemote(ctx, a.RemoteURL(ref), auth)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("list %s: %s", ref.FullName(), a.redact(err.Error()))
	}

	for _, r := range refs {
		if r.Name() == plumbing.HEAD && r.Type() == plumbing.SymbolicReference {
			return r.Target().Short(), nil
		}
	}
	return "", fmt.Errorf("remote %s advertises no HEAD", ref.FullName())
}
