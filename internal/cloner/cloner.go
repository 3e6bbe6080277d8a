// Package cloner checks out a repository's default branch into a scratch
// working tree for TestRunner/RepoAnalyzer to walk, and for BranchManager's
// commits to be layered on top of later. Supplements spec.md §1(b)'s
// "clone a repository" mention, which names the operation without
// specifying it; grounded on driftlessaf's clonemanager (go-git token-auth
// clone/fetch/checkout), simplified from its lease-pool design down to a
// single clone-per-healing-session lifecycle.
package cloner

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const tempDirPrefix = "codeguard-clone-"

// Checkout is a temporary working tree holding one cloned ref. Callers must
// call Remove once finished with it.
type Checkout struct {
	Path string
	SHA  string
}

// Cloner clones repositories using an installation token as HTTP basic auth,
// per the GitHub App token exchange spec.md §4.1/§4.2 describe.
type Cloner struct{}

func New() *Cloner {
	return &Cloner{}
}

// Clone checks out branch of owner/repo into a fresh temp directory using
// token for auth. The caller owns the returned Checkout and must Remove it.
func (c *Cloner) Clone(owner, repo, branch, token string) (*Checkout, error) {
	dir, err := os.MkdirTemp("", tempDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("cloner: create temp dir: %w", err)
	}

	remote := fmt.Sprintf("https://github.com/%s/%s", owner, repo)
	r, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
		Auth:          auth(token),
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloner: clone %s@%s: %w", remote, branch, err)
	}

	head, err := r.Head()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloner: resolve head: %w", err)
	}

	return &Checkout{Path: dir, SHA: head.Hash().String()}, nil
}

// Remove deletes the checkout's working tree from disk.
func (c *Checkout) Remove() error {
	return os.RemoveAll(c.Path)
}

func auth(token string) *githttp.BasicAuth {
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}
