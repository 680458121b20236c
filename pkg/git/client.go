// Package git implements the working-copy primitives the workspace manager
// drives: clone, branch checkout, fetch, pull, stage, commit and push. All of
// it runs on go-git, so no git binary is required on the host.
//
// Every method takes the checkout directory explicitly and opens the
// repository on each call; the Client itself only carries credentials, the
// remote name and the commit author.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// DefaultRemote is the remote name used when Options.RemoteName is empty.
const DefaultRemote = "origin"

// tokenUsername is the conventional basic-auth user for token authentication.
const tokenUsername = "x-access-token"

// Options configures a Client.
type Options struct {
	// Token authenticates clone, fetch and push over HTTPS. Empty means anonymous.
	Token string

	// RemoteName defaults to DefaultRemote.
	RemoteName string

	// Author signs commits. Zero value falls back to the defaults.
	Author Author

	// Progress receives sideband output from clone and fetch when set.
	Progress io.Writer
}

// Client runs git operations against checkouts on the local filesystem.
type Client struct {
	token    string
	remote   string
	author   Author
	progress io.Writer
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	remote := opts.RemoteName
	if remote == "" {
		remote = DefaultRemote
	}
	author := opts.Author
	if author.Name == "" {
		author.Name = DefaultAuthorName
	}
	if author.Email == "" {
		author.Email = DefaultAuthorEmail
	}
	return &Client{token: opts.Token, remote: remote, author: author, progress: opts.Progress}
}

// RemoteName returns the name of the remote the client pushes to.
func (c *Client) RemoteName() string { return c.remote }

// Author returns the commit author.
func (c *Client) Author() Author { return c.author }

func (c *Client) auth() transport.AuthMethod {
	if c.token == "" {
		return nil
	}
	return &http.BasicAuth{Username: tokenUsername, Password: c.token}
}

func (c *Client) open(dir string) (*git.Repository, *git.Worktree, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil, fmt.Errorf("%s is not a git repository: %w", dir, err)
		}
		return nil, nil, fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	return repo, wt, nil
}

// Clone clones url into dest. A failed clone leaves nothing behind at dest.
func (c *Client) Clone(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dest, err)
	}
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:        url,
		RemoteName: c.remote,
		Auth:       c.auth(),
		Progress:   c.progress,
	})
	if err != nil {
		_ = os.RemoveAll(dest)
		return classifyRemoteError("clone", url, err)
	}
	return nil
}

// IsRepository reports whether dir holds a git checkout.
func (c *Client) IsRepository(dir string) bool {
	_, err := git.PlainOpen(dir)
	return err == nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (c *Client) CurrentBranch(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash())
	}
	return head.Name().Short(), nil
}

// CheckoutLocalBranch switches to the local branch name, creating it when it
// does not exist. A new branch starts at the remote-tracking branch of the
// same name when one was fetched, and at HEAD otherwise. created reports
// whether the branch was made by this call.
func (c *Client) CheckoutLocalBranch(ctx context.Context, dir, name string) (created bool, err error) {
	repo, wt, err := c.open(dir)
	if err != nil {
		return false, err
	}
	ref := plumbing.NewBranchReferenceName(name)

	if head, err := repo.Head(); err == nil && head.Name() == ref {
		return false, nil
	}

	if _, err := repo.Reference(ref, true); err == nil {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: ref}); err != nil {
			return false, checkoutError(name, err)
		}
		return false, nil
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, fmt.Errorf("failed to look up branch %s: %w", name, err)
	}

	opts := &git.CheckoutOptions{Branch: ref, Create: true}
	if tracking, err := repo.Reference(plumbing.NewRemoteReferenceName(c.remote, name), true); err == nil {
		opts.Hash = tracking.Hash()
	}
	if err := wt.Checkout(opts); err != nil {
		return false, checkoutError(name, err)
	}
	return true, nil
}

func checkoutError(name string, err error) error {
	if errors.Is(err, git.ErrUnstagedChanges) {
		return fmt.Errorf("failed to checkout branch %s: %w", name, ErrLocalChanges)
	}
	return fmt.Errorf("failed to checkout branch %s: %w", name, err)
}

// Fetch updates every remote-tracking branch from the remote.
func (c *Client) Fetch(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: c.remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", c.remote))},
		Auth:       c.auth(),
		Progress:   c.progress,
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil
	}
	return classifyRemoteError("fetch", c.remoteURL(repo), err)
}

// Pull fast-forwards the current branch to remote/branch. It returns
// ErrRemoteBranchNotFound when the remote has no such branch, ErrNonFastForward
// when the histories diverged and ErrLocalChanges when uncommitted edits would
// be overwritten. An up-to-date branch is not an error.
func (c *Client) Pull(ctx context.Context, dir, remote, branch string) error {
	repo, wt, err := c.open(dir)
	if err != nil {
		return err
	}
	if remote == "" {
		remote = c.remote
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		Auth:          c.auth(),
		Progress:      c.progress,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, plumbing.ErrReferenceNotFound), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return fmt.Errorf("pull %s/%s: %w", remote, branch, ErrRemoteBranchNotFound)
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return fmt.Errorf("pull %s/%s: %w", remote, branch, ErrNonFastForward)
	case errors.Is(err, git.ErrUnstagedChanges), errors.Is(err, git.ErrWorktreeNotClean):
		return fmt.Errorf("pull %s/%s: %w", remote, branch, ErrLocalChanges)
	default:
		return classifyRemoteError("pull", c.remoteURL(repo), err)
	}
}

// SyncToRemote checks out the local branch and hard-resets it to the
// remote-tracking branch, discarding anything local. Callers fetch first.
func (c *Client) SyncToRemote(ctx context.Context, dir, branch string) error {
	repo, wt, err := c.open(dir)
	if err != nil {
		return err
	}
	tracking, err := repo.Reference(plumbing.NewRemoteReferenceName(c.remote, branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("sync %s/%s: %w", c.remote, branch, ErrRemoteBranchNotFound)
		}
		return fmt.Errorf("failed to resolve %s/%s: %w", c.remote, branch, err)
	}
	opts := &git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: true}
	if !c.hasLocalBranch(repo, branch) {
		opts.Create = true
		opts.Hash = tracking.Hash()
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: tracking.Hash()}); err != nil {
		return fmt.Errorf("failed to reset %s to %s: %w", branch, tracking.Hash(), err)
	}
	return nil
}

func (c *Client) hasLocalBranch(repo *git.Repository, branch string) bool {
	_, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	return err == nil
}

// StageAll stages every change in the working tree, deletions included.
func (c *Client) StageAll(ctx context.Context, dir string) error {
	_, wt, err := c.open(dir)
	if err != nil {
		return err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	return nil
}

// Commit records the staged changes and returns the new commit hash.
// It returns ErrNothingToCommit when the index matches HEAD.
func (c *Client) Commit(ctx context.Context, dir, message string) (string, error) {
	_, wt, err := c.open(dir)
	if err != nil {
		return "", err
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("failed to get status: %w", err)
	}
	if status.IsClean() {
		return "", ErrNothingToCommit
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.author.Name,
			Email: c.author.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return hash.String(), nil
}

// Push publishes the local branch to the same-named branch on remote. It
// never forces; a remote that moved on yields a *RemoteDivergedError.
func (c *Client) Push(ctx context.Context, dir, remote, branch string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", dir, err)
	}
	if remote == "" {
		remote = c.remote
	}
	ref := plumbing.NewBranchReferenceName(branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       c.auth(),
		Progress:   c.progress,
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return classifyPushError(c.remoteURL(repo), branch, err)
}

// RemoteBranchExists lists the refs advertised by url without touching any
// checkout and reports whether branch is among them.
func (c *Client) RemoteBranchExists(ctx context.Context, url, branch string) (bool, error) {
	rem := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: c.remote,
		URLs: []string{url},
	})
	refs, err := rem.ListContext(ctx, &git.ListOptions{Auth: c.auth()})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return false, nil
		}
		return false, classifyRemoteError("ls-remote", url, err)
	}
	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) remoteURL(repo *git.Repository) string {
	rem, err := repo.Remote(c.remote)
	if err != nil || len(rem.Config().URLs) == 0 {
		return c.remote
	}
	return rem.Config().URLs[0]
}
