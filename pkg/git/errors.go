package git

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

var (
	// ErrRemoteBranchNotFound means the remote has no branch of the requested name.
	ErrRemoteBranchNotFound = errors.New("remote branch not found")

	// ErrNothingToCommit means staging produced no difference from HEAD.
	ErrNothingToCommit = errors.New("no changes to commit")

	// ErrNonFastForward means the remote branch has commits the local branch lacks.
	ErrNonFastForward = errors.New("non-fast-forward update rejected")

	// ErrLocalChanges means the working tree holds uncommitted edits that an
	// update would overwrite.
	ErrLocalChanges = errors.New("worktree has uncommitted changes")
)

// AuthError reports rejected or missing credentials.
type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError reports a repository that does not exist or is hidden from the token.
type NotFoundError struct {
	Op, URL string
	Err     error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found %s: %v", e.Op, e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

// RemoteDivergedError reports a push refused because the remote moved on.
type RemoteDivergedError struct {
	Op, URL, Branch string
	Err             error
}

func (e *RemoteDivergedError) Error() string {
	return fmt.Sprintf("%s remote diverged %s@%s: %v", e.Op, e.URL, e.Branch, e.Err)
}

func (e *RemoteDivergedError) Unwrap() []error { return []error{ErrNonFastForward, e.Err} }

// classifyRemoteError maps transport failures onto typed errors.
func classifyRemoteError(op, url string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return &AuthError{Op: op, URL: url, Err: err}
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return &NotFoundError{Op: op, URL: url, Err: err}
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "invalid username or password"):
		return &AuthError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "repository not found") || strings.Contains(l, "repository does not exist"):
		return &NotFoundError{Op: op, URL: url, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, url, err)
}

// classifyPushError adds divergence detection on top of classifyRemoteError.
// go-git refuses a non-fast-forward push on the client side, either with a
// "non-fast-forward update" message or, when the remote tip is unknown
// locally, with a missing object.
func classifyPushError(url, branch string, err error) error {
	if errors.Is(err, git.ErrForceNeeded) ||
		errors.Is(err, plumbing.ErrObjectNotFound) ||
		strings.Contains(strings.ToLower(err.Error()), "non-fast-forward") {
		return &RemoteDivergedError{Op: "push", URL: url, Branch: branch, Err: err}
	}
	return classifyRemoteError("push", url, err)
}
