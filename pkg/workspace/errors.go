package workspace

import (
	"errors"
	"fmt"
)

// Kind classifies a workspace failure.
type Kind int

const (
	KindUnknown Kind = iota
	// SetupFailure: clone or checkout failed while preparing a workspace.
	SetupFailure
	// SyncWarning: the remote branch is missing or could not be merged.
	// Logged during setup and never returned by EnsureWorkspace.
	SyncWarning
	// WriteFailure: a file of the change set could not be written.
	WriteFailure
	// CommitFailure: nothing to commit, or the commit was rejected.
	CommitFailure
	// PushFailure: non-fast-forward or authentication failure on push.
	PushFailure
	// PRFailure: the hosting API refused to open the pull request.
	PRFailure
	// CleanupFailure: the workspace directory could not be removed.
	CleanupFailure
	// InvalidPath: a change targets a path outside the workspace.
	InvalidPath
	// InvalidInput: missing conversation id, message or title.
	InvalidInput
)

func (k Kind) String() string {
	switch k {
	case SetupFailure:
		return "setup_failure"
	case SyncWarning:
		return "sync_warning"
	case WriteFailure:
		return "write_failure"
	case CommitFailure:
		return "commit_failure"
	case PushFailure:
		return "push_failure"
	case PRFailure:
		return "pr_failure"
	case CleanupFailure:
		return "cleanup_failure"
	case InvalidPath:
		return "invalid_path"
	case InvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is returned by every Manager operation.
type Error struct {
	Op             string
	Kind           Kind
	ConversationID string
	Err            error
}

func (e *Error) Error() string {
	if e.ConversationID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.ConversationID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return KindUnknown
}

func newError(op string, kind Kind, id string, err error) *Error {
	return &Error{Op: op, Kind: kind, ConversationID: id, Err: err}
}
