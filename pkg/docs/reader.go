// Package docs gives a conversation read access to the documentation
// repository. Until the conversation has published its own branch it reads
// the shared base-branch checkout; the first edit moves it onto its own
// workspace for good.
package docs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/holon-run/docsagent/pkg/pathutil"
	"github.com/holon-run/docsagent/pkg/workspace"
)

// Session is the per-conversation workspace surface a Reader needs.
// *workspace.Session implements it.
type Session interface {
	ConversationID() string
	DocsPath(ctx context.Context) (workspace.DocsLocation, error)
	ApplyChanges(ctx context.Context, changes []workspace.Change) error
	CommitAndPush(ctx context.Context, message string) error
}

// State is where a Reader currently points.
type State int

const (
	Unresolved State = iota
	Shared
	Dedicated
)

func (s State) String() string {
	switch s {
	case Shared:
		return "shared"
	case Dedicated:
		return "dedicated"
	default:
		return "unresolved"
	}
}

// File is the outcome of reading one path.
type File struct {
	Path    string
	Content string
	Err     error
}

// Reader caches the resolved location of one conversation.
type Reader struct {
	session Session

	mu    sync.Mutex
	state State
	loc   workspace.DocsLocation
}

// NewReader returns an unresolved Reader for session.
func NewReader(session Session) *Reader {
	return &Reader{session: session}
}

// State returns the current state.
func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Resolve returns the cached location, resolving it on first use.
func (r *Reader) Resolve(ctx context.Context) (workspace.DocsLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(ctx)
}

func (r *Reader) resolveLocked(ctx context.Context) (workspace.DocsLocation, error) {
	if r.state != Unresolved {
		return r.loc, nil
	}
	loc, err := r.session.DocsPath(ctx)
	if err != nil {
		return workspace.DocsLocation{}, err
	}
	r.loc = loc
	if loc.IsMainBranch {
		r.state = Shared
	} else {
		r.state = Dedicated
	}
	return loc, nil
}

// NoteWrite records that the conversation wrote to its workspace. A
// dedicated location stays cached; anything else is dropped so the next read
// resolves to the conversation's own checkout.
func (r *Reader) NoteWrite() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Dedicated {
		r.invalidateLocked()
	}
}

// Invalidate drops the cached location.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

func (r *Reader) invalidateLocked() {
	r.state = Unresolved
	r.loc = workspace.DocsLocation{}
}

// ReadFiles reads every path relative to the resolved location. A path that
// cannot be read gets its own error; the others are still returned.
func (r *Reader) ReadFiles(ctx context.Context, paths []string) ([]File, error) {
	loc, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		f := File{Path: p}
		full, err := pathutil.SafeJoin(loc.Path, p)
		if err == nil {
			full, err = pathutil.ResolveWithin(loc.Path, full)
		}
		if err != nil {
			f.Err = err
		} else if data, err := os.ReadFile(full); err != nil {
			f.Err = err
		} else {
			f.Content = string(data)
		}
		files = append(files, f)
	}
	return files, nil
}

// ListFiles returns the files below dir as sorted slash-separated paths
// relative to the repository root. An empty dir lists the whole repository.
// The .git directory is skipped.
func (r *Reader) ListFiles(ctx context.Context, dir string) ([]string, error) {
	loc, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	start := loc.Path
	if dir != "" && dir != "." && dir != "/" {
		if start, err = pathutil.SafeJoin(loc.Path, dir); err != nil {
			return nil, err
		}
	}

	var files []string
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(loc.Path, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ErrStillShared means a write did not move the reader off the shared checkout.
var ErrStillShared = errors.New("reader still resolves to the shared checkout after a write")

// EditFile writes content to path on the conversation's own branch, commits
// it as "Update <path>" and pushes. The write always goes to the
// conversation's workspace, never through the shared checkout; a shared
// location is dropped first and resolved again afterwards.
func (r *Reader) EditFile(ctx context.Context, path, content string) (workspace.DocsLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Dedicated {
		r.invalidateLocked()
	}
	if err := r.session.ApplyChanges(ctx, []workspace.Change{{Path: path, Content: content}}); err != nil {
		return workspace.DocsLocation{}, err
	}
	if err := r.session.CommitAndPush(ctx, "Update "+path); err != nil {
		return workspace.DocsLocation{}, err
	}
	loc, err := r.resolveLocked(ctx)
	if err != nil {
		return workspace.DocsLocation{}, err
	}
	if loc.IsMainBranch {
		r.invalidateLocked()
		return workspace.DocsLocation{}, ErrStillShared
	}
	return loc, nil
}
