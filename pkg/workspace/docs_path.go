package workspace

import (
	"context"
	"time"

	"github.com/holon-run/docsagent/pkg/log"
)

// DocsLocation is where a reader should look for documentation.
type DocsLocation struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
	// IsMainBranch marks the shared trunk checkout. Nothing may be written
	// through such a location.
	IsMainBranch bool `json:"is_main_branch"`
}

// DocsPath resolves the freshest documentation a conversation can see. Once
// the conversation has a workspace on disk, or its branch exists on the
// remote, that is its own workspace, so unpushed edits are visible. Before
// that it is the shared checkout of the base branch, refreshed from the
// remote on every call.
func (m *Manager) DocsPath(ctx context.Context, conversationID string) (loc DocsLocation, err error) {
	const op = "docs_path"
	defer m.observe(op, time.Now(), &err)

	id, err := normalizeID(op, conversationID)
	if err != nil {
		return DocsLocation{}, err
	}
	branchName, err := m.policy.BranchName(id)
	if err != nil {
		return DocsLocation{}, newError(op, InvalidInput, id, err)
	}

	exists := m.WorkspaceExists(id)
	if !exists {
		if exists, err = m.repo.RemoteBranchExists(ctx, m.repoURL, branchName); err != nil {
			return DocsLocation{}, newError(op, SetupFailure, id, err)
		}
	}
	if exists {
		st, _, err := m.EnsureWorkspace(ctx, id)
		if err != nil {
			return DocsLocation{}, err
		}
		return DocsLocation{Path: st.LocalPath, Branch: st.BranchName}, nil
	}

	path, err := m.refreshShared(ctx)
	if err != nil {
		return DocsLocation{}, newError(op, SetupFailure, id, err)
	}
	log.Debug("reading from shared checkout", "conversation_id", id, "path", path)
	return DocsLocation{Path: path, Branch: m.base, IsMainBranch: true}, nil
}

// refreshShared clones the shared checkout on first use and resets it to the
// remote base branch. Concurrent callers share one refresh.
func (m *Manager) refreshShared(ctx context.Context) (string, error) {
	v, err, _ := m.sharedFlight.Do("shared", func() (interface{}, error) {
		m.sharedMu.Lock()
		defer m.sharedMu.Unlock()

		path := m.policy.SharedPath()
		if dirExists(path) && !m.repo.IsRepository(path) {
			if err := removeAll(path); err != nil {
				return "", err
			}
		}
		if !dirExists(path) {
			if err := m.clone(ctx, path); err != nil {
				return "", err
			}
			log.Info("shared checkout cloned", "path", path)
		} else if err := m.repo.Fetch(ctx, path); err != nil {
			return "", err
		}
		if err := m.repo.SyncToRemote(ctx, path, m.base); err != nil {
			return "", err
		}
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
