// Package workspace manages one git checkout per conversation: it clones the
// documentation repository, keeps each conversation on its own branch, and
// commits, pushes and opens pull requests on that branch.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/holon-run/docsagent/pkg/branch"
	"github.com/holon-run/docsagent/pkg/git"
	"github.com/holon-run/docsagent/pkg/log"
	"github.com/holon-run/docsagent/pkg/metrics"
	"github.com/holon-run/docsagent/pkg/pathutil"
)

// DefaultBaseBranch is the pull request base when none is configured.
const DefaultBaseBranch = "main"

// RepositoryClient is the git surface the Manager drives. *git.Client
// implements it.
type RepositoryClient interface {
	Clone(ctx context.Context, url, dest string) error
	IsRepository(dir string) bool
	CurrentBranch(dir string) (string, error)
	CheckoutLocalBranch(ctx context.Context, dir, name string) (created bool, err error)
	Fetch(ctx context.Context, dir string) error
	Pull(ctx context.Context, dir, remote, branch string) error
	SyncToRemote(ctx context.Context, dir, branch string) error
	StageAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) (string, error)
	Push(ctx context.Context, dir, remote, branch string) error
	RemoteBranchExists(ctx context.Context, url, branch string) (bool, error)
}

// PullRequestClient opens pull requests. *github.Client implements it.
type PullRequestClient interface {
	CreatePullRequest(ctx context.Context, owner, repo, head, base, title, body string) (string, error)
}

// Options configures a Manager.
type Options struct {
	RepoURL      string
	Owner        string
	Repo         string
	BaseDir      string
	BranchPrefix string
	BaseBranch   string
	Remote       string

	// Store defaults to a new in-memory Registry.
	Store Store
	// Metrics defaults to metrics.NoopRecorder.
	Metrics metrics.Recorder
}

// Outcome describes what EnsureWorkspace did.
type Outcome struct {
	// CreatedNew is set when this call cloned the repository.
	CreatedNew bool
	// ReusedExisting is set when a registered or on-disk checkout was reused.
	ReusedExisting bool
	// BranchCreated is set when the local conversation branch was created.
	BranchCreated bool
	// RemoteBranchFound is set when the remote already had the branch and it
	// was pulled. It is not computed on the registry fast path.
	RemoteBranchFound bool
	// Warning carries the SyncWarning that setup recovered from, if any.
	Warning error
}

// Change is one file write of a change set.
type Change struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// PullRequest holds the arguments of CreatePR. An empty Base means the
// configured base branch.
type PullRequest struct {
	Title string
	Body  string
	Base  string
}

// Manager owns the Store and drives the git and pull request clients.
// Operations on different conversations run independently; operations on
// the same conversation are serialized.
type Manager struct {
	repo    RepositoryClient
	prs     PullRequestClient
	policy  branch.Policy
	repoURL string
	owner   string
	name    string
	base    string
	remote  string
	store   Store
	metrics metrics.Recorder

	locks  *keyedMutex
	flight singleflight.Group

	sharedMu     sync.Mutex
	sharedFlight singleflight.Group
}

type ensureResult struct {
	state   State
	outcome Outcome
}

// NewManager validates opts and returns a Manager.
func NewManager(repo RepositoryClient, prs PullRequestClient, opts Options) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("repository client is required")
	}
	if prs == nil {
		return nil, errors.New("pull request client is required")
	}
	if strings.TrimSpace(opts.RepoURL) == "" {
		return nil, errors.New("repository URL is required")
	}
	if strings.TrimSpace(opts.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	if pathutil.IsFilesystemRoot(opts.BaseDir) {
		return nil, fmt.Errorf("base directory cannot be filesystem root: %q", opts.BaseDir)
	}
	baseDir, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	m := &Manager{
		repo:    repo,
		prs:     prs,
		policy:  branch.NewPolicy(baseDir, opts.BranchPrefix),
		repoURL: opts.RepoURL,
		owner:   opts.Owner,
		name:    opts.Repo,
		base:    opts.BaseBranch,
		remote:  opts.Remote,
		store:   opts.Store,
		metrics: opts.Metrics,
		locks:   newKeyedMutex(),
	}
	if m.base == "" {
		m.base = DefaultBaseBranch
	}
	if m.remote == "" {
		m.remote = git.DefaultRemote
	}
	if m.store == nil {
		m.store = NewRegistry()
	}
	if m.metrics == nil {
		m.metrics = metrics.NoopRecorder{}
	}
	return m, nil
}

// Policy returns the naming policy used for branches and paths.
func (m *Manager) Policy() branch.Policy { return m.policy }

// BaseBranch returns the default pull request base.
func (m *Manager) BaseBranch() string { return m.base }

// Active returns the ids of all registered conversations.
func (m *Manager) Active() []string { return m.store.List() }

func (m *Manager) observe(op string, start time.Time, err *error) {
	m.metrics.ObserveOperation(op, time.Since(start), *err)
}

func normalizeID(op, conversationID string) (string, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return "", newError(op, InvalidInput, "", branch.ErrEmptyConversationID)
	}
	return id, nil
}

// EnsureWorkspace returns the conversation's workspace, cloning the
// repository and creating the branch on first use. It is idempotent: a
// registered workspace whose directory still exists is returned without any
// network call. Concurrent first calls for the same id share one clone.
func (m *Manager) EnsureWorkspace(ctx context.Context, conversationID string) (state State, outcome Outcome, err error) {
	defer m.observe("ensure_workspace", time.Now(), &err)

	id, err := normalizeID("ensure_workspace", conversationID)
	if err != nil {
		return State{}, Outcome{}, err
	}

	v, err, _ := m.flight.Do(id, func() (interface{}, error) {
		unlock := m.locks.Lock(id)
		defer unlock()

		st, out, err := m.ensureLocked(ctx, id)
		return ensureResult{state: st, outcome: out}, err
	})
	if err != nil {
		return State{}, Outcome{}, err
	}
	res := v.(ensureResult)
	return res.state, res.outcome, nil
}

// ensureLocked does the work of EnsureWorkspace. The caller holds the key lock.
func (m *Manager) ensureLocked(ctx context.Context, id string) (State, Outcome, error) {
	const op = "ensure_workspace"

	if st, ok := m.store.Get(id); ok && dirExists(st.LocalPath) {
		return st, Outcome{ReusedExisting: true}, nil
	}

	branchName, path, err := m.policy.Resolve(id)
	if err != nil {
		return State{}, Outcome{}, newError(op, InvalidInput, id, err)
	}
	logger := log.With("conversation_id", id, "branch", branchName, "path", path)

	var out Outcome
	switch {
	case !dirExists(path):
		if err := m.clone(ctx, path); err != nil {
			return State{}, Outcome{}, newError(op, SetupFailure, id, err)
		}
		out.CreatedNew = true
	case !m.repo.IsRepository(path):
		// leftover from an interrupted clone
		logger.Warnw("removing incomplete workspace directory")
		if err := m.removeWorkspaceDir(path); err != nil {
			return State{}, Outcome{}, newError(op, SetupFailure, id, err)
		}
		if err := m.clone(ctx, path); err != nil {
			return State{}, Outcome{}, newError(op, SetupFailure, id, err)
		}
		out.CreatedNew = true
	default:
		out.ReusedExisting = true
		if err := m.repo.Fetch(ctx, path); err != nil {
			return State{}, Outcome{}, newError(op, SetupFailure, id, err)
		}
	}

	created, err := m.repo.CheckoutLocalBranch(ctx, path, branchName)
	if err != nil {
		return State{}, Outcome{}, newError(op, SetupFailure, id, err)
	}
	out.BranchCreated = created

	err = m.repo.Pull(ctx, path, m.remote, branchName)
	switch {
	case err == nil:
		out.RemoteBranchFound = true
	case errors.Is(err, git.ErrRemoteBranchNotFound):
		out.Warning = newError(op, SyncWarning, id, err)
		logger.Infow("remote branch does not exist yet, continuing on local branch")
	case errors.Is(err, git.ErrLocalChanges), errors.Is(err, git.ErrNonFastForward):
		out.RemoteBranchFound = true
		out.Warning = newError(op, SyncWarning, id, err)
		logger.Warnw("could not sync with remote branch, continuing on local branch", "error", err)
	default:
		return State{}, Outcome{}, newError(op, SetupFailure, id, err)
	}

	st := State{LocalPath: path, BranchName: branchName}
	m.store.Put(id, st)
	m.metrics.SetActiveWorkspaces(m.store.Len())
	logger.Infow("workspace ready",
		"created", out.CreatedNew,
		"branch_created", out.BranchCreated,
		"remote_branch_found", out.RemoteBranchFound)
	return st, out, nil
}

func (m *Manager) clone(ctx context.Context, path string) error {
	err := m.repo.Clone(ctx, m.repoURL, path)
	m.metrics.IncClone(err == nil)
	return err
}

// ApplyChanges writes every change into the conversation's workspace, in
// order. All paths are validated before anything is written. A write error
// stops the remaining writes; files written before it stay on disk and the
// error reports how many were applied. Nothing is staged or committed.
func (m *Manager) ApplyChanges(ctx context.Context, conversationID string, changes []Change) (err error) {
	const op = "apply_changes"
	defer m.observe(op, time.Now(), &err)

	id, err := normalizeID(op, conversationID)
	if err != nil {
		return err
	}
	path, err := m.policy.WorkspacePath(id)
	if err != nil {
		return newError(op, InvalidInput, id, err)
	}
	targets := make([]string, len(changes))
	for i, ch := range changes {
		full, err := pathutil.SafeJoin(path, ch.Path)
		if err != nil {
			return newError(op, InvalidPath, id, err)
		}
		targets[i] = full
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	if _, _, err := m.ensureLocked(ctx, id); err != nil {
		return err
	}

	for i, target := range targets {
		if err := writeFile(path, target, changes[i].Content); err != nil {
			kind := WriteFailure
			if errors.Is(err, pathutil.ErrSymlink) || errors.Is(err, pathutil.ErrEscapesRoot) {
				kind = InvalidPath
			}
			return newError(op, kind, id,
				fmt.Errorf("applied %d of %d changes: %s: %w", i, len(changes), changes[i].Path, err))
		}
	}
	log.Debug("changes applied", "conversation_id", id, "count", len(changes))
	return nil
}

func writeFile(root, target, content string) error {
	if err := pathutil.CheckWritable(root, target); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := pathutil.CheckWritable(root, target); err != nil {
		return err
	}
	return os.WriteFile(target, []byte(content), 0o644)
}

// CommitAndPush stages everything in the workspace, commits it with message
// and pushes the branch. It never forces: a diverged remote is a PushFailure.
func (m *Manager) CommitAndPush(ctx context.Context, conversationID, message string) (err error) {
	const op = "commit_and_push"
	defer m.observe(op, time.Now(), &err)

	id, err := normalizeID(op, conversationID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return newError(op, InvalidInput, id, errors.New("commit message is required"))
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	st, _, err := m.ensureLocked(ctx, id)
	if err != nil {
		return err
	}
	if err := m.repo.StageAll(ctx, st.LocalPath); err != nil {
		return newError(op, CommitFailure, id, err)
	}
	hash, err := m.repo.Commit(ctx, st.LocalPath, message)
	if err != nil {
		return newError(op, CommitFailure, id, err)
	}
	if err := m.repo.Push(ctx, st.LocalPath, m.remote, st.BranchName); err != nil {
		return newError(op, PushFailure, id, err)
	}
	log.Info("changes pushed", "conversation_id", id, "branch", st.BranchName, "commit", hash)
	return nil
}

// CreatePR opens a pull request from the conversation's branch and returns
// its URL. Errors from the hosting API, including an already existing pull
// request, are returned unchanged inside a PRFailure.
func (m *Manager) CreatePR(ctx context.Context, conversationID string, pr PullRequest) (url string, err error) {
	const op = "create_pr"
	defer m.observe(op, time.Now(), &err)

	id, err := normalizeID(op, conversationID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(pr.Title) == "" {
		return "", newError(op, InvalidInput, id, errors.New("pull request title is required"))
	}
	base := strings.TrimSpace(pr.Base)
	if base == "" {
		base = m.base
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	st, _, err := m.ensureLocked(ctx, id)
	if err != nil {
		return "", err
	}
	url, err = m.prs.CreatePullRequest(ctx, m.owner, m.name, st.BranchName, base, pr.Title, pr.Body)
	if err != nil {
		return "", newError(op, PRFailure, id, err)
	}
	log.Info("pull request created", "conversation_id", id, "head", st.BranchName, "base", base, "url", url)
	return url, nil
}

// Cleanup deletes the conversation's directory and forgets its registry
// entry. A conversation without a workspace is not an error; removed reports
// whether anything was deleted. The directory is derived from the id when
// the registry has no entry, so a restarted process can still clean up.
func (m *Manager) Cleanup(ctx context.Context, conversationID string) (removed bool, err error) {
	const op = "cleanup"
	defer m.observe(op, time.Now(), &err)

	id, err := normalizeID(op, conversationID)
	if err != nil {
		return false, err
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	path, err := m.policy.WorkspacePath(id)
	if err != nil {
		return false, newError(op, InvalidInput, id, err)
	}
	paths := []string{path}
	if st, ok := m.store.Get(id); ok && st.LocalPath != path {
		paths = append(paths, st.LocalPath)
	}

	for _, p := range paths {
		if !dirExists(p) {
			continue
		}
		if err := m.removeWorkspaceDir(p); err != nil {
			return removed, newError(op, CleanupFailure, id, err)
		}
		removed = true
	}
	m.store.Delete(id)
	m.metrics.SetActiveWorkspaces(m.store.Len())

	if removed {
		log.Info("workspace removed", "conversation_id", id, "path", path)
	} else {
		log.Debug("no workspace to clean up", "conversation_id", id)
	}
	return removed, nil
}

// removeWorkspaceDir refuses to delete anything that is not a conversation
// directory under the base directory.
func (m *Manager) removeWorkspaceDir(path string) error {
	if !pathutil.StrictlyWithin(m.policy.BaseDir, path) || filepath.Clean(path) == m.policy.SharedPath() {
		return fmt.Errorf("refusing to remove %s: not a workspace under %s", path, m.policy.BaseDir)
	}
	return removeAll(path)
}

// WorkspaceExists reports whether the conversation's directory is on disk.
func (m *Manager) WorkspaceExists(conversationID string) bool {
	id := strings.TrimSpace(conversationID)
	if st, ok := m.store.Get(id); ok && dirExists(st.LocalPath) {
		return true
	}
	path, err := m.policy.WorkspacePath(id)
	if err != nil {
		return false
	}
	return dirExists(path)
}

// Inspection is a local, network-free view of a conversation's workspace.
type Inspection struct {
	ConversationID string `json:"conversation_id" yaml:"conversation_id"`
	LocalPath      string `json:"local_path" yaml:"local_path"`
	BranchName     string `json:"branch_name" yaml:"branch_name"`
	Registered     bool   `json:"registered" yaml:"registered"`
	Exists         bool   `json:"exists" yaml:"exists"`
	CurrentBranch  string `json:"current_branch,omitempty" yaml:"current_branch,omitempty"`
}

// Inspect reports the derived and registered state of a conversation.
func (m *Manager) Inspect(conversationID string) (Inspection, error) {
	id, err := normalizeID("inspect", conversationID)
	if err != nil {
		return Inspection{}, err
	}
	branchName, path, err := m.policy.Resolve(id)
	if err != nil {
		return Inspection{}, newError("inspect", InvalidInput, id, err)
	}
	in := Inspection{ConversationID: id, LocalPath: path, BranchName: branchName}
	if st, ok := m.store.Get(id); ok {
		in.Registered = true
		in.LocalPath = st.LocalPath
		in.BranchName = st.BranchName
	}
	in.Exists = dirExists(in.LocalPath)
	if in.Exists && m.repo.IsRepository(in.LocalPath) {
		if cur, err := m.repo.CurrentBranch(in.LocalPath); err == nil {
			in.CurrentBranch = cur
		}
	}
	return in, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
