package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/holon-run/docsagent/internal/gittest"
)

func cloneFixture(t *testing.T, files map[string]string) (*Client, string, string) {
	t.Helper()
	remote := gittest.NewRemote(t, files)
	c := NewClient(Options{Author: Author{Name: "Test", Email: "test@example.com"}})
	dir := filepath.Join(t.TempDir(), "ws")
	if err := c.Clone(context.Background(), remote, dir); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	return c, remote, dir
}

func TestClient_CloneAndCheckoutLocalBranch(t *testing.T) {
	ctx := context.Background()
	c, _, dir := cloneFixture(t, nil)

	if !c.IsRepository(dir) {
		t.Fatalf("IsRepository(%s) = false after clone", dir)
	}
	got, err := c.CurrentBranch(dir)
	if err != nil {
		t.Fatalf("CurrentBranch() error = %v", err)
	}
	if got != "main" {
		t.Errorf("CurrentBranch() = %q, want main", got)
	}

	created, err := c.CheckoutLocalBranch(ctx, dir, "docs-agent/a")
	if err != nil {
		t.Fatalf("CheckoutLocalBranch() error = %v", err)
	}
	if !created {
		t.Errorf("CheckoutLocalBranch() created = false, want true on first call")
	}

	created, err = c.CheckoutLocalBranch(ctx, dir, "docs-agent/a")
	if err != nil {
		t.Fatalf("CheckoutLocalBranch() second call error = %v", err)
	}
	if created {
		t.Errorf("CheckoutLocalBranch() created = true, want reuse on second call")
	}

	if _, err := c.CheckoutLocalBranch(ctx, dir, "main"); err != nil {
		t.Fatalf("CheckoutLocalBranch(main) error = %v", err)
	}
	created, err = c.CheckoutLocalBranch(ctx, dir, "docs-agent/a")
	if err != nil || created {
		t.Errorf("CheckoutLocalBranch() after switching away = (%v, %v), want (false, nil)", created, err)
	}
	if got, _ := c.CurrentBranch(dir); got != "docs-agent/a" {
		t.Errorf("CurrentBranch() = %q, want docs-agent/a", got)
	}
}

func TestClient_CheckoutLocalBranchStartsFromRemote(t *testing.T) {
	remote := gittest.NewRemote(t, nil)
	gittest.Commit(t, remote, "docs-agent/b", map[string]string{"guide.md": "from remote"})

	c := NewClient(Options{})
	dir := filepath.Join(t.TempDir(), "ws")
	ctx := context.Background()
	if err := c.Clone(ctx, remote, dir); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if _, err := c.CheckoutLocalBranch(ctx, dir, "docs-agent/b"); err != nil {
		t.Fatalf("CheckoutLocalBranch() error = %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "guide.md"))
	if err != nil {
		t.Fatalf("guide.md missing after checkout: %v", err)
	}
	if string(content) != "from remote" {
		t.Errorf("guide.md = %q, want %q", content, "from remote")
	}
	if err := c.Pull(ctx, dir, "", "docs-agent/b"); err != nil {
		t.Errorf("Pull() error = %v, want nil for up-to-date branch", err)
	}
}

func TestClient_CloneFailureLeavesNothing(t *testing.T) {
	c := NewClient(Options{})
	dir := filepath.Join(t.TempDir(), "ws")
	missing := filepath.Join(t.TempDir(), "does-not-exist.git")

	if err := c.Clone(context.Background(), missing, dir); err == nil {
		t.Fatalf("Clone() error = nil, want error for missing remote")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("destination %s exists after failed clone", dir)
	}
}

func TestClient_PullMissingRemoteBranch(t *testing.T) {
	ctx := context.Background()
	c, _, dir := cloneFixture(t, nil)
	if _, err := c.CheckoutLocalBranch(ctx, dir, "docs-agent/new"); err != nil {
		t.Fatalf("CheckoutLocalBranch() error = %v", err)
	}

	err := c.Pull(ctx, dir, "origin", "docs-agent/new")
	if !errors.Is(err, ErrRemoteBranchNotFound) {
		t.Errorf("Pull() error = %v, want ErrRemoteBranchNotFound", err)
	}
}

func TestClient_PullFastForward(t *testing.T) {
	ctx := context.Background()
	c, remote, dir := cloneFixture(t, nil)

	gittest.Commit(t, remote, "main", map[string]string{"new.md": "fresh"})
	if err := c.Pull(ctx, dir, "origin", "main"); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "new.md"))
	if err != nil || string(content) != "fresh" {
		t.Errorf("new.md = (%q, %v), want fresh", content, err)
	}
}

func TestClient_CommitAndPushRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, remote, dir := cloneFixture(t, nil)
	branch := "docs-agent/round"

	if _, err := c.CheckoutLocalBranch(ctx, dir, branch); err != nil {
		t.Fatalf("CheckoutLocalBranch() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.StageAll(ctx, dir); err != nil {
		t.Fatalf("StageAll() error = %v", err)
	}
	hash, err := c.Commit(ctx, dir, "update")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(hash) != 40 {
		t.Errorf("Commit() hash = %q, want 40 hex chars", hash)
	}
	if err := c.Push(ctx, dir, "origin", branch); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	got, ok := gittest.ReadFile(t, remote, branch, "readme.md")
	if !ok {
		t.Fatalf("readme.md missing on remote branch %s", branch)
	}
	if got != "hello" {
		t.Errorf("remote readme.md = %q, want hello", got)
	}
	if msg := gittest.HeadMessage(t, remote, branch); msg != "update" {
		t.Errorf("remote head message = %q, want update", msg)
	}

	exists, err := c.RemoteBranchExists(ctx, remote, branch)
	if err != nil {
		t.Fatalf("RemoteBranchExists() error = %v", err)
	}
	if !exists {
		t.Errorf("RemoteBranchExists(%s) = false after push", branch)
	}
	exists, err = c.RemoteBranchExists(ctx, remote, "docs-agent/never")
	if err != nil || exists {
		t.Errorf("RemoteBranchExists(never) = (%v, %v), want (false, nil)", exists, err)
	}
}

func TestClient_StageAllIncludesDeletions(t *testing.T) {
	ctx := context.Background()
	c, remote, dir := cloneFixture(t, map[string]string{"a.md": "a", "b.md": "b"})

	if err := os.Remove(filepath.Join(dir, "a.md")); err != nil {
		t.Fatal(err)
	}
	if err := c.StageAll(ctx, dir); err != nil {
		t.Fatalf("StageAll() error = %v", err)
	}
	if _, err := c.Commit(ctx, dir, "drop a"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := c.Push(ctx, dir, "", "main"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if _, ok := gittest.ReadFile(t, remote, "main", "a.md"); ok {
		t.Errorf("a.md still present on remote after deletion")
	}
}

func TestClient_CommitNothing(t *testing.T) {
	ctx := context.Background()
	c, _, dir := cloneFixture(t, nil)

	if err := c.StageAll(ctx, dir); err != nil {
		t.Fatalf("StageAll() error = %v", err)
	}
	if _, err := c.Commit(ctx, dir, "empty"); !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("Commit() error = %v, want ErrNothingToCommit", err)
	}
}

func TestClient_PushRejectsDivergedRemote(t *testing.T) {
	ctx := context.Background()
	c, remote, dir := cloneFixture(t, nil)
	branch := "docs-agent/diverge"

	if _, err := c.CheckoutLocalBranch(ctx, dir, branch); err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, c, dir, "one.md", "1")
	if err := c.Push(ctx, dir, "origin", branch); err != nil {
		t.Fatalf("first Push() error = %v", err)
	}

	gittest.Commit(t, remote, branch, map[string]string{"other.md": "someone else"})
	writeAndCommit(t, c, dir, "two.md", "2")

	err := c.Push(ctx, dir, "origin", branch)
	if !errors.Is(err, ErrNonFastForward) {
		t.Fatalf("Push() error = %v, want ErrNonFastForward", err)
	}
	var diverged *RemoteDivergedError
	if !errors.As(err, &diverged) {
		t.Fatalf("Push() error type = %T, want *RemoteDivergedError", err)
	}
	if diverged.Branch != branch {
		t.Errorf("RemoteDivergedError.Branch = %q, want %q", diverged.Branch, branch)
	}
	if _, ok := gittest.ReadFile(t, remote, branch, "two.md"); ok {
		t.Errorf("diverged push overwrote the remote branch")
	}
}

func TestClient_SyncToRemote(t *testing.T) {
	ctx := context.Background()
	c, remote, dir := cloneFixture(t, map[string]string{"index.md": "v1"})

	if err := os.WriteFile(filepath.Join(dir, "index.md"), []byte("local scribble"), 0o644); err != nil {
		t.Fatal(err)
	}
	gittest.Commit(t, remote, "main", map[string]string{"index.md": "v2"})

	if err := c.Fetch(ctx, dir); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if err := c.SyncToRemote(ctx, dir, "main"); err != nil {
		t.Fatalf("SyncToRemote() error = %v", err)
	}
	content, _ := os.ReadFile(filepath.Join(dir, "index.md"))
	if string(content) != "v2" {
		t.Errorf("index.md = %q, want v2", content)
	}

	if err := c.SyncToRemote(ctx, dir, "no-such-branch"); !errors.Is(err, ErrRemoteBranchNotFound) {
		t.Errorf("SyncToRemote(no-such-branch) error = %v, want ErrRemoteBranchNotFound", err)
	}
}

func writeAndCommit(t *testing.T, c *Client, dir, name, content string) {
	t.Helper()
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.StageAll(ctx, dir); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Commit(ctx, dir, "add "+name); err != nil {
		t.Fatal(err)
	}
}
