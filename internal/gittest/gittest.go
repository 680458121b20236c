// Package gittest builds throwaway bare repositories for tests. Everything is
// done through go-git so tests need neither a git binary nor the network; the
// bare repository path works directly as a clone URL.
package gittest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultBranch is the trunk branch of seeded remotes.
const DefaultBranch = "main"

var signature = object.Signature{Name: "tester", Email: "tester@example.com"}

// Seed creates a bare repository at dir whose main branch holds files.
func Seed(dir string, files map[string]string) error {
	if _, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		Bare:        true,
	}); err != nil {
		return fmt.Errorf("init bare: %w", err)
	}

	work, err := os.MkdirTemp("", "gittest-seed-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	repo, err := git.PlainInitWithOptions(work, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return fmt.Errorf("init seed: %w", err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{dir}}); err != nil {
		return fmt.Errorf("create remote: %w", err)
	}
	if len(files) == 0 {
		files = map[string]string{"README.md": "# docs\n"}
	}
	if _, err := commitFiles(repo, work, files, "initial commit"); err != nil {
		return err
	}
	if err := repo.Push(&git.PushOptions{RemoteName: "origin"}); err != nil {
		return fmt.Errorf("push seed: %w", err)
	}
	return nil
}

// NewRemote seeds a bare repository in a temp dir and returns its path.
func NewRemote(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote.git")
	if err := Seed(dir, files); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	return dir
}

// Commit pushes a commit with files onto branch of remote, creating the
// branch from main when it does not exist. It returns the new commit hash.
func Commit(t testing.TB, remote, branch string, files map[string]string) string {
	t.Helper()
	work := t.TempDir()
	repo, err := git.PlainClone(work, false, &git.CloneOptions{URL: remote})
	if err != nil {
		t.Fatalf("clone %s: %v", remote, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	ref := plumbing.NewBranchReferenceName(branch)
	opts := &git.CheckoutOptions{Branch: ref}
	if _, err := repo.Reference(ref, true); err != nil {
		opts.Create = true
		if tracking, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true); err == nil {
			opts.Hash = tracking.Hash()
		}
	}
	if err := wt.Checkout(opts); err != nil {
		t.Fatalf("checkout %s: %v", branch, err)
	}
	hash, err := commitFiles(repo, work, files, "update "+branch)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	spec := config.RefSpec(ref + ":" + ref)
	if err := repo.Push(&git.PushOptions{RemoteName: "origin", RefSpecs: []config.RefSpec{spec}}); err != nil {
		t.Fatalf("push %s: %v", branch, err)
	}
	return hash.String()
}

// ReadFile returns the content of path in the tip of branch on remote.
func ReadFile(t testing.TB, remote, branch, path string) (string, bool) {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	if err != nil {
		t.Fatalf("open %s: %v", remote, err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return "", false
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("commit %s: %v", ref.Hash(), err)
	}
	file, err := commit.File(path)
	if err != nil {
		return "", false
	}
	content, err := file.Contents()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content, true
}

// BranchExists reports whether remote has branch.
func BranchExists(t testing.TB, remote, branch string) bool {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	if err != nil {
		t.Fatalf("open %s: %v", remote, err)
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	return err == nil
}

// HeadMessage returns the commit message at the tip of branch on remote.
func HeadMessage(t testing.TB, remote, branch string) string {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	if err != nil {
		t.Fatalf("open %s: %v", remote, err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("branch %s: %v", branch, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return commit.Message
}

func commitFiles(repo *git.Repository, dir string, files map[string]string, msg string) (plumbing.Hash, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return plumbing.ZeroHash, err
		}
		if err := os.WriteFile(full, []byte(files[name]), 0o644); err != nil {
			return plumbing.ZeroHash, err
		}
		if _, err := wt.Add(name); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("add %s: %w", name, err)
		}
	}
	sig := signature
	sig.When = time.Now()
	return wt.Commit(msg, &git.CommitOptions{Author: &sig})
}
