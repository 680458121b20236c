package docs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/holon-run/docsagent/internal/gittest"
	"github.com/holon-run/docsagent/pkg/git"
	"github.com/holon-run/docsagent/pkg/pathutil"
	"github.com/holon-run/docsagent/pkg/workspace"
)

type noPRs struct{}

func (noPRs) CreatePullRequest(context.Context, string, string, string, string, string, string) (string, error) {
	return "", errors.New("not used")
}

func newManager(t *testing.T) (*workspace.Manager, string) {
	t.Helper()
	remote := gittest.NewRemote(t, map[string]string{
		"README.md":            "# docs\n",
		"docs/intro.md":        "intro\n",
		"docs/guides/setup.md": "setup\n",
	})
	m, err := workspace.NewManager(
		git.NewClient(git.Options{Author: git.Author{Name: "T", Email: "t@example.com"}}),
		noPRs{},
		workspace.Options{RepoURL: remote, BaseDir: filepath.Join(t.TempDir(), "ws")},
	)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, remote
}

func TestReader_StartsShared(t *testing.T) {
	m, _ := newManager(t)
	r := NewReader(m.Session("abc"))
	ctx := context.Background()

	if r.State() != Unresolved {
		t.Fatalf("State() = %v, want unresolved", r.State())
	}
	loc, err := r.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.State() != Shared || !loc.IsMainBranch {
		t.Errorf("after Resolve() state = %v, loc = %+v, want shared", r.State(), loc)
	}

	files, err := r.ListFiles(ctx, "")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	want := []string{"README.md", "docs/guides/setup.md", "docs/intro.md"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("ListFiles() = %v, want %v", files, want)
	}

	files, err = r.ListFiles(ctx, "docs/guides")
	if err != nil || !reflect.DeepEqual(files, []string{"docs/guides/setup.md"}) {
		t.Errorf("ListFiles(docs/guides) = (%v, %v)", files, err)
	}
}

func TestReader_ReadFiles(t *testing.T) {
	m, _ := newManager(t)
	r := NewReader(m.Session("abc"))

	files, err := r.ReadFiles(context.Background(), []string{"docs/intro.md", "missing.md", "../etc/passwd"})
	if err != nil {
		t.Fatalf("ReadFiles() error = %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("ReadFiles() returned %d files, want 3", len(files))
	}
	if files[0].Err != nil || files[0].Content != "intro\n" {
		t.Errorf("files[0] = %+v, want intro content", files[0])
	}
	if files[1].Err == nil {
		t.Error("files[1] should report a missing file")
	}
	if !errors.Is(files[2].Err, pathutil.ErrEscapesRoot) {
		t.Errorf("files[2].Err = %v, want ErrEscapesRoot", files[2].Err)
	}
}

func TestReader_ReadFilesStaysInsideCheckout(t *testing.T) {
	m, _ := newManager(t)
	r := NewReader(m.Session("abc"))
	ctx := context.Background()

	loc, err := r.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(loc.Path, "leak.md")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink("docs/intro.md", filepath.Join(loc.Path, "alias.md")); err != nil {
		t.Fatal(err)
	}

	files, err := r.ReadFiles(ctx, []string{"leak.md", "alias.md"})
	if err != nil {
		t.Fatalf("ReadFiles() error = %v", err)
	}
	if !errors.Is(files[0].Err, pathutil.ErrEscapesRoot) || files[0].Content != "" {
		t.Errorf("files[0] = %+v, want ErrEscapesRoot", files[0])
	}
	if files[1].Err != nil || files[1].Content != "intro\n" {
		t.Errorf("files[1] = %+v, want intro content through the in-repo link", files[1])
	}
}

func TestReader_EditMovesToDedicated(t *testing.T) {
	m, remote := newManager(t)
	r := NewReader(m.Session("abc"))
	ctx := context.Background()

	shared, err := r.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}

	loc, err := r.EditFile(ctx, "docs/intro.md", "edited\n")
	if err != nil {
		t.Fatalf("EditFile() error = %v", err)
	}
	if r.State() != Dedicated || loc.IsMainBranch || loc.Path == shared.Path {
		t.Errorf("after EditFile() state = %v, loc = %+v", r.State(), loc)
	}
	if loc.Branch != "docs-agent/abc" {
		t.Errorf("Branch = %q, want docs-agent/abc", loc.Branch)
	}

	got, ok := gittest.ReadFile(t, remote, "docs-agent/abc", "docs/intro.md")
	if !ok || got != "edited\n" {
		t.Errorf("remote intro.md = (%q, %v), want edited", got, ok)
	}
	if msg := strings.TrimSpace(gittest.HeadMessage(t, remote, "docs-agent/abc")); msg != "Update docs/intro.md" {
		t.Errorf("commit message = %q, want Update docs/intro.md", msg)
	}

	files, err := r.ReadFiles(ctx, []string{"docs/intro.md"})
	if err != nil || files[0].Content != "edited\n" {
		t.Errorf("ReadFiles() after edit = (%+v, %v), want edited content", files, err)
	}

	sharedFiles, err := NewReader(m.Session("other")).ReadFiles(ctx, []string{"docs/intro.md"})
	if err != nil || sharedFiles[0].Content != "intro\n" {
		t.Errorf("other conversation sees %+v (%v), want original content", sharedFiles, err)
	}
}

// stubSession drives the state machine without git.
type stubSession struct {
	locs     []workspace.DocsLocation
	calls    int
	applied  []workspace.Change
	applyErr error
}

func (s *stubSession) ConversationID() string { return "stub" }

func (s *stubSession) DocsPath(context.Context) (workspace.DocsLocation, error) {
	loc := s.locs[min(s.calls, len(s.locs)-1)]
	s.calls++
	return loc, nil
}

func (s *stubSession) ApplyChanges(_ context.Context, changes []workspace.Change) error {
	s.applied = append(s.applied, changes...)
	return s.applyErr
}

func (s *stubSession) CommitAndPush(context.Context, string) error { return nil }

func TestReader_ApplyMovesToDedicated(t *testing.T) {
	m, _ := newManager(t)
	session := m.Session("abc")
	r := NewReader(session)
	ctx := context.Background()

	if _, err := r.Resolve(ctx); err != nil {
		t.Fatal(err)
	}
	if err := session.ApplyChanges(ctx, []workspace.Change{{Path: "docs/intro.md", Content: "draft\n"}}); err != nil {
		t.Fatal(err)
	}
	r.NoteWrite()

	files, err := r.ReadFiles(ctx, []string{"docs/intro.md"})
	if err != nil || files[0].Err != nil || files[0].Content != "draft\n" {
		t.Fatalf("ReadFiles() after apply = (%+v, %v), want the draft", files, err)
	}
	if r.State() != Dedicated {
		t.Errorf("State() = %v, want dedicated", r.State())
	}
}

func TestReader_NoteWriteKeepsDedicatedCached(t *testing.T) {
	s := &stubSession{locs: []workspace.DocsLocation{{Path: "/ws/abc", Branch: "docs-agent/abc"}}}
	r := NewReader(s)
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.NoteWrite()
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.calls != 1 || r.State() != Dedicated {
		t.Errorf("DocsPath called %d times, state %v; want one call and dedicated", s.calls, r.State())
	}

	shared := &stubSession{locs: []workspace.DocsLocation{{Path: "/shared", IsMainBranch: true}}}
	r = NewReader(shared)
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.NoteWrite()
	if r.State() != Unresolved {
		t.Errorf("State() after a write from shared = %v, want unresolved", r.State())
	}
}

func TestReader_ResolveIsCached(t *testing.T) {
	s := &stubSession{locs: []workspace.DocsLocation{{Path: "/shared", IsMainBranch: true}}}
	r := NewReader(s)
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if s.calls != 1 {
		t.Errorf("DocsPath called %d times, want 1", s.calls)
	}
	r.Invalidate()
	if r.State() != Unresolved {
		t.Errorf("State() after Invalidate = %v", r.State())
	}
}

func TestReader_EditFailureLeavesUnresolved(t *testing.T) {
	s := &stubSession{
		locs:     []workspace.DocsLocation{{Path: "/shared", IsMainBranch: true}},
		applyErr: errors.New("disk full"),
	}
	r := NewReader(s)
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.EditFile(context.Background(), "a.md", "x"); err == nil {
		t.Fatal("EditFile() error = nil, want apply error")
	}
	if r.State() != Unresolved {
		t.Errorf("State() = %v, want unresolved after failed edit", r.State())
	}
}

func TestReader_EditThatStaysSharedFails(t *testing.T) {
	s := &stubSession{locs: []workspace.DocsLocation{{Path: "/shared", IsMainBranch: true}}}
	r := NewReader(s)
	if _, err := r.EditFile(context.Background(), "a.md", "x"); !errors.Is(err, ErrStillShared) {
		t.Errorf("EditFile() error = %v, want ErrStillShared", err)
	}
	if len(s.applied) != 1 || s.applied[0].Path != "a.md" {
		t.Errorf("applied = %+v", s.applied)
	}
}
