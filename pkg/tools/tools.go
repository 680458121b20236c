// Package tools exposes a conversation's workspace operations as named
// actions with JSON-schema parameters, each answering with a short status
// line for the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holon-run/docsagent/pkg/docs"
	"github.com/holon-run/docsagent/pkg/github"
	"github.com/holon-run/docsagent/pkg/log"
	"github.com/holon-run/docsagent/pkg/redact"
	"github.com/holon-run/docsagent/pkg/workspace"
)

// Tool names.
const (
	CloneRepo     = "clone_repo"
	ApplyChanges  = "apply_changes"
	CommitAndPush = "commit_and_push"
	CreatePR      = "create_pr"
	Cleanup       = "cleanup"
	ReadFile      = "read_file"
	ListFiles     = "list_files"
	EditFile      = "edit_file"
)

// Workspace is the capability set behind the write tools, bound to one
// conversation. *workspace.Session implements it.
type Workspace interface {
	EnsureWorkspace(ctx context.Context) (workspace.State, workspace.Outcome, error)
	ApplyChanges(ctx context.Context, changes []workspace.Change) error
	CommitAndPush(ctx context.Context, message string) error
	CreatePR(ctx context.Context, title, body, base string) (string, error)
	Cleanup(ctx context.Context) (bool, error)
}

// Docs is the capability set behind the read tools. *docs.Reader implements it.
type Docs interface {
	ReadFiles(ctx context.Context, paths []string) ([]docs.File, error)
	ListFiles(ctx context.Context, dir string) ([]string, error)
	EditFile(ctx context.Context, path, content string) (workspace.DocsLocation, error)
	NoteWrite()
	Invalidate()
}

// Definition describes a tool to an agent runtime.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters"`
}

// Result is what a tool call hands back to the agent.
type Result struct {
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

type handler func(ctx context.Context, args json.RawMessage) (string, error)

// Set is the tool set of one conversation.
type Set struct {
	ws        Workspace
	docs      Docs
	redactor  *redact.Redactor
	onCleanup func()
	handlers  map[string]handler
}

// NewSet binds the tools to ws and d. The redactor scrubs error text.
func NewSet(ws Workspace, d Docs, redactor *redact.Redactor) *Set {
	s := &Set{ws: ws, docs: d, redactor: redactor}
	s.handlers = map[string]handler{
		CloneRepo:     s.cloneRepo,
		ApplyChanges:  s.applyChanges,
		CommitAndPush: s.commitAndPush,
		CreatePR:      s.createPR,
		Cleanup:       s.cleanup,
		ReadFile:      s.readFile,
		ListFiles:     s.listFiles,
		EditFile:      s.editFile,
	}
	return s
}

// Definitions returns the tool definitions in a stable order.
func Definitions() []Definition {
	change := object([]string{"path", "content"}, map[string]*Schema{
		"path":    str("File path relative to the repository root."),
		"content": str("Complete new content of the file."),
	})
	return []Definition{
		{
			Name:        CloneRepo,
			Description: "Prepare this conversation's workspace: clone the documentation repository and check out the conversation branch.",
			Parameters:  object(nil, nil),
		},
		{
			Name:        ApplyChanges,
			Description: "Write files into the workspace. Each change replaces the whole file. Nothing is committed.",
			Parameters: object([]string{"changes"}, map[string]*Schema{
				"changes": array("Files to write, in order.", change),
			}),
		},
		{
			Name:        CommitAndPush,
			Description: "Commit every change in the workspace and push the conversation branch.",
			Parameters: object([]string{"message"}, map[string]*Schema{
				"message": str("Commit message."),
			}),
		},
		{
			Name:        CreatePR,
			Description: "Open a pull request from the conversation branch.",
			Parameters: object([]string{"title", "body"}, map[string]*Schema{
				"title": str("Pull request title."),
				"body":  str("Pull request description."),
				"base":  str("Branch to merge into. Defaults to the repository's base branch."),
			}),
		},
		{
			Name:        Cleanup,
			Description: "Delete this conversation's local workspace.",
			Parameters:  object(nil, nil),
		},
		{
			Name:        ReadFile,
			Description: "Read documentation files. Shows the base branch until this conversation has pushed its own changes.",
			Parameters: object([]string{"paths"}, map[string]*Schema{
				"paths": array("File paths relative to the repository root.", str("")),
			}),
		},
		{
			Name:        ListFiles,
			Description: "List documentation files below a directory.",
			Parameters: object(nil, map[string]*Schema{
				"path": str("Directory relative to the repository root. Defaults to the root."),
			}),
		},
		{
			Name:        EditFile,
			Description: "Replace one file and immediately commit and push it on the conversation branch.",
			Parameters: object([]string{"path", "content"}, map[string]*Schema{
				"path":    str("File path relative to the repository root."),
				"content": str("Complete new content of the file."),
			}),
		},
	}
}

// Call runs the named tool. Failures come back as an "Error: ..." result
// rather than a Go error so the agent can read them.
func (s *Set) Call(ctx context.Context, name string, args json.RawMessage) Result {
	h, ok := s.handlers[name]
	if !ok {
		return s.failure(fmt.Errorf("unknown tool %q", name))
	}
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	out, err := h(ctx, args)
	if err != nil {
		log.Warn("tool call failed", "tool", name, "kind", workspace.KindOf(err).String(), "error", s.redactor.Error(err))
		return s.failure(err)
	}
	log.Debug("tool call succeeded", "tool", name)
	return Result{Output: out}
}

func (s *Set) failure(err error) Result {
	return Result{Output: "Error: " + s.redactor.Error(err), IsError: true}
}

func decode(name string, args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return nil
}

func (s *Set) cloneRepo(ctx context.Context, _ json.RawMessage) (string, error) {
	st, _, err := s.ws.EnsureWorkspace(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Workspace ready at %s on branch %s.", st.LocalPath, st.BranchName), nil
}

func (s *Set) applyChanges(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Changes []workspace.Change `json:"changes"`
	}
	if err := decode(ApplyChanges, raw, &args); err != nil {
		return "", err
	}
	defer s.docs.NoteWrite()
	if err := s.ws.ApplyChanges(ctx, args.Changes); err != nil {
		return "", err
	}
	return "Changes applied.", nil
}

func (s *Set) commitAndPush(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Message string `json:"message"`
	}
	if err := decode(CommitAndPush, raw, &args); err != nil {
		return "", err
	}
	defer s.docs.NoteWrite()
	if err := s.ws.CommitAndPush(ctx, args.Message); err != nil {
		return "", err
	}
	return "Committed and pushed changes.", nil
}

func (s *Set) createPR(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Base  string `json:"base"`
	}
	if err := decode(CreatePR, raw, &args); err != nil {
		return "", err
	}
	url, err := s.ws.CreatePR(ctx, args.Title, args.Body, args.Base)
	if err != nil {
		if hint := github.Hint(err); hint != "" {
			return "", fmt.Errorf("%w (%s)", err, hint)
		}
		return "", err
	}
	return "PR created: " + url, nil
}

func (s *Set) cleanup(ctx context.Context, _ json.RawMessage) (string, error) {
	removed, err := s.ws.Cleanup(ctx)
	if err != nil {
		return "", err
	}
	s.docs.Invalidate()
	if s.onCleanup != nil {
		s.onCleanup()
	}
	if !removed {
		return "No workspace to clean up.", nil
	}
	return "Temporary directory removed.", nil
}

func (s *Set) readFile(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Paths []string `json:"paths"`
		Path  string   `json:"path"`
	}
	if err := decode(ReadFile, raw, &args); err != nil {
		return "", err
	}
	if args.Path != "" {
		args.Paths = append(args.Paths, args.Path)
	}
	if len(args.Paths) == 0 {
		return "", fmt.Errorf("at least one path is required")
	}
	files, err := s.docs.ReadFiles(ctx, args.Paths)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	failed := 0
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- %s ---\n", f.Path)
		if f.Err != nil {
			failed++
			fmt.Fprintf(&b, "Error: %s\n", s.redactor.Error(f.Err))
			continue
		}
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteString("\n")
		}
	}
	if failed == len(files) {
		return "", fmt.Errorf("could not read any file:\n%s", b.String())
	}
	return b.String(), nil
}

func (s *Set) listFiles(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := decode(ListFiles, raw, &args); err != nil {
		return "", err
	}
	files, err := s.docs.ListFiles(ctx, args.Path)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "No files found.", nil
	}
	return strings.Join(files, "\n"), nil
}

func (s *Set) editFile(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decode(EditFile, raw, &args); err != nil {
		return "", err
	}
	loc, err := s.docs.EditFile(ctx, args.Path, args.Content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %s on branch %s.", args.Path, loc.Branch), nil
}
