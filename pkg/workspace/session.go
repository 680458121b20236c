package workspace

import "context"

// Session is the Manager bound to one conversation. Tool adapters and docs
// readers hold a Session so the conversation id cannot be swapped per call.
type Session struct {
	m  *Manager
	id string
}

// Session returns the operations of conversationID.
func (m *Manager) Session(conversationID string) *Session {
	return &Session{m: m, id: conversationID}
}

func (s *Session) ConversationID() string { return s.id }

func (s *Session) EnsureWorkspace(ctx context.Context) (State, Outcome, error) {
	return s.m.EnsureWorkspace(ctx, s.id)
}

func (s *Session) ApplyChanges(ctx context.Context, changes []Change) error {
	return s.m.ApplyChanges(ctx, s.id, changes)
}

func (s *Session) CommitAndPush(ctx context.Context, message string) error {
	return s.m.CommitAndPush(ctx, s.id, message)
}

// CreatePR opens a pull request; an empty base means the configured base branch.
func (s *Session) CreatePR(ctx context.Context, title, body, base string) (string, error) {
	return s.m.CreatePR(ctx, s.id, PullRequest{Title: title, Body: body, Base: base})
}

func (s *Session) Cleanup(ctx context.Context) (bool, error) {
	return s.m.Cleanup(ctx, s.id)
}

func (s *Session) DocsPath(ctx context.Context) (DocsLocation, error) {
	return s.m.DocsPath(ctx, s.id)
}
