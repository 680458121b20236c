package tools

import (
	"sync"

	"github.com/holon-run/docsagent/pkg/docs"
	"github.com/holon-run/docsagent/pkg/redact"
	"github.com/holon-run/docsagent/pkg/workspace"
)

// Provider hands out one Set per conversation and keeps it, so the
// conversation's reader state survives between calls.
type Provider struct {
	manager  *workspace.Manager
	redactor *redact.Redactor

	mu   sync.Mutex
	sets map[string]*Set
}

// NewProvider returns a Provider over manager.
func NewProvider(manager *workspace.Manager, redactor *redact.Redactor) *Provider {
	return &Provider{manager: manager, redactor: redactor, sets: make(map[string]*Set)}
}

// For returns the Set of conversationID, creating it on first use. A
// successful cleanup drops the Set.
func (p *Provider) For(conversationID string) *Set {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sets[conversationID]; ok {
		return s
	}
	session := p.manager.Session(conversationID)
	s := NewSet(session, docs.NewReader(session), p.redactor)
	s.onCleanup = func() { p.forget(conversationID) }
	p.sets[conversationID] = s
	return s
}

func (p *Provider) forget(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sets, conversationID)
}

// Len returns the number of conversations with a live Set.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sets)
}
