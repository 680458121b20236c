package workspace

import (
	"sort"
	"sync"
)

// State is the workspace of one conversation.
type State struct {
	LocalPath  string `json:"local_path" yaml:"local_path"`
	BranchName string `json:"branch_name" yaml:"branch_name"`
}

// Store holds at most one State per conversation id. The Manager owns the
// store it is given; implementations must be safe for concurrent use.
type Store interface {
	Get(conversationID string) (State, bool)
	Put(conversationID string, state State)
	Delete(conversationID string)
	List() []string
	Len() int
}

// Registry is the in-memory Store. Its contents are lost on restart; the
// checkouts on disk are re-attached by deriving the same paths again.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]State
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]State)}
}

// Get retrieves the state for a conversation.
func (r *Registry) Get(conversationID string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.entries[conversationID]
	return s, ok
}

// Put replaces the state for a conversation.
func (r *Registry) Put(conversationID string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[conversationID] = state
}

// Delete removes a conversation. Deleting an unknown id is a no-op.
func (r *Registry) Delete(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, conversationID)
}

// List returns all registered conversation ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
