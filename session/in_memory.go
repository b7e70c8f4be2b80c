package session

import (
	"context"
	"sync"

	"github.com/wanderplan/wanderplan/core"
)

// InMemoryStore is a volatile Store implementation keeping histories in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups. Returned histories are copies; mutating
// them does not affect the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Message
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]core.Message)}
}

// History returns a copy of the session's messages.
func (s *InMemoryStore) History(_ context.Context, sessionID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Message(nil), s.sessions[sessionID]...), nil
}

// Append adds messages to the session, creating it lazily.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, msgs ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

// Len returns the number of known sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
