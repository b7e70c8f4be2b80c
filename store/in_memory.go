package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wanderplan/wanderplan/core"
)

// InMemoryStore is a volatile Store implementation keeping run records in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups. Each returned record is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Record
}

// NewInMemoryStore constructs an empty in-memory run store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]Record)}
}

// CreateRun inserts a new pending record; a duplicate run id is an error.
func (s *InMemoryStore) CreateRun(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[rec.RunID]; ok {
		return fmt.Errorf("run %q already exists", rec.RunID)
	}
	s.runs[rec.RunID] = cloneRecord(rec)
	return nil
}

// UpdateRun transitions the status of an existing run.
func (s *InMemoryStore) UpdateRun(_ context.Context, runID string, status Status, st *core.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	if status == StatusRunning && rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if st != nil {
		rec.ApplyState(st)
	}
	s.runs[runID] = cloneRecord(rec)
	return nil
}

// CompleteRun writes the terminal record for an existing run.
func (s *InMemoryStore) CompleteRun(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.runs[rec.RunID]
	if !ok {
		return ErrNotFound
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = prev.StartedAt
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}
	s.runs[rec.RunID] = cloneRecord(rec)
	return nil
}

// GetRun returns a clone of the record for the given run id.
func (s *InMemoryStore) GetRun(_ context.Context, runID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func cloneRecord(rec Record) Record {
	cp := rec
	cp.Invocations = append([]core.ToolInvocation(nil), rec.Invocations...)
	cp.Citations = append([]core.Citation(nil), rec.Citations...)
	cp.NodeEvents = append([]core.NodeEvent(nil), rec.NodeEvents...)
	return cp
}
