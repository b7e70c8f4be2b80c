// Package store persists run records: the lifecycle status of each run plus
// its terminal answer, tool log, citations and node timeline. Stores are
// collaborators of the runner; the graph never touches them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/wanderplan/wanderplan/core"
)

// ErrNotFound is returned when a run record does not exist.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a persisted run.
type Status string

const (
	// StatusPending marks a run record created but not yet executing.
	StatusPending Status = "pending"
	// StatusRunning marks a run currently driven by the graph.
	StatusRunning Status = "running"
	// StatusCompleted marks a run that produced a final answer.
	StatusCompleted Status = "completed"
	// StatusFailed marks a run aborted by a fatal error.
	StatusFailed Status = "failed"
	// StatusCancelled marks a run stopped by consumer cancellation.
	StatusCancelled Status = "cancelled"
)

// Running reports whether the status is non-terminal.
func (s Status) Running() bool { return s == StatusPending || s == StatusRunning }

// Record is the durable projection of one run.
type Record struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Status    Status `json:"status"`

	Answer     string `json:"answer,omitempty"`
	Structured any    `json:"structured,omitempty"`
	Error      string `json:"error,omitempty"`

	Iterations  int                   `json:"iterations"`
	Invocations []core.ToolInvocation `json:"tool_log,omitempty"`
	Citations   []core.Citation       `json:"citations,omitempty"`
	NodeEvents  []core.NodeEvent      `json:"timeline,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// NewRecord builds a pending record for a run about to start.
func NewRecord(runID, sessionID, userID string) Record {
	return Record{
		RunID:     runID,
		SessionID: sessionID,
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// ApplyState copies the trace of a run state into the record. The state must
// no longer be mutated by the run's goroutine; callers hand in a snapshot.
func (r *Record) ApplyState(st *core.RunState) {
	r.Iterations = st.Iterations
	r.Invocations = st.Invocations
	r.Citations = st.Citations
	r.NodeEvents = st.NodeEvents
	if out, ok := st.Final(); ok {
		r.Answer = out.Answer
		r.Structured = out.Structured
	}
}

// Store persists run records. Implementations must be safe for concurrent
// use; the runner calls them from per-run goroutines.
type Store interface {
	// CreateRun inserts a new record. The record's RunID must be unique.
	CreateRun(ctx context.Context, rec Record) error
	// UpdateRun transitions the status of an existing run. A nil state
	// updates the status only; otherwise the state trace is persisted too.
	UpdateRun(ctx context.Context, runID string, status Status, st *core.RunState) error
	// CompleteRun writes the terminal record (status, answer, tool log,
	// timeline) for an existing run.
	CompleteRun(ctx context.Context, rec Record) error
	// GetRun fetches a record by run id, or ErrNotFound.
	GetRun(ctx context.Context, runID string) (Record, error)
}
