package core

import "fmt"

// AlreadyFinalizedError is returned by RunState.Finalize when a terminal
// output has already been set.
type AlreadyFinalizedError struct {
	RunID string
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("run %s is already finalized", e.RunID)
}

// MaxIterationsError aborts a run whose reasoning/tool cycle exceeded the
// configured bound without producing a final answer.
type MaxIterationsError struct {
	Limit int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("reasoning loop exceeded %d iterations without a final answer", e.Limit)
}

// ReasoningUnavailableError aborts a run when the reasoning engine itself is
// unreachable, fails or times out. Tool failures never produce this error.
type ReasoningUnavailableError struct {
	Err error
}

func (e *ReasoningUnavailableError) Error() string {
	return fmt.Sprintf("reasoning engine unavailable: %v", e.Err)
}

// Unwrap exposes the underlying engine error.
func (e *ReasoningUnavailableError) Unwrap() error { return e.Err }

// PersistenceError reports a run-record write failure. It is surfaced to the
// caller but never re-enters the execution graph, and it does not invalidate
// an in-memory result that was already computed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying store error.
func (e *PersistenceError) Unwrap() error { return e.Err }
