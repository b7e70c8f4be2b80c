// Package runner is the orchestration entry point. A Runner binds an
// execution graph to a run store and exposes the two delivery modes over the
// same state machine: batch Run, which blocks until the final result, and
// streaming Stream, which hands back a channel of events terminated by a
// final-result or error event. Both modes persist the run record through its
// pending / running / terminal lifecycle.
package runner
