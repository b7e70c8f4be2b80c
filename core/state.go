package core

import "time"

// NodeStatus is the terminal status of one node execution.
type NodeStatus string

const (
	// NodeSuccess marks a node execution that completed normally.
	NodeSuccess NodeStatus = "success"
	// NodeError marks a node execution that raised an error.
	NodeError NodeStatus = "error"
)

// NodeEvent records one execution of a graph node with wall-clock bounds.
type NodeEvent struct {
	Node      string     `json:"node"`
	Status    NodeStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
}

// ToolInvocation records one actual tool call: the resolved arguments, the
// outcome, a success flag and timings. Exactly one record is added per call.
type ToolInvocation struct {
	CallID      string         `json:"call_id"`
	Name        string         `json:"name"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Success     bool           `json:"success"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Duration returns the wall-clock time the invocation took.
func (ti ToolInvocation) Duration() time.Duration { return ti.CompletedAt.Sub(ti.StartedAt) }

// Citation attaches a source attribution to part of the final answer.
// CallID links back to the tool invocation that produced it, when any.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
	CallID  string `json:"call_id,omitempty"`
}

// Output is the terminal result of a run: the final answer text plus an
// optional structured projection produced by a formatting collaborator.
type Output struct {
	Answer     string `json:"answer"`
	Structured any    `json:"structured,omitempty"`
}

// RunState threads through one orchestration run: the append-only
// conversation history, recorded tool invocations, citations and the
// chronological node-event timeline. It is mutated exclusively by the run's
// own goroutine, so no locking is needed; see the package comment.
type RunState struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// Iterations counts completed reasoning turns and bounds the
	// reasoning/tool cycle.
	Iterations int `json:"iterations"`

	Messages    []Message        `json:"messages"`
	Invocations []ToolInvocation `json:"invocations"`
	Citations   []Citation       `json:"citations"`
	NodeEvents  []NodeEvent      `json:"node_events"`

	output *Output
}

// NewRunState creates the state for a single run.
func NewRunState(runID, sessionID, userID string) *RunState {
	return &RunState{RunID: runID, SessionID: sessionID, UserID: userID}
}

// AppendMessage adds a message to the conversation history.
func (s *RunState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// RecordToolResult adds one tool invocation record.
func (s *RunState) RecordToolResult(inv ToolInvocation) {
	s.Invocations = append(s.Invocations, inv)
}

// RecordCitation adds a source attribution.
func (s *RunState) RecordCitation(c Citation) {
	s.Citations = append(s.Citations, c)
}

// RecordNodeEvent appends one node execution record to the timeline.
func (s *RunState) RecordNodeEvent(ev NodeEvent) {
	s.NodeEvents = append(s.NodeEvents, ev)
}

// Finalize sets the terminal output. A run has at most one output; a second
// call fails with *AlreadyFinalizedError and leaves the first output intact.
func (s *RunState) Finalize(out Output) error {
	if s.output != nil {
		return &AlreadyFinalizedError{RunID: s.RunID}
	}
	s.output = &out
	return nil
}

// Finalized reports whether a terminal output has been set.
func (s *RunState) Finalized() bool { return s.output != nil }

// Final returns the terminal output and whether one was produced.
func (s *RunState) Final() (Output, bool) {
	if s.output == nil {
		return Output{}, false
	}
	return *s.output, true
}

// Snapshot returns a deep copy safe to hand to a persistence collaborator
// after the run's goroutine has stopped mutating the original.
func (s *RunState) Snapshot() *RunState {
	cp := &RunState{
		RunID:       s.RunID,
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		Iterations:  s.Iterations,
		Messages:    make([]Message, len(s.Messages)),
		Invocations: make([]ToolInvocation, len(s.Invocations)),
		Citations:   make([]Citation, len(s.Citations)),
		NodeEvents:  make([]NodeEvent, len(s.NodeEvents)),
	}
	copy(cp.Messages, s.Messages)
	copy(cp.Invocations, s.Invocations)
	copy(cp.Citations, s.Citations)
	copy(cp.NodeEvents, s.NodeEvents)
	if s.output != nil {
		out := *s.output
		cp.output = &out
	}
	return cp
}
