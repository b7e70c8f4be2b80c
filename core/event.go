package core

import "time"

// EventType discriminates the streaming Event union.
type EventType string

const (
	// EventNodeStarted signals entry into a graph node.
	EventNodeStarted EventType = "node-started"
	// EventNodeFinished signals a node execution completed (success or error).
	EventNodeFinished EventType = "node-finished"
	// EventToolCallStarted signals one tool call began executing.
	EventToolCallStarted EventType = "tool-call-started"
	// EventToolCallFinished signals one tool call resolved.
	EventToolCallFinished EventType = "tool-call-finished"
	// EventMessageDelta carries an incremental fragment of assistant text.
	EventMessageDelta EventType = "message-delta"
	// EventFinalResult carries the terminal output; it is always the last
	// event of a successful stream.
	EventFinalResult EventType = "final-result"
	// EventError carries a fatal run error; it is always the last event of a
	// failed stream.
	EventError EventType = "error"
)

// Event is one discrete step of a streamed run. Exactly one of the optional
// payload fields is populated depending on Type. Events are immutable once
// emitted.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Node   string      `json:"node,omitempty"`
	Status NodeStatus  `json:"status,omitempty"`
	Tool   string      `json:"tool,omitempty"`
	CallID string      `json:"call_id,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
	Delta  string      `json:"delta,omitempty"`
	Output *Output     `json:"output,omitempty"`
	Err    string      `json:"error,omitempty"`
}

// NewEvent creates a bare event of the given type bound to a run.
func NewEvent(runID string, t EventType) Event {
	return Event{ID: NewID(), RunID: runID, Type: t, Timestamp: time.Now().UTC()}
}

// NewNodeEvent builds a node-started or node-finished event.
func NewNodeEvent(runID string, t EventType, node string, status NodeStatus) Event {
	ev := NewEvent(runID, t)
	ev.Node = node
	ev.Status = status
	return ev
}

// NewToolCallEvent builds a tool-call-started or tool-call-finished event.
// result is nil for started events.
func NewToolCallEvent(runID string, t EventType, tool, callID string, result *ToolResult) Event {
	ev := NewEvent(runID, t)
	ev.Tool = tool
	ev.CallID = callID
	ev.Result = result
	return ev
}

// NewDeltaEvent builds a message-delta event carrying a text fragment.
func NewDeltaEvent(runID, delta string) Event {
	ev := NewEvent(runID, EventMessageDelta)
	ev.Delta = delta
	return ev
}

// NewFinalResultEvent builds the terminal final-result event.
func NewFinalResultEvent(runID string, out Output) Event {
	ev := NewEvent(runID, EventFinalResult)
	ev.Output = &out
	return ev
}

// NewErrorEvent builds the terminal error event.
func NewErrorEvent(runID string, err error) Event {
	ev := NewEvent(runID, EventError)
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}

// Terminal reports whether this event closes the stream.
func (e Event) Terminal() bool {
	return e.Type == EventFinalResult || e.Type == EventError
}
