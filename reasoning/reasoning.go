// Package reasoning defines the opaque reasoning capability the execution
// graph calls on every turn: given the conversation so far and the tool
// manifest, an Engine either answers or requests tool calls. Provider
// adapters live in the openai and anthropic subpackages; Scripted provides a
// deterministic engine for tests.
package reasoning

import (
	"context"
	"sync"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/tool"
)

// Outcome is the discriminated result of one reasoning turn: either a final
// answer (no tool calls) or one or more tool-call requests, in the order the
// engine produced them. Text may accompany tool calls as interim commentary.
type Outcome struct {
	Text      string
	ToolCalls []core.ToolCall
}

// RequestsTools reports whether this outcome asks for tool execution.
func (o *Outcome) RequestsTools() bool { return o != nil && len(o.ToolCalls) > 0 }

// Engine is the opaque reasoning capability. Decide must respect ctx
// cancellation and deadlines; the graph treats any returned error as the
// engine being unavailable.
type Engine interface {
	// Name identifies the engine (typically the model name) for logging.
	Name() string

	// Decide runs one reasoning turn over the ordered history and the
	// offered tool manifest.
	Decide(ctx context.Context, history []core.Message, tools []tool.Definition) (*Outcome, error)
}

// StreamingEngine is implemented by engines that can deliver incremental
// text fragments while a turn is in flight. onDelta is called from the
// engine's goroutine with each fragment; the returned Outcome carries the
// assembled result.
type StreamingEngine interface {
	Engine

	DecideStream(ctx context.Context, history []core.Message, tools []tool.Definition, onDelta func(delta string)) (*Outcome, error)
}

// Turn is one scripted reasoning outcome (or failure).
type Turn struct {
	Outcome *Outcome
	Err     error
}

// FinalTurn scripts a final answer with no tool requests.
func FinalTurn(text string) Turn {
	return Turn{Outcome: &Outcome{Text: text}}
}

// ToolTurn scripts a turn requesting the given tool calls.
func ToolTurn(calls ...core.ToolCall) Turn {
	return Turn{Outcome: &Outcome{ToolCalls: calls}}
}

// ErrorTurn scripts an engine failure.
func ErrorTurn(err error) Turn {
	return Turn{Err: err}
}

// Scripted replays a fixed sequence of turns, ignoring the actual history.
// When the script is exhausted the last turn repeats, which makes it easy to
// model an engine that keeps requesting tools forever. Safe for concurrent
// use; both batch and streaming drivers can share one instance.
type Scripted struct {
	mu    sync.Mutex
	turns []Turn
	next  int
}

// NewScripted builds a scripted engine from the given turns.
func NewScripted(turns ...Turn) *Scripted {
	return &Scripted{turns: turns}
}

// Name implements Engine.
func (s *Scripted) Name() string { return "scripted" }

// Calls returns how many turns have been consumed.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Decide implements Engine by replaying the next scripted turn.
func (s *Scripted) Decide(ctx context.Context, _ []core.Message, _ []tool.Definition) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return &Outcome{}, nil
	}
	idx := s.next
	if idx >= len(s.turns) {
		idx = len(s.turns) - 1
	}
	s.next++
	turn := s.turns[idx]
	if turn.Err != nil {
		return nil, turn.Err
	}
	out := *turn.Outcome
	return &out, nil
}

// DecideStream implements StreamingEngine; the final answer text is
// delivered as a single delta before the outcome is returned.
func (s *Scripted) DecideStream(ctx context.Context, history []core.Message, tools []tool.Definition, onDelta func(string)) (*Outcome, error) {
	out, err := s.Decide(ctx, history, tools)
	if err != nil {
		return nil, err
	}
	if out.Text != "" && onDelta != nil {
		onDelta(out.Text)
	}
	return out, nil
}
