// Package graph implements the execution state machine driving one run:
// a reasoning node and a tool-dispatch node connected by a pure routing
// function, bounded by an iteration guard. The graph mutates the run's
// RunState and reports progress through an EmitFunc; it has no knowledge of
// transport or persistence.
package graph

import (
	"context"
	"time"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/logging"
	"github.com/wanderplan/wanderplan/reasoning"
	"github.com/wanderplan/wanderplan/tool"
)

// State is a node of the execution state machine.
type State int

const (
	// StateStart is the entry state before the first reasoning turn.
	StateStart State = iota
	// StateReasoning invokes the reasoning engine over the history.
	StateReasoning
	// StateToolDispatch executes the tool calls requested by the last turn.
	StateToolDispatch
	// StateEnd is the terminal state.
	StateEnd
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateReasoning:
		return "reasoning"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Node names used in node events and timelines.
const (
	NodeReasoning    = "reasoning"
	NodeToolDispatch = "tool_dispatch"
)

// Next is the pure routing function of the state machine: from a reasoning
// turn the graph proceeds to tool dispatch when tools were requested,
// otherwise to the end; tool dispatch always loops back to reasoning.
func Next(current State, out *reasoning.Outcome) State {
	switch current {
	case StateStart:
		return StateReasoning
	case StateReasoning:
		if out.RequestsTools() {
			return StateToolDispatch
		}
		return StateEnd
	case StateToolDispatch:
		return StateReasoning
	default:
		return StateEnd
	}
}

// EmitFunc receives stream events as the graph advances. Returning an error
// aborts the run promptly; drivers use this to propagate consumer
// cancellation within one transition boundary.
type EmitFunc func(core.Event) error

// DefaultMaxIterations bounds the reasoning/tool cycle when no override is given.
const DefaultMaxIterations = 10

// Options configure a Graph.
type Options struct {
	// MaxIterations bounds the number of reasoning turns per run.
	MaxIterations int
	// ReasoningTimeout caps one engine call. Zero means no per-call cap.
	ReasoningTimeout time.Duration
	// ToolTimeout caps one tool call. A timed-out tool is recorded as a
	// failed result; it never aborts the run.
	ToolTimeout time.Duration
	// MaxParallelTools limits concurrent tool calls within one turn.
	// Zero or negative means no explicit limit.
	MaxParallelTools int
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Graph drives one run through the state machine. A Graph is immutable after
// construction and safe to share across concurrent runs; all per-run state
// lives in the RunState passed to Run.
type Graph struct {
	engine           reasoning.Engine
	registry         *tool.Registry
	maxIterations    int
	reasoningTimeout time.Duration
	toolTimeout      time.Duration
	maxParallelTools int
	logger           logging.Logger
}

// New constructs a Graph over the given engine and tool registry.
func New(engine reasoning.Engine, registry *tool.Registry, optFns ...func(o *Options)) *Graph {
	opts := Options{
		MaxIterations: DefaultMaxIterations,
		ToolTimeout:   30 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Graph{
		engine:           engine,
		registry:         registry,
		maxIterations:    opts.MaxIterations,
		reasoningTimeout: opts.ReasoningTimeout,
		toolTimeout:      opts.ToolTimeout,
		maxParallelTools: opts.MaxParallelTools,
		logger:           opts.Logger,
	}
}

// Run drives the state machine to termination, mutating st along the way.
// On success st is finalized with the engine's final answer. Fatal errors
// (engine unavailable, iteration bound exceeded, cancellation) are returned;
// per-tool failures are absorbed into st and never surface here.
func (g *Graph) Run(ctx context.Context, st *core.RunState, emit EmitFunc) error {
	if emit == nil {
		emit = func(core.Event) error { return nil }
	}

	var pending []core.ToolCall
	state := Next(StateStart, nil)

	for state != StateEnd {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch state {
		case StateReasoning:
			if st.Iterations >= g.maxIterations {
				return &core.MaxIterationsError{Limit: g.maxIterations}
			}
			st.Iterations++

			out, err := g.reason(ctx, st, emit)
			if err != nil {
				return err
			}

			st.AppendMessage(core.NewAssistantMessage(out.Text, out.ToolCalls...))
			if !out.RequestsTools() {
				if err := st.Finalize(core.Output{Answer: out.Text}); err != nil {
					return err
				}
			}
			pending = out.ToolCalls
			state = Next(StateReasoning, out)

		case StateToolDispatch:
			if err := g.dispatch(ctx, st, pending, emit); err != nil {
				return err
			}
			pending = nil
			state = Next(StateToolDispatch, nil)
		}
	}
	return nil
}

// reason executes one reasoning node: offers the registry manifest to the
// engine, streams deltas when the engine supports it, and records exactly
// one node event whether the call succeeds or fails.
func (g *Graph) reason(ctx context.Context, st *core.RunState, emit EmitFunc) (*reasoning.Outcome, error) {
	if err := emit(core.NewNodeEvent(st.RunID, core.EventNodeStarted, NodeReasoning, "")); err != nil {
		return nil, err
	}
	started := time.Now().UTC()

	rctx := ctx
	if g.reasoningTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, g.reasoningTimeout)
		defer cancel()
	}

	defs := g.registry.Definitions()

	var (
		out *reasoning.Outcome
		err error
	)
	if streaming, ok := g.engine.(reasoning.StreamingEngine); ok {
		out, err = streaming.DecideStream(rctx, st.Messages, defs, func(delta string) {
			_ = emit(core.NewDeltaEvent(st.RunID, delta))
		})
	} else {
		out, err = g.engine.Decide(rctx, st.Messages, defs)
	}
	ended := time.Now().UTC()

	if err != nil {
		st.RecordNodeEvent(core.NodeEvent{Node: NodeReasoning, Status: core.NodeError, StartedAt: started, EndedAt: ended})
		_ = emit(core.NewNodeEvent(st.RunID, core.EventNodeFinished, NodeReasoning, core.NodeError))
		g.logger.Error("graph.reasoning.failed", "engine", g.engine.Name(), "iteration", st.Iterations, "error", err.Error())
		return nil, &core.ReasoningUnavailableError{Err: err}
	}

	st.RecordNodeEvent(core.NodeEvent{Node: NodeReasoning, Status: core.NodeSuccess, StartedAt: started, EndedAt: ended})
	g.logger.Debug("graph.reasoning.turn",
		"engine", g.engine.Name(),
		"iteration", st.Iterations,
		"tool_calls", len(out.ToolCalls),
		"duration_ms", ended.Sub(started).Milliseconds(),
	)
	return out, emit(core.NewNodeEvent(st.RunID, core.EventNodeFinished, NodeReasoning, core.NodeSuccess))
}
