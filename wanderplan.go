// Package wanderplan provides a high-level façade over the tool registry,
// execution graph and runner, enabling rapid construction of tool-using
// travel assistants. Most applications interact with this package by:
//  1. Creating a Planner via New() with a reasoning engine
//  2. Registering tools (or using the built-in travel fixtures)
//  3. Executing runs in batch (Plan) or streaming (PlanStream) mode
//
// The façade delegates orchestration to runner.Runner while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable store and a
// structured logger.
package wanderplan

import (
	"context"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/graph"
	"github.com/wanderplan/wanderplan/logging"
	"github.com/wanderplan/wanderplan/reasoning"
	"github.com/wanderplan/wanderplan/runner"
	"github.com/wanderplan/wanderplan/session"
	"github.com/wanderplan/wanderplan/store"
	"github.com/wanderplan/wanderplan/tool"
)

// Options configures a Planner instance.
type Options struct {
	// Tools registered at construction time; more can be added later via
	// Register before the first run.
	Tools []tool.Tool

	// MaxIterations bounds the reasoning/tool cycle per run.
	MaxIterations int

	// Store persists run records (defaults to an in-memory store).
	Store store.Store

	// Sessions optionally carries conversation history across runs of one
	// session.
	Sessions session.Store

	// Formatter optionally projects final answers into structured form.
	Formatter runner.Formatter

	// EventBufferSize sets channel buffering for streamed events.
	EventBufferSize int

	// GraphOptions applies further graph tuning (timeouts, parallelism).
	GraphOptions func(o *graph.Options)

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Planner is the high-level façade aggregating registry, graph and runner.
type Planner struct {
	registry *tool.Registry
	runner   *runner.Runner
}

// New creates a Planner around the given reasoning engine with optional
// overrides. Any unset service is initialized with an in-memory default.
func New(engine reasoning.Engine, optFns ...func(o *Options)) (*Planner, error) {
	opts := Options{
		MaxIterations: graph.DefaultMaxIterations,
		Store:         store.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry()
	for _, t := range opts.Tools {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	g := graph.New(engine, registry, func(o *graph.Options) {
		o.MaxIterations = opts.MaxIterations
		o.Logger = opts.Logger
		if opts.GraphOptions != nil {
			opts.GraphOptions(o)
		}
	})

	r := runner.New(g, func(o *runner.Options) {
		o.Store = opts.Store
		o.Sessions = opts.Sessions
		o.Formatter = opts.Formatter
		if opts.EventBufferSize > 0 {
			o.EventBufferSize = opts.EventBufferSize
		}
		o.Logger = opts.Logger
	})

	return &Planner{registry: registry, runner: r}, nil
}

// Register adds a tool to the planner's registry. Registration must happen
// before runs begin.
func (p *Planner) Register(t tool.Tool) error { return p.registry.Register(t) }

// Tools returns the registered tool manifest.
func (p *Planner) Tools() []tool.Definition { return p.registry.Definitions() }

// Plan executes one run in batch mode and blocks until the final answer.
func (p *Planner) Plan(ctx context.Context, req runner.Request) (*runner.Result, error) {
	return p.runner.Run(ctx, req)
}

// PlanStream executes one run in streaming mode; the returned channel
// terminates with a final-result or error event. Cancel ctx to stop early.
func (p *Planner) PlanStream(ctx context.Context, req runner.Request) (<-chan core.Event, error) {
	return p.runner.Stream(ctx, req)
}

// GetRun fetches the persisted record of a run.
func (p *Planner) GetRun(ctx context.Context, runID string) (store.Record, error) {
	return p.runner.GetRun(ctx, runID)
}
