package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/graph"
	"github.com/wanderplan/wanderplan/logging"
	"github.com/wanderplan/wanderplan/session"
	"github.com/wanderplan/wanderplan/store"
)

// Formatter turns a completed run into an application-specific structured
// projection of the final answer (an itinerary, a report). The projection is
// opaque to the runner; a formatting failure downgrades to the plain answer.
type Formatter interface {
	Format(ctx context.Context, st *core.RunState) (any, error)
}

// Request describes one run to execute.
type Request struct {
	// SessionID groups runs of one conversation.
	SessionID string
	// UserID identifies the requesting user.
	UserID string
	// Input is the user's message starting this run.
	Input string
	// History carries prior conversation messages to seed the run with.
	History []core.Message
	// RunID overrides the generated run id when set.
	RunID string
}

// Result is the terminal outcome of a batch run.
type Result struct {
	RunID      string
	Answer     string
	Structured any
	// State is the final run state: messages, tool log, citations, timeline.
	State *core.RunState
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// Store persists run records. Defaults to an in-memory store.
	Store store.Store
	// Sessions optionally carries conversation history across runs of one
	// session. When nil, each run starts from the request alone.
	Sessions session.Store
	// Formatter optionally projects the final answer into structured form.
	Formatter Formatter
	// EventBufferSize sets channel buffering for streamed events. A small
	// buffer keeps backpressure on the producer.
	EventBufferSize int
	// PersistTimeout bounds terminal record writes, which run on a detached
	// context so a cancelled run still gets its final status persisted.
	PersistTimeout time.Duration
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Runner coordinates run execution: creates the run record, drives the
// execution graph in batch or streaming mode, and completes the record with
// the terminal status and trace. Public methods are safe for concurrent use.
type Runner struct {
	graph           *graph.Graph
	store           store.Store
	sessions        session.Store
	formatter       Formatter
	eventBufferSize int
	persistTimeout  time.Duration
	logger          logging.Logger
}

// New constructs a Runner over the given graph with optional overrides.
func New(g *graph.Graph, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Store:           store.NewInMemoryStore(),
		EventBufferSize: 16,
		PersistTimeout:  5 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 16
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Runner{
		graph:           g,
		store:           opts.Store,
		sessions:        opts.Sessions,
		formatter:       opts.Formatter,
		eventBufferSize: opts.EventBufferSize,
		persistTimeout:  opts.PersistTimeout,
		logger:          opts.Logger,
	}
}

// Run executes one run in batch mode, blocking until the final answer.
// The run record moves pending -> running -> completed/failed/cancelled.
// A record write failure after the result was computed returns the result
// together with a *core.PersistenceError; the result is never discarded.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	st, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	runErr := r.graph.Run(ctx, st, nil)
	result, persistErr := r.finish(req, st, runErr)
	if runErr != nil {
		if persistErr != nil {
			r.logger.Warn("runner.run.persist_failed", "run_id", st.RunID, "error", persistErr.Error())
		}
		return nil, runErr
	}
	if persistErr != nil {
		return result, persistErr
	}
	return result, nil
}

// Stream executes one run in streaming mode. The returned channel delivers
// node, tool-call and message-delta events as the graph advances and always
// terminates with a final-result or error event before closing. Consumers
// stop a stream by cancelling ctx; the producer notices at the next emit.
// Record creation failures surface here, before any event is produced.
func (r *Runner) Stream(ctx context.Context, req Request) (<-chan core.Event, error) {
	st, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan core.Event, r.eventBufferSize)
	emit := func(ev core.Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(ch)

		runErr := r.graph.Run(ctx, st, emit)
		result, persistErr := r.finish(req, st, runErr)
		if persistErr != nil {
			r.logger.Warn("runner.stream.persist_failed", "run_id", st.RunID, "error", persistErr.Error())
		}

		var terminal core.Event
		if runErr != nil {
			terminal = core.NewErrorEvent(st.RunID, runErr)
		} else {
			terminal = core.NewFinalResultEvent(st.RunID, core.Output{
				Answer:     result.Answer,
				Structured: result.Structured,
			})
		}
		select {
		case ch <- terminal:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// GetRun fetches the persisted record of a run.
func (r *Runner) GetRun(ctx context.Context, runID string) (store.Record, error) {
	return r.store.GetRun(ctx, runID)
}

// begin validates the request, creates the pending record, marks it running
// and seeds the run state. Persistence failures here abort the run: nothing
// has been computed yet.
func (r *Runner) begin(ctx context.Context, req Request) (*core.RunState, error) {
	if req.Input == "" {
		return nil, fmt.Errorf("request input must not be empty")
	}
	runID := req.RunID
	if runID == "" {
		runID = core.NewID()
	}

	if err := r.store.CreateRun(ctx, store.NewRecord(runID, req.SessionID, req.UserID)); err != nil {
		return nil, &core.PersistenceError{Op: "create_run", Err: err}
	}
	if err := r.store.UpdateRun(ctx, runID, store.StatusRunning, nil); err != nil {
		return nil, &core.PersistenceError{Op: "update_run", Err: err}
	}

	st := core.NewRunState(runID, req.SessionID, req.UserID)
	history := req.History
	if history == nil && r.sessions != nil {
		stored, err := r.sessions.History(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load session history: %w", err)
		}
		history = stored
	}
	for _, m := range history {
		st.AppendMessage(m)
	}
	st.AppendMessage(core.NewUserMessage(req.Input))

	r.logger.Info("runner.run.started", "run_id", runID, "session_id", req.SessionID)
	return st, nil
}

// finish classifies the run's terminal status, applies the formatter on
// success, records session history and completes the record on a detached
// context so cancellation of the run never blocks the final status write. It
// returns the in-memory result (nil when the run failed) and any persistence
// error.
func (r *Runner) finish(req Request, st *core.RunState, runErr error) (*Result, error) {
	snap := st.Snapshot()

	rec := store.Record{
		RunID:     snap.RunID,
		SessionID: snap.SessionID,
		UserID:    snap.UserID,
		EndedAt:   time.Now().UTC(),
	}
	rec.ApplyState(snap)

	pctx := context.Background()
	if r.persistTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, r.persistTimeout)
		defer cancel()
	}

	var result *Result
	switch {
	case runErr == nil:
		rec.Status = store.StatusCompleted
		result = &Result{RunID: snap.RunID, Answer: rec.Answer, State: snap}
		if r.sessions != nil {
			err := r.sessions.Append(pctx, snap.SessionID,
				core.NewUserMessage(req.Input),
				core.NewAssistantMessage(rec.Answer),
			)
			if err != nil {
				r.logger.Warn("runner.session.append_failed", "session_id", snap.SessionID, "error", err.Error())
			}
		}
		if r.formatter != nil {
			structured, err := r.formatter.Format(pctx, snap)
			if err != nil {
				r.logger.Warn("runner.format.failed", "run_id", snap.RunID, "error", err.Error())
			} else {
				rec.Structured = structured
				result.Structured = structured
			}
		}
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		rec.Status = store.StatusCancelled
		rec.Error = runErr.Error()
	default:
		rec.Status = store.StatusFailed
		rec.Error = runErr.Error()
	}

	r.logger.Info("runner.run.finished",
		"run_id", snap.RunID,
		"status", string(rec.Status),
		"iterations", snap.Iterations,
		"tool_calls", len(snap.Invocations),
	)

	if err := r.store.CompleteRun(pctx, rec); err != nil {
		return result, &core.PersistenceError{Op: "complete_run", Err: err}
	}
	return result, nil
}
