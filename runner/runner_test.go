package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/graph"
	"github.com/wanderplan/wanderplan/reasoning"
	"github.com/wanderplan/wanderplan/session"
	"github.com/wanderplan/wanderplan/store"
	"github.com/wanderplan/wanderplan/tool"
)

func weatherTool(t *testing.T) tool.Tool {
	t.Helper()
	return tool.NewFunctionTool("get_weather", "Get the weather forecast", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{"type": "string"},
		},
		"required": []string{"location"},
	}, func(_ context.Context, _ map[string]any) (any, error) {
		return tool.Result{
			Content: "Partly cloudy, 20-25C",
			Sources: []tool.Source{{ID: "weather-api", Snippet: "Partly cloudy, 20-25C"}},
		}, nil
	})
}

func lisbonTurns() []reasoning.Turn {
	return []reasoning.Turn{
		reasoning.ToolTurn(core.ToolCall{ID: "c1", Name: "get_weather", Arguments: `{"location":"Lisbon"}`}),
		reasoning.FinalTurn("Day 1: Alfama. Expect partly cloudy skies."),
	}
}

func newRunner(t *testing.T, eng reasoning.Engine, optFns ...func(o *Options)) (*Runner, *store.InMemoryStore) {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(weatherTool(t))
	mem := store.NewInMemoryStore()
	opts := append([]func(o *Options){func(o *Options) { o.Store = mem }}, optFns...)
	return New(graph.New(eng, reg), opts...), mem
}

func TestRunner_BatchRun(t *testing.T) {
	ctx := context.Background()
	r, mem := newRunner(t, reasoning.NewScripted(lisbonTurns()...))

	res, err := r.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "Plan a trip to Lisbon"})
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "Alfama")
	require.NotNil(t, res.State)
	require.Len(t, res.State.Invocations, 1)
	assert.True(t, res.State.Invocations[0].Success)

	rec, err := mem.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Equal(t, res.Answer, rec.Answer)
	require.Len(t, rec.Invocations, 1)
	require.Len(t, rec.Citations, 1)
	assert.Equal(t, "weather-api", rec.Citations[0].Source)
	assert.False(t, rec.StartedAt.IsZero())
	assert.False(t, rec.EndedAt.IsZero())
}

func TestRunner_StreamMatchesBatch(t *testing.T) {
	ctx := context.Background()

	batch, _ := newRunner(t, reasoning.NewScripted(lisbonTurns()...))
	res, err := batch.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "Plan a trip to Lisbon"})
	require.NoError(t, err)

	streamed, mem := newRunner(t, reasoning.NewScripted(lisbonTurns()...))
	ch, err := streamed.Stream(ctx, Request{SessionID: "sess", UserID: "user", Input: "Plan a trip to Lisbon", RunID: "run-s"})
	require.NoError(t, err)

	var events []core.Event
	for ev := range ch {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, core.EventFinalResult, last.Type)
	require.NotNil(t, last.Output)
	assert.Equal(t, res.Answer, last.Output.Answer)
	for _, ev := range events[:len(events)-1] {
		assert.False(t, ev.Terminal())
	}

	var toolStarts int
	for _, ev := range events {
		if ev.Type == core.EventToolCallStarted {
			toolStarts++
		}
	}
	assert.Equal(t, 1, toolStarts)

	rec, err := mem.GetRun(ctx, "run-s")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
}

func TestRunner_StreamTerminatesWithErrorEvent(t *testing.T) {
	ctx := context.Background()
	r, mem := newRunner(t, reasoning.NewScripted(reasoning.ErrorTurn(errors.New("upstream 503"))))

	ch, err := r.Stream(ctx, Request{SessionID: "sess", UserID: "user", Input: "go", RunID: "run-e"})
	require.NoError(t, err)

	var events []core.Event
	for ev := range ch {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Contains(t, last.Err, "upstream 503")

	rec, err := mem.GetRun(ctx, "run-e")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "upstream 503")
}

func TestRunner_StreamCancellation(t *testing.T) {
	slow := tool.NewFunctionTool("slow", "Waits out the run", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(2 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c1", Name: "slow"}),
		reasoning.FinalTurn("never reached"),
	)
	reg := tool.NewRegistry()
	reg.MustRegister(slow)
	mem := store.NewInMemoryStore()
	r := New(graph.New(eng, reg), func(o *Options) { o.Store = mem })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := r.Stream(ctx, Request{SessionID: "sess", UserID: "user", Input: "go", RunID: "run-c"})
	require.NoError(t, err)

	for ev := range ch {
		if ev.Type == core.EventToolCallStarted {
			cancel()
		}
	}

	rec, err := mem.GetRun(context.Background(), "run-c")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, rec.Status)
}

func TestRunner_MaxIterationsMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c", Name: "get_weather", Arguments: `{"location":"Lisbon"}`}),
	)
	reg := tool.NewRegistry()
	reg.MustRegister(weatherTool(t))
	mem := store.NewInMemoryStore()
	r := New(graph.New(eng, reg, func(o *graph.Options) { o.MaxIterations = 2 }),
		func(o *Options) { o.Store = mem })

	_, err := r.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "loop", RunID: "run-m"})
	var maxed *core.MaxIterationsError
	require.True(t, errors.As(err, &maxed))

	rec, err := mem.GetRun(ctx, "run-m")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Equal(t, 2, rec.Iterations)
	assert.Len(t, rec.Invocations, 2)
}

// failingStore wraps the in-memory store and fails selected operations.
type failingStore struct {
	*store.InMemoryStore
	failCreate   bool
	failComplete bool
}

func (f *failingStore) CreateRun(ctx context.Context, rec store.Record) error {
	if f.failCreate {
		return errors.New("disk full")
	}
	return f.InMemoryStore.CreateRun(ctx, rec)
}

func (f *failingStore) CompleteRun(ctx context.Context, rec store.Record) error {
	if f.failComplete {
		return errors.New("disk full")
	}
	return f.InMemoryStore.CompleteRun(ctx, rec)
}

func TestRunner_CreateFailureAbortsBeforeReasoning(t *testing.T) {
	ctx := context.Background()
	eng := reasoning.NewScripted(reasoning.FinalTurn("unused"))
	reg := tool.NewRegistry()
	r := New(graph.New(eng, reg), func(o *Options) {
		o.Store = &failingStore{InMemoryStore: store.NewInMemoryStore(), failCreate: true}
	})

	res, err := r.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "go"})
	assert.Nil(t, res)
	var perr *core.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "create_run", perr.Op)
	assert.Equal(t, 0, eng.Calls())
}

func TestRunner_CompleteFailureKeepsResult(t *testing.T) {
	ctx := context.Background()
	eng := reasoning.NewScripted(reasoning.FinalTurn("the plan"))
	reg := tool.NewRegistry()
	r := New(graph.New(eng, reg), func(o *Options) {
		o.Store = &failingStore{InMemoryStore: store.NewInMemoryStore(), failComplete: true}
	})

	res, err := r.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "go"})
	var perr *core.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "complete_run", perr.Op)
	require.NotNil(t, res, "computed result must survive a persistence failure")
	assert.Equal(t, "the plan", res.Answer)
}

// mapFormatter projects the answer into a fixed-shape map.
type mapFormatter struct{}

func (mapFormatter) Format(_ context.Context, st *core.RunState) (any, error) {
	out, _ := st.Final()
	return map[string]any{"summary": out.Answer, "tool_calls": len(st.Invocations)}, nil
}

func TestRunner_FormatterProjectsStructuredOutput(t *testing.T) {
	ctx := context.Background()
	r, mem := newRunner(t, reasoning.NewScripted(lisbonTurns()...), func(o *Options) {
		o.Formatter = mapFormatter{}
	})

	res, err := r.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "plan", RunID: "run-f"})
	require.NoError(t, err)
	structured, ok := res.Structured.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, structured["summary"], "Alfama")
	assert.Equal(t, 1, structured["tool_calls"])

	rec, err := mem.GetRun(ctx, "run-f")
	require.NoError(t, err)
	assert.NotNil(t, rec.Structured)
}

func TestRunner_SessionHistoryCarriesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewInMemoryStore()
	eng := reasoning.NewScripted(
		reasoning.FinalTurn("Day 1: Alfama."),
		reasoning.FinalTurn("Added a Sintra day trip."),
	)
	reg := tool.NewRegistry()
	r := New(graph.New(eng, reg), func(o *Options) { o.Sessions = sessions })

	_, err := r.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "Plan Lisbon"})
	require.NoError(t, err)

	res, err := r.Run(ctx, Request{SessionID: "sess", UserID: "user", Input: "Add Sintra"})
	require.NoError(t, err)

	// Second run was seeded with the first exchange plus its own input.
	require.GreaterOrEqual(t, len(res.State.Messages), 4)
	assert.Equal(t, "Plan Lisbon", res.State.Messages[0].Content)
	assert.Equal(t, "Day 1: Alfama.", res.State.Messages[1].Content)

	history, err := sessions.History(ctx, "sess")
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestRunner_EmptyInputRejected(t *testing.T) {
	r, _ := newRunner(t, reasoning.NewScripted(reasoning.FinalTurn("unused")))
	_, err := r.Run(context.Background(), Request{SessionID: "sess", UserID: "user"})
	assert.Error(t, err)
}
