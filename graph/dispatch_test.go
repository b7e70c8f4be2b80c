package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/reasoning"
	"github.com/wanderplan/wanderplan/tool"
)

// eventCollector is a threadsafe EmitFunc for tests.
type eventCollector struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *eventCollector) emit(ev core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *eventCollector) byType(t core.EventType) []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestDispatch_EmitsStartFinishPerCall(t *testing.T) {
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(
			core.ToolCall{ID: "c1", Name: "get_weather", Arguments: `{"location":"Lisbon"}`},
			core.ToolCall{ID: "c2", Name: "get_weather", Arguments: `{"location":"Porto"}`},
		),
		reasoning.FinalTurn("done"),
	)
	g := New(eng, newTestRegistry(t, weatherTool(t)))

	st := core.NewRunState("run-d1", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	var sink eventCollector
	require.NoError(t, g.Run(context.Background(), st, sink.emit))

	started := sink.byType(core.EventToolCallStarted)
	finished := sink.byType(core.EventToolCallFinished)
	require.Len(t, started, 2)
	require.Len(t, finished, 2)

	// Each call's start precedes its own finish.
	for _, s := range started {
		var foundAfter bool
		var seenStart bool
		for _, ev := range sink.events {
			if ev.ID == s.ID {
				seenStart = true
			}
			if seenStart && ev.Type == core.EventToolCallFinished && ev.CallID == s.CallID {
				foundAfter = true
				break
			}
		}
		assert.True(t, foundAfter, "call %s finish did not follow its start", s.CallID)
	}
}

func TestDispatch_MalformedArgumentsAbsorbed(t *testing.T) {
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c1", Name: "get_weather", Arguments: `{not json`}),
		reasoning.FinalTurn("recovered"),
	)
	g := New(eng, newTestRegistry(t, weatherTool(t)))

	st := core.NewRunState("run-d2", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	require.NoError(t, g.Run(context.Background(), st, nil))
	require.Len(t, st.Invocations, 1)
	assert.False(t, st.Invocations[0].Success)
	assert.Contains(t, st.Invocations[0].Error, "malformed tool arguments")
}

func TestDispatch_PanickingToolAbsorbed(t *testing.T) {
	angry := tool.NewFunctionTool("angry", "Panics", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(_ context.Context, _ map[string]any) (any, error) {
		panic("tool exploded")
	})

	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c1", Name: "angry"}),
		reasoning.FinalTurn("still alive"),
	)
	g := New(eng, newTestRegistry(t, angry))

	st := core.NewRunState("run-d3", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	require.NoError(t, g.Run(context.Background(), st, nil))
	require.Len(t, st.Invocations, 1)
	assert.False(t, st.Invocations[0].Success)
	assert.Contains(t, st.Invocations[0].Error, "panic")

	out, ok := st.Final()
	require.True(t, ok)
	assert.Equal(t, "still alive", out.Answer)
}

func TestDispatch_ParallelismLimit(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	gauge := tool.NewFunctionTool("gauge", "Tracks concurrency", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(_ context.Context, _ map[string]any) (any, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		defer func() { mu.Lock(); active--; mu.Unlock() }()
		return "ok", nil
	})

	calls := make([]core.ToolCall, 6)
	for i := range calls {
		calls[i] = core.ToolCall{ID: core.NewID(), Name: "gauge"}
	}
	eng := reasoning.NewScripted(reasoning.ToolTurn(calls...), reasoning.FinalTurn("done"))
	g := New(eng, newTestRegistry(t, gauge), func(o *Options) {
		o.MaxParallelTools = 2
	})

	st := core.NewRunState("run-d4", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	require.NoError(t, g.Run(context.Background(), st, nil))
	assert.Len(t, st.Invocations, 6)
	assert.LessOrEqual(t, peak, 2)
}
