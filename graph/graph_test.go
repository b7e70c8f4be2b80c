package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/reasoning"
	"github.com/wanderplan/wanderplan/tool"
)

func weatherTool(t *testing.T) tool.Tool {
	t.Helper()
	return tool.NewFunctionTool("get_weather", "Get the weather forecast", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{"type": "string"},
			"days":     map[string]any{"type": "integer"},
		},
		"required": []string{"location"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return tool.Result{
			Content: "Partly cloudy, 20-25C",
			Sources: []tool.Source{{ID: "weather-api", Snippet: "Partly cloudy, 20-25C"}},
		}, nil
	})
}

func newTestRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	r.MustRegister(tools...)
	return r
}

func TestNext_Routing(t *testing.T) {
	finalizes := &reasoning.Outcome{Text: "done"}
	wantsTools := &reasoning.Outcome{ToolCalls: []core.ToolCall{{ID: "c1", Name: "get_weather"}}}

	assert.Equal(t, StateReasoning, Next(StateStart, nil))
	assert.Equal(t, StateEnd, Next(StateReasoning, finalizes))
	assert.Equal(t, StateToolDispatch, Next(StateReasoning, wantsTools))
	assert.Equal(t, StateReasoning, Next(StateToolDispatch, nil))
	assert.Equal(t, StateEnd, Next(StateEnd, nil))
}

func TestGraph_TripPlanningScenario(t *testing.T) {
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c1", Name: "get_weather", Arguments: `{"location":"Lisbon","days":3}`}),
		reasoning.FinalTurn("Day 1: Alfama. Expect partly cloudy skies, 20-25C."),
	)
	g := New(eng, newTestRegistry(t, weatherTool(t)))

	st := core.NewRunState("run-1", "sess", "user")
	st.AppendMessage(core.NewUserMessage("Plan a 3-day trip to Lisbon"))

	require.NoError(t, g.Run(context.Background(), st, nil))

	require.Len(t, st.Invocations, 1)
	assert.True(t, st.Invocations[0].Success)
	assert.Equal(t, "get_weather", st.Invocations[0].Name)
	assert.Equal(t, "Lisbon", st.Invocations[0].Arguments["location"])

	var assistants int
	for _, m := range st.Messages {
		if m.Role == core.RoleAssistant {
			assistants++
		}
	}
	assert.Equal(t, 2, assistants)

	out, ok := st.Final()
	require.True(t, ok)
	assert.Contains(t, out.Answer, "Alfama")

	require.Len(t, st.Citations, 1)
	assert.Equal(t, "weather-api", st.Citations[0].Source)
	assert.Equal(t, "c1", st.Citations[0].CallID)

	// 2 reasoning turns + 1 dispatch = 3 node events, time-ordered.
	require.Len(t, st.NodeEvents, 3)
	for i := 1; i < len(st.NodeEvents); i++ {
		assert.False(t, st.NodeEvents[i].StartedAt.Before(st.NodeEvents[i-1].StartedAt))
	}
}

func TestGraph_UnknownToolDoesNotAbortRun(t *testing.T) {
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c1", Name: "search_hotels", Arguments: `{"city":"Lisbon"}`}),
		reasoning.FinalTurn("No hotel data available, here is the rest of the plan."),
	)
	g := New(eng, newTestRegistry(t, weatherTool(t)))

	st := core.NewRunState("run-2", "sess", "user")
	st.AppendMessage(core.NewUserMessage("Find hotels"))

	require.NoError(t, g.Run(context.Background(), st, nil))

	require.Len(t, st.Invocations, 1)
	assert.False(t, st.Invocations[0].Success)
	assert.Contains(t, st.Invocations[0].Error, "search_hotels")
	assert.True(t, st.Finalized())
}

func TestGraph_PartialToolFailure(t *testing.T) {
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(
			core.ToolCall{ID: "c1", Name: "get_weather", Arguments: `{}`}, // missing required location
			core.ToolCall{ID: "c2", Name: "get_weather", Arguments: `{"location":"Lisbon"}`},
		),
		reasoning.FinalTurn("Plan based on available data."),
	)
	g := New(eng, newTestRegistry(t, weatherTool(t)))

	st := core.NewRunState("run-3", "sess", "user")
	st.AppendMessage(core.NewUserMessage("Plan"))

	require.NoError(t, g.Run(context.Background(), st, nil))

	require.Len(t, st.Invocations, 2)
	assert.False(t, st.Invocations[0].Success)
	assert.Contains(t, st.Invocations[0].Error, "VALIDATION_ERROR")
	assert.True(t, st.Invocations[1].Success)
	assert.True(t, st.Finalized())
}

func TestGraph_RequestOrderRecording(t *testing.T) {
	// slow completes after fast; records must still follow request order.
	slow := tool.NewFunctionTool("slow", "Slow tool", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(ctx context.Context, _ map[string]any) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return "slow-done", nil
	})
	fast := tool.NewFunctionTool("fast", "Fast tool", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(_ context.Context, _ map[string]any) (any, error) {
		return "fast-done", nil
	})

	eng := reasoning.NewScripted(
		reasoning.ToolTurn(
			core.ToolCall{ID: "c1", Name: "slow"},
			core.ToolCall{ID: "c2", Name: "fast"},
		),
		reasoning.FinalTurn("done"),
	)
	g := New(eng, newTestRegistry(t, slow, fast))

	st := core.NewRunState("run-4", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	require.NoError(t, g.Run(context.Background(), st, nil))

	require.Len(t, st.Invocations, 2)
	assert.Equal(t, "slow", st.Invocations[0].Name)
	assert.Equal(t, "fast", st.Invocations[1].Name)

	var toolMessages []string
	for _, m := range st.Messages {
		if m.Role == core.RoleTool {
			toolMessages = append(toolMessages, m.ToolResult.Name)
		}
	}
	assert.Equal(t, []string{"slow", "fast"}, toolMessages)
}

func TestGraph_ToolTimeoutRecordedNotFatal(t *testing.T) {
	stuck := tool.NewFunctionTool("stuck", "Never returns in time", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c1", Name: "stuck"}),
		reasoning.FinalTurn("continuing without it"),
	)
	g := New(eng, newTestRegistry(t, stuck), func(o *Options) {
		o.ToolTimeout = 20 * time.Millisecond
	})

	st := core.NewRunState("run-5", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	require.NoError(t, g.Run(context.Background(), st, nil))
	require.Len(t, st.Invocations, 1)
	assert.False(t, st.Invocations[0].Success)
	assert.Contains(t, st.Invocations[0].Error, "TIMEOUT")
	assert.True(t, st.Finalized())
}

func TestGraph_MaxIterationsExact(t *testing.T) {
	const bound = 3
	eng := reasoning.NewScripted(
		reasoning.ToolTurn(core.ToolCall{ID: "c", Name: "get_weather", Arguments: `{"location":"Lisbon"}`}),
	)
	g := New(eng, newTestRegistry(t, weatherTool(t)), func(o *Options) {
		o.MaxIterations = bound
	})

	st := core.NewRunState("run-6", "sess", "user")
	st.AppendMessage(core.NewUserMessage("loop forever"))

	err := g.Run(context.Background(), st, nil)
	require.Error(t, err)
	var maxed *core.MaxIterationsError
	require.True(t, errors.As(err, &maxed))
	assert.Equal(t, bound, maxed.Limit)

	// Exactly bound reasoning turns ran, each followed by a dispatch.
	assert.Equal(t, bound, eng.Calls())
	assert.Equal(t, bound, st.Iterations)
	assert.Len(t, st.Invocations, bound)
	assert.False(t, st.Finalized())
}

func TestGraph_ReasoningFailureIsFatal(t *testing.T) {
	eng := reasoning.NewScripted(reasoning.ErrorTurn(errors.New("upstream 503")))
	g := New(eng, newTestRegistry(t, weatherTool(t)))

	st := core.NewRunState("run-7", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	err := g.Run(context.Background(), st, nil)
	var unavailable *core.ReasoningUnavailableError
	require.True(t, errors.As(err, &unavailable))

	// The failed node still recorded its event.
	require.Len(t, st.NodeEvents, 1)
	assert.Equal(t, core.NodeError, st.NodeEvents[0].Status)
	assert.False(t, st.Finalized())
}

func TestGraph_EmitErrorAbortsRun(t *testing.T) {
	eng := reasoning.NewScripted(reasoning.FinalTurn("never delivered"))
	g := New(eng, newTestRegistry(t, weatherTool(t)))

	st := core.NewRunState("run-8", "sess", "user")
	st.AppendMessage(core.NewUserMessage("go"))

	stop := errors.New("consumer gone")
	err := g.Run(context.Background(), st, func(core.Event) error { return stop })
	assert.ErrorIs(t, err, stop)
}
