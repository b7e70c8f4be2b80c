package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/tool"
)

// callResult pairs one invocation record with the sources its tool reported.
type callResult struct {
	inv     core.ToolInvocation
	sources []tool.Source
}

// dispatch executes one tool-dispatch node. Calls run concurrently but join
// before the transition back to reasoning, and their invocation records and
// conversation entries are written in request order regardless of completion
// order. Every per-call failure (unknown tool, bad arguments, execution
// error, panic, timeout) is absorbed as a failed result; only cancellation
// and emit failures abort the node.
func (g *Graph) dispatch(ctx context.Context, st *core.RunState, calls []core.ToolCall, emit EmitFunc) error {
	if err := emit(core.NewNodeEvent(st.RunID, core.EventNodeStarted, NodeToolDispatch, "")); err != nil {
		return err
	}
	started := time.Now().UTC()

	// Serialize emits from worker goroutines so event frames never tear.
	var emitMu sync.Mutex
	emitLocked := func(ev core.Event) error {
		emitMu.Lock()
		defer emitMu.Unlock()
		return emit(ev)
	}

	maxPar := g.maxParallelTools
	if maxPar <= 0 || maxPar > len(calls) {
		maxPar = len(calls)
	}
	sem := make(chan struct{}, maxPar)

	results := make([]callResult, len(calls))
	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = g.executeCall(ctx, st.RunID, call, emitLocked)
		}(i, calls[i])
	}
	wg.Wait() // join barrier: every result is in before the next reasoning turn

	for _, res := range results {
		st.RecordToolResult(res.inv)
		st.AppendMessage(core.NewToolMessage(core.ToolResult{
			CallID:  res.inv.CallID,
			Name:    res.inv.Name,
			Content: res.inv.Result,
			Error:   res.inv.Error,
		}))
		for _, src := range res.sources {
			st.RecordCitation(core.Citation{Source: src.ID, Snippet: src.Snippet, CallID: res.inv.CallID})
		}
	}

	ended := time.Now().UTC()
	if err := ctx.Err(); err != nil {
		st.RecordNodeEvent(core.NodeEvent{Node: NodeToolDispatch, Status: core.NodeError, StartedAt: started, EndedAt: ended})
		return err
	}
	st.RecordNodeEvent(core.NodeEvent{Node: NodeToolDispatch, Status: core.NodeSuccess, StartedAt: started, EndedAt: ended})
	g.logger.Debug("graph.dispatch.batch",
		"count", len(calls),
		"parallelism", maxPar,
		"duration_ms", ended.Sub(started).Milliseconds(),
	)
	return emit(core.NewNodeEvent(st.RunID, core.EventNodeFinished, NodeToolDispatch, core.NodeSuccess))
}

// executeCall resolves and runs a single tool call, emitting its
// started/finished pair and returning the invocation record. It never
// returns an error: failures are folded into the record.
func (g *Graph) executeCall(ctx context.Context, runID string, call core.ToolCall, emit EmitFunc) callResult {
	inv := core.ToolInvocation{CallID: call.ID, Name: call.Name, StartedAt: time.Now().UTC()}
	_ = emit(core.NewToolCallEvent(runID, core.EventToolCallStarted, call.Name, call.ID, nil))

	args, err := parseArguments(call.Arguments)
	inv.Arguments = args

	var sources []tool.Source
	if err == nil {
		var impl tool.Tool
		if impl, err = g.registry.Get(call.Name); err == nil {
			var result any
			if result, err = g.callWithTimeout(ctx, impl, args); err == nil {
				if r, ok := result.(tool.Result); ok {
					sources = r.Sources
					result = r.Content
				}
				inv.Result = result
				inv.Success = true
			}
		}
	}

	inv.CompletedAt = time.Now().UTC()
	if err != nil {
		inv.Error = err.Error()
		g.logger.Warn("graph.tool.failed", "tool", call.Name, "call_id", call.ID, "error", err.Error())
	} else {
		g.logger.Info("graph.tool.executed", "tool", call.Name, "call_id", call.ID, "duration_ms", inv.Duration().Milliseconds())
	}

	res := core.ToolResult{CallID: call.ID, Name: call.Name, Content: inv.Result, Error: inv.Error}
	_ = emit(core.NewToolCallEvent(runID, core.EventToolCallFinished, call.Name, call.ID, &res))
	return callResult{inv: inv, sources: sources}
}

// callWithTimeout runs the tool under the per-call deadline with panic
// recovery. A tool that outlives its deadline is abandoned; its result is a
// timeout error.
func (g *Graph) callWithTimeout(ctx context.Context, impl tool.Tool, args map[string]any) (any, error) {
	tctx := ctx
	if g.toolTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, g.toolTimeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: tool.NewToolError(impl.Name(), fmt.Sprintf("panic: %v", r), tool.CodeExecution)}
			}
		}()
		result, err := impl.Call(tctx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-tctx.Done():
		return nil, tool.NewToolError(impl.Name(), tctx.Err().Error(), tool.CodeTimeout)
	}
}

// parseArguments decodes the serialized argument payload of a tool call.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	return args, nil
}
