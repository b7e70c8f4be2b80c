// Package openai adapts the OpenAI Chat Completions API (including streaming
// and function/tool calling) to the reasoning.Engine interface.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"

	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/reasoning"
	"github.com/wanderplan/wanderplan/tool"
)

// Options configure the OpenAI engine. Fields mirror a small subset of Chat
// Completion parameters; extend via functional options.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Engine wraps the OpenAI Chat Completions API behind reasoning.Engine and
// reasoning.StreamingEngine.
type Engine struct {
	client *openai.Client
	opts   Options
}

// New creates an engine using the default client (API key from environment).
func New(optFns ...func(o *Options)) *Engine {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an engine from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{client: client, opts: opts}
}

// Name implements reasoning.Engine.
func (e *Engine) Name() string { return e.opts.Model }

// Decide implements reasoning.Engine with a non-streaming completion.
func (e *Engine) Decide(ctx context.Context, history []core.Message, tools []tool.Definition) (*reasoning.Outcome, error) {
	params := e.buildParams(history, tools)

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &reasoning.Outcome{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// aggCall accumulates streamed tool-call deltas (id, name, argument
// fragments) until the finish chunk arrives.
type aggCall struct{ id, name, args string }

// DecideStream implements reasoning.StreamingEngine, forwarding text deltas
// as they arrive and assembling tool calls from their streamed fragments.
func (e *Engine) DecideStream(ctx context.Context, history []core.Message, tools []tool.Definition, onDelta func(string)) (*reasoning.Outcome, error) {
	params := e.buildParams(history, tools)

	stream := e.client.Chat.Completions.NewStreaming(ctx, params)
	var text strings.Builder
	agg := map[int64]*aggCall{}

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if onDelta != nil {
					onDelta(choice.Delta.Content)
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				ac, ok := agg[tc.Index]
				if !ok {
					ac = &aggCall{}
					agg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai streaming error: %w", err)
	}

	out := &reasoning.Outcome{Text: text.String()}
	indexes := make([]int64, 0, len(agg))
	for idx := range agg {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	for _, idx := range indexes {
		ac := agg[idx]
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{ID: ac.id, Name: ac.name, Arguments: ac.args})
	}
	return out, nil
}

func (e *Engine) buildParams(history []core.Message, tools []tool.Definition) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(history),
		Model:               e.opts.Model,
		Temperature:         openai.Float(e.opts.Temperature),
		MaxCompletionTokens: openai.Int(e.opts.MaxCompletionTokens),
	}
	if len(tools) == 0 {
		return params
	}
	defs := make([]openai.ChatCompletionToolParam, len(tools))
	for i, def := range tools {
		defs[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}
	params.Tools = defs
	return params
}

// buildMessages translates the flat conversation history into provider
// messages. The graph already records tool results directly after the
// assistant message that requested them, so no reordering is needed.
func buildMessages(history []core.Message) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, m := range history {
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: calls,
				},
			})
		case core.RoleTool:
			if m.ToolResult == nil {
				continue
			}
			messages = append(messages, openai.ToolMessage(resultText(*m.ToolResult), m.ToolResult.CallID))
		}
	}
	return messages
}

// resultText renders a tool result as the plain text payload providers expect.
func resultText(res core.ToolResult) string {
	if res.Failed() {
		return fmt.Sprintf("ERROR: %s", res.Error)
	}
	switch v := res.Content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
