package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks messages authored by the requesting user.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the reasoning engine.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool-result messages fed back into the conversation.
	RoleTool Role = "tool"
	// RoleSystem marks instruction messages injected by the application.
	RoleSystem Role = "system"
)

// ToolCall is a request by the reasoning engine to invoke a named tool.
// Arguments carries the serialized (JSON) argument payload exactly as the
// provider produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolResult is the outcome of one tool call, attached to a RoleTool message.
// Error is non-empty when the call failed; Content may still hold a partial
// or descriptive payload in that case.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content any    `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether this result represents a tool failure.
func (r ToolResult) Failed() bool { return r.Error != "" }

// Message is one entry of the ordered conversation history. Assistant
// messages may carry tool-call requests; tool messages carry exactly one
// ToolResult.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewUserMessage builds a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, Timestamp: time.Now().UTC()}
}

// NewSystemMessage builds a system instruction message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage builds an assistant message, optionally carrying the
// tool calls requested in the same reasoning turn.
func NewAssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls, Timestamp: time.Now().UTC()}
}

// NewToolMessage wraps a tool result as a conversation entry.
func NewToolMessage(result ToolResult) Message {
	return Message{Role: RoleTool, ToolResult: &result, Timestamp: time.Now().UTC()}
}

// NewID returns a fresh unique identifier for runs, events and tool calls.
func NewID() string { return uuid.NewString() }
