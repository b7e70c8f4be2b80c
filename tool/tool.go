// Package tool implements WanderPlan's capability subsystem: named,
// schema-validated actions the reasoning engine can invoke, plus the
// insertion-ordered Registry that catalogs them and builds the tool manifest
// offered to the engine.
package tool

import (
	"context"
	"fmt"
)

// Tool is a single named capability. Implementations must be safe for
// concurrent use: one reasoning turn may dispatch several calls in parallel.
//
// Call receives arguments already parsed from JSON. FunctionTool validates
// them against the declared schema before running the body; custom
// implementations are expected to do the same.
type Tool interface {
	// Name returns the unique identifier (snake_case recommended).
	Name() string

	// Description is the natural-language summary shown to the reasoning
	// engine so it can decide when to use the tool.
	Description() string

	// Parameters returns a JSON-Schema-subset object describing the
	// accepted arguments.
	Parameters() map[string]any

	// Call executes the tool. ctx carries the per-call deadline; blocking
	// implementations must respect its cancellation.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Definition is the (name, description, schema) triple exposed in the
// registry manifest.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Source is a source attribution attached to a tool result.
type Source struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet,omitempty"`
}

// Result lets a tool return a payload together with the sources that backed
// it. Tools may return any value; when they return a Result the dispatcher
// records its Sources as run citations.
type Result struct {
	Content any      `json:"content"`
	Sources []Source `json:"sources,omitempty"`
}

// Error codes attached to ToolError for uniform downstream handling.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
)

// ToolError wraps a failure inside a tool call with the tool name and a
// categorization code. Tool errors are absorbed into the run state as failed
// results; they never abort a run.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given categorization.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
