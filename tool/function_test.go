package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderplan/wanderplan/internal/util"
)

func sumTool() *FunctionTool {
	return NewFunctionTool("sum", "Add two numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Equal(t, "sum", toolErr.Tool)
}

func TestFunctionTool_TypeMismatch(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": "two", "b": 3.0})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	failing := NewFunctionTool("boom", "Always fails", map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("upstream unavailable")
	})

	_, err := failing.Call(context.Background(), map[string]any{})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "upstream unavailable")
}

func TestFunctionTool_ToolErrorForwarded(t *testing.T) {
	custom := NewToolError("custom", "rate limited", "RATE_LIMITED")
	failing := NewFunctionTool("custom", "Custom error", map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := failing.Call(context.Background(), map[string]any{})
	assert.Same(t, custom, err)
}

type forecastArgs struct {
	Location string `json:"location" description:"City name"`
	Days     int    `json:"days,omitempty" description:"Forecast horizon"`
	Units    *string `json:"units" description:"Optional unit system"`
}

func TestFunctionToolFromStruct(t *testing.T) {
	ft := NewFunctionToolFromStruct("forecast", "Forecast", forecastArgs{},
		func(_ context.Context, args map[string]any) (any, error) { return args["location"], nil })

	schema := ft.Parameters()
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "location")
	assert.Contains(t, props, "days")
	assert.Contains(t, props, "units")
	assert.ElementsMatch(t, []string{"location"}, schema["required"])

	// JSON-decoded integers arrive as float64 and must validate.
	require.NoError(t, util.ValidateArguments(map[string]any{"location": "Lisbon", "days": 3.0}, schema))
}
