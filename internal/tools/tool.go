package tools

import (
	"context"
	"fmt"
)

// Call is a single tool invocation request, produced only by response parsing.
type Call struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Result is the uniform outcome of a tool execution. RequiresConfirmation
// marks the action as provisional: the caller must obtain explicit approval
// before treating the side effect as final.
type Result struct {
	Success              bool                   `json:"success"`
	Output               string                 `json:"output,omitempty"`
	Error                string                 `json:"error,omitempty"`
	Data                 map[string]interface{} `json:"data,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	RequiresConfirmation bool                   `json:"requires_confirmation,omitempty"`
}

// Tool is the contract every agent-invocable operation implements.
// Execute may return an error; the Registry converts it to a failed Result
// so tool failures never escape into the agent loop.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, args map[string]interface{}) (Result, error)
}

func ok(output string) Result {
	return Result{Success: true, Output: output}
}

func failf(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}
