package rpc

import (
	"time"

	"github.com/tessera-dev/tessera/internal/tools"
)

// ToolOverride adjusts model routing for a single tool within one task.
type ToolOverride struct {
	Tier        string  `json:"tier,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// RunTaskRequest is the top-level request for starting an agent task.
type RunTaskRequest struct {
	SessionID     string                  `json:"session_id,omitempty"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	Query         string                  `json:"query"`
	WorkspacePath string                  `json:"workspace_path,omitempty"`
	ContextName   string                  `json:"context_name,omitempty"`
	Preset        string                  `json:"preset,omitempty"`
	UseRetrieval  bool                    `json:"use_retrieval,omitempty"`
	UseWebSearch  bool                    `json:"use_web_search,omitempty"`
	MaxIterations int                     `json:"max_iterations,omitempty"`
	ToolOverrides map[string]ToolOverride `json:"tool_overrides,omitempty"`
}

// RunTaskEvent streams back one notable transition from the daemon. Every
// stream ends with exactly one terminal event: answer, error, or cancelled.
type RunTaskEvent struct {
	Type          string             `json:"type"`
	SessionID     string             `json:"session_id,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Content       string             `json:"content,omitempty"`
	State         string             `json:"state,omitempty"`
	Tier          string             `json:"tier,omitempty"`
	Tool          string             `json:"tool,omitempty"`
	StepNumber    int                `json:"step_number,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	Diff          *tools.DiffPreview `json:"diff,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e RunTaskEvent) Terminal() bool {
	switch e.Type {
	case "answer", "error", "cancelled":
		return true
	default:
		return false
	}
}

// RunTaskStreamRequest is the bidirectional stream payload for Connect RPC
// and the websocket transport. The first message must carry the Run task;
// subsequent messages can carry control signals.
type RunTaskStreamRequest struct {
	Run           *RunTaskRequest `json:"run,omitempty"`
	Cancel        bool            `json:"cancel,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}
