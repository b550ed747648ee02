package agent

import (
	"time"

	"github.com/tessera-dev/tessera/internal/tools"
)

// State is the agent loop state for a session. Exactly one state is current
// at any instant.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateObserving State = "observing"
	StateCompleted State = "completed"
	StateError     State = "error"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// Step is one completed loop iteration. Steps are append-only and never
// mutated after being recorded.
type Step struct {
	Number      int         `json:"step_number"`
	Thought     string      `json:"thought"`
	Action      *tools.Call `json:"action,omitempty"`
	Observation string      `json:"observation,omitempty"`
	State       State       `json:"state"`
	Tier        string      `json:"model_tier,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ToolOverride adjusts model routing for a single tool within one request.
type ToolOverride struct {
	Tier        string  `json:"tier,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Request starts one agent run against a session.
type Request struct {
	Query         string                  `json:"query"`
	SessionID     string                  `json:"session_id,omitempty"`
	WorkspacePath string                  `json:"workspace_path,omitempty"`
	ContextName   string                  `json:"context_name,omitempty"`
	UseRetrieval  bool                    `json:"use_retrieval,omitempty"`
	UseWebSearch  bool                    `json:"use_web_search,omitempty"`
	MaxIterations int                     `json:"max_iterations,omitempty"`
	Preset        string                  `json:"preset,omitempty"`
	ToolOverrides map[string]ToolOverride `json:"tool_overrides,omitempty"`
}

// Event types streamed to the caller.
const (
	EventState       = "state"
	EventThought     = "thought"
	EventAction      = "action"
	EventObservation = "observation"
	EventAnswer      = "answer"
	EventError       = "error"
	EventCancelled   = "cancelled"
	EventContext     = "context"
	EventDiffPreview = "diff_preview"
)

// Event is one notable transition in a run. Exactly one terminal event
// (answer, error, or cancelled) closes every stream.
type Event struct {
	Type       string             `json:"type"`
	SessionID  string             `json:"session_id,omitempty"`
	Content    string             `json:"content,omitempty"`
	State      State              `json:"state,omitempty"`
	Tier       string             `json:"tier,omitempty"`
	Tool       string             `json:"tool,omitempty"`
	StepNumber int                `json:"step_number,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Diff       *tools.DiffPreview `json:"diff,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventAnswer, EventError, EventCancelled:
		return true
	default:
		return false
	}
}
