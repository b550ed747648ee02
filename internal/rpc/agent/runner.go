package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/tessera-dev/tessera/internal/agent"
	"github.com/tessera-dev/tessera/internal/rpc"
)

// Runner starts agent tasks and yields streamed events. Handlers depend on
// this interface so transports are testable without a live engine.
type Runner interface {
	Run(ctx context.Context, req rpc.RunTaskRequest) (<-chan rpc.RunTaskEvent, error)
	Cancel(sessionID string) bool
}

// EngineRunner bridges the agent engine to the wire event protocol.
type EngineRunner struct {
	Engine *agent.Engine
	Logger *zap.Logger
}

// Run translates the wire request, starts the loop, and re-emits its events
// with correlation metadata attached.
func (r *EngineRunner) Run(ctx context.Context, req rpc.RunTaskRequest) (<-chan rpc.RunTaskEvent, error) {
	events, err := r.Engine.Run(ctx, toAgentRequest(req))
	if err != nil {
		return nil, err
	}

	out := make(chan rpc.RunTaskEvent, 16)
	go func() {
		defer close(out)
		for ev := range events {
			out <- toWireEvent(ev, req.CorrelationID)
		}
	}()
	return out, nil
}

// Cancel requests cooperative cancellation of a session's run.
func (r *EngineRunner) Cancel(sessionID string) bool {
	cancelled := r.Engine.Cancel(sessionID)
	if cancelled && r.Logger != nil {
		r.Logger.Info("cancellation requested", zap.String("session_id", sessionID))
	}
	return cancelled
}

func toAgentRequest(req rpc.RunTaskRequest) agent.Request {
	var overrides map[string]agent.ToolOverride
	if len(req.ToolOverrides) > 0 {
		overrides = make(map[string]agent.ToolOverride, len(req.ToolOverrides))
		for tool, ov := range req.ToolOverrides {
			overrides[tool] = agent.ToolOverride{
				Tier:        ov.Tier,
				Temperature: ov.Temperature,
				MaxTokens:   ov.MaxTokens,
			}
		}
	}
	return agent.Request{
		Query:         req.Query,
		SessionID:     req.SessionID,
		WorkspacePath: req.WorkspacePath,
		ContextName:   req.ContextName,
		UseRetrieval:  req.UseRetrieval,
		UseWebSearch:  req.UseWebSearch,
		MaxIterations: req.MaxIterations,
		Preset:        req.Preset,
		ToolOverrides: overrides,
	}
}

func toWireEvent(ev agent.Event, correlationID string) rpc.RunTaskEvent {
	return rpc.RunTaskEvent{
		Type:          ev.Type,
		SessionID:     ev.SessionID,
		CorrelationID: correlationID,
		Content:       ev.Content,
		State:         string(ev.State),
		Tier:          ev.Tier,
		Tool:          ev.Tool,
		StepNumber:    ev.StepNumber,
		Timestamp:     ev.Timestamp,
		Diff:          ev.Diff,
	}
}
