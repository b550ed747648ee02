package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-dev/tessera/internal/config"
	"github.com/tessera-dev/tessera/internal/llm"
	"github.com/tessera-dev/tessera/internal/memory"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/retrieval"
	"github.com/tessera-dev/tessera/internal/tools"
)

const eventBuffer = 64

// Retriever feeds pre-invoked workspace context into a run.
type Retriever interface {
	Retrieve(ctx context.Context, query string, tokenBudget int) (retrieval.ResultSet, error)
}

// Engine drives the reason/act loop for every session. One engine serves all
// sessions; per-session state lives in the memory manager and the running
// map.
type Engine struct {
	logger    *zap.Logger
	models    *llm.Registry
	tools     *tools.Registry
	memory    *memory.Manager
	router    *TierRouter
	retriever Retriever
	metrics   *observability.Metrics
	cfg       config.AgentConfig
	budget    int

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewEngine wires the loop dependencies. retriever and metrics may be nil.
func NewEngine(
	logger *zap.Logger,
	models *llm.Registry,
	toolReg *tools.Registry,
	mem *memory.Manager,
	router *TierRouter,
	retriever Retriever,
	metrics *observability.Metrics,
	cfg config.AgentConfig,
	retrievalBudget int,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retrievalBudget <= 0 {
		retrievalBudget = 4096
	}
	return &Engine{
		logger:    logger,
		models:    models,
		tools:     toolReg,
		memory:    mem,
		router:    router,
		retriever: retriever,
		metrics:   metrics,
		cfg:       cfg,
		budget:    retrievalBudget,
		running:   make(map[string]context.CancelFunc),
	}
}

// Run starts one loop for the request's session and returns its event
// stream. The stream always ends with exactly one terminal event followed by
// channel close. A session admits one run at a time.
func (e *Engine) Run(ctx context.Context, req Request) (<-chan Event, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	session, created := e.memory.GetOrCreate(req.SessionID, req.WorkspacePath, req.ContextName)

	e.mu.Lock()
	if _, busy := e.running[session.ID()]; busy {
		e.mu.Unlock()
		return nil, fmt.Errorf("session %s already has a run in flight", session.ID())
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running[session.ID()] = cancel
	e.mu.Unlock()

	if created {
		e.logger.Info("session started",
			zap.String("session_id", session.ID()),
			zap.String("workspace", req.WorkspacePath))
	}

	events := make(chan Event, eventBuffer)
	go e.loop(runCtx, req, session, events)
	return events, nil
}

// Cancel requests cooperative cancellation of a session's in-flight run.
func (e *Engine) Cancel(sessionID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[sessionID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) release(sessionID string, cancel context.CancelFunc) {
	cancel()
	e.mu.Lock()
	delete(e.running, sessionID)
	e.mu.Unlock()
}

type run struct {
	req      Request
	session  *memory.Conversation
	events   chan<- Event
	steps    []Step
	used     []string
	retrCtx  string
	terminal State
}

func (r *run) emit(ev Event) {
	ev.SessionID = r.session.ID()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	r.events <- ev
}

func (e *Engine) loop(ctx context.Context, req Request, session *memory.Conversation, events chan<- Event) {
	start := time.Now()
	r := &run{req: req, session: session, events: events}

	e.mu.Lock()
	cancel := e.running[session.ID()]
	e.mu.Unlock()

	defer func() {
		e.release(session.ID(), cancel)
		close(events)
		e.metrics.RecordAgentRun(string(r.terminal), time.Since(start), len(r.steps))
		e.logger.Info("run finished",
			zap.String("session_id", session.ID()),
			zap.String("state", string(r.terminal)),
			zap.Int("steps", len(r.steps)),
			zap.Duration("duration", time.Since(start)))
	}()

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.cfg.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = 12
	}

	if req.UseRetrieval && e.retriever != nil {
		e.preRetrieve(ctx, r)
	}

	planRoute := e.router.Planning(req.Preset)
	parseRetried := false

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if ctx.Err() != nil {
			e.finishCancelled(r)
			return
		}

		r.emit(Event{Type: EventState, State: StatePlanning, Tier: planRoute.Tier})

		text, err := e.plan(ctx, r, planRoute)
		if err != nil {
			if ctx.Err() != nil {
				e.finishCancelled(r)
				return
			}
			e.metrics.RecordTierFailure("planning", planRoute.Tier)
			e.finishError(r, fmt.Sprintf("planning call failed: %v", err))
			return
		}

		parsed := ParseResponse(text)
		switch parsed.Kind {
		case ParsedFailure:
			e.metrics.RecordParseFailure()
			e.logger.Warn("planner response rejected",
				zap.String("session_id", session.ID()),
				zap.String("reason", parsed.Reason))
			r.recordStep(Step{
				Thought:     parsed.Thought,
				Observation: "parse failure: " + parsed.Reason,
				State:       StateObserving,
				Tier:        planRoute.Tier,
			})
			r.emit(Event{
				Type:       EventObservation,
				Content:    "parse failure: " + parsed.Reason,
				StepNumber: len(r.steps),
			})
			if parseRetried {
				e.finishError(r, "planner response did not match the grammar after retry")
				return
			}
			parseRetried = true
			continue

		case ParsedAnswer:
			r.emit(Event{Type: EventThought, Content: parsed.Thought, Tier: planRoute.Tier})
			r.recordStep(Step{
				Thought: parsed.Thought,
				State:   StateCompleted,
				Tier:    planRoute.Tier,
			})
			e.finishCompleted(r, parsed.Answer)
			return

		case ParsedAction:
			parseRetried = false
			r.emit(Event{Type: EventThought, Content: parsed.Thought, Tier: planRoute.Tier})
			if ctx.Err() != nil {
				e.finishCancelled(r)
				return
			}
			e.executeAction(ctx, r, parsed, planRoute)
		}
	}

	e.finishError(r, fmt.Sprintf("no answer after %d iterations", maxIterations))
}

func (e *Engine) plan(ctx context.Context, r *run, route Route) (string, error) {
	provider, tier, err := e.models.Resolve(route.Tier)
	if err != nil {
		return "", err
	}
	e.metrics.RecordTierUsage("planning", tier.Name)

	timeout := time.Duration(e.cfg.PlanningTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := llm.ChatRequest{
		Model: tier.Model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: buildSystemPrompt(e.promptSchemas(r.req))},
			{Role: llm.RoleUser, Content: buildUserPrompt(r.req.Query, r.session.ContextForPrompt(), r.retrCtx, r.steps)},
		},
		MaxTokens:   pickMaxTokens(route.MaxTokens, e.cfg.MaxTokens, tier.MaxTokens),
		Temperature: pickTemperature(route.Temperature, e.cfg.Temperature, tier.Temperature),
	}

	resp, err := provider.Chat(callCtx, chatReq)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

const webSearchTool = "web_search"

// promptSchemas returns the tools offered to the planner for this request.
// Web search is opt-in per run.
func (e *Engine) promptSchemas(req Request) []tools.Schema {
	schemas := e.tools.Schemas()
	if req.UseWebSearch {
		return schemas
	}
	out := make([]tools.Schema, 0, len(schemas))
	for _, s := range schemas {
		if s.Name == webSearchTool {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine) executeAction(ctx context.Context, r *run, parsed ParsedResponse, planRoute Route) {
	call := *parsed.Call
	toolRoute := e.router.Tool(r.req.Preset, call.Name, r.req.ToolOverrides)
	if toolRoute.Tier != "" {
		e.metrics.RecordTierUsage("tool", toolRoute.Tier)
	}

	r.emit(Event{
		Type:    EventAction,
		Content: formatCall(call),
		State:   StateExecuting,
		Tool:    call.Name,
		Tier:    toolRoute.Tier,
	})

	var result tools.Result
	if call.Name == webSearchTool && !r.req.UseWebSearch {
		result = tools.Result{Error: "web_search is not enabled for this run"}
	} else {
		result = e.tools.Execute(ctx, call)
	}
	e.metrics.RecordToolCall(call.Name, result.Success)

	observation := result.Output
	if !result.Success {
		observation = "tool failed: " + result.Error
	}

	r.recordStep(Step{
		Thought:     parsed.Thought,
		Action:      &call,
		Observation: observation,
		State:       StateObserving,
		Tier:        planRoute.Tier,
	})
	stepNumber := len(r.steps)

	if preview, ok := result.Data["diff_preview"].(tools.DiffPreview); ok {
		r.emit(Event{
			Type:       EventDiffPreview,
			Tool:       call.Name,
			StepNumber: stepNumber,
			Diff:       &preview,
		})
	}

	r.emit(Event{
		Type:       EventObservation,
		Content:    observation,
		State:      StateObserving,
		Tool:       call.Name,
		StepNumber: stepNumber,
	})

	r.used = append(r.used, call.Name)
	e.rememberFile(r, call, result)
}

// rememberFile records touched-file context for file-oriented tools.
func (e *Engine) rememberFile(r *run, call tools.Call, result tools.Result) {
	if !result.Success {
		return
	}
	switch call.Name {
	case "read_file":
		if path, ok := result.Data["path"].(string); ok {
			r.session.AddFileContext(path, result.Output)
		}
	case "write_file":
		if path, ok := result.Data["path"].(string); ok {
			content, _ := call.Args["content"].(string)
			r.session.AddFileContext(path, content)
		}
	}
}

func (e *Engine) preRetrieve(ctx context.Context, r *run) {
	set, err := e.retriever.Retrieve(ctx, r.req.Query, e.budget)
	if err != nil {
		e.logger.Warn("pre-retrieval failed",
			zap.String("session_id", r.session.ID()), zap.Error(err))
		return
	}
	if len(set.Artifacts) == 0 {
		return
	}

	var b strings.Builder
	for _, a := range set.Artifacts {
		fmt.Fprintf(&b, "%s: %s\n", a.Path, retrieval.Summarize(a.Content))
	}
	r.retrCtx = strings.TrimRight(b.String(), "\n")
	r.emit(Event{Type: EventContext, Content: r.retrCtx})
}

func (e *Engine) finishCompleted(r *run, answer string) {
	r.terminal = StateCompleted
	r.session.AddTurn(memory.Turn{
		Query:     r.req.Query,
		Response:  answer,
		ToolsUsed: r.used,
	})
	r.emit(Event{Type: EventAnswer, Content: answer, State: StateCompleted})
}

func (e *Engine) finishError(r *run, msg string) {
	r.terminal = StateError
	e.logger.Error("run failed",
		zap.String("session_id", r.session.ID()), zap.String("reason", msg))
	r.emit(Event{Type: EventError, Content: msg, State: StateError})
}

func (e *Engine) finishCancelled(r *run) {
	r.terminal = StateCancelled
	r.emit(Event{Type: EventCancelled, Content: "run cancelled", State: StateCancelled})
}

func (r *run) recordStep(s Step) {
	s.Number = len(r.steps) + 1
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	r.steps = append(r.steps, s)
}

func pickTemperature(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0.2
}

func pickMaxTokens(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
