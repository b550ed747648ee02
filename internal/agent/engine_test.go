package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/config"
	"github.com/tessera-dev/tessera/internal/llm"
	llmmock "github.com/tessera-dev/tessera/internal/llm/mock"
	"github.com/tessera-dev/tessera/internal/memory"
	"github.com/tessera-dev/tessera/internal/retrieval"
	"github.com/tessera-dev/tessera/internal/tools"
	"github.com/tessera-dev/tessera/internal/websearch"
)

type echoTool struct {
	calls atomic.Int32
	hook  func()
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "echo a message" }
func (e *echoTool) Schema() tools.Schema {
	return tools.Schema{
		Name:        "echo",
		Description: "echo a message",
		Parameters: []tools.SchemaField{
			{Name: "msg", Type: "string", Required: true},
		},
	}
}
func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	e.calls.Add(1)
	if e.hook != nil {
		e.hook()
	}
	msg, _ := args["msg"].(string)
	return tools.Result{Success: true, Output: "echo: " + msg}, nil
}

func newTestEngine(t *testing.T, provider llm.Provider, extraTools ...tools.Tool) *Engine {
	t.Helper()

	models := llm.NewRegistry()
	models.RegisterProvider("mock", provider)
	models.RegisterTier("default", llm.TierRoute{Provider: "mock", Model: "m"}, true)

	reg := tools.NewRegistry(nil)
	for _, tool := range extraTools {
		require.NoError(t, reg.Register(tool))
	}

	mem := memory.NewManager(20, 5, time.Hour, nil)
	router := NewTierRouter(nil, "")

	return NewEngine(nil, models, reg, mem, router, nil, nil,
		config.AgentConfig{MaxIterations: 6, PlanningTimeoutSeconds: 5}, 0)
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d so far", len(out))
		}
	}
}

func eventsOfType(events []Event, typ string) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunAnswerTerminatesInOneIteration(t *testing.T) {
	engine := newTestEngine(t, llmmock.Scripted("Thought: nothing to do\nAnswer: done"))

	events, err := engine.Run(context.Background(), Request{Query: "trivial"})
	require.NoError(t, err)

	all := collect(t, events)
	require.NotEmpty(t, all)

	last := all[len(all)-1]
	require.Equal(t, EventAnswer, last.Type)
	require.Equal(t, "done", last.Content)
	require.Empty(t, eventsOfType(all, EventAction))

	terminals := 0
	for _, ev := range all {
		if ev.Terminal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals)
}

func TestRunExecutesToolThenAnswers(t *testing.T) {
	tool := &echoTool{}
	engine := newTestEngine(t, llmmock.Scripted(
		"Thought: try the tool\nAction: echo(msg=\"hi\")",
		"Thought: saw the echo\nAnswer: it said hi",
	), tool)

	events, err := engine.Run(context.Background(), Request{Query: "use the tool"})
	require.NoError(t, err)
	all := collect(t, events)

	require.EqualValues(t, 1, tool.calls.Load())

	actions := eventsOfType(all, EventAction)
	require.Len(t, actions, 1)
	require.Equal(t, "echo", actions[0].Tool)

	observations := eventsOfType(all, EventObservation)
	require.Len(t, observations, 1)
	require.Equal(t, "echo: hi", observations[0].Content)
	require.Equal(t, 1, observations[0].StepNumber)

	last := all[len(all)-1]
	require.Equal(t, EventAnswer, last.Type)
	require.Equal(t, "it said hi", last.Content)
}

func TestRunStepNumbersAreGapless(t *testing.T) {
	tool := &echoTool{}
	engine := newTestEngine(t, llmmock.Scripted(
		"Thought: first\nAction: echo(msg=\"a\")",
		"Thought: second\nAction: echo(msg=\"b\")",
		"Thought: done\nAnswer: ok",
	), tool)

	events, err := engine.Run(context.Background(), Request{Query: "two steps"})
	require.NoError(t, err)
	all := collect(t, events)

	observations := eventsOfType(all, EventObservation)
	require.Len(t, observations, 2)
	for i, ob := range observations {
		require.Equal(t, i+1, ob.StepNumber)
	}
}

func TestRunParseFailureRetriesOnceThenErrors(t *testing.T) {
	engine := newTestEngine(t, llmmock.Scripted("not the grammar"))

	events, err := engine.Run(context.Background(), Request{Query: "garbage in"})
	require.NoError(t, err)
	all := collect(t, events)

	observations := eventsOfType(all, EventObservation)
	require.Len(t, observations, 2)

	last := all[len(all)-1]
	require.Equal(t, EventError, last.Type)
	require.Contains(t, last.Content, "grammar")
}

func TestRunParseFailureThenRecovers(t *testing.T) {
	engine := newTestEngine(t, llmmock.Scripted(
		"not the grammar",
		"Thought: recovered\nAnswer: fine",
	))

	events, err := engine.Run(context.Background(), Request{Query: "flaky planner"})
	require.NoError(t, err)
	all := collect(t, events)

	last := all[len(all)-1]
	require.Equal(t, EventAnswer, last.Type)
	require.Equal(t, "fine", last.Content)
}

func TestRunMaxIterationsYieldsError(t *testing.T) {
	tool := &echoTool{}
	engine := newTestEngine(t, llmmock.Scripted(
		"Thought: loop forever\nAction: echo(msg=\"again\")",
	), tool)

	events, err := engine.Run(context.Background(), Request{
		Query:         "never answers",
		MaxIterations: 2,
	})
	require.NoError(t, err)
	all := collect(t, events)

	last := all[len(all)-1]
	require.Equal(t, EventError, last.Type)
	require.Contains(t, last.Content, "2 iterations")
	require.EqualValues(t, 2, tool.calls.Load())
}

func TestRunCancellationIsTerminal(t *testing.T) {
	var engine *Engine
	tool := &echoTool{}
	tool.hook = func() { engine.Cancel("s-cancel") }

	engine = newTestEngine(t, llmmock.Scripted(
		"Thought: step one\nAction: echo(msg=\"x\")",
		"Thought: should never run\nAction: echo(msg=\"y\")",
	), tool)

	events, err := engine.Run(context.Background(), Request{
		Query:     "cancel me",
		SessionID: "s-cancel",
	})
	require.NoError(t, err)
	all := collect(t, events)

	last := all[len(all)-1]
	require.Equal(t, EventCancelled, last.Type)
	require.EqualValues(t, 1, tool.calls.Load())

	thoughts := eventsOfType(all, EventThought)
	require.Len(t, thoughts, 1)
}

func TestRunRejectsConcurrentSession(t *testing.T) {
	release := make(chan struct{})
	provider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			<-release
			return llm.ChatResponse{
				Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "Thought: t\nAnswer: a"},
			}, nil
		},
	}
	engine := newTestEngine(t, provider)

	events, err := engine.Run(context.Background(), Request{Query: "first", SessionID: "busy"})
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), Request{Query: "second", SessionID: "busy"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "in flight")

	close(release)
	collect(t, events)

	events, err = engine.Run(context.Background(), Request{Query: "third", SessionID: "busy"})
	require.NoError(t, err)
	collect(t, events)
}

func TestRunRequiresQuery(t *testing.T) {
	engine := newTestEngine(t, llmmock.Scripted("Thought: t\nAnswer: a"))
	_, err := engine.Run(context.Background(), Request{Query: "   "})
	require.Error(t, err)
}

func TestRunRecordsTurnOnCompletion(t *testing.T) {
	tool := &echoTool{}
	engine := newTestEngine(t, llmmock.Scripted(
		"Thought: use it\nAction: echo(msg=\"z\")",
		"Thought: done\nAnswer: finished",
	), tool)

	events, err := engine.Run(context.Background(), Request{Query: "remember me", SessionID: "s-mem"})
	require.NoError(t, err)
	collect(t, events)

	conv, ok := engine.memory.Get("s-mem")
	require.True(t, ok)
	turns := conv.Turns()
	require.Len(t, turns, 1)
	require.Equal(t, "remember me", turns[0].Query)
	require.Equal(t, "finished", turns[0].Response)
	require.Equal(t, []string{"echo"}, turns[0].ToolsUsed)
}

type countingSearcher struct {
	calls atomic.Int32
}

func (s *countingSearcher) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	s.calls.Add(1)
	return []websearch.Result{{Title: "hit", URL: "https://example.com", Content: "snippet"}}, nil
}

func TestRunWebSearchBlockedWithoutOptIn(t *testing.T) {
	searcher := &countingSearcher{}
	var systemPrompt string
	provider := llmmock.Scripted(
		"Thought: look it up\nAction: web_search(query=\"news\")",
		"Thought: give up\nAnswer: no search available",
	)
	inner := provider.ChatFn
	provider.ChatFn = func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		systemPrompt = req.Messages[0].Content
		return inner(ctx, req)
	}
	engine := newTestEngine(t, provider, &tools.WebSearchTool{Searcher: searcher})

	events, err := engine.Run(context.Background(), Request{Query: "search something"})
	require.NoError(t, err)
	all := collect(t, events)

	require.EqualValues(t, 0, searcher.calls.Load())
	require.NotContains(t, systemPrompt, "web_search")

	observations := eventsOfType(all, EventObservation)
	require.Len(t, observations, 1)
	require.Contains(t, observations[0].Content, "not enabled")

	last := all[len(all)-1]
	require.Equal(t, EventAnswer, last.Type)
}

func TestRunWebSearchAllowedWhenRequested(t *testing.T) {
	searcher := &countingSearcher{}
	engine := newTestEngine(t, llmmock.Scripted(
		"Thought: look it up\nAction: web_search(query=\"news\")",
		"Thought: found it\nAnswer: done",
	), &tools.WebSearchTool{Searcher: searcher})

	events, err := engine.Run(context.Background(), Request{Query: "search something", UseWebSearch: true})
	require.NoError(t, err)
	all := collect(t, events)

	require.EqualValues(t, 1, searcher.calls.Load())

	observations := eventsOfType(all, EventObservation)
	require.Len(t, observations, 1)
	require.Contains(t, observations[0].Content, "example.com")
}

func TestRunParseFailureCountResetsAfterSuccess(t *testing.T) {
	tool := &echoTool{}
	engine := newTestEngine(t, llmmock.Scripted(
		"not the grammar",
		"Thought: back on track\nAction: echo(msg=\"a\")",
		"still not the grammar",
		"Thought: done\nAnswer: survived",
	), tool)

	events, err := engine.Run(context.Background(), Request{Query: "flaky but consecutive-safe"})
	require.NoError(t, err)
	all := collect(t, events)

	require.EqualValues(t, 1, tool.calls.Load())

	last := all[len(all)-1]
	require.Equal(t, EventAnswer, last.Type)
	require.Equal(t, "survived", last.Content)
}

type staticRetriever struct{}

func (staticRetriever) Retrieve(ctx context.Context, query string, tokenBudget int) (retrieval.ResultSet, error) {
	return retrieval.ResultSet{
		Artifacts:  []retrieval.Artifact{{Path: "main.go", Content: "package main", Score: 1}},
		TokensUsed: 3,
	}, nil
}

func TestRunEmitsContextBeforeFirstThought(t *testing.T) {
	models := llm.NewRegistry()
	models.RegisterProvider("mock", llmmock.Scripted("Thought: t\nAnswer: a"))
	models.RegisterTier("default", llm.TierRoute{Provider: "mock", Model: "m"}, true)

	engine := NewEngine(nil, models, tools.NewRegistry(nil),
		memory.NewManager(20, 5, time.Hour, nil), NewTierRouter(nil, ""),
		staticRetriever{}, nil,
		config.AgentConfig{MaxIterations: 3, PlanningTimeoutSeconds: 5}, 100)

	events, err := engine.Run(context.Background(), Request{Query: "with context", UseRetrieval: true})
	require.NoError(t, err)
	all := collect(t, events)

	var contextIdx, thoughtIdx = -1, -1
	for i, ev := range all {
		if ev.Type == EventContext && contextIdx < 0 {
			contextIdx = i
		}
		if ev.Type == EventThought && thoughtIdx < 0 {
			thoughtIdx = i
		}
	}
	require.GreaterOrEqual(t, contextIdx, 0)
	require.GreaterOrEqual(t, thoughtIdx, 0)
	require.Less(t, contextIdx, thoughtIdx)
	require.Contains(t, all[contextIdx].Content, "main.go")
}

func TestEndToEndListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.py", "b.py"} {
		require.NoError(t, writeFile(dir, name))
	}
	ws, err := tools.NewWorkspace(dir, 0, nil)
	require.NoError(t, err)

	engine := newTestEngine(t, llmmock.Scripted(
		"Thought: list the workspace\nAction: list_directory(path=\".\")",
		"Thought: both seen\nAnswer: the workspace contains a.py and b.py",
	), &tools.ListDirTool{WS: ws})

	events, err := engine.Run(context.Background(), Request{Query: "list files", WorkspacePath: dir})
	require.NoError(t, err)
	all := collect(t, events)

	observations := eventsOfType(all, EventObservation)
	require.Len(t, observations, 1)
	require.Contains(t, observations[0].Content, "a.py")
	require.Contains(t, observations[0].Content, "b.py")

	last := all[len(all)-1]
	require.Equal(t, EventAnswer, last.Type)
	require.Contains(t, last.Content, "a.py")
	require.Contains(t, last.Content, "b.py")
}

func writeFile(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte("print()"), 0o644)
}
