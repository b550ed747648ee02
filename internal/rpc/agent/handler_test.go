package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/rpc"
)

// scriptedRunner replays a fixed event stream for any run.
type scriptedRunner struct {
	events []rpc.RunTaskEvent
	err    error

	lastReq   rpc.RunTaskRequest
	cancelled []string
}

func (s *scriptedRunner) Run(ctx context.Context, req rpc.RunTaskRequest) (<-chan rpc.RunTaskEvent, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan rpc.RunTaskEvent, len(s.events))
	go func() {
		defer close(out)
		for _, ev := range s.events {
			ev.SessionID = req.SessionID
			ev.CorrelationID = req.CorrelationID
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *scriptedRunner) Cancel(sessionID string) bool {
	s.cancelled = append(s.cancelled, sessionID)
	return true
}

func answerScript() []rpc.RunTaskEvent {
	return []rpc.RunTaskEvent{
		{Type: "state", State: "planning"},
		{Type: "thought", Content: "thinking"},
		{Type: "answer", Content: "all done"},
	}
}

func TestHandlerStreamsNDJSON(t *testing.T) {
	runner := &scriptedRunner{events: answerScript()}
	handler := NewHandler(runner, nil)

	body, err := json.Marshal(rpc.RunTaskRequest{SessionID: "s1", Query: "do it"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/agent/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var events []rpc.RunTaskEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var ev rpc.RunTaskEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	require.Equal(t, "answer", events[2].Type)
	require.Equal(t, "all done", events[2].Content)
	require.Equal(t, "s1", events[2].SessionID)
}

func TestHandlerDefaultsCorrelationID(t *testing.T) {
	runner := &scriptedRunner{events: answerScript()}
	handler := NewHandler(runner, nil)

	body, _ := json.Marshal(rpc.RunTaskRequest{SessionID: "s2", Query: "q"})
	req := httptest.NewRequest(http.MethodPost, "/agent/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "s2", runner.lastReq.CorrelationID)
}

func TestHandlerRejectsGet(t *testing.T) {
	handler := NewHandler(&scriptedRunner{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/agent/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerRejectsBadJSON(t *testing.T) {
	handler := NewHandler(&scriptedRunner{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/agent/run", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReportsRunnerError(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("session busy")}
	handler := NewHandler(runner, nil)

	body, _ := json.Marshal(rpc.RunTaskRequest{SessionID: "s3", Query: "q"})
	req := httptest.NewRequest(http.MethodPost, "/agent/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "session busy")
}
