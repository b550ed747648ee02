package agent

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/rpc"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler streams RunTask events over a websocket. The client sends one
// RunTaskStreamRequest carrying the run payload; later messages with
// cancel=true stop the run.
type WSHandler struct {
	runner  Runner
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewWSHandler constructs a websocket handler.
func NewWSHandler(runner Runner, metrics *observability.Metrics, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{runner: runner, metrics: metrics, logger: logger}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordTransportError("ws", "upgrade")
		return
	}
	defer conn.Close()

	h.metrics.IncActiveSessions("ws")
	defer h.metrics.DecActiveSessions("ws")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var first rpc.RunTaskStreamRequest
	if err := conn.ReadJSON(&first); err != nil {
		h.metrics.RecordTransportError("ws", "receive_first")
		return
	}
	if first.Run == nil {
		h.metrics.RecordTransportError("ws", "missing_run")
		_ = conn.WriteJSON(rpc.RunTaskEvent{Type: "error", Content: "first message must include run payload"})
		return
	}

	req := *first.Run
	if req.CorrelationID == "" {
		req.CorrelationID = req.SessionID
	}

	// Listen for cancel messages; a read error means the peer went away.
	go func() {
		for {
			var msg rpc.RunTaskStreamRequest
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				return
			}
			if msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events, runErr := h.runner.Run(ctx, req)
	if runErr != nil {
		h.metrics.RecordTransportError("ws", "runner_error")
		_ = conn.WriteJSON(rpc.RunTaskEvent{Type: "error", SessionID: req.SessionID, Content: runErr.Error()})
		return
	}

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			h.metrics.RecordTransportError("ws", "send")
			h.logger.Debug("websocket send failed", zap.Error(err))
			return
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
