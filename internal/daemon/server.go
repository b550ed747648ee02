package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessera-dev/tessera/internal/agent"
	"github.com/tessera-dev/tessera/internal/config"
	"github.com/tessera-dev/tessera/internal/llm/configbuilder"
	"github.com/tessera-dev/tessera/internal/memory"
	"github.com/tessera-dev/tessera/internal/observability"
	"github.com/tessera-dev/tessera/internal/retrieval"
	agentrpc "github.com/tessera-dev/tessera/internal/rpc/agent"
	toolrpc "github.com/tessera-dev/tessera/internal/rpc/tools"
	"github.com/tessera-dev/tessera/internal/tools"
	"github.com/tessera-dev/tessera/internal/websearch"
)

// Server hosts the agent endpoints plus health, metrics, and tool schemas.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  agentrpc.Runner
	metrics *observability.Metrics
	tools   *tools.Registry
	memory  *memory.Manager
}

// NewServer wires the full daemon: providers, workspace, tools, memory, and
// the agent engine.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	models, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build model registry: %w", err)
	}

	metrics := observability.NewMetrics()

	ws, err := tools.NewWorkspace(cfg.Workspace.Root, cfg.Workspace.MaxReadBytes, logger)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	var retriever *retrieval.Engine
	if cfg.Retrieval.Enabled {
		retriever = retrieval.NewEngine(ws, cfg.Retrieval.MaxFiles, cfg.Retrieval.MaxFileBytes)
	}

	toolRegistry, err := buildToolRegistry(cfg, ws, retriever, logger)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	mem := memory.NewManager(cfg.Memory.MaxTurns, cfg.Memory.MaxFiles, cfg.Memory.SessionTTL, logger)
	router := agent.NewTierRouter(cfg.Presets, cfg.Agent.DefaultPreset)

	var engineRetriever agent.Retriever
	if retriever != nil {
		engineRetriever = retriever
	}
	engine := agent.NewEngine(logger, models, toolRegistry, mem, router,
		engineRetriever, metrics, cfg.Agent, cfg.Retrieval.TokenBudget)

	runner := &agentrpc.EngineRunner{Engine: engine, Logger: logger}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		runner:  runner,
		metrics: metrics,
		tools:   toolRegistry,
		memory:  mem,
	}, nil
}

// buildToolRegistry registers every tool the configuration permits.
func buildToolRegistry(cfg *config.Config, ws *tools.Workspace, retriever *retrieval.Engine, logger *zap.Logger) (*tools.Registry, error) {
	reg := tools.NewRegistry(logger)

	denied := append([]string{}, cfg.Tools.DeniedCommands...)
	if !cfg.Tools.AllowNetwork {
		denied = append(denied, tools.DefaultNetworkDenials...)
	}
	terminal := &tools.Terminal{
		WorkingDir:     ws.Root(),
		Allowed:        cfg.Tools.AllowedCommands,
		Denied:         denied,
		Timeout:        time.Duration(cfg.Tools.ExecTimeoutSeconds) * time.Second,
		AllowExecution: cfg.Tools.AllowExec,
	}

	all := []tools.Tool{
		&tools.ReadFileTool{WS: ws},
		&tools.WriteFileTool{WS: ws, AllowWrite: cfg.Tools.AllowWrite},
		&tools.ListDirTool{WS: ws},
		&tools.DeleteFileTool{WS: ws, AllowDelete: cfg.Tools.AllowDelete},
		&tools.RunCommandTool{Terminal: terminal, Logger: logger},
	}

	if cfg.Tools.AllowGit {
		git := &tools.Git{WorkingDir: ws.Root(), AllowExec: cfg.Tools.AllowExec, Logger: logger}
		all = append(all,
			&tools.GitStatusTool{Git: git},
			&tools.GitDiffTool{Git: git},
			&tools.GitLogTool{Git: git},
			&tools.GitCommitTool{Git: git},
		)
	}

	if retriever != nil {
		all = append(all, &tools.CodeSearchTool{Retriever: retriever, TokenBudget: cfg.Retrieval.TokenBudget})
	}

	if cfg.WebSearch.Enabled {
		client := websearch.NewClient(cfg.WebSearch.BaseURL, cfg.WebSearch.Timeout, cfg.WebSearch.MaxResults, logger)
		all = append(all, &tools.WebSearchTool{Searcher: client})
	}

	if diag := strings.Fields(cfg.Tools.DiagnosticsCommand); len(diag) > 0 {
		all = append(all, &tools.DiagnosticsTool{
			Terminal: terminal,
			Command:  diag[0],
			Args:     diag[1:],
		})
	}

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	sweep := time.Duration(s.cfg.Memory.SweepIntervalSeconds) * time.Second
	if sweep > 0 {
		s.memory.StartSweeper(ctx, sweep)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/tools/schemas", toolrpc.SchemaHandler{Registry: s.tools})

	transport := strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
	switch transport {
	case "ndjson":
		mux.Handle("/agent/run", agentrpc.NewHandler(s.runner, s.metrics))
	case "ws":
		mux.Handle("/agent/ws", agentrpc.NewWSHandler(s.runner, s.metrics, s.logger))
	default:
		path, handler := agentrpc.NewConnectHandler(s.runner, s.metrics)
		mux.Handle(path, handler)
		// keep the NDJSON path available for plain HTTP clients
		mux.Handle("/agent/run", agentrpc.NewHandler(s.runner, s.metrics))
	}

	handler := http.Handler(mux)
	if transport != "ndjson" && transport != "ws" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting tessera daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", transport))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down tessera daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
