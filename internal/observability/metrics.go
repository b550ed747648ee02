package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the agent/daemon.
type Metrics struct {
	registry      *prometheus.Registry
	AgentRuns     *prometheus.CounterVec
	AgentDuration *prometheus.HistogramVec
	AgentSteps    *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	ParseFailures prometheus.Counter
	ActiveSession *prometheus.GaugeVec
	TransportErrs *prometheus.CounterVec
	TierUsage     *prometheus.CounterVec
	TierFailures  *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with agent collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_agent_runs_total",
		Help: "Total agent runs by terminal state",
	}, []string{"state"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tessera_agent_duration_seconds",
		Help:    "Agent run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"state"})

	steps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tessera_agent_steps",
		Help:    "Loop steps completed per run",
		Buckets: []float64{1, 2, 3, 5, 8, 12, 15, 20},
	}, []string{"state"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_tool_calls_total",
		Help: "Tool executions by tool name and outcome",
	}, []string{"tool", "outcome"})

	parseFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tessera_parse_failures_total",
		Help: "Planner responses rejected by the grammar parser",
	})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tessera_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	tierUsage := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_tier_usage_total",
		Help: "Model tier selections by role",
	}, []string{"role", "tier"})

	tierFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_tier_failures_total",
		Help: "Model call failures by role and tier",
	}, []string{"role", "tier"})

	reg.MustRegister(runs, durs, steps, toolCalls, parseFails, active, trErrors, tierUsage, tierFailures)

	return &Metrics{
		registry:      reg,
		AgentRuns:     runs,
		AgentDuration: durs,
		AgentSteps:    steps,
		ToolCalls:     toolCalls,
		ParseFailures: parseFails,
		ActiveSession: active,
		TransportErrs: trErrors,
		TierUsage:     tierUsage,
		TierFailures:  tierFailures,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAgentRun records the terminal state, duration, and step count of a run.
func (m *Metrics) RecordAgentRun(state string, duration time.Duration, steps int) {
	if m == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.AgentRuns.WithLabelValues(state).Inc()
	m.AgentDuration.WithLabelValues(state).Observe(duration.Seconds())
	m.AgentSteps.WithLabelValues(state).Observe(float64(steps))
}

// RecordToolCall increments the tool execution counter.
func (m *Metrics) RecordToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "unknown"
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordParseFailure counts a grammar rejection of a planner response.
func (m *Metrics) RecordParseFailure() {
	if m == nil {
		return
	}
	m.ParseFailures.Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}

// RecordTierUsage increments the usage counter for a role/tier selection.
func (m *Metrics) RecordTierUsage(role, tier string) {
	if m == nil {
		return
	}
	if role == "" {
		role = "unknown"
	}
	if tier == "" {
		tier = "unknown"
	}
	m.TierUsage.WithLabelValues(role, tier).Inc()
}

// RecordTierFailure increments the failure counter for a role/tier selection.
func (m *Metrics) RecordTierFailure(role, tier string) {
	if m == nil {
		return
	}
	if role == "" {
		role = "unknown"
	}
	if tier == "" {
		tier = "unknown"
	}
	m.TierFailures.WithLabelValues(role, tier).Inc()
}
