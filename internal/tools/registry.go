package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Registry maps tool names to instances and dispatches calls with uniform
// error wrapping. Tools registered here are stateless or hold only
// construction-time configuration, so one registry is safely shared across
// concurrent sessions.
type Registry struct {
	logger *zap.Logger
	tools  map[string]Tool
	order  []string
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger,
		tools:  make(map[string]Tool),
	}
}

// Register adds a tool; names must be unique.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns tool descriptors in registration order, for prompt
// construction and the schema endpoint.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema())
	}
	return out
}

// Execute validates and runs a call. It never returns an error or panics:
// unknown tools, validation failures, tool errors, and panics all surface
// as a failed Result so the agent loop keeps running.
func (r *Registry) Execute(ctx context.Context, call Call) (result Result) {
	tool, ok := r.tools[call.Name]
	if !ok {
		r.logger.Warn("unknown tool requested", zap.String("tool", call.Name))
		return failf("unknown tool %q", call.Name)
	}

	if err := ValidateArgs(tool.Schema(), call.Args); err != nil {
		r.logger.Warn("tool argument validation failed",
			zap.String("tool", call.Name), zap.Error(err))
		return failf("invalid arguments for %s: %v", call.Name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				zap.String("tool", call.Name), zap.Any("panic", rec))
			result = failf("tool %s panicked: %v", call.Name, rec)
		}
	}()

	res, err := tool.Execute(ctx, call.Args)
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", call.Name), zap.Error(err))
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
		return res
	}

	r.logger.Debug("tool executed",
		zap.String("tool", call.Name), zap.Bool("success", res.Success))
	return res
}
