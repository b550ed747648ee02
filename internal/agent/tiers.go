package agent

import (
	"strings"

	"github.com/tessera-dev/tessera/internal/config"
)

// Route is a resolved model selection for one call.
type Route struct {
	Tier        string
	Temperature float64
	MaxTokens   int
}

// TierRouter maps presets to model tiers for planning calls and model-backed
// tools. Per-call overrides take precedence over the preset.
type TierRouter struct {
	presets       map[string]config.PresetConfig
	defaultPreset string
}

// NewTierRouter builds a router over the configured presets.
func NewTierRouter(presets map[string]config.PresetConfig, defaultPreset string) *TierRouter {
	return &TierRouter{presets: presets, defaultPreset: defaultPreset}
}

func (r *TierRouter) preset(name string) (config.PresetConfig, bool) {
	if r == nil {
		return config.PresetConfig{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultPreset
	}
	p, ok := r.presets[name]
	return p, ok
}

// Planning resolves the tier producing Thought/Action text. An empty tier
// means the registry default.
func (r *TierRouter) Planning(presetName string) Route {
	p, ok := r.preset(presetName)
	if !ok {
		return Route{}
	}
	return Route{
		Tier:        p.PlanningTier,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
}

// Tool resolves the tier for a model-backed tool. Order of precedence:
// per-call override, preset tool mapping, preset planning tier.
func (r *TierRouter) Tool(presetName, tool string, overrides map[string]ToolOverride) Route {
	route := r.Planning(presetName)
	if p, ok := r.preset(presetName); ok {
		if tier, mapped := p.ToolTiers[tool]; mapped {
			route.Tier = tier
		}
	}
	if ov, ok := overrides[tool]; ok {
		if ov.Tier != "" {
			route.Tier = ov.Tier
		}
		if ov.Temperature > 0 {
			route.Temperature = ov.Temperature
		}
		if ov.MaxTokens > 0 {
			route.MaxTokens = ov.MaxTokens
		}
	}
	return route
}
