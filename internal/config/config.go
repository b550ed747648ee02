package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Workspace WorkspaceConfig           `mapstructure:"workspace"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Tiers     map[string]TierConfig     `mapstructure:"tiers"`
	Presets   map[string]PresetConfig   `mapstructure:"presets"`
	Tools     ToolsConfig               `mapstructure:"tools"`
	Retrieval RetrievalConfig           `mapstructure:"retrieval"`
	WebSearch WebSearchConfig           `mapstructure:"web_search"`
	Memory    MemoryConfig              `mapstructure:"memory"`
	Agent     AgentConfig               `mapstructure:"agent"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// WorkspaceConfig fixes the filesystem boundary all file tools operate in.
type WorkspaceConfig struct {
	Root         string `mapstructure:"root"`           // workspace root directory
	MaxReadBytes int64  `mapstructure:"max_read_bytes"` // per-file read cap
}

// ProviderConfig represents LLM provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"`     // openai, openrouter, ollama, vllm, lmstudio, custom
	BaseURL string        `mapstructure:"base_url"` // API base URL
	APIKey  string        `mapstructure:"api_key"`  // optional API key
	Timeout time.Duration `mapstructure:"timeout"`  // request timeout
}

// TierConfig binds a logical model tier to a provider entry and model parameters.
type TierConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// PresetConfig bundles tier routing for a named run profile: the tier that
// produces Thought/Action text plus per-tool tiers for model-backed tools.
type PresetConfig struct {
	PlanningTier string            `mapstructure:"planning_tier"`
	ToolTiers    map[string]string `mapstructure:"tool_tiers"`
	Temperature  float64           `mapstructure:"temperature"`
	MaxTokens    int               `mapstructure:"max_tokens"`
}

// ToolsConfig configures tool behaviour and execution restrictions.
type ToolsConfig struct {
	AllowExec          bool     `mapstructure:"allow_exec"`
	AllowGit           bool     `mapstructure:"allow_git"`
	AllowWrite         bool     `mapstructure:"allow_write"`
	AllowDelete        bool     `mapstructure:"allow_delete"`
	AllowNetwork       bool     `mapstructure:"allow_network"`
	AllowedCommands    []string `mapstructure:"allowed_commands"`
	DeniedCommands     []string `mapstructure:"denied_commands"`
	ExecTimeoutSeconds int      `mapstructure:"exec_timeout_seconds"`
	DiagnosticsCommand string   `mapstructure:"diagnostics_command"`
}

// RetrievalConfig controls the in-process retrieval engine behind the code_search tool.
type RetrievalConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxFiles     int  `mapstructure:"max_files"`
	MaxFileBytes int  `mapstructure:"max_file_bytes"`
	TokenBudget  int  `mapstructure:"token_budget"`
}

// WebSearchConfig points the web_search tool at a meta-search endpoint.
type WebSearchConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// MemoryConfig bounds per-session conversation memory.
type MemoryConfig struct {
	MaxTurns             int           `mapstructure:"max_turns"`
	MaxFiles             int           `mapstructure:"max_files"`
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	SweepIntervalSeconds int           `mapstructure:"sweep_interval_seconds"`
}

// AgentConfig describes the ReAct loop runtime parameters.
type AgentConfig struct {
	MaxIterations          int     `mapstructure:"max_iterations"`
	MaxTokens              int     `mapstructure:"max_tokens"`
	Temperature            float64 `mapstructure:"temperature"`
	DefaultPreset          string  `mapstructure:"default_preset"`
	PlanningTimeoutSeconds int     `mapstructure:"planning_timeout_seconds"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect, ndjson, or ws
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: TESSERA_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TESSERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("workspace.root", ".")
	v.SetDefault("workspace.max_read_bytes", 10*1024*1024)

	v.SetDefault("tools.allow_exec", true)
	v.SetDefault("tools.allow_git", true)
	v.SetDefault("tools.allow_write", true)
	v.SetDefault("tools.allow_delete", true)
	v.SetDefault("tools.allow_network", false)
	v.SetDefault("tools.exec_timeout_seconds", 30)
	v.SetDefault("tools.diagnostics_command", "")

	v.SetDefault("retrieval.enabled", true)
	v.SetDefault("retrieval.max_files", 200)
	v.SetDefault("retrieval.max_file_bytes", 65536)
	v.SetDefault("retrieval.token_budget", 4096)

	v.SetDefault("web_search.enabled", false)
	v.SetDefault("web_search.timeout", 15*time.Second)
	v.SetDefault("web_search.max_results", 5)

	v.SetDefault("memory.max_turns", 20)
	v.SetDefault("memory.max_files", 5)
	v.SetDefault("memory.session_ttl", 24*time.Hour)
	v.SetDefault("memory.sweep_interval_seconds", 3600)

	v.SetDefault("agent.max_iterations", 12)
	v.SetDefault("agent.max_tokens", 1024)
	v.SetDefault("agent.temperature", 0.2)
	v.SetDefault("agent.default_preset", "")
	v.SetDefault("agent.planning_timeout_seconds", 60)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Tiers) == 0 {
		return errors.New("at least one model tier must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	var defaultFound bool
	for name, t := range c.Tiers {
		if t.Provider == "" {
			return fmt.Errorf("tier %q must reference provider", name)
		}

		if _, ok := c.Providers[t.Provider]; !ok {
			return fmt.Errorf("tier %q references unknown provider %q", name, t.Provider)
		}

		if t.Temperature < 0 || t.Temperature > 2 {
			return fmt.Errorf("tier %q temperature must be within [0,2]", name)
		}

		if t.MaxTokens < 0 {
			return fmt.Errorf("tier %q max_tokens cannot be negative", name)
		}

		if t.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one tier should be marked as default")
	}

	for name, preset := range c.Presets {
		if preset.PlanningTier != "" {
			if _, ok := c.Tiers[preset.PlanningTier]; !ok {
				return fmt.Errorf("preset %q references unknown planning tier %q", name, preset.PlanningTier)
			}
		}
		for tool, tier := range preset.ToolTiers {
			if _, ok := c.Tiers[tier]; !ok {
				return fmt.Errorf("preset %q maps tool %q to unknown tier %q", name, tool, tier)
			}
		}
	}

	if c.Agent.DefaultPreset != "" {
		if _, ok := c.Presets[c.Agent.DefaultPreset]; !ok {
			return fmt.Errorf("agent.default_preset references unknown preset %q", c.Agent.DefaultPreset)
		}
	}

	if c.Agent.MaxIterations <= 0 {
		return errors.New("agent.max_iterations must be > 0")
	}
	if c.Agent.PlanningTimeoutSeconds <= 0 {
		return errors.New("agent.planning_timeout_seconds must be > 0")
	}

	if c.Workspace.MaxReadBytes <= 0 {
		return errors.New("workspace.max_read_bytes must be > 0")
	}

	if c.Tools.ExecTimeoutSeconds <= 0 {
		return errors.New("tools.exec_timeout_seconds must be > 0")
	}

	if c.Memory.MaxTurns <= 0 {
		return errors.New("memory.max_turns must be > 0")
	}
	if c.Memory.MaxFiles <= 0 {
		return errors.New("memory.max_files must be > 0")
	}
	if c.Memory.SessionTTL <= 0 {
		return errors.New("memory.session_ttl must be > 0")
	}

	if c.Retrieval.MaxFiles < 0 {
		return errors.New("retrieval.max_files must be >= 0")
	}
	if c.Retrieval.MaxFileBytes < 0 {
		return errors.New("retrieval.max_file_bytes must be >= 0")
	}

	if c.WebSearch.Enabled && strings.TrimSpace(c.WebSearch.BaseURL) == "" {
		return errors.New("web_search.base_url must be set when web_search.enabled is true")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson", "ws":
	default:
		return fmt.Errorf("server.transport must be one of connect, ndjson, or ws, got %q", c.Server.Transport)
	}

	return nil
}
