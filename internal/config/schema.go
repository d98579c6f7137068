package config

import "github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"

// Config holds figlang configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Backends []BackendCfg `mapstructure:"backends" yaml:"backends"`
	Stages   StagesCfg    `mapstructure:"stages" yaml:"stages"`
	Pipeline PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
	Source   SourceCfg    `mapstructure:"source" yaml:"source"`
}

// BackendCfg configures one analyzer backend. List order is fallback order.
type BackendCfg struct {
	Name            string  `mapstructure:"name" yaml:"name"`
	Type            string  `mapstructure:"type" yaml:"type"` // "openrouter", "openai"
	Model           string  `mapstructure:"model" yaml:"model"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	RateLimit       float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	TimeoutSeconds  int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	InputCostPer1M  float64 `mapstructure:"input_cost_per_1m" yaml:"input_cost_per_1m"`
	OutputCostPer1M float64 `mapstructure:"output_cost_per_1m" yaml:"output_cost_per_1m"`
	Enabled         bool    `mapstructure:"enabled" yaml:"enabled"`
}

// StageCfg tunes one analysis stage.
type StageCfg struct {
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// StagesCfg holds per-stage tuning.
type StagesCfg struct {
	Detection  StageCfg `mapstructure:"detection" yaml:"detection"`
	Validation StageCfg `mapstructure:"validation" yaml:"validation"`
}

// PipelineCfg tunes the job orchestrator.
type PipelineCfg struct {
	MaxParallel         int `mapstructure:"max_parallel" yaml:"max_parallel"`
	WriterQueueSize     int `mapstructure:"writer_queue_size" yaml:"writer_queue_size"`
	AwaitTimeoutSeconds int `mapstructure:"await_timeout_seconds" yaml:"await_timeout_seconds"`
	PromptRuneBudget    int `mapstructure:"prompt_rune_budget" yaml:"prompt_rune_budget"`
}

// SourceCfg configures the source text API.
type SourceCfg struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backends: []BackendCfg{
			{
				Name:            "openrouter",
				Type:            "openrouter",
				Model:           "anthropic/claude-sonnet-4",
				APIKey:          "${OPENROUTER_API_KEY}",
				RateLimit:       2.0,
				TimeoutSeconds:  300,
				InputCostPer1M:  3.0,
				OutputCostPer1M: 15.0,
				Enabled:         true,
			},
			{
				Name:            "openai",
				Type:            "openai",
				Model:           "gpt-4o",
				APIKey:          "${OPENAI_API_KEY}",
				RateLimit:       2.0,
				TimeoutSeconds:  300,
				InputCostPer1M:  2.5,
				OutputCostPer1M: 10.0,
				Enabled:         true,
			},
		},
		Stages: StagesCfg{
			Detection:  StageCfg{Temperature: 0.2, MaxTokens: 16000},
			Validation: StageCfg{Temperature: 0.1, MaxTokens: 16000},
		},
		Pipeline: PipelineCfg{
			MaxParallel:         4,
			WriterQueueSize:     16,
			AwaitTimeoutSeconds: 120,
			PromptRuneBudget:    12000,
		},
		Source: SourceCfg{
			BaseURL: "https://www.sefaria.org/api",
		},
	}
}

// Backend returns a backend config by name.
func (c *Config) Backend(name string) (BackendCfg, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendCfg{}, false
}

// EnabledBackends returns the enabled backends in fallback order.
func (c *Config) EnabledBackends() []BackendCfg {
	out := make([]BackendCfg, 0, len(c.Backends))
	for _, b := range c.Backends {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// ToRegistryConfig converts the config to a format suitable for
// providers.Registry. It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Backends: make([]providers.NamedBackendConfig, 0, len(c.Backends)),
	}
	for _, b := range c.Backends {
		cfg.Backends = append(cfg.Backends, providers.NamedBackendConfig{
			Name: b.Name,
			Config: providers.BackendConfig{
				Type:            b.Type,
				Model:           b.Model,
				APIKey:          ResolveEnvVars(b.APIKey),
				RateLimit:       b.RateLimit,
				TimeoutSeconds:  b.TimeoutSeconds,
				InputCostPer1M:  b.InputCostPer1M,
				OutputCostPer1M: b.OutputCostPer1M,
				Enabled:         b.Enabled,
			},
		})
	}
	return cfg
}
