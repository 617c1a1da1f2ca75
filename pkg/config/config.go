// Package config provides configuration loading, validation, and the static
// model registry for the assessment core.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs accept "30s" style values.
type Duration time.Duration

// UnmarshalYAML parses either a duration string ("90s", "2m") or a bare
// integer interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("cannot parse duration from %q", value.Value)
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BackendConfig describes one model backend the router may select.
type BackendConfig struct {
	Name     string `yaml:"name"`               // Unique backend name, e.g. "anthropic-sonnet"
	Model    string `yaml:"model"`              // Provider model identifier
	Disabled bool   `yaml:"disabled,omitempty"` // Skip this backend entirely
}

// CircuitConfig tunes the per-backend circuit breakers.
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	RecoveryTimeout  Duration      `yaml:"recovery_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

// ResourceLimit caps one shared resource type.
type ResourceLimit struct {
	MaxUsage      int64         `yaml:"max_usage"`                 // Hard cap on concurrent usage, 0 = unlimited
	MaxPerWindow  int           `yaml:"max_per_window,omitempty"`  // Sliding-window request cap, 0 = unlimited
	WindowElapsed Duration      `yaml:"window_elapsed,omitempty"`  // Trailing window span
}

// OrchestrationConfig controls concurrent agent execution.
type OrchestrationConfig struct {
	MaxParallelAgents int           `yaml:"max_parallel_agents"`
	AgentTimeout      Duration      `yaml:"agent_timeout"`
	RetryFailedAgents bool          `yaml:"retry_failed_agents"`
	MaxRetries        int           `yaml:"max_retries"`
}

// Config is the root configuration for the assessment core.
type Config struct {
	Backends      []BackendConfig          `yaml:"backends"`
	Circuit       CircuitConfig            `yaml:"circuit"`
	Resources     map[string]ResourceLimit `yaml:"resources"`
	Orchestration OrchestrationConfig      `yaml:"orchestration"`
	LedgerPath    string                   `yaml:"ledger_path,omitempty"`
	PrometheusURL string                   `yaml:"prometheus_url,omitempty"`
}

// Resource type names used by the agent execution units.
const (
	ResourceLLMTokens = "llm_tokens"
	ResourceAPICall   = "api_call"
)

// DefaultConfig returns a runnable configuration with conservative limits.
func DefaultConfig() *Config {
	return &Config{
		Backends: []BackendConfig{
			{Name: "anthropic-sonnet", Model: "claude-sonnet-4-5"},
			{Name: "openai-4o-mini", Model: "gpt-4o-mini"},
			{Name: "gemini-flash", Model: "gemini-2.0-flash"},
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			RecoveryTimeout:  Duration(30 * time.Second),
			HalfOpenMaxCalls: 2,
		},
		Resources: map[string]ResourceLimit{
			ResourceLLMTokens: {MaxUsage: 200000},
			ResourceAPICall:   {MaxUsage: 20, MaxPerWindow: 60, WindowElapsed: Duration(time.Minute)},
		},
		Orchestration: OrchestrationConfig{
			MaxParallelAgents: 4,
			AgentTimeout:      Duration(120 * time.Second),
			RetryFailedAgents: true,
			MaxRetries:        1,
		},
	}
}

// Load reads a YAML config file, applying defaults for absent sections.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// runtime misbehavior deep inside the orchestrator.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}
	seen := make(map[string]bool, len(c.Backends))
	for i := range c.Backends {
		b := &c.Backends[i]
		if b.Name == "" {
			return fmt.Errorf("backend %d: name cannot be empty", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("backend %d: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		if _, err := GetModelProvider(b.Model); err != nil {
			return fmt.Errorf("backend %q: %w", b.Name, err)
		}
	}

	if c.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("circuit failure_threshold must be positive")
	}
	if c.Circuit.SuccessThreshold <= 0 {
		return fmt.Errorf("circuit success_threshold must be positive")
	}
	if c.Circuit.HalfOpenMaxCalls <= 0 {
		return fmt.Errorf("circuit half_open_max_calls must be positive")
	}

	for name, limit := range c.Resources {
		if limit.MaxPerWindow > 0 && limit.WindowElapsed <= 0 {
			return fmt.Errorf("resource %q: window_elapsed required when max_per_window is set", name)
		}
	}

	if c.Orchestration.MaxParallelAgents <= 0 {
		return fmt.Errorf("orchestration max_parallel_agents must be positive")
	}
	if c.Orchestration.AgentTimeout <= 0 {
		return fmt.Errorf("orchestration agent_timeout must be positive")
	}
	if c.Orchestration.MaxRetries < 0 {
		return fmt.Errorf("orchestration max_retries cannot be negative")
	}
	return nil
}

// GetAPIKey returns the API key (or host URL for Ollama) for a provider.
// Environment variables win over the decrypted secrets file.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		// Ollama takes a host URL rather than a key
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	if key, err := GetSecret(envVar); err == nil {
		return key, nil
	}
	return "", fmt.Errorf("no API key for provider %s: set %s or add it to the secrets file", provider, envVar)
}
