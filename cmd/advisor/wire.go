package main

import (
	"fmt"
	"time"

	"advisor/pkg/agents"
	"advisor/pkg/config"
	"advisor/pkg/ledger"
	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
	"advisor/pkg/llmimpl/anthropic"
	"advisor/pkg/llmimpl/google"
	"advisor/pkg/llmimpl/ollama"
	"advisor/pkg/llmimpl/openai"
	"advisor/pkg/metrics"
	"advisor/pkg/orchestrator"
	"advisor/pkg/resilience/circuit"
	"advisor/pkg/resource"
	"advisor/pkg/router"
)

// app holds one wired process-scoped component graph. Everything is built
// from configuration at startup and injected explicitly.
type app struct {
	cfg          *config.Config
	circuits     *circuit.Manager
	resources    *resource.Manager
	router       *router.Router
	orchestrator *orchestrator.Orchestrator
	ledger       *ledger.Ledger
}

// buildBackend constructs the provider client for one configured backend.
func buildBackend(bc config.BackendConfig) (llm.Backend, error) {
	provider, err := config.GetModelProvider(bc.Model)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", bc.Name, err)
	}

	key, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", bc.Name, err)
	}

	switch provider {
	case config.ProviderAnthropic:
		return anthropic.New(bc.Name, key, bc.Model), nil
	case config.ProviderOpenAI:
		return openai.New(bc.Name, key, bc.Model), nil
	case config.ProviderGoogle:
		return google.New(bc.Name, key, bc.Model), nil
	case config.ProviderOllama:
		return ollama.New(bc.Name, key, bc.Model), nil
	default:
		return nil, fmt.Errorf("backend %s: unsupported provider %s", bc.Name, provider)
	}
}

// buildApp wires the full component graph from a loaded configuration.
func buildApp(cfg *config.Config, strategy router.Strategy) (*app, error) {
	var backends []llm.Backend
	for _, bc := range cfg.Backends {
		if bc.Disabled {
			continue
		}
		backend, err := buildBackend(bc)
		if err != nil {
			return nil, err
		}
		backends = append(backends, backend)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no enabled backends configured")
	}

	circuits := circuit.NewManager(circuit.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		RecoveryTimeout:  cfg.Circuit.RecoveryTimeout.Std(),
		HalfOpenMaxCalls: cfg.Circuit.HalfOpenMaxCalls,
		// Auth and bad-prompt failures are caller problems and must not
		// open a backend's breaker.
		IsFailure: llmerrors.IsBackendFault,
	})

	limits := make(map[string]resource.Limit, len(cfg.Resources))
	for name, rl := range cfg.Resources {
		limits[name] = resource.Limit{
			MaxUsage:     rl.MaxUsage,
			MaxPerWindow: rl.MaxPerWindow,
			Window:       rl.WindowElapsed.Std(),
		}
	}
	resources := resource.NewManager(limits)

	recorder := metrics.NewPrometheusRecorder()

	var book *ledger.Ledger
	var sink router.CallSink
	if cfg.LedgerPath != "" {
		var err error
		book, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage ledger: %w", err)
		}
		sink = book
	}

	rt := router.New(backends, circuits, recorder, sink)
	executor := agents.NewExecutor(rt, resources, recorder, strategy)
	orch := orchestrator.New(executor, resources, circuits, recorder)

	return &app{
		cfg:          cfg,
		circuits:     circuits,
		resources:    resources,
		router:       rt,
		orchestrator: orch,
		ledger:       book,
	}, nil
}

// close releases process-scoped resources.
func (a *app) close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
}

// orchestrationConfig converts the YAML orchestration block.
func (a *app) orchestrationConfig() orchestrator.Config {
	oc := a.cfg.Orchestration
	timeout := oc.AgentTimeout.Std()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return orchestrator.Config{
		MaxParallelAgents: oc.MaxParallelAgents,
		AgentTimeout:      timeout,
		RetryFailedAgents: oc.RetryFailedAgents,
		MaxRetries:        oc.MaxRetries,
	}
}
