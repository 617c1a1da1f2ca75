// Package orchestrator runs multiple agent execution units concurrently for
// one assessment and merges their output into a single result.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"advisor/pkg/agents"
	"advisor/pkg/llm"
	"advisor/pkg/logx"
	"advisor/pkg/metrics"
	"advisor/pkg/resilience/circuit"
	"advisor/pkg/resource"
)

// Config bounds one orchestration run.
type Config struct {
	MaxParallelAgents int
	AgentTimeout      time.Duration
	RetryFailedAgents bool
	MaxRetries        int
}

// Result is the immutable outcome of one orchestration run.
// TotalAgents == SuccessfulAgents + FailedAgents always holds, and every
// requested role appears exactly once in AgentResults.
type Result struct {
	RunID                      string                        `json:"run_id"`
	TotalAgents                int                           `json:"total_agents"`
	SuccessfulAgents           int                           `json:"successful_agents"`
	FailedAgents               int                           `json:"failed_agents"`
	ExecutionTime              time.Duration                 `json:"execution_time"`
	AgentResults               map[agents.Role]*agents.Result `json:"agent_results"`
	SynthesizedRecommendations []agents.Recommendation       `json:"synthesized_recommendations"`
}

// UnitRunner executes one role to a terminal state. *agents.Executor
// satisfies it.
type UnitRunner interface {
	Execute(ctx context.Context, assessment *agents.Assessment, role agents.Role) *agents.Result
}

// Orchestrator fans one assessment out to a bounded pool of execution units.
// All collaborators are injected; the orchestrator holds no global state.
type Orchestrator struct {
	runner    UnitRunner
	resources *resource.Manager
	circuits  *circuit.Manager
	recorder  metrics.Recorder
	logger    *logx.Logger
}

// New wires an orchestrator to its collaborators. resources and circuits are
// only consulted for health snapshots; a nil recorder disables metrics.
func New(runner UnitRunner, resources *resource.Manager, circuits *circuit.Manager, recorder metrics.Recorder) *Orchestrator {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Orchestrator{
		runner:    runner,
		resources: resources,
		circuits:  circuits,
		recorder:  recorder,
		logger:    logx.NewLogger("orchestrator"),
	}
}

// validate rejects degenerate configurations synchronously; everything past
// this point terminates in a Result.
func validate(assessment *agents.Assessment, roles []agents.Role, cfg Config) error {
	if assessment == nil {
		return fmt.Errorf("assessment is required")
	}
	if len(roles) == 0 {
		return fmt.Errorf("at least one agent role is required")
	}
	seen := make(map[agents.Role]bool, len(roles))
	for _, role := range roles {
		if seen[role] {
			return fmt.Errorf("duplicate agent role: %s", role)
		}
		seen[role] = true
	}
	if cfg.MaxParallelAgents <= 0 {
		return fmt.Errorf("max parallel agents must be positive, got %d", cfg.MaxParallelAgents)
	}
	if cfg.AgentTimeout <= 0 {
		return fmt.Errorf("agent timeout must be positive, got %s", cfg.AgentTimeout)
	}
	if cfg.RetryFailedAgents && cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", cfg.MaxRetries)
	}
	return nil
}

// OrchestrateAssessment runs every requested role against the assessment
// under a bounded worker pool and synthesizes the successful output. It
// always returns a complete Result once the configuration validates; total
// failure shows up as SuccessfulAgents == 0, never as an error.
func (o *Orchestrator) OrchestrateAssessment(ctx context.Context, assessment *agents.Assessment, roles []agents.Role, cfg Config) (*Result, error) {
	if err := validate(assessment, roles, cfg); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx = llm.WithRunID(ctx, runID)
	start := time.Now()
	o.logger.Info("run %s: %d roles, parallelism %d", runID, len(roles), cfg.MaxParallelAgents)

	results := make([]*agents.Result, len(roles))
	sem := make(chan struct{}, cfg.MaxParallelAgents)
	var wg sync.WaitGroup

	for i, role := range roles {
		wg.Add(1)
		go func(idx int, role agents.Role) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = o.runUnit(ctx, assessment, role, cfg)
		}(i, role)
	}
	wg.Wait()

	result := &Result{
		RunID:        runID,
		TotalAgents:  len(roles),
		AgentResults: make(map[agents.Role]*agents.Result, len(roles)),
	}
	for i, role := range roles {
		unit := results[i]
		result.AgentResults[role] = unit
		if unit.Status == agents.StatusCompleted {
			result.SuccessfulAgents++
		} else {
			result.FailedAgents++
		}
	}
	result.SynthesizedRecommendations = synthesize(roles, result.AgentResults)
	result.ExecutionTime = time.Since(start)

	o.logger.Info("run %s: %d/%d agents succeeded in %s",
		runID, result.SuccessfulAgents, result.TotalAgents, result.ExecutionTime)
	return result, nil
}

// runUnit executes one role under its own deadline, resubmitting immediately
// on failure when retries are enabled. The per-unit timeout cancels only
// this unit; siblings are unaffected.
func (o *Orchestrator) runUnit(ctx context.Context, assessment *agents.Assessment, role agents.Role, cfg Config) *agents.Result {
	maxAttempts := 1
	if cfg.RetryFailedAgents {
		maxAttempts += cfg.MaxRetries
	}

	var last *agents.Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		unitCtx, cancel := context.WithTimeout(ctx, cfg.AgentTimeout)
		last = o.runner.Execute(unitCtx, assessment, role)
		cancel()

		if last.Status == agents.StatusCompleted {
			return last
		}
		if ctx.Err() != nil {
			// The run itself ended; resubmission would time out instantly.
			return last
		}
		if attempt+1 < maxAttempts {
			o.logger.Warn("role %s attempt %d/%d ended %s: %s; resubmitting",
				role, attempt+1, maxAttempts, last.Status, last.Error)
		}
	}
	return last
}

// synthesize concatenates successful results' recommendations in role-list
// order and dedupes by title, first occurrence winning.
func synthesize(roles []agents.Role, results map[agents.Role]*agents.Result) []agents.Recommendation {
	var merged []agents.Recommendation
	seen := make(map[string]bool)

	for _, role := range roles {
		unit := results[role]
		if unit == nil || unit.Status != agents.StatusCompleted {
			continue
		}
		for _, rec := range unit.Recommendations {
			if seen[rec.Title] {
				continue
			}
			seen[rec.Title] = true
			merged = append(merged, rec)
		}
	}
	return merged
}

// Health is a point-in-time operational snapshot for the hosting layer.
type Health struct {
	Breakers  map[string]circuit.HealthSnapshot `json:"breakers"`
	Resources resource.Snapshot                 `json:"resources"`
}

// HealthSnapshot reports breaker and resource state via the injected
// managers.
func (o *Orchestrator) HealthSnapshot() Health {
	h := Health{}
	if o.circuits != nil {
		h.Breakers = o.circuits.Snapshot()
	}
	if o.resources != nil {
		h.Resources = o.resources.Metrics()
	}
	return h
}
