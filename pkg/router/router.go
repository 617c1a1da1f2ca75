// Package router selects an LLM backend per request, wraps each call in the
// backend's circuit breaker, tracks running usage, and fails over to the next
// candidate on error.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"advisor/pkg/ledger"
	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
	"advisor/pkg/logx"
	"advisor/pkg/metrics"
	"advisor/pkg/resilience/circuit"
	"advisor/pkg/utils"
)

// Strategy selects the candidate ordering for a request.
type Strategy string

const (
	// StrategyCostOptimized orders candidates by estimated price, cheapest first.
	StrategyCostOptimized Strategy = "cost_optimized"
	// StrategyPerformanceOptimized orders candidates by rolling success/latency score.
	StrategyPerformanceOptimized Strategy = "performance_optimized"
	// StrategyRoundRobin cycles deterministically through healthy candidates.
	StrategyRoundRobin Strategy = "round_robin"
)

// ErrNoHealthyBackends is returned when every backend is open-circuited or
// manually disabled.
var ErrNoHealthyBackends = errors.New("no healthy backends available")

// Attempt records one failed backend try during failover.
type Attempt struct {
	Backend string
	Err     error
}

// AllFailedError aggregates the per-backend causes after candidate exhaustion.
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Backend, a.Err))
	}
	return "all backends failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual causes to errors.Is/As.
func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// Usage is the running total for one backend.
type Usage struct {
	Requests         int64
	PromptTokens     int64
	CompletionTokens int64
	CostUSD          float64
}

// perfStats tracks the rolling success/latency signal behind the
// performance_optimized ordering.
type perfStats struct {
	successes    int64
	failures     int64
	totalLatency time.Duration
}

// score prefers backends that succeed often and answer fast. Untried
// backends get a neutral score so they are probed before chronically
// failing ones.
func (p *perfStats) score() float64 {
	total := p.successes + p.failures
	if total == 0 {
		return 0.5
	}
	successRate := float64(p.successes) / float64(total)
	avgLatency := p.totalLatency.Seconds() / float64(total)
	return successRate / (1.0 + avgLatency)
}

// CallSink receives one record per completed or failed backend call.
// *ledger.Ledger satisfies it; nil disables persistence.
type CallSink interface {
	RecordCall(ctx context.Context, call ledger.Call) error
}

type entry struct {
	raw     llm.Backend
	wrapped llm.Backend
}

// Router implements strategy-driven backend selection with breaker-gated
// failover.
type Router struct {
	mu        sync.Mutex
	entries   []*entry
	circuits  *circuit.Manager
	recorder  metrics.Recorder
	sink      CallSink
	logger    *logx.Logger
	rrNext    int
	unhealthy map[string]bool
	usage     map[string]*Usage
	perf      map[string]*perfStats
}

// New builds a router over the given backends. Each backend is wrapped with
// metrics and circuit middleware; breakers are created in the manager on
// first use. Backend order is the configuration order and serves as the
// deterministic tie-break everywhere.
func New(backends []llm.Backend, circuits *circuit.Manager, recorder metrics.Recorder, sink CallSink) *Router {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	r := &Router{
		circuits:  circuits,
		recorder:  recorder,
		sink:      sink,
		logger:    logx.NewLogger("router"),
		unhealthy: make(map[string]bool),
		usage:     make(map[string]*Usage),
		perf:      make(map[string]*perfStats),
	}

	for _, backend := range backends {
		wrapped := llm.Chain(backend,
			metricsMiddleware(recorder, estimateUsage),
			circuitMiddleware(circuits.Get(backend.Name())),
		)
		r.entries = append(r.entries, &entry{raw: backend, wrapped: wrapped})
		r.usage[backend.Name()] = &Usage{}
		r.perf[backend.Name()] = &perfStats{}
	}

	return r
}

// estimateUsage counts tokens with tiktoken when a provider omits usage.
func estimateUsage(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteByte('\n')
	}
	return utils.CountTokensSimple(prompt.String()), utils.CountTokensSimple(resp.Content)
}

// SetHealthy manually overrides a backend's availability. Setting false
// removes it from candidate lists until re-enabled, independent of breaker
// state.
func (r *Router) SetHealthy(name string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if healthy {
		delete(r.unhealthy, name)
	} else {
		r.unhealthy[name] = true
	}
}

// healthyLocked reports whether a backend may receive traffic: not manually
// disabled, and its breaker is CLOSED or HALF_OPEN. Half-open probe capacity
// is enforced at call time by the circuit middleware; a capacity rejection
// simply advances failover to the next candidate.
func (r *Router) healthyLocked(name string) bool {
	if r.unhealthy[name] {
		return false
	}
	breaker, ok := r.circuits.Lookup(name)
	if !ok {
		return true
	}
	return breaker.GetState() != circuit.Open
}

// candidates returns healthy entries in strategy order. Sorting is stable,
// so configuration order breaks ties.
func (r *Router) candidates(strategy Strategy, promptTokens, completionTokens int) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	healthy := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if r.healthyLocked(e.raw.Name()) {
			healthy = append(healthy, e)
		}
	}
	if len(healthy) == 0 {
		return nil
	}

	switch strategy {
	case StrategyCostOptimized:
		sort.SliceStable(healthy, func(i, j int) bool {
			return healthy[i].raw.EstimateCost(promptTokens, completionTokens) <
				healthy[j].raw.EstimateCost(promptTokens, completionTokens)
		})
	case StrategyPerformanceOptimized:
		sort.SliceStable(healthy, func(i, j int) bool {
			return r.perf[healthy[i].raw.Name()].score() > r.perf[healthy[j].raw.Name()].score()
		})
	case StrategyRoundRobin:
		start := r.rrNext % len(healthy)
		r.rrNext++
		rotated := make([]*entry, 0, len(healthy))
		rotated = append(rotated, healthy[start:]...)
		rotated = append(rotated, healthy[:start]...)
		healthy = rotated
	default:
		// Unknown strategies fall back to configuration order.
	}

	return healthy
}

// GenerateResponse routes one completion request. Candidates are tried in
// strategy order; a failure or breaker rejection moves to the next candidate
// as an ordinary tagged result. The caller's request is never mutated: every
// attempt works on a deep copy.
func (r *Router) GenerateResponse(ctx context.Context, req llm.CompletionRequest, strategy Strategy) (llm.CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "invalid completion request")
	}

	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteByte('\n')
	}
	estPrompt := utils.CountTokensSimple(prompt.String())
	estCompletion := utils.EstimateCompletionTokens(req.MaxTokens)

	candidates := r.candidates(strategy, estPrompt, estCompletion)
	if len(candidates) == 0 {
		return llm.CompletionResponse{}, ErrNoHealthyBackends
	}

	var attempts []Attempt
	for _, cand := range candidates {
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{Backend: cand.raw.Name(), Err: ctx.Err()})
			break
		}

		start := time.Now()
		resp, err := cand.wrapped.Complete(ctx, req.Clone())
		elapsed := time.Since(start)

		if err == nil {
			r.recordSuccess(ctx, cand, req, resp, elapsed)
			return resp, nil
		}

		r.recordFailure(ctx, cand, err, elapsed)
		attempts = append(attempts, Attempt{Backend: cand.raw.Name(), Err: err})

		if llmerrors.TypeOf(err) == llmerrors.ErrorTypeBadPrompt {
			// A malformed prompt fails identically everywhere.
			break
		}
		r.logger.Warn("backend %s failed (%v), trying next candidate", cand.raw.Name(), err)
	}

	return llm.CompletionResponse{}, &AllFailedError{Attempts: attempts}
}

// recordSuccess refines token counts from provider usage and updates the
// running totals and the call ledger.
func (r *Router) recordSuccess(ctx context.Context, cand *entry, req llm.CompletionRequest, resp llm.CompletionResponse, elapsed time.Duration) {
	promptTokens, completionTokens := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if promptTokens == 0 && completionTokens == 0 {
		promptTokens, completionTokens = estimateUsage(req, resp)
	}
	cost := cand.raw.EstimateCost(promptTokens, completionTokens)

	r.mu.Lock()
	u := r.usage[cand.raw.Name()]
	u.Requests++
	u.PromptTokens += int64(promptTokens)
	u.CompletionTokens += int64(completionTokens)
	u.CostUSD += cost
	p := r.perf[cand.raw.Name()]
	p.successes++
	p.totalLatency += elapsed
	r.mu.Unlock()

	if r.sink != nil {
		call := ledger.Call{
			RunID:            llm.RunIDFromContext(ctx),
			Backend:          cand.raw.Name(),
			Model:            cand.raw.ModelName(),
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			CostUSD:          cost,
			Duration:         elapsed,
			Status:           "success",
		}
		if err := r.sink.RecordCall(ctx, call); err != nil {
			r.logger.Warn("failed to record call in ledger: %v", err)
		}
	}
}

func (r *Router) recordFailure(ctx context.Context, cand *entry, callErr error, elapsed time.Duration) {
	r.mu.Lock()
	u := r.usage[cand.raw.Name()]
	u.Requests++
	p := r.perf[cand.raw.Name()]
	p.failures++
	p.totalLatency += elapsed
	r.mu.Unlock()

	if r.sink != nil {
		call := ledger.Call{
			RunID:     llm.RunIDFromContext(ctx),
			Backend:   cand.raw.Name(),
			Model:     cand.raw.ModelName(),
			Duration:  elapsed,
			Status:    "error",
			ErrorType: errorLabel(callErr),
		}
		if err := r.sink.RecordCall(ctx, call); err != nil {
			r.logger.Warn("failed to record call in ledger: %v", err)
		}
	}
}

// UsageSnapshot returns a copy of the per-backend running totals.
func (r *Router) UsageSnapshot() map[string]Usage {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]Usage, len(r.usage))
	for name, u := range r.usage {
		snapshot[name] = *u
	}
	return snapshot
}

// Backends returns the configured backend names in configuration order.
func (r *Router) Backends() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.raw.Name()
	}
	return names
}
