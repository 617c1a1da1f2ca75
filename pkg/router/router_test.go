package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/ledger"
	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
	"advisor/pkg/metrics"
	"advisor/pkg/resilience/circuit"
)

// fakeBackend is a scriptable llm.Backend for routing tests.
type fakeBackend struct {
	mu      sync.Mutex
	name    string
	model   string
	cost    float64
	err     error
	content string
	latency time.Duration
	calls   int
}

func (f *fakeBackend) Name() string      { return f.name }
func (f *fakeBackend) ModelName() string { return f.model }

func (f *fakeBackend) EstimateCost(_, _ int) float64 { return f.cost }

func (f *fakeBackend) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	// Scribble on the received request to prove the caller's copy is isolated.
	if len(req.Messages) > 0 {
		req.Messages[0].Content = "mutated"
	}
	if f.err != nil {
		return llm.CompletionResponse{}, f.err
	}
	return llm.CompletionResponse{
		Content: f.content,
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestRouter(backends ...llm.Backend) (*Router, *circuit.Manager) {
	circuits := circuit.NewManager(circuit.Config{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	return New(backends, circuits, metrics.Nop(), nil), circuits
}

func testRequest() llm.CompletionRequest {
	return llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewUserMessage("evaluate the deployment"),
	})
}

func TestCostOptimizedPicksCheapest(t *testing.T) {
	expensive := &fakeBackend{name: "expensive", model: "claude-opus-4-1", cost: 1.0, content: "pricey"}
	cheap := &fakeBackend{name: "cheap", model: "gpt-4o-mini", cost: 0.01, content: "bargain"}
	r, _ := newTestRouter(expensive, cheap)

	resp, err := r.GenerateResponse(context.Background(), testRequest(), StrategyCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, "bargain", resp.Content)
	assert.Equal(t, 0, expensive.callCount())
}

func TestRoundRobinCyclesDeterministically(t *testing.T) {
	a := &fakeBackend{name: "a", model: "m", content: "a"}
	b := &fakeBackend{name: "b", model: "m", content: "b"}
	r, _ := newTestRouter(a, b)

	var got []string
	for i := 0; i < 4; i++ {
		resp, err := r.GenerateResponse(context.Background(), testRequest(), StrategyRoundRobin)
		require.NoError(t, err)
		got = append(got, resp.Content)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, got)
}

func TestFailoverToNextCandidate(t *testing.T) {
	failing := &fakeBackend{name: "failing", model: "m", cost: 0.01, err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "upstream hiccup")}
	healthy := &fakeBackend{name: "healthy", model: "m", cost: 0.02, content: "recovered"}
	r, _ := newTestRouter(failing, healthy)

	resp, err := r.GenerateResponse(context.Background(), testRequest(), StrategyCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 1, failing.callCount())

	usage := r.UsageSnapshot()
	assert.Equal(t, int64(1), usage["failing"].Requests)
	assert.Equal(t, int64(1), usage["healthy"].Requests)
	assert.Equal(t, int64(10), usage["healthy"].PromptTokens)
}

func TestAllBackendsFailedAggregatesCauses(t *testing.T) {
	errA := llmerrors.NewError(llmerrors.ErrorTypeTransient, "a down")
	errB := llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "b throttled")
	a := &fakeBackend{name: "a", model: "m", err: errA}
	b := &fakeBackend{name: "b", model: "m", err: errB}
	r, _ := newTestRouter(a, b)

	_, err := r.GenerateResponse(context.Background(), testRequest(), StrategyRoundRobin)
	require.Error(t, err)

	var allFailed *AllFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Attempts, 2)
	assert.True(t, errors.Is(err, errA))
	assert.True(t, errors.Is(err, errB))
}

func TestOpenBreakerExcludesBackend(t *testing.T) {
	flaky := &fakeBackend{name: "flaky", model: "m", err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "boom")}
	steady := &fakeBackend{name: "steady", model: "m", content: "ok"}
	r, circuits := newTestRouter(flaky, steady)

	// Two failed requests trip flaky's breaker (threshold 2); round robin
	// still succeeds via failover each time.
	for i := 0; i < 2; i++ {
		_, err := r.GenerateResponse(context.Background(), testRequest(), StrategyCostOptimized)
		require.NoError(t, err)
	}
	require.Equal(t, circuit.Open, circuits.Get("flaky").GetState())

	before := flaky.callCount()
	_, err := r.GenerateResponse(context.Background(), testRequest(), StrategyCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, before, flaky.callCount())
}

func TestManualHealthOverride(t *testing.T) {
	a := &fakeBackend{name: "a", model: "m", content: "a"}
	b := &fakeBackend{name: "b", model: "m", content: "b"}
	r, _ := newTestRouter(a, b)

	r.SetHealthy("a", false)
	resp, err := r.GenerateResponse(context.Background(), testRequest(), StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Content)
	assert.Equal(t, 0, a.callCount())

	r.SetHealthy("a", true)
	_, err = r.GenerateResponse(context.Background(), testRequest(), StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, 1, a.callCount())
}

func TestNoHealthyBackends(t *testing.T) {
	a := &fakeBackend{name: "a", model: "m", content: "a"}
	r, _ := newTestRouter(a)
	r.SetHealthy("a", false)

	_, err := r.GenerateResponse(context.Background(), testRequest(), StrategyRoundRobin)
	assert.ErrorIs(t, err, ErrNoHealthyBackends)
}

func TestBadPromptAbortsFailover(t *testing.T) {
	a := &fakeBackend{name: "a", model: "m", err: llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "malformed")}
	b := &fakeBackend{name: "b", model: "m", content: "unreached"}
	r, _ := newTestRouter(a, b)

	_, err := r.GenerateResponse(context.Background(), testRequest(), StrategyRoundRobin)
	require.Error(t, err)
	assert.Equal(t, 0, b.callCount())
}

func TestCallerRequestNeverMutated(t *testing.T) {
	a := &fakeBackend{name: "a", model: "m", content: "ok"}
	r, _ := newTestRouter(a)

	req := testRequest()
	original := req.Messages[0].Content
	_, err := r.GenerateResponse(context.Background(), req, StrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, original, req.Messages[0].Content)
}

func TestPerformanceOptimizedPrefersReliableBackend(t *testing.T) {
	flaky := &fakeBackend{name: "flaky", model: "m", err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "boom")}
	steady := &fakeBackend{name: "steady", model: "m", content: "ok"}
	// High failure threshold so the breaker never masks the scoring.
	circuits := circuit.NewManager(circuit.Config{FailureThreshold: 100, RecoveryTimeout: time.Hour})
	r := New([]llm.Backend{flaky, steady}, circuits, metrics.Nop(), nil)

	// Build history: flaky fails, steady absorbs via failover.
	for i := 0; i < 3; i++ {
		_, err := r.GenerateResponse(context.Background(), testRequest(), StrategyRoundRobin)
		require.NoError(t, err)
	}

	before := flaky.callCount()
	_, err := r.GenerateResponse(context.Background(), testRequest(), StrategyPerformanceOptimized)
	require.NoError(t, err)
	assert.Equal(t, before, flaky.callCount(), "scored ordering should try steady first")
}

type captureSink struct {
	mu    sync.Mutex
	calls []ledger.Call
}

func (c *captureSink) RecordCall(_ context.Context, call ledger.Call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return nil
}

func TestSinkReceivesCallRecords(t *testing.T) {
	a := &fakeBackend{name: "a", model: "claude-sonnet-4-5", cost: 0.05, content: "ok"}
	circuits := circuit.NewManager(circuit.DefaultConfig)
	sink := &captureSink{}
	r := New([]llm.Backend{a}, circuits, metrics.Nop(), sink)

	ctx := llm.WithRunID(context.Background(), "run-42")
	_, err := r.GenerateResponse(ctx, testRequest(), StrategyRoundRobin)
	require.NoError(t, err)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "run-42", sink.calls[0].RunID)
	assert.Equal(t, "a", sink.calls[0].Backend)
	assert.Equal(t, "success", sink.calls[0].Status)
	assert.Equal(t, 10, sink.calls[0].PromptTokens)
	assert.InDelta(t, 0.05, sink.calls[0].CostUSD, 1e-9)
}

func TestRecommendationsFlagOverusedExpensiveBackend(t *testing.T) {
	expensive := &fakeBackend{name: "primary", model: "claude-opus-4-1", content: "ok"}
	cheap := &fakeBackend{name: "fallback", model: "claude-sonnet-4-5", content: "ok"}
	circuits := circuit.NewManager(circuit.DefaultConfig)
	r := New([]llm.Backend{expensive, cheap}, circuits, metrics.Nop(), nil)

	// All spend lands on the expensive backend.
	r.mu.Lock()
	r.usage["primary"].CostUSD = 12.0
	r.usage["primary"].Requests = 40
	r.usage["fallback"].CostUSD = 0.1
	r.mu.Unlock()

	recs := r.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, "primary", recs[0].Backend)
	assert.Equal(t, "fallback", recs[0].Alternative)
}

func TestRecommendationsEmptyWithoutSpend(t *testing.T) {
	a := &fakeBackend{name: "a", model: "m", content: "ok"}
	r, _ := newTestRouter(a)
	assert.Empty(t, r.Recommendations())
}
