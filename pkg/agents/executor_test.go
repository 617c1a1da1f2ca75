package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/config"
	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
	"advisor/pkg/metrics"
	"advisor/pkg/resource"
	"advisor/pkg/router"
)

type fakeCompleter struct {
	content string
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeCompleter) GenerateResponse(ctx context.Context, _ llm.CompletionRequest, _ router.Strategy) (llm.CompletionResponse, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, ctx.Err(), "canceled")
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return llm.CompletionResponse{}, f.err
	}
	return llm.CompletionResponse{Content: f.content}, nil
}

func openResources() *resource.Manager {
	return resource.NewManager(map[string]resource.Limit{
		config.ResourceLLMTokens: {MaxUsage: 1_000_000, MaxPerWindow: 1000, Window: time.Minute},
		config.ResourceAPICall:   {MaxUsage: 1000, MaxPerWindow: 1000, Window: time.Minute},
	})
}

func testAssessment() *Assessment {
	return &Assessment{ID: "a-1", Title: "Production cluster review", Content: "Three node pools, no autoscaling, public dashboard."}
}

func TestExecuteCompletes(t *testing.T) {
	completer := &fakeCompleter{content: `{"confidence": 0.9, "recommendations": [{"title": "Enable autoscaling", "description": "d", "priority": "high"}]}`}
	resources := openResources()
	exec := NewExecutor(completer, resources, metrics.Nop(), router.StrategyCostOptimized)

	result := exec.Execute(context.Background(), testAssessment(), RoleInfrastructure)

	require.Equal(t, StatusCompleted, result.Status)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "Enable autoscaling", result.Recommendations[0].Title)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.Empty(t, result.Error)
	assert.Greater(t, result.ExecutionTime, time.Duration(0))

	// Grant released: usage back to baseline.
	snap := resources.Metrics()
	assert.Empty(t, snap.CurrentUsage[config.ResourceAPICall])
}

func TestExecuteNeverReturnsNilOnFailure(t *testing.T) {
	completer := &fakeCompleter{err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "all backends down")}
	exec := NewExecutor(completer, openResources(), metrics.Nop(), router.StrategyRoundRobin)

	result := exec.Execute(context.Background(), testAssessment(), RoleSecurity)

	require.NotNil(t, result)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "llm call failed")
}

func TestExecuteTimeout(t *testing.T) {
	completer := &fakeCompleter{delay: time.Second, content: "never delivered"}
	exec := NewExecutor(completer, openResources(), metrics.Nop(), router.StrategyRoundRobin)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := exec.Execute(ctx, testAssessment(), RoleResearch)
	assert.Equal(t, StatusTimeout, result.Status)
}

func TestExecuteResourceDenied(t *testing.T) {
	completer := &fakeCompleter{content: "unused"}
	// Token cap far below any prompt estimate, so the request queues and
	// then times out.
	resources := resource.NewManager(map[string]resource.Limit{
		config.ResourceLLMTokens: {MaxUsage: 1, MaxPerWindow: 1000, Window: time.Minute},
		config.ResourceAPICall:   {MaxUsage: 1000, MaxPerWindow: 1000, Window: time.Minute},
	})
	exec := NewExecutor(completer, resources, metrics.Nop(), router.StrategyRoundRobin)
	exec.grantWait = 100 * time.Millisecond
	exec.pollInterval = 10 * time.Millisecond

	result := exec.Execute(context.Background(), testAssessment(), RoleCost)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "resource denied")
	assert.Zero(t, completer.calls)
}

func TestExecuteDeadlineWhileQueuedIsTimeout(t *testing.T) {
	completer := &fakeCompleter{content: "unused"}
	resources := resource.NewManager(map[string]resource.Limit{
		config.ResourceLLMTokens: {MaxUsage: 10_000, MaxPerWindow: 1000, Window: time.Minute},
		config.ResourceAPICall:   {MaxUsage: 1, MaxPerWindow: 1000, Window: time.Minute},
	})

	// Occupy the single api_call slot for the whole test so the unit stays
	// queued past its deadline.
	holdID, granted := resources.Request("holder", map[string]int64{config.ResourceAPICall: 1}, 0, 0)
	require.True(t, granted)
	defer resources.Release(holdID)

	exec := NewExecutor(completer, resources, metrics.Nop(), router.StrategyRoundRobin)
	exec.grantWait = 2 * time.Second
	exec.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := exec.Execute(ctx, testAssessment(), RoleCompliance)

	// Deadline expiry while waiting on quota is a timeout, not a denial
	assert.Equal(t, StatusTimeout, result.Status)
	assert.Zero(t, completer.calls)
}

func TestExecuteAbandonedQueueEntryDoesNotLeakQuota(t *testing.T) {
	completer := &fakeCompleter{content: "unused"}
	resources := resource.NewManager(map[string]resource.Limit{
		config.ResourceLLMTokens: {MaxUsage: 10_000, MaxPerWindow: 1000, Window: time.Minute},
		config.ResourceAPICall:   {MaxUsage: 1, MaxPerWindow: 1000, Window: time.Minute},
	})

	holdID, granted := resources.Request("holder", map[string]int64{config.ResourceAPICall: 1}, 0, 0)
	require.True(t, granted)

	exec := NewExecutor(completer, resources, metrics.Nop(), router.StrategyRoundRobin)
	exec.grantWait = 2 * time.Second
	exec.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result := exec.Execute(ctx, testAssessment(), RoleSecurity)
	require.Equal(t, StatusTimeout, result.Status)

	// The unit abandoned its queued request; freeing the held slot must not
	// grant it to the departed unit and strand the allocation.
	resources.Release(holdID)
	snap := resources.Metrics()
	assert.Zero(t, snap.CurrentUsage[config.ResourceAPICall])
	assert.Zero(t, snap.QueueDepth)
}

func TestExecuteQueuedGrantEventuallyProceeds(t *testing.T) {
	completer := &fakeCompleter{content: `[{"title": "t", "description": "d"}]`}
	resources := resource.NewManager(map[string]resource.Limit{
		config.ResourceLLMTokens: {MaxUsage: 10_000, MaxPerWindow: 1000, Window: time.Minute},
		config.ResourceAPICall:   {MaxUsage: 1, MaxPerWindow: 1000, Window: time.Minute},
	})

	// Hold the single api_call slot, then free it shortly after the unit
	// starts polling.
	holdID, granted := resources.Request("holder", map[string]int64{config.ResourceAPICall: 1}, 0, 0)
	require.True(t, granted)
	go func() {
		time.Sleep(50 * time.Millisecond)
		resources.Release(holdID)
	}()

	exec := NewExecutor(completer, resources, metrics.Nop(), router.StrategyRoundRobin)
	exec.grantWait = 2 * time.Second
	exec.pollInterval = 10 * time.Millisecond

	result := exec.Execute(context.Background(), testAssessment(), RoleMLOps)
	assert.Equal(t, StatusCompleted, result.Status)
}

func TestExecuteRejectsBadInputs(t *testing.T) {
	exec := NewExecutor(&fakeCompleter{}, openResources(), metrics.Nop(), "")

	result := exec.Execute(context.Background(), nil, RoleStrategy)
	assert.Equal(t, StatusFailed, result.Status)

	result = exec.Execute(context.Background(), testAssessment(), Role("astrology"))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "unknown agent role")
}
