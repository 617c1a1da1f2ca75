package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"advisor/pkg/config"
	"advisor/pkg/llm"
	"advisor/pkg/logx"
	"advisor/pkg/metrics"
	"advisor/pkg/resource"
	"advisor/pkg/router"
	"advisor/pkg/utils"
)

// Completer is the routing dependency of an execution unit. *router.Router
// satisfies it.
type Completer interface {
	GenerateResponse(ctx context.Context, req llm.CompletionRequest, strategy router.Strategy) (llm.CompletionResponse, error)
}

// Executor runs one role against one assessment. Execute never returns an
// error: resource denial, backend failure, and timeout all produce a
// terminal Result.
type Executor struct {
	completer    Completer
	resources    *resource.Manager
	recorder     metrics.Recorder
	logger       *logx.Logger
	strategy     router.Strategy
	grantWait    time.Duration
	pollInterval time.Duration
}

const (
	defaultGrantWait    = 10 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// NewExecutor wires an execution unit to its collaborators. A nil recorder
// disables metrics.
func NewExecutor(completer Completer, resources *resource.Manager, recorder metrics.Recorder, strategy router.Strategy) *Executor {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if strategy == "" {
		strategy = router.StrategyCostOptimized
	}
	return &Executor{
		completer:    completer,
		resources:    resources,
		recorder:     recorder,
		logger:       logx.NewLogger("agents"),
		strategy:     strategy,
		grantWait:    defaultGrantWait,
		pollInterval: defaultPollInterval,
	}
}

// Execute runs one unit to a terminal state. The caller bounds the work via
// ctx; deadline expiry yields status=timeout. Any resource grant is released
// on every path.
func (e *Executor) Execute(ctx context.Context, assessment *Assessment, role Role) *Result {
	start := time.Now()
	result := &Result{Role: role, Status: StatusRunning}

	finish := func(status Status, errText string) *Result {
		result.Status = status
		result.Error = errText
		result.ExecutionTime = time.Since(start)
		e.recorder.ObserveAgent(string(role), string(status), result.Confidence, result.ExecutionTime)
		return result
	}

	if assessment == nil {
		return finish(StatusFailed, "no assessment provided")
	}
	if !role.Valid() {
		return finish(StatusFailed, fmt.Sprintf("unknown agent role: %s", role))
	}

	req := buildRequest(role, assessment)

	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteByte('\n')
	}
	tokenEstimate := utils.CountTokensSimple(prompt.String()) + utils.EstimateCompletionTokens(req.MaxTokens)

	requirements := map[string]int64{
		config.ResourceLLMTokens: int64(tokenEstimate),
		config.ResourceAPICall:   1,
	}
	requesterID := fmt.Sprintf("%s/%s", assessment.ID, role)

	grantID, granted := e.resources.Request(requesterID, requirements, 0, e.grantWait)
	defer e.resources.Release(grantID)

	if !granted {
		granted = e.awaitGrant(ctx, grantID)
	}
	if !granted {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return finish(StatusTimeout, "agent timed out awaiting resource grant")
		}
		e.recorder.IncThrottle(config.ResourceLLMTokens, "queue_timeout")
		e.logger.Warn("resource denied for %s after %s", requesterID, e.grantWait)
		return finish(StatusFailed, "resource denied: quota exhausted")
	}

	resp, err := e.completer.GenerateResponse(ctx, req, e.strategy)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return finish(StatusTimeout, "agent timed out awaiting backend response")
		}
		return finish(StatusFailed, fmt.Sprintf("llm call failed: %v", err))
	}

	recommendations, confidence := parseReply(role, resp.Content)
	if len(recommendations) == 0 {
		return finish(StatusFailed, "backend reply contained no usable recommendations")
	}

	result.Recommendations = recommendations
	result.Confidence = confidence
	return finish(StatusCompleted, "")
}

// awaitGrant polls a queued resource request until it is granted, the wait
// budget lapses, or the caller's context ends. Abandoning a queued request
// is safe: the deferred Release cancels it, so a later drain cannot grant an
// allocation with no live holder.
func (e *Executor) awaitGrant(ctx context.Context, grantID string) bool {
	deadline := time.NewTimer(e.grantWait)
	defer deadline.Stop()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
			if e.resources.Granted(grantID) {
				return true
			}
		}
	}
}
