package router

import (
	"context"
	"errors"
	"time"

	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
	"advisor/pkg/metrics"
	"advisor/pkg/resilience/circuit"
)

// circuitMiddleware gates every call on the backend's breaker. Rejections
// short-circuit without invoking the backend; outcomes are recorded so the
// breaker can track failure streaks and response times.
func circuitMiddleware(breaker circuit.Breaker) llm.Middleware {
	return func(next llm.Backend) llm.Backend {
		return llm.WrapBackend(next, func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			if err := breaker.Allow(); err != nil {
				return llm.CompletionResponse{}, err
			}

			start := time.Now()
			resp, err := next.Complete(ctx, req)
			breaker.Record(err, time.Since(start))

			return resp, err //nolint:wrapcheck // Middleware passes errors through unchanged
		})
	}
}

// metricsMiddleware records request latency, token usage, cost, and error
// types. Provider-reported usage is preferred; the tiktoken estimate fills in
// when a backend omits counts.
func metricsMiddleware(recorder metrics.Recorder, estimate func(llm.CompletionRequest, llm.CompletionResponse) (int, int)) llm.Middleware {
	return func(next llm.Backend) llm.Backend {
		return llm.WrapBackend(next, func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			start := time.Now()
			resp, err := next.Complete(ctx, req)
			duration := time.Since(start)

			promptTokens, completionTokens := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
			if promptTokens == 0 && completionTokens == 0 {
				promptTokens, completionTokens = estimate(req, resp)
			}

			errorType := ""
			if err != nil {
				errorType = errorLabel(err)
			}

			recorder.ObserveRequest(
				next.Name(),
				next.ModelName(),
				llm.RunIDFromContext(ctx),
				promptTokens,
				completionTokens,
				next.EstimateCost(promptTokens, completionTokens),
				err == nil,
				errorType,
				duration,
			)

			return resp, err //nolint:wrapcheck // Middleware passes errors through unchanged
		})
	}
}

// errorLabel classifies errors for metrics labeling.
func errorLabel(err error) string {
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return "circuit_breaker"
	}
	return llmerrors.TypeOf(err).String()
}
