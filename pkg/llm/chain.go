// Package llm provides middleware chaining for backends.
package llm

import (
	"context"
)

// Middleware wraps a Backend with additional behavior. Middlewares are
// composed with Chain() to build a processing pipeline per backend.
type Middleware func(next Backend) Backend

// backendFunc adapts plain functions to the Backend interface.
type backendFunc struct {
	name         string
	model        string
	complete     func(context.Context, CompletionRequest) (CompletionResponse, error)
	estimateCost func(promptTokens, completionTokens int) float64
}

func (f backendFunc) Name() string      { return f.name }
func (f backendFunc) ModelName() string { return f.model }

func (f backendFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f backendFunc) EstimateCost(promptTokens, completionTokens int) float64 {
	return f.estimateCost(promptTokens, completionTokens)
}

// WrapBackend creates a Backend from a complete function, delegating identity
// and cost estimation to the wrapped backend. Middleware implementations use
// this to override Complete while passing everything else through.
func WrapBackend(next Backend, complete func(context.Context, CompletionRequest) (CompletionResponse, error)) Backend {
	return backendFunc{
		name:         next.Name(),
		model:        next.ModelName(),
		complete:     complete,
		estimateCost: next.EstimateCost,
	}
}

// Chain composes middlewares around a base backend. Middlewares are applied
// in order, with earlier middlewares outermost:
//
//	Chain(backend, mw1, mw2) yields the call stack mw1 -> mw2 -> backend
//
// so mw1 can modify the request or short-circuit before mw2 and the backend.
func Chain(base Backend, middlewares ...Middleware) Backend {
	backend := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		backend = middlewares[i](backend)
	}
	return backend
}
