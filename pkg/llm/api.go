// Package llm provides provider-agnostic types and interfaces for language
// model backends.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

// TemperatureDefault is the default temperature for analysis and judgment
// tasks. Allows some exploration while staying focused.
const TemperatureDefault = 0.3

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a provider-agnostic completion request.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// Clone returns a deep copy of the request. Backend prompt adaptation works
// on the copy so the caller's request is never mutated.
func (r CompletionRequest) Clone() CompletionRequest {
	out := r
	out.Messages = make([]CompletionMessage, len(r.Messages))
	copy(out.Messages, r.Messages)
	return out
}

// Usage reports provider-counted token usage for a completed call.
// Zero values mean the provider did not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Main response text
	StopReason string // Why the response stopped: "end_turn", "max_tokens", etc.
	Usage      Usage  // Provider-reported token usage when available
}

// Backend is one external model provider/model pair the router can select.
type Backend interface {
	// Name returns the unique backend name used for breakers and metrics.
	Name() string

	// ModelName returns the provider model identifier.
	ModelName() string

	// Complete generates a completion synchronously.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// EstimateCost returns the estimated USD cost for the given token counts.
	EstimateCost(promptTokens, completionTokens int) float64
}

// NewCompletionRequest creates a completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// Validate rejects degenerate requests before they reach a provider.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("message list cannot be empty")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if r.Temperature < 0.0 || r.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
