// Package openai provides the OpenAI backend implementation using the
// Responses API.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"advisor/pkg/config"
	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
)

// Client wraps the official OpenAI client to implement llm.Backend.
type Client struct {
	client openai.Client
	name   string
	model  string
}

// New creates a raw OpenAI backend; resilience middleware is applied at the
// router level.
func New(name, apiKey, model string) llm.Backend {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		name:   name,
		model:  model,
	}
}

// Name returns the backend name.
func (c *Client) Name() string { return c.name }

// ModelName returns the model identifier.
func (c *Client) ModelName() string { return c.model }

// EstimateCost returns the estimated USD cost for the given token counts.
func (c *Client) EstimateCost(promptTokens, completionTokens int) float64 {
	return config.CalculateCost(c.model, promptTokens, completionTokens)
}

// adaptInput flattens the message list into the single input string the
// Responses API accepts. The system instruction is merged into the body
// because the Responses API has no separate system role here. Idempotent:
// works on a fresh string each call, never mutating the request.
func adaptInput(messages []llm.CompletionMessage) string {
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&b, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n\n", msg.Content)
		default:
			b.WriteString(msg.Content)
		}
	}
	return b.String()
}

// Complete implements llm.Backend.
//
//nolint:gocritic // Value semantics match the Backend interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	// Cap MaxTokens to the model's actual limit to prevent API errors
	maxTokens := in.MaxTokens
	if info, exists := config.KnownModels[c.model]; exists && info.MaxOutputTokens > 0 && maxTokens > info.MaxOutputTokens {
		maxTokens = info.MaxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(adaptInput(in.Messages))},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no text output from OpenAI Responses API")
	}

	return llm.CompletionResponse{
		Content: content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
