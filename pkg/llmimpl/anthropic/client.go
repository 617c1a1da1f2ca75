// Package anthropic provides the Anthropic Claude backend implementation.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"advisor/pkg/config"
	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
)

// Client wraps the Anthropic API client to implement llm.Backend.
type Client struct {
	client anthropic.Client
	name   string
	model  anthropic.Model
}

// New creates a raw Claude backend; resilience middleware is applied at the
// router level.
func New(name, apiKey, model string) llm.Backend {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		name:   name,
		model:  anthropic.Model(model),
	}
}

// Name returns the backend name.
func (c *Client) Name() string { return c.name }

// ModelName returns the model identifier.
func (c *Client) ModelName() string { return string(c.model) }

// EstimateCost returns the estimated USD cost for the given token counts.
func (c *Client) EstimateCost(promptTokens, completionTokens int) float64 {
	return config.CalculateCost(string(c.model), promptTokens, completionTokens)
}

// adaptMessages prepares provider-agnostic messages for the Anthropic API:
// system messages move to the top-level system parameter, consecutive user
// messages are merged, and strict user/assistant alternation is enforced.
// The input is never mutated, so adaptation is idempotent per request.
func adaptMessages(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var conversational []llm.CompletionMessage
	for i := range messages {
		msg := messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			conversational = append(conversational, msg)
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(conversational) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	// Merge consecutive non-assistant messages into single user turns
	var merged []llm.CompletionMessage
	var userParts []string
	flush := func() {
		if len(userParts) > 0 {
			merged = append(merged, llm.CompletionMessage{
				Role:    llm.RoleUser,
				Content: strings.Join(userParts, "\n\n"),
			})
			userParts = nil
		}
	}
	for i := range conversational {
		msg := conversational[i]
		if msg.Role == llm.RoleAssistant {
			flush()
			merged = append(merged, msg)
		} else {
			userParts = append(userParts, msg.Content)
		}
	}
	flush()

	if merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}
	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}

	return systemPrompt, merged, nil
}

// Complete implements llm.Backend.
//
//nolint:gocritic // Value semantics match the Backend interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, adapted, err := adaptMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message adaptation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(adapted))
	for i := range adapted {
		msg := &adapted[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
