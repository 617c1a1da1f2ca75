// Package google provides the Google Gemini backend implementation.
package google

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"advisor/pkg/config"
	"advisor/pkg/llm"
	"advisor/pkg/llm/llmerrors"
)

// Client wraps the Google GenAI client to implement llm.Backend.
type Client struct {
	mu     sync.Mutex
	client *genai.Client
	apiKey string
	name   string
	model  string
}

// New creates a raw Gemini backend; resilience middleware is applied at the
// router level. Client creation requires a context, so the underlying genai
// client is created lazily on first Complete call.
func New(name, apiKey, model string) llm.Backend {
	return &Client{
		apiKey: apiKey,
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

// adaptMessages converts our message format to Gemini's Content format.
// System messages are extracted into the returned system instruction.
// Never mutates the input slice.
func adaptMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini uses "model" instead of "assistant"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("no user or assistant content in message list")
	}
	return contents, systemInstruction, nil
}

// genaiClient returns the underlying client, creating it on first use. One
// backend instance is shared across concurrent agent calls, so the lazy init
// runs under a mutex. A failed creation is retried on the next call.
func (c *Client) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	c.client = client
	return client, nil
}

// Complete implements llm.Backend.
//
//nolint:gocritic // Value semantics match the Backend interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := c.genaiClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, systemInstruction, err := adaptMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}

	//nolint:gosec // MaxTokens validated at a higher layer
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, c.model, contents, genConfig)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	content := result.Text()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no text output from Gemini API")
	}

	resp := llm.CompletionResponse{
		Content:    content,
		StopReason: "end_turn",
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}
