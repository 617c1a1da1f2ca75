// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for backend request sizing.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter for the given model name.
// All supported providers approximate well with the GPT-4 encoding; Claude and
// Gemini tokenizers are close enough for rate-limit and cost estimation.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
// Falls back to character-based estimation (4 chars ≈ 1 token) on error.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

var (
	sharedCounter     *TokenCounter
	sharedCounterOnce sync.Once
)

// CountTokensSimple counts tokens with a shared GPT-4 codec.
// The codec is expensive to build, so it is initialized once per process.
func CountTokensSimple(text string) int {
	sharedCounterOnce.Do(func() {
		if counter, err := NewTokenCounter("gpt-4"); err == nil {
			sharedCounter = counter
		}
	})
	if sharedCounter == nil {
		return len(text) / 4
	}
	return sharedCounter.CountTokens(text)
}

// EstimateCompletionTokens guesses completion size for cost estimation before
// a call completes. Providers rarely exceed a quarter of the allowed maximum
// for structured recommendation output, but we use the full max to stay
// conservative with rate limits.
func EstimateCompletionTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 1024
	}
	return maxTokens
}
