package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/llm"
)

func TestAdaptMessagesExtractsSystem(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("be concise"),
		llm.NewSystemMessage("cite sources"),
		llm.NewUserMessage("hello"),
	}

	system, adapted, err := adaptMessages(messages)
	require.NoError(t, err)
	assert.Equal(t, "be concise\n\ncite sources", system)
	require.Len(t, adapted, 1)
	assert.Equal(t, llm.RoleUser, adapted[0].Role)
	assert.Equal(t, "hello", adapted[0].Content)
}

func TestAdaptMessagesMergesConsecutiveUserTurns(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewUserMessage("first"),
		llm.NewUserMessage("second"),
		{Role: llm.RoleAssistant, Content: "reply"},
		llm.NewUserMessage("third"),
	}

	_, adapted, err := adaptMessages(messages)
	require.NoError(t, err)
	require.Len(t, adapted, 3)
	assert.Equal(t, "first\n\nsecond", adapted[0].Content)
	assert.Equal(t, llm.RoleAssistant, adapted[1].Role)
	assert.Equal(t, "third", adapted[2].Content)
}

func TestAdaptMessagesRejectsInvalidShapes(t *testing.T) {
	tests := []struct {
		name     string
		messages []llm.CompletionMessage
	}{
		{name: "empty list", messages: nil},
		{name: "system only", messages: []llm.CompletionMessage{llm.NewSystemMessage("sys")}},
		{name: "assistant last", messages: []llm.CompletionMessage{
			llm.NewUserMessage("q"),
			{Role: llm.RoleAssistant, Content: "a"},
		}},
		{name: "assistant first", messages: []llm.CompletionMessage{
			{Role: llm.RoleAssistant, Content: "a"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := adaptMessages(tt.messages)
			assert.Error(t, err)
		})
	}
}

func TestAdaptMessagesDoesNotMutateInput(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("sys"),
		llm.NewUserMessage("a"),
		llm.NewUserMessage("b"),
	}

	_, _, err := adaptMessages(messages)
	require.NoError(t, err)
	assert.Equal(t, "a", messages[1].Content)
	assert.Equal(t, "b", messages[2].Content)
}

func TestEstimateCostUsesModelPricing(t *testing.T) {
	backend := New("primary", "test-key", "claude-sonnet-4-5")
	cost := backend.EstimateCost(1_000_000, 1_000_000)
	assert.InDelta(t, 18.0, cost, 0.001)
}
