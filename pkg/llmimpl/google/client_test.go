package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/llm"
)

func TestAdaptMessagesMapsRoles(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("sys a"),
		llm.NewSystemMessage("sys b"),
		llm.NewUserMessage("question"),
		{Role: llm.RoleAssistant, Content: "answer"},
	}

	contents, system, err := adaptMessages(messages)
	require.NoError(t, err)
	assert.Equal(t, "sys a\n\nsys b", system)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "answer", contents[1].Parts[0].Text)
}

func TestAdaptMessagesRejectsEmptyAndSystemOnly(t *testing.T) {
	_, _, err := adaptMessages(nil)
	assert.Error(t, err)

	_, _, err = adaptMessages([]llm.CompletionMessage{llm.NewSystemMessage("sys")})
	assert.Error(t, err)
}

func TestAdaptMessagesRejectsUnknownRole(t *testing.T) {
	_, _, err := adaptMessages([]llm.CompletionMessage{{Role: "tool", Content: "x"}})
	assert.Error(t, err)
}
