package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/config"
)

func TestBuildBackendInfersProvider(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "test-key")

	backend, err := buildBackend(config.BackendConfig{
		Name:  "primary",
		Model: "claude-sonnet-4-5",
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", backend.Name())
	assert.Equal(t, "claude-sonnet-4-5", backend.ModelName())
}

func TestBuildBackendLocalModelNeedsNoKey(t *testing.T) {
	backend, err := buildBackend(config.BackendConfig{
		Name:  "local",
		Model: "llama3.1",
	})
	require.NoError(t, err)
	assert.Equal(t, "local", backend.Name())
}

func TestBuildBackendUnknownModel(t *testing.T) {
	_, err := buildBackend(config.BackendConfig{
		Name:  "mystery",
		Model: "not-a-real-model",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}
