package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_DefaultModel(t *testing.T) {
	client, err := NewClient(&Config{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.model)
}

func TestNewClient_ExplicitModel(t *testing.T) {
	client, err := NewClient(&Config{APIKey: "test-key", Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", client.model)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(&Config{})
	require.Error(t, err)
}
