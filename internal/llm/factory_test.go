package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/logger"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()

	gen, emb, err := NewClient(ctx, config.LLMConfig{Provider: "OpenAI", APIKey: "k", Model: "gpt-4o-mini"}, log)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)
	assert.NotNil(t, emb)

	gen, emb, err = NewClient(ctx, config.LLMConfig{Provider: "claude", APIKey: "k", Model: "claude-3-5-haiku-latest"}, log)
	require.NoError(t, err)
	assert.IsType(t, &ClaudeClient{}, gen)
	assert.Nil(t, emb)

	gen, _, err = NewClient(ctx, config.LLMConfig{Provider: "ollama", Model: "llama3"}, log)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)

	_, _, err = NewClient(ctx, config.LLMConfig{Provider: "watson"}, log)
	assert.Error(t, err)
}

func TestClaudeEmbedUnsupported(t *testing.T) {
	_, err := NewClaudeClient("k", "m", "").Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbeddingsUnsupported)
	assert.True(t, IsFatal(err))
}
