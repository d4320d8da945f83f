package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

type fakeAdapter struct {
	name     string
	response *interfaces.ChatResponse
	err      error
	calls    int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) ChatCompletion(_ context.Context, _ interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeAdapter) StreamChatCompletion(_ context.Context, _ interfaces.ChatRequest) (<-chan interfaces.StreamDelta, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) ExtractUsageFromBody(_ []byte) (models.ProviderUsage, error) {
	return models.ProviderUsage{}, errors.New("not implemented")
}

func TestDetectProviderPrefixes(t *testing.T) {
	cases := map[string]string{
		"claude/claude-sonnet-4-5": "anthropic",
		"anthropic/claude-haiku":   "anthropic",
		"claude-sonnet-4-5":        "anthropic",
		"gpt-4o":                   "openai",
		"openai/gpt-4o":            "openai",
		"openrouter/auto":          "openrouter",
	}

	for model, expected := range cases {
		name, _ := detectProvider(model, "openai")
		assert.Equal(t, expected, name, "model %s", model)
	}
}

func TestDetectProviderFallsBackToDefault(t *testing.T) {
	name, normalized := detectProvider("some-unknown-model", "anthropic")
	assert.Equal(t, "anthropic", name)
	assert.Equal(t, "some-unknown-model", normalized)
}

func TestResolveStripsVendorPrefix(t *testing.T) {
	anthropicAdapter := &fakeAdapter{name: "anthropic"}
	registry := NewRegistry([]interfaces.ProviderAdapter{anthropicAdapter}, "", "anthropic", arbor.NewLogger())

	adapter, normalized, err := registry.Resolve("claude/claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", normalized)
	assert.Same(t, anthropicAdapter, adapter)
}

func TestChatCompletionWithFallbackRetriesOnEligibleError(t *testing.T) {
	primary := &fakeAdapter{name: "openai", err: errors.New("503 service unavailable")}
	fallback := &fakeAdapter{name: "openrouter", response: &interfaces.ChatResponse{Content: "ok"}}

	registry := NewRegistry([]interfaces.ProviderAdapter{primary, fallback}, "openrouter", "openai", arbor.NewLogger())

	resp, fallbackAttempted, err := registry.ChatCompletionWithFallback(context.Background(), interfaces.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.True(t, fallbackAttempted)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestChatCompletionWithFallbackDoesNotRetryNonEligibleError(t *testing.T) {
	primary := &fakeAdapter{name: "openai", err: errors.New("invalid api key")}
	fallback := &fakeAdapter{name: "openrouter", response: &interfaces.ChatResponse{Content: "ok"}}

	registry := NewRegistry([]interfaces.ProviderAdapter{primary, fallback}, "openrouter", "openai", arbor.NewLogger())

	_, fallbackAttempted, err := registry.ChatCompletionWithFallback(context.Background(), interfaces.ChatRequest{Model: "gpt-4o"})
	assert.Error(t, err)
	assert.False(t, fallbackAttempted)
	assert.Equal(t, 0, fallback.calls)
}

func TestFallbackEligible(t *testing.T) {
	assert.True(t, FallbackEligible(errors.New("502 bad gateway")))
	assert.True(t, FallbackEligible(errors.New("model not found")))
	assert.False(t, FallbackEligible(errors.New("invalid request")))
	assert.False(t, FallbackEligible(nil))
}
