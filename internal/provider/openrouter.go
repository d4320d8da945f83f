package provider

import "github.com/ternarybob/arbor"

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewOpenRouterAdapter creates an OpenAI-wire-compatible adapter pointed
// at OpenRouter, used both as a first-class provider and as the
// fallback target for OpenAI/Anthropic adapter errors deemed
// fallback-eligible.
func NewOpenRouterAdapter(apiKey string, logger arbor.ILogger) *OpenAIAdapter {
	return newOpenAICompatibleAdapter("openrouter", apiKey, openRouterBaseURL, logger)
}
