package provider

import (
	"regexp"

	"github.com/foundryhq/jobengine/internal/models"
)

// openAIContextLimitPattern matches OpenAI's "This model's maximum context
// length is 8192 tokens, however you requested 9000 tokens" shape.
var openAIContextLimitPattern = regexp.MustCompile(`maximum context length is (\d+) tokens.*?requested(?: about)? (\d+) tokens`)

// anthropicContextLimitPattern matches Claude's "prompt is too long: 9000
// tokens > 8192 maximum" shape.
var anthropicContextLimitPattern = regexp.MustCompile(`prompt is too long: (\d+) tokens? > (\d+) maximum`)

// DetectContextLengthExceeded inspects a vendor error's message for the
// context-window-rejection shapes OpenAI and Anthropic report, wrapping a
// match as a *models.ProviderError carrying the exact token counts the UI
// needs. Returns err unchanged when no known pattern matches.
func DetectContextLengthExceeded(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	if m := openAIContextLimitPattern.FindStringSubmatch(msg); m != nil {
		return &models.ProviderError{
			Code:            "context_length_exceeded",
			Message:         msg,
			ModelLimit:      atoiOrZero(m[1]),
			RequestedTokens: atoiOrZero(m[2]),
		}
	}
	if m := anthropicContextLimitPattern.FindStringSubmatch(msg); m != nil {
		return &models.ProviderError{
			Code:            "context_length_exceeded",
			Message:         msg,
			RequestedTokens: atoiOrZero(m[1]),
			ModelLimit:      atoiOrZero(m[2]),
		}
	}
	return err
}

func atoiOrZero(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
