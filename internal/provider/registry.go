// Package provider implements the Provider Adapter layer:
// one interfaces.ProviderAdapter per upstream vendor, plus the registry
// that resolves a model string to its adapter and drives the
// fallback-to-OpenRouter policy on fallback-eligible errors.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
)

// Registry resolves a model string to the adapter that should serve it,
// grounded on the same model-prefix-detection shape used to route
// between cloud LLM vendors: a prefix or name pattern picks the
// provider, falling back to a configured default when the model is
// unrecognized.
type Registry struct {
	adapters    map[string]interfaces.ProviderAdapter
	fallback    interfaces.ProviderAdapter
	defaultName string
	logger      arbor.ILogger
}

// NewRegistry builds a registry from the given adapters, keyed by their
// Name(). fallbackName selects which registered adapter is used for the
// OpenRouter fallback policy; defaultName selects which adapter handles
// a model string with no recognizable vendor prefix.
func NewRegistry(adapters []interfaces.ProviderAdapter, fallbackName, defaultName string, logger arbor.ILogger) *Registry {
	r := &Registry{
		adapters:    make(map[string]interfaces.ProviderAdapter, len(adapters)),
		defaultName: defaultName,
		logger:      logger,
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	r.fallback = r.adapters[fallbackName]
	return r
}

// Resolve returns the adapter for model, and the normalized model
// string with any vendor prefix stripped.
func (r *Registry) Resolve(model string) (interfaces.ProviderAdapter, string, error) {
	name, normalized := detectProvider(model, r.defaultName)

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, "", fmt.Errorf("no provider adapter registered for %q", name)
	}
	return adapter, normalized, nil
}

// detectProvider maps a model string like "claude/claude-sonnet-4-5" or
// "gpt-4o" to its provider name and the vendor-native model id with any
// prefix stripped.
func detectProvider(model, defaultName string) (providerName, normalized string) {
	lower := strings.ToLower(model)

	prefixes := map[string]string{
		"anthropic/":  "anthropic",
		"claude/":     "anthropic",
		"openai/":     "openai",
		"openrouter/": "openrouter",
	}
	for prefix, name := range prefixes {
		if strings.HasPrefix(lower, prefix) {
			return name, model[len(prefix):]
		}
	}

	switch {
	case strings.HasPrefix(lower, "claude-"):
		return "anthropic", model
	case strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3"):
		return "openai", model
	case model == "":
		return defaultName, model
	default:
		return defaultName, model
	}
}

// FallbackEligible reports whether err is the kind of failure that should
// trigger a single retry against OpenRouter: connect
// failures, 5xx clusters, and adapter-reported "model unsupported"
// errors. Rate limits are excluded: those are handled by the adapter's
// own retry, not by switching vendors.
func FallbackEligible(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "no such host", "model unsupported", "model not found", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Fallback returns the adapter configured to serve the OpenRouter
// fallback path, or nil if none was configured.
func (r *Registry) Fallback() interfaces.ProviderAdapter {
	return r.fallback
}

// ChatCompletionWithFallback calls the resolved adapter, retrying once
// against the fallback adapter (preserving model and request id via the
// caller's own request_id bookkeeping) if the first call fails with a
// fallback-eligible error. The returned bool reports whether the fallback
// path was taken, for metadata.errorDetails.fallback_attempted.
func (r *Registry) ChatCompletionWithFallback(ctx context.Context, req interfaces.ChatRequest) (*interfaces.ChatResponse, bool, error) {
	adapter, normalized, err := r.Resolve(req.Model)
	if err != nil {
		return nil, false, err
	}
	req.Model = normalized

	resp, err := adapter.ChatCompletion(ctx, req)
	if err == nil || r.fallback == nil || adapter == r.fallback || !FallbackEligible(err) {
		return resp, false, err
	}

	r.logger.Warn().
		Err(err).
		Str("provider", adapter.Name()).
		Str("fallback", r.fallback.Name()).
		Msg("provider call failed, retrying against fallback")

	resp, err = r.fallback.ChatCompletion(ctx, req)
	return resp, true, err
}
