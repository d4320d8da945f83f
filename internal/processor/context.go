// Package processor implements the Processor Registry and the
// per-task-type Processor implementations that carry a Job from
// Queued to a terminal status.
package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// Context bundles the collaborators a Processor needs: a small explicit
// context struct passed by reference into every processor, built once at
// startup rather than resolved through a global lookup.
type Context struct {
	Jobs      interfaces.JobRepository
	Sessions  interfaces.SessionStore
	Settings  interfaces.SettingsStore
	Providers ProviderResolver
	Credit    interfaces.CreditService
	Estimator interfaces.CostEstimator
	Events    interfaces.EventService
	Logger    arbor.ILogger
}

// ProviderResolver is the subset of internal/provider.Registry a processor
// needs: resolve a model name to an adapter, with fallback on eligible
// errors.
type ProviderResolver interface {
	// ChatCompletionWithFallback's bool reports whether the OpenRouter
	// fallback path was taken, for metadata.errorDetails.fallback_attempted.
	ChatCompletionWithFallback(ctx context.Context, req interfaces.ChatRequest) (resp *interfaces.ChatResponse, fallbackAttempted bool, err error)
	Resolve(model string) (interfaces.ProviderAdapter, string, error)
}

// ModelSettings is the resolved (model, temperature, max_tokens) triple a
// processor calls the provider with.
type ModelSettings struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// TaskDefault is the server-wide fallback ModelSettings for a task type,
// used when neither a payload override nor a per-project override exists.
type TaskDefault struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// resolveModelSettings applies a three-tier precedence: explicit
// payload override, then per-project per-task override read from the
// Settings KV store under key project_task_settings:{project_hash}:{task}:{field},
// then the server-wide default for the task.
func resolveModelSettings(ctx context.Context, settings interfaces.SettingsStore, projectHash string, taskType models.TaskType, payload map[string]interface{}, def TaskDefault) ModelSettings {
	result := ModelSettings{Model: def.Model, Temperature: def.Temperature, MaxTokens: def.MaxTokens}

	if v, ok := payload["model"].(string); ok && v != "" {
		result.Model = v
	} else if v, ok := projectOverride(ctx, settings, projectHash, taskType, "model"); ok {
		result.Model = v
	}

	if v, ok := payload["temperature"].(float64); ok {
		result.Temperature = float32(v)
	} else if v, ok := projectOverride(ctx, settings, projectHash, taskType, "temperature"); ok {
		if f, err := parseFloat(v); err == nil {
			result.Temperature = float32(f)
		}
	}

	if v, ok := payload["max_tokens"].(float64); ok {
		result.MaxTokens = int(v)
	} else if v, ok := projectOverride(ctx, settings, projectHash, taskType, "max_tokens"); ok {
		if n, err := parseInt(v); err == nil {
			result.MaxTokens = n
		}
	}

	return result
}

// projectOverride reads one field of a per-project-per-task override.
// An empty projectHash is treated as "absent": empty string and missing
// project directory are unified.
func projectOverride(ctx context.Context, settings interfaces.SettingsStore, projectHash string, taskType models.TaskType, field string) (string, bool) {
	if settings == nil || strings.TrimSpace(projectHash) == "" {
		return "", false
	}
	key := fmt.Sprintf("project_task_settings:%s:%s:%s", projectHash, taskType, field)
	value, err := settings.Get(ctx, key)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}
