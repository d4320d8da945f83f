// -----------------------------------------------------------------------
// Last Modified: Thursday, 14th November 2025 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/common"
	"github.com/foundryhq/jobengine/internal/cost"
	"github.com/foundryhq/jobengine/internal/credit"
	"github.com/foundryhq/jobengine/internal/events"
	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/jobqueue"
	"github.com/foundryhq/jobengine/internal/processor"
	"github.com/foundryhq/jobengine/internal/provider"
	"github.com/foundryhq/jobengine/internal/scheduler"
	"github.com/foundryhq/jobengine/internal/storage/sqlite"
	"github.com/foundryhq/jobengine/internal/streaming"
	"github.com/foundryhq/jobengine/internal/workflow"
)

// application bundles every composition-root collaborator that main needs
// to start and stop the service. Built once at startup and passed nowhere
// else by reference.
type application struct {
	Storage          interfaces.StorageManager
	Events           interfaces.EventService
	StreamAggregator *events.StreamAggregator
	Queue            *jobqueue.Queue
	Orchestrator     *workflow.Orchestrator
	Scheduler        *scheduler.Service
	ShutdownGrace    time.Duration

	logger arbor.ILogger
}

// newApplication wires the Job Repository, Event Bus, Cost Estimator,
// Credit Service, Provider Adapters, Processor Registry, Job Queue,
// Workflow Orchestrator and Scheduler into a single running process.
func newApplication(cfg *common.Config, logger arbor.ILogger) (*application, error) {
	storageManager, err := sqlite.NewManager(logger, &cfg.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deleteOnStartup(cfg.DeleteOnStartup, storageManager, logger); err != nil {
		return nil, fmt.Errorf("failed to apply delete_on_startup: %w", err)
	}

	eventBus := events.NewService(logger)
	if err := events.SubscribeLoggerToAllEvents(eventBus, logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe logger to event bus: %w", err)
	}

	estimator := cost.NewEstimator(cost.DefaultPricing())
	creditService := credit.NewService(storageManager.CreditStore(), estimator, cost.DefaultCoefficients(), logger)

	providerRegistry, err := buildProviderRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	streamDebounce := parseDurationOrDefault(cfg.Scheduler.ClaimInterval, 200*time.Millisecond)
	aggregatorFlush := func(ctx context.Context, jobID, delta string) {
		_ = eventBus.Publish(ctx, interfaces.Event{
			Type: interfaces.EventJobStreamProgress,
			Payload: map[string]interface{}{
				"job_id": jobID,
				"delta":  delta,
			},
		})
	}
	aggregator := events.NewStreamAggregator(streamDebounce, aggregatorFlush, logger)

	streamHandler := streaming.NewHandler(storageManager.JobRepository(), creditService, estimator, eventBus, logger)

	billingBaseURL := ""
	billingAPIKey := ""
	billingClient := processor.NewHTTPBillingClient(billingBaseURL, billingAPIKey)

	processorCtx := &processor.Context{
		Jobs:      storageManager.JobRepository(),
		Sessions:  storageManager.SessionStore(),
		Settings:  storageManager.SettingsStore(),
		Providers: providerRegistry,
		Credit:    creditService,
		Estimator: estimator,
		Events:    eventBus,
		Logger:    logger,
	}
	processorRegistry := processor.BuildRegistry(processorCtx, streamHandler, billingClient)

	queue := jobqueue.New(cfg.Queue.MaxConcurrentJobs, logger)

	orchestrator := workflow.NewOrchestrator(storageManager.JobRepository(), queue, cfg.Workflow.MaxConcurrentStagesPerWorkflow, logger)

	onStageDone := func(ctx context.Context, jobID string) {
		if err := orchestrator.OnStageJobCompleted(ctx, jobID); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("workflow orchestrator failed to advance stage")
		}
	}
	schedulerCfg := scheduler.DefaultConfig(cfg.Scheduler, cfg.Queue.MaxConcurrentJobs)
	schedulerSvc := scheduler.NewService(storageManager.JobRepository(), queue, processorRegistry, schedulerCfg, onStageDone, logger)

	shutdownGrace := parseDurationOrDefault(cfg.Scheduler.ShutdownGraceTimeout, 10*time.Second)

	return &application{
		Storage:          storageManager,
		Events:           eventBus,
		StreamAggregator: aggregator,
		Queue:            queue,
		Orchestrator:     orchestrator,
		Scheduler:        schedulerSvc,
		ShutdownGrace:    shutdownGrace,
		logger:           logger,
	}, nil
}

// deleteOnStartup honors the configured dev-reset categories before any
// other collaborator touches storage. "jobs" clears terminal job history
// regardless of age, "settings" wipes every settings key, "sessions"
// removes every session. Unknown category names are ignored.
func deleteOnStartup(categories []string, storage interfaces.StorageManager, logger arbor.ILogger) error {
	ctx := context.Background()
	for _, category := range categories {
		switch category {
		case "jobs":
			n, err := storage.JobRepository().ClearHistory(ctx, -1)
			if err != nil {
				return fmt.Errorf("clear job history: %w", err)
			}
			logger.Warn().Int("count", n).Msg("delete_on_startup: cleared all job history")
		case "settings":
			all, err := storage.SettingsStore().GetAll(ctx)
			if err != nil {
				return fmt.Errorf("list settings: %w", err)
			}
			for key := range all {
				if err := storage.SettingsStore().Delete(ctx, key); err != nil {
					return fmt.Errorf("delete setting %q: %w", key, err)
				}
			}
			logger.Warn().Int("count", len(all)).Msg("delete_on_startup: cleared all settings")
		case "sessions":
			sessions, err := storage.SessionStore().List(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, session := range sessions {
				if err := storage.SessionStore().Delete(ctx, session.ID); err != nil {
					return fmt.Errorf("delete session %q: %w", session.ID, err)
				}
			}
			logger.Warn().Int("count", len(sessions)).Msg("delete_on_startup: cleared all sessions")
		default:
			logger.Warn().Str("category", category).Msg("delete_on_startup: unknown category, ignoring")
		}
	}
	return nil
}

// buildProviderRegistry constructs one Provider Adapter per vendor entry in
// configuration that has a resolvable API key, then wires them into a
// Registry with the configured fallback and default vendor.
func buildProviderRegistry(cfg *common.Config, logger arbor.ILogger) (*provider.Registry, error) {
	var adapters []interfaces.ProviderAdapter

	if key, err := common.ResolveAPIKey(cfg.Providers.OpenAI.APIKeyEnv, ""); err == nil {
		adapters = append(adapters, provider.NewOpenAIAdapter(key, logger))
	} else {
		logger.Warn().Str("provider", "openai").Err(err).Msg("Provider adapter not configured")
	}

	if key, err := common.ResolveAPIKey(cfg.Providers.Anthropic.APIKeyEnv, ""); err == nil {
		adapters = append(adapters, provider.NewAnthropicAdapter(key, logger))
	} else {
		logger.Warn().Str("provider", "anthropic").Err(err).Msg("Provider adapter not configured")
	}

	if key, err := common.ResolveAPIKey(cfg.Providers.OpenRouter.APIKeyEnv, ""); err == nil {
		adapters = append(adapters, provider.NewOpenRouterAdapter(key, logger))
	} else {
		logger.Warn().Str("provider", "openrouter").Err(err).Msg("Provider adapter not configured")
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no provider adapters configured: at least one of OPENAI_API_KEY, ANTHROPIC_API_KEY, OPENROUTER_API_KEY must be set")
	}

	return provider.NewRegistry(adapters, cfg.Providers.Fallback, "openai", logger), nil
}

func parseDurationOrDefault(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Close releases the storage connection. Safe to call once during shutdown.
func (a *application) Close() error {
	return a.Storage.Close()
}
