package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
)

// NewLoggerSubscriber builds an EventHandler that writes every event it
// receives to logger at debug level, pulling job_id and status out of the
// payload map when present so log lines stay grep-able.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(_ context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if jobID, ok := payload["job_id"].(string); ok {
				logEvent = logEvent.Str("job_id", jobID)
			}
			if status, ok := payload["status"].(string); ok {
				logEvent = logEvent.Str("status", status)
			}
		}

		logEvent.Msg("event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents attaches the logger subscriber to every
// EventType declared by the Event Bus.
func SubscribeLoggerToAllEvents(bus interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventJobCreated,
		interfaces.EventJobDeleted,
		interfaces.EventJobStatusChanged,
		interfaces.EventJobStreamProgress,
		interfaces.EventJobTokensUpdated,
		interfaces.EventJobCostUpdated,
		interfaces.EventJobResponseAppended,
		interfaces.EventJobErrorDetails,
		interfaces.EventJobFinalized,
		interfaces.EventJobMetadataUpdated,
	}

	for _, eventType := range eventTypes {
		if err := bus.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("subscribe logger to %s: %w", eventType, err)
		}
	}

	return nil
}
