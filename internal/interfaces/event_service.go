package interfaces

import "context"

// EventType names an Event Bus notification. Emission is
// best-effort: it happens after the triggering state change has already
// been durably persisted, never instead of it.
type EventType string

const (
	// EventJobCreated names a job persisted in Queued status. No component
	// publishes it; the logger subscriber listens for it.
	// Payload: map with "job_id", "session_id", "task_type".
	EventJobCreated EventType = "job:created"

	// EventJobDeleted names a removed job row. No component publishes it;
	// ClearHistory deletes rows without emitting events.
	// Payload: map with "job_id".
	EventJobDeleted EventType = "job:deleted"

	// EventJobStatusChanged names a job status change. No component
	// publishes it; UpdateStatus commits without emitting events.
	// Payload: map with "job_id", "status", "previous_status".
	EventJobStatusChanged EventType = "job:status-changed"

	// EventJobStreamProgress is published by the Streaming Handler at a
	// debounced cadence (~250ms) while a job streams.
	// Payload: map with "job_id", "delta" (the text appended since the last event).
	EventJobStreamProgress EventType = "job:stream-progress"

	// EventJobTokensUpdated names a change in token accounting. No
	// component publishes it.
	// Payload: map with "job_id", "tokens_sent", "tokens_received", "cache_read_tokens", "cache_write_tokens".
	EventJobTokensUpdated EventType = "job:tokens-updated"

	// EventJobCostUpdated names a write of ActualCost. No component
	// publishes it.
	// Payload: map with "job_id", "actual_cost".
	EventJobCostUpdated EventType = "job:cost-updated"

	// EventJobResponseAppended is published by the Streaming Handler for
	// each streamed content chunk as it arrives, undebounced. The job row
	// receives the accumulated response only when the job is finalized.
	// Payload: map with "job_id", "response".
	EventJobResponseAppended EventType = "job:response-appended"

	// EventJobErrorDetails is published when a job fails.
	// Payload: map with "job_id", "error_details" (code, message,
	// provider_error?, fallback_attempted — the same shape persisted to
	// metadata.errorDetails).
	EventJobErrorDetails EventType = "job:error-details"

	// EventJobFinalized is published exactly once per job, when Finalize commits.
	// Payload: map with "job_id", "status".
	EventJobFinalized EventType = "job:finalized"

	// EventJobMetadataUpdated names a committed UpdateMetadata. No
	// component publishes it; UpdateMetadata commits without emitting events.
	// Payload: map with "job_id", "metadata" (the merged result).
	EventJobMetadataUpdated EventType = "job:metadata-updated"
)

// Event represents a system event published on the Event Bus.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events.
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub Event Bus. Publish is
// expected to be non-blocking with respect to the persistence operation
// that triggered it: callers fire-and-forget via a panic-protected
// goroutine rather than awaiting subscriber completion.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Unsubscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
