package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// StreamAggregator coalesces per-job stream deltas so the Event Bus emits
// at most one job:stream-progress event per job per debounce window,
// instead of one per provider SSE chunk.
type StreamAggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	pending  map[string]string // job_id -> delta accumulated since last flush
	onFlush  func(ctx context.Context, jobID, delta string)
	logger   arbor.ILogger
}

// NewStreamAggregator creates an aggregator that flushes every debounce
// interval (defaulting to 250ms, matching the Streaming Handler's cadence)
// via onFlush.
func NewStreamAggregator(debounce time.Duration, onFlush func(ctx context.Context, jobID, delta string), logger arbor.ILogger) *StreamAggregator {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	return &StreamAggregator{
		debounce: debounce,
		pending:  make(map[string]string),
		onFlush:  onFlush,
		logger:   logger,
	}
}

// Record appends delta to the job's pending buffer, to be emitted on the
// next periodic flush or FlushJob call.
func (a *StreamAggregator) Record(jobID, delta string) {
	if jobID == "" || delta == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[jobID] = a.pending[jobID] + delta
}

// FlushJob immediately emits jobID's pending delta, used when a job
// finalizes and any remaining buffered text must not wait for the next tick.
func (a *StreamAggregator) FlushJob(ctx context.Context, jobID string) {
	a.mu.Lock()
	delta, ok := a.pending[jobID]
	if ok {
		delete(a.pending, jobID)
	}
	a.mu.Unlock()

	if ok && delta != "" {
		a.safeFlush(ctx, jobID, delta)
	}
}

// StartPeriodicFlush runs a background loop that flushes all pending job
// deltas every debounce interval until ctx is cancelled.
func (a *StreamAggregator) StartPeriodicFlush(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.debounce)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				a.flushAll(context.Background())
				return
			case <-ticker.C:
				a.flushAll(ctx)
			}
		}
	}()
}

func (a *StreamAggregator) flushAll(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[string]string)
	a.mu.Unlock()

	for jobID, delta := range batch {
		if delta != "" {
			go a.safeFlush(ctx, jobID, delta)
		}
	}
}

func (a *StreamAggregator) safeFlush(ctx context.Context, jobID, delta string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("job_id", jobID).
				Msg("panic in stream aggregator flush callback - recovered")
		}
	}()
	a.onFlush(ctx, jobID, delta)
}
