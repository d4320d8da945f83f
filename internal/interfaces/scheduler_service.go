package interfaces

import "context"

// SchedulerService runs the claim-and-dispatch and stale-reset loops
//. Start launches both loops as background goroutines and
// returns immediately; Stop drains in-flight jobs up to the configured
// grace timeout before returning.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}
