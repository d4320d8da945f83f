// Package scheduler runs the claim-and-dispatch loop and the stale-reset
// sweep that together turn durably queued jobs into in-memory dispatch
// (spec.md §4.K). The scheduler never reads a job's payload: it claims rows,
// hands them to the queue and registry, and otherwise treats jobs opaquely.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/common"
	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// Service implements interfaces.SchedulerService. Its shape (panic recovery
// wrapping each tick, a mutex-guarded running flag, ticker-driven loops
// launched as goroutines from Start and stopped from Stop) is grounded on
// the teacher's internal/services/scheduler/scheduler_service.go
// (staleJobDetectorLoop, executeJobHandler's panic recovery), generalized
// from robfig/cron named-job entries to the two fixed loops this service
// runs.
type Service struct {
	jobs     interfaces.JobRepository
	queue    interfaces.JobQueue
	registry interfaces.ProcessorRegistry
	onClaim  func(ctx context.Context, jobID string) // invoked after a claimed job's processor returns, e.g. Orchestrator.OnStageJobCompleted
	logger   arbor.ILogger

	claimN int

	claimInterval  time.Duration
	staleInterval  time.Duration
	staleThreshold time.Duration
	shutdownGrace  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	loopWg  sync.WaitGroup // the two ticker loops
	jobWg   sync.WaitGroup // per-job dispatch goroutines
}

var _ interfaces.SchedulerService = (*Service)(nil)

// Config carries the scheduler's tunables, parsed from
// common.SchedulerConfig's duration strings by the composition root.
type Config struct {
	ClaimBatchSize       int
	ClaimInterval        time.Duration
	StaleResetInterval   time.Duration
	StaleResetThreshold  time.Duration
	ShutdownGraceTimeout time.Duration
}

// DefaultConfig parses common.NewDefaultConfig's Scheduler/Queue values,
// falling back to named defaults (T1≈500ms, T2≈30s, threshold ≈2min) if a
// duration string fails to parse.
func DefaultConfig(cfg common.SchedulerConfig, claimBatchSize int) Config {
	return Config{
		ClaimBatchSize:       claimBatchSize,
		ClaimInterval:        parseDurationOr(cfg.ClaimInterval, 500*time.Millisecond),
		StaleResetInterval:   parseDurationOr(cfg.StaleResetInterval, 30*time.Second),
		StaleResetThreshold:  parseDurationOr(cfg.StaleResetThreshold, 2*time.Minute),
		ShutdownGraceTimeout: parseDurationOr(cfg.ShutdownGraceTimeout, 10*time.Second),
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// NewService wires a scheduler. onStageDone is called (outside the claim
// loop's own goroutine) after a dispatched job finishes, typically
// Orchestrator.OnStageJobCompleted; it may be nil for deployments that
// never run workflows.
func NewService(jobs interfaces.JobRepository, queue interfaces.JobQueue, registry interfaces.ProcessorRegistry, cfg Config, onStageDone func(ctx context.Context, jobID string), logger arbor.ILogger) *Service {
	claimN := cfg.ClaimBatchSize
	if claimN <= 0 {
		claimN = 8
	}
	return &Service{
		jobs:           jobs,
		queue:          queue,
		registry:       registry,
		onClaim:        onStageDone,
		logger:         logger,
		claimN:         claimN,
		claimInterval:  cfg.ClaimInterval,
		staleInterval:  cfg.StaleResetInterval,
		staleThreshold: cfg.StaleResetThreshold,
		shutdownGrace:  cfg.ShutdownGraceTimeout,
	}
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.loopWg.Add(2)
	go s.runLoop(loopCtx, "claim-dispatch", s.claimInterval, s.claimAndDispatchOnce)
	go s.runLoop(loopCtx, "stale-reset", s.staleInterval, s.resetStaleOnce)

	s.logger.Info().
		Dur("claim_interval", s.claimInterval).
		Dur("stale_reset_interval", s.staleInterval).
		Dur("stale_reset_threshold", s.staleThreshold).
		Msg("scheduler started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	deadline := time.NewTimer(s.shutdownGrace)
	defer deadline.Stop()

	loopsDone := make(chan struct{})
	go func() {
		s.loopWg.Wait() // no more ticks fire once this returns, so jobWg can only shrink from here
		close(loopsDone)
	}()
	select {
	case <-loopsDone:
	case <-deadline.C:
		s.logger.Warn().Dur("grace", s.shutdownGrace).Msg("scheduler shutdown grace timeout elapsed before loops stopped")
		return nil
	case <-ctx.Done():
		return nil
	}

	jobsDone := make(chan struct{})
	go func() {
		s.jobWg.Wait()
		close(jobsDone)
	}()
	select {
	case <-jobsDone:
	case <-deadline.C:
		s.logger.Warn().Dur("grace", s.shutdownGrace).Msg("scheduler shutdown grace timeout elapsed, in-flight jobs may still be draining")
	case <-ctx.Done():
	}

	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// runLoop ticks every interval until ctx is cancelled, recovering from any
// panic inside tick so one bad iteration never kills the loop (grounded on
// the teacher's staleJobDetectorLoop/executeJob panic-recovery wrapper).
func (s *Service) runLoop(ctx context.Context, name string, interval time.Duration, tick func(ctx context.Context)) {
	defer s.loopWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTickSafely(ctx, name, tick)
		}
	}
}

func (s *Service) runTickSafely(ctx context.Context, name string, tick func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("loop", name).Str("panic", fmt.Sprintf("%v", r)).Msg("recovered from panic in scheduler loop")
		}
	}()
	tick(ctx)
}

// claimAndDispatchOnce implements the T1 tick: claim up to N queued
// jobs, enqueue them into the priority queue, and drain ready jobs into
// processors until none are immediately available.
func (s *Service) claimAndDispatchOnce(ctx context.Context) {
	claimed, err := s.jobs.ClaimQueuedForWorker(ctx, s.claimN)
	if err != nil {
		s.logger.Error().Err(err).Msg("claim_queued_for_worker failed")
		return
	}
	for _, job := range claimed {
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to enqueue claimed job")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dispatchCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		job, err := s.queue.NextForRun(dispatchCtx)
		cancel()
		if err != nil {
			return
		}
		s.dispatch(ctx, job)
	}
}

// dispatch runs one job's processor in its own goroutine so a slow job
// never blocks the claim loop's next tick, releasing its queue slot and
// notifying the workflow orchestrator (if any) once it finishes.
func (s *Service) dispatch(ctx context.Context, job *models.Job) {
	processor, ok := s.registry.Resolve(job.TaskType)
	if !ok {
		s.logger.Error().Str("job_id", job.ID).Str("task_type", string(job.TaskType)).Msg("no processor registered for task type")
		s.queue.Release(job.ID)
		return
	}

	s.jobWg.Add(1)
	common.SafeGo(s.logger, "processor:"+string(job.TaskType), func() {
		defer s.jobWg.Done()
		defer s.queue.Release(job.ID)

		runCtx := s.queue.CancellationToken(job.ID)
		if runCtx == nil {
			runCtx = ctx
		}
		if err := processor.Process(runCtx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Str("task_type", string(job.TaskType)).Msg("processor returned an error")
		}
		if s.onClaim != nil {
			s.onClaim(context.WithoutCancel(ctx), job.ID)
		}
	})
}

// resetStaleOnce implements the T2 tick: rescue jobs whose worker
// process died between claim and run by resetting them back to Queued.
func (s *Service) resetStaleOnce(ctx context.Context) {
	thresholdSeconds := int64(s.staleThreshold / time.Second)
	count, err := s.jobs.ResetStaleAcknowledged(ctx, thresholdSeconds)
	if err != nil {
		s.logger.Error().Err(err).Msg("reset_stale_acknowledged failed")
		return
	}
	if count > 0 {
		s.logger.Warn().Int("count", count).Msg("reset stale acknowledged jobs back to queued")
	}
}
