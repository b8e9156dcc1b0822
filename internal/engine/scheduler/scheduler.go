// Package scheduler drives the extraction engine's periodic tick loop: a
// startup dead-letter-queue drain, an immediate run, then one run per
// interval with no overlapping runs
package scheduler

import (
	"context"
	"sync"
	"time"

	"powerpositions/internal/engine/domain"
	"powerpositions/internal/platform/logger"
)

// Extractor is the subset of *runner.Runner the scheduler drives
type Extractor interface {
	Run(ctx context.Context, extractionTimeUTC time.Time) error
	RunRecovery(ctx context.Context, entry domain.FailedExtraction) error
}

// Scheduler owns the periodic tick loop
type Scheduler struct {
	runner   Extractor
	dlq      domain.DeadLetterQueue
	clock    domain.Clock
	interval time.Duration

	// OnDrained, if set, fires once the startup dead-letter-queue drain
	// completes (used to flip the ops /healthz surface to ready)
	OnDrained func()

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wires a Scheduler from its runner, DLQ, clock, and tick interval
func New(runner Extractor, dlq domain.DeadLetterQueue, clock domain.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, dlq: dlq, clock: clock, interval: interval}
}

// Start drains the DLQ, runs an immediate extraction, then ticks every
// interval until ctx is cancelled or Stop is called. Start blocks until the
// loop exits
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()
	defer close(s.done)

	log := logger.Named("scheduler")
	log.Info().Msg("scheduler starting: draining dead-letter queue")
	s.DrainDLQ(ctx)
	if s.OnDrained != nil {
		s.OnDrained()
	}

	s.runTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// Stop cancels the running loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Named("scheduler").Warn().Msg("tick skipped: previous run still in progress")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	now := s.clock.Now()
	if err := s.runner.Run(ctx, now); err != nil {
		logger.Named("scheduler").Error().Err(err).Time("extraction_time_utc", now).
			Msg("scheduled extraction failed; state recorded via audit/dlq")
	}
}

// DrainDLQ atomically empties the queue and replays every entry in ascending
// order. A replay failure re-enqueues the entry (handled by the runner
// itself via RunRecovery -> Enqueue) and never aborts the drain; only
// context cancellation stops it early
func (s *Scheduler) DrainDLQ(ctx context.Context) {
	log := logger.Named("scheduler")

	entries, err := s.dlq.DequeueAll()
	if err != nil {
		log.Error().Err(err).Msg("failed to read dead-letter queue at startup; continuing without recovery")
		return
	}
	if len(entries) == 0 {
		return
	}

	log.Info().Int("count", len(entries)).Msg("replaying dead-letter queue entries")
	for _, entry := range entries {
		if ctx.Err() != nil {
			log.Warn().Msg("dead-letter queue drain cancelled")
			return
		}
		if err := s.runner.RunRecovery(ctx, entry); err != nil {
			log.Warn().Err(err).Time("extraction_time_utc", entry.ExtractionTimeUTC).
				Msg("dead-letter queue replay failed; entry re-enqueued by the runner")
		}
	}
}
