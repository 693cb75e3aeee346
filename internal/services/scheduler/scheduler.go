// -----------------------------------------------------------------------
// Scheduler - Periodic runs in watch mode
// -----------------------------------------------------------------------

package scheduler

import (
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler fires the run function on a cron schedule. Runs drive a single
// shared browser session, so a tick that arrives while a run is still in
// flight is skipped, not queued.
type Scheduler struct {
	run      func() error
	cron     *cron.Cron
	logger   arbor.ILogger
	inFlight atomic.Bool
	skipped  atomic.Int64
}

// NewScheduler creates a scheduler around the run function
func NewScheduler(run func() error, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		run:    run,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start registers the schedule and begins ticking.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		// Default: every 30 minutes
		schedule = "0 */30 * * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.tick()
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Watch scheduler started")

	return nil
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Watch scheduler stopped")
}

// RunNow triggers an immediate run outside the schedule.
func (s *Scheduler) RunNow() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("a run is already in progress")
	}
	defer s.inFlight.Store(false)
	return s.run()
}

// SkippedTicks reports how many scheduled ticks overlapped a running job.
func (s *Scheduler) SkippedTicks() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) tick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn().Msg("Previous run still in progress, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	if err := s.run(); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run failed")
	}
}
