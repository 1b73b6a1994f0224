// Package scheduler drives the evaluators on their cron intervals.
package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/evaluator"
	"github.com/nugraha/cakra/internal/metrics"
)

// Scheduler manages the evaluator tick loop. Each evaluator is
// non-reentrant: if a tick is still running when its next slot arrives,
// the slot is skipped rather than overlapped.
type Scheduler struct {
	cron    *cron.Cron
	metrics *metrics.Metrics
	log     zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// New creates a scheduler with second-granularity schedules.
func New(m *metrics.Metrics, log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		metrics: m,
		log:     log.With().Str("component", "scheduler").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers an evaluator on a cron schedule.
// Schedule examples:
//   - "0 * * * * *"     - Every minute
//   - "0 */5 * * * *"   - Every 5 minutes
//   - "@every 15s"      - Every 15 seconds
func (s *Scheduler) AddJob(schedule string, job evaluator.Job) error {
	var running sync.Mutex
	_, err := s.cron.AddFunc(schedule, func() {
		if !running.TryLock() {
			s.log.Warn().Str("job", job.Name()).Msg("Previous tick still running, skipping")
			return
		}
		defer running.Unlock()

		s.inflight.Add(1)
		defer s.inflight.Done()

		if s.ctx.Err() != nil {
			return
		}

		// Tick ID correlates all log lines of one run.
		tickID := uuid.NewString()[:8]
		s.log.Debug().Str("job", job.Name()).Str("tick_id", tickID).Msg("Running tick")
		if err := job.Run(s.ctx); err != nil {
			s.metrics.EvaluatorErrors.WithLabelValues(job.Name()).Inc()
			s.log.Error().Err(err).Str("job", job.Name()).Str("tick_id", tickID).Msg("Tick failed")
		}
		s.metrics.EvaluatorTicks.WithLabelValues(job.Name()).Inc()
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Start begins dispatching ticks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop cancels new ticks and waits for in-flight ones to finish, so no
// evaluator is interrupted mid-placement.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.inflight.Wait()
	s.log.Info().Msg("Scheduler stopped")
}
