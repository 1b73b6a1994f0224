package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/metrics"
	"github.com/nugraha/cakra/internal/modules/orders"
)

// dcaParallelism bounds concurrent per-strategy evaluation. Strategies
// belong to different users, so their exchange calls are independent.
const dcaParallelism = 4

// DCAEvaluator executes recurring fixed-amount market buys on schedule.
type DCAEvaluator struct {
	strategies StrategyStore
	orders     OrderService
	safety     Safety
	notifier   Notifier
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewDCA builds the DCA evaluator.
func NewDCA(strategies StrategyStore, orderSvc OrderService, safety Safety, notifier Notifier, m *metrics.Metrics, log zerolog.Logger) *DCAEvaluator {
	return &DCAEvaluator{
		strategies: strategies,
		orders:     orderSvc,
		safety:     safety,
		notifier:   notifier,
		metrics:    m,
		log:        log.With().Str("evaluator", "dca").Logger(),
		now:        time.Now,
	}
}

func (e *DCAEvaluator) Name() string { return "dca" }

// Run evaluates every active DCA strategy once. One strategy's failure
// never blocks the others.
func (e *DCAEvaluator) Run(ctx context.Context) error {
	if !e.safety.Gate(ctx) {
		e.log.Debug().Msg("Trading paused, skipping tick")
		return nil
	}

	strategies, err := e.strategies.ListActiveByKind(domain.KindDCA)
	if err != nil {
		return fmt.Errorf("failed to list dca strategies: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dcaParallelism)
	for _, s := range strategies {
		s := s
		g.Go(func() error {
			if err := e.evaluate(gctx, s); err != nil {
				e.log.Error().Err(err).Int64("strategy_id", s.ID).Msg("DCA evaluation failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *DCAEvaluator) evaluate(ctx context.Context, s domain.Strategy) error {
	cfg, err := domain.ParseDCAConfig(s.Config)
	if err != nil {
		return err
	}

	last, err := e.strategies.LastSuccessfulRun(s.ID)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	due, err := dcaDue(cfg, now, last)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	if cfg.MaxRuns != nil {
		count, err := e.strategies.SuccessfulRunCount(s.ID)
		if err != nil {
			return err
		}
		if count >= *cfg.MaxRuns {
			return e.retire(ctx, s, count)
		}
	}

	order, err := e.orders.Create(ctx, orders.CreateRequest{
		UserID:     s.UserID,
		Pair:       s.Pair,
		Side:       domain.SideBuy,
		Type:       domain.TypeMarket,
		Amount:     cfg.Amount,
		StrategyID: &s.ID,
	})
	if err != nil {
		e.recordFailure(ctx, s, now, err)
		return err
	}

	if err := e.strategies.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     s.UserID,
		RunAt:      now,
		Status:     domain.ExecutionSuccess,
		Detail: map[string]any{
			"order_id": order.ID,
			"amount":   cfg.Amount,
		},
	}); err != nil {
		return err
	}

	e.log.Info().
		Int64("strategy_id", s.ID).
		Str("pair", s.Pair).
		Float64("amount", cfg.Amount).
		Msg("DCA buy executed")
	e.notifier.Notify(ctx, s.TelegramID,
		fmt.Sprintf("DCA %q executed: bought %s for %.0f", s.Name, s.Pair, cfg.Amount))
	return nil
}

// retire stops a strategy that has reached its run quota.
func (e *DCAEvaluator) retire(ctx context.Context, s domain.Strategy, runs int) error {
	if err := e.strategies.Deactivate(s.ID); err != nil {
		return err
	}
	if err := e.strategies.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     s.UserID,
		RunAt:      e.now().UTC(),
		Status:     domain.ExecutionSuccess,
		Detail: map[string]any{
			"auto_stopped": true,
			"reason":       "max_runs reached",
			"runs":         runs,
		},
	}); err != nil {
		return err
	}

	e.log.Info().Int64("strategy_id", s.ID).Int("runs", runs).Msg("DCA strategy completed its run quota")
	e.notifier.Notify(ctx, s.TelegramID,
		fmt.Sprintf("DCA %q finished after %d runs and was stopped", s.Name, runs))
	return nil
}

func (e *DCAEvaluator) recordFailure(ctx context.Context, s domain.Strategy, runAt time.Time, cause error) {
	if err := e.strategies.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     s.UserID,
		RunAt:      runAt,
		Status:     domain.ExecutionFailed,
		Detail:     map[string]any{"error": cause.Error()},
	}); err != nil {
		e.log.Error().Err(err).Int64("strategy_id", s.ID).Msg("Failed to record execution failure")
	}
	e.notifier.Notify(ctx, s.TelegramID,
		fmt.Sprintf("DCA %q failed: %v", s.Name, cause))

	if isTransportFailure(cause) {
		e.metrics.DeadmanTrips.Inc()
		if err := e.safety.Pause(ctx, "exchange unreachable during dca execution", "dca"); err != nil {
			e.log.Error().Err(err).Msg("Failed to trip dead-man switch")
		}
	}
}

// dcaDue decides whether a strategy owes a run this tick. Daily and
// weekly schedules anchor on the configured clock time; a run is due once
// the most recent scheduled occurrence has passed without a successful
// run at or after it.
func dcaDue(cfg domain.DCAConfig, now time.Time, last *time.Time) (bool, error) {
	switch cfg.Interval {
	case domain.IntervalHourly:
		if last == nil {
			return true, nil
		}
		return now.Sub(*last) >= time.Hour, nil

	case domain.IntervalDaily, domain.IntervalWeekly:
		hour, minute, err := cfg.ExecutionClock()
		if err != nil {
			return false, err
		}

		scheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if cfg.Interval == domain.IntervalWeekly {
			// Weekly runs anchor on Monday.
			offset := (int(now.Weekday()) + 6) % 7
			scheduled = scheduled.AddDate(0, 0, -offset)
		}
		if scheduled.After(now) {
			period := 24 * time.Hour
			if cfg.Interval == domain.IntervalWeekly {
				period = 7 * 24 * time.Hour
			}
			scheduled = scheduled.Add(-period)
		}

		return last == nil || last.Before(scheduled), nil

	default:
		return false, fmt.Errorf("unknown dca interval %q", cfg.Interval)
	}
}
