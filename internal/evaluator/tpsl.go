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

const tpslParallelism = 4

// TPSLEvaluator watches each take-profit/stop-loss strategy and exits the
// position with a market sell when a threshold is crossed. A strategy
// fires at most once: a successful exit deactivates it.
type TPSLEvaluator struct {
	strategies StrategyStore
	prices     PriceSource
	orders     OrderService
	safety     Safety
	notifier   Notifier
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewTPSL builds the TP/SL evaluator.
func NewTPSL(strategies StrategyStore, prices PriceSource, orderSvc OrderService, safety Safety, notifier Notifier, m *metrics.Metrics, log zerolog.Logger) *TPSLEvaluator {
	return &TPSLEvaluator{
		strategies: strategies,
		prices:     prices,
		orders:     orderSvc,
		safety:     safety,
		notifier:   notifier,
		metrics:    m,
		log:        log.With().Str("evaluator", "tpsl").Logger(),
		now:        time.Now,
	}
}

func (e *TPSLEvaluator) Name() string { return "tpsl" }

// Run evaluates every active TP/SL strategy once.
func (e *TPSLEvaluator) Run(ctx context.Context) error {
	if !e.safety.Gate(ctx) {
		e.log.Debug().Msg("Trading paused, skipping tick")
		return nil
	}

	strategies, err := e.strategies.ListActiveByKind(domain.KindTPSL)
	if err != nil {
		return fmt.Errorf("failed to list tp/sl strategies: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tpslParallelism)
	for _, s := range strategies {
		s := s
		g.Go(func() error {
			if err := e.evaluate(gctx, s); err != nil {
				e.log.Error().Err(err).Int64("strategy_id", s.ID).Msg("TP/SL evaluation failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *TPSLEvaluator) evaluate(ctx context.Context, s domain.Strategy) error {
	cfg, err := domain.ParseTPSLConfig(s.Config)
	if err != nil {
		return err
	}

	price, err := e.prices.Price(ctx, s.Pair)
	if err != nil {
		return err
	}

	var trigger string
	switch {
	case cfg.TakeProfitPct > 0 && price >= cfg.TakeProfitPrice():
		trigger = "take_profit"
	case cfg.StopLossPct > 0 && price <= cfg.StopLossPrice():
		trigger = "stop_loss"
	default:
		return nil
	}

	// A prior tick may have sold but failed to deactivate. TP/SL fires
	// once ever, so an existing successful run means the position is
	// already exited; finish the stop instead of selling again.
	fired, err := e.strategies.SuccessfulRunCount(s.ID)
	if err != nil {
		return err
	}
	if fired > 0 {
		return e.strategies.Deactivate(s.ID)
	}

	order, err := e.orders.Create(ctx, orders.CreateRequest{
		UserID:     s.UserID,
		Pair:       s.Pair,
		Side:       domain.SideSell,
		Type:       domain.TypeMarket,
		Amount:     cfg.Amount,
		StrategyID: &s.ID,
	})
	if err != nil {
		// The strategy stays active so the exit is retried next tick.
		e.recordFailure(ctx, s, trigger, err)
		return err
	}

	// The sell went through; the record must land even if the
	// deactivation below fails, since the record is what stops a
	// second sell.
	if err := e.strategies.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     s.UserID,
		RunAt:      e.now().UTC(),
		Status:     domain.ExecutionSuccess,
		Detail: map[string]any{
			"trigger":      trigger,
			"price":        price,
			"order_id":     order.ID,
			"auto_stopped": true,
		},
	}); err != nil {
		e.log.Error().Err(err).Int64("strategy_id", s.ID).Msg("Failed to record exit")
	}

	e.log.Info().
		Int64("strategy_id", s.ID).
		Str("trigger", trigger).
		Float64("price", price).
		Msg("TP/SL fired, position exited")
	e.notifier.Notify(ctx, s.TelegramID,
		fmt.Sprintf("%s hit for %q at %.2f: sold %g %s", trigger, s.Name, price, cfg.Amount, s.Pair))

	if err := e.strategies.Deactivate(s.ID); err != nil {
		// The next tick sees the successful run and retries the stop
		// without selling again.
		return fmt.Errorf("failed to stop fired strategy: %w", err)
	}
	return nil
}

func (e *TPSLEvaluator) recordFailure(ctx context.Context, s domain.Strategy, trigger string, cause error) {
	if err := e.strategies.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     s.UserID,
		RunAt:      e.now().UTC(),
		Status:     domain.ExecutionFailed,
		Detail: map[string]any{
			"trigger": trigger,
			"error":   cause.Error(),
		},
	}); err != nil {
		e.log.Error().Err(err).Int64("strategy_id", s.ID).Msg("Failed to record execution failure")
	}
	e.notifier.Notify(ctx, s.TelegramID,
		fmt.Sprintf("%s exit for %q failed: %v", trigger, s.Name, cause))

	if isTransportFailure(cause) {
		e.metrics.DeadmanTrips.Inc()
		if err := e.safety.Pause(ctx, "exchange unreachable during tp/sl execution", "tpsl"); err != nil {
			e.log.Error().Err(err).Msg("Failed to trip dead-man switch")
		}
	}
}
