package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/metrics"
	"github.com/nugraha/cakra/internal/modules/orders"
)

// GridOrderStore is the slice of order state grid reconciliation reads.
type GridOrderStore interface {
	ListOpenByStrategy(strategyID int64) ([]domain.Order, error)
}

// GridEvaluator reconciles each grid strategy's resting orders against
// the ladder its configuration implies. The ladder is never persisted; it
// is recomputed every tick, so a crash between two placements just leaves
// gaps the next tick fills.
type GridEvaluator struct {
	strategies StrategyStore
	openOrders GridOrderStore
	orders     OrderService
	safety     Safety
	notifier   Notifier
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewGrid builds the grid evaluator.
func NewGrid(strategies StrategyStore, openOrders GridOrderStore, orderSvc OrderService, safety Safety, notifier Notifier, m *metrics.Metrics, log zerolog.Logger) *GridEvaluator {
	return &GridEvaluator{
		strategies: strategies,
		openOrders: openOrders,
		orders:     orderSvc,
		safety:     safety,
		notifier:   notifier,
		metrics:    m,
		log:        log.With().Str("evaluator", "grid").Logger(),
		now:        time.Now,
	}
}

func (e *GridEvaluator) Name() string { return "grid" }

// Run reconciles every active grid strategy. Strategies are processed
// sequentially: grid placement is bursty and sequencing keeps one
// misconfigured grid from starving everyone's rate limit budget at once.
func (e *GridEvaluator) Run(ctx context.Context) error {
	if !e.safety.Gate(ctx) {
		e.log.Debug().Msg("Trading paused, skipping tick")
		return nil
	}

	strategies, err := e.strategies.ListActiveByKind(domain.KindGrid)
	if err != nil {
		return fmt.Errorf("failed to list grid strategies: %w", err)
	}

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.reconcile(ctx, s); err != nil {
			e.log.Error().Err(err).Int64("strategy_id", s.ID).Msg("Grid reconciliation failed")
			// Once the dead-man switch has tripped, the remaining
			// strategies would only pile up failed records.
			if isTransportFailure(err) {
				return err
			}
		}
	}
	return nil
}

// gridLevel is one rung of the target ladder.
type gridLevel struct {
	price float64
	side  domain.OrderSide
}

// ladder computes the N+1 target levels for a grid configuration. Levels
// at or below the midpoint are buys, levels above it are sells.
func ladder(cfg domain.GridConfig) []gridLevel {
	step := (cfg.UpperPrice - cfg.LowerPrice) / float64(cfg.GridCount)
	midpoint := (cfg.LowerPrice + cfg.UpperPrice) / 2

	levels := make([]gridLevel, 0, cfg.GridCount+1)
	for i := 0; i <= cfg.GridCount; i++ {
		price := cfg.LowerPrice + float64(i)*step
		side := domain.SideSell
		if price <= midpoint {
			side = domain.SideBuy
		}
		levels = append(levels, gridLevel{price: price, side: side})
	}
	return levels
}

func (e *GridEvaluator) reconcile(ctx context.Context, s domain.Strategy) error {
	cfg, err := domain.ParseGridConfig(s.Config)
	if err != nil {
		return err
	}

	open, err := e.openOrders.ListOpenByStrategy(s.ID)
	if err != nil {
		return err
	}

	levels := ladder(cfg)
	tolerance := cfg.Tolerance()

	ladderPrices := make([]float64, len(levels))
	for i, level := range levels {
		ladderPrices[i] = level.price
	}

	// Match each open order to at most one level. Anything unmatched on
	// either side drives an action: unmatched level means place,
	// unmatched order means cancel.
	matchedOrders := make(map[int64]bool, len(open))
	matchedLevels := make([]bool, len(levels))

	for i, level := range levels {
		for _, order := range open {
			if matchedOrders[order.ID] || order.Side != level.side || order.Price == nil {
				continue
			}
			if math.Abs(*order.Price-level.price) <= tolerance {
				matchedOrders[order.ID] = true
				matchedLevels[i] = true
				break
			}
		}
	}

	// Stale orders no longer on the ladder are canceled first, so the
	// funds they hold are free before the placements below need them. A
	// failed cancel is retried naturally on the next tick.
	canceledIDs := []int64{}
	for _, order := range open {
		if matchedOrders[order.ID] {
			continue
		}
		if err := e.orders.Cancel(ctx, order.ID, "grid"); err != nil {
			e.log.Warn().Err(err).
				Int64("order_id", order.ID).
				Int64("strategy_id", s.ID).
				Msg("Failed to cancel stale grid order")
			if isTransportFailure(err) {
				e.recordFailure(ctx, s, err)
				return err
			}
			continue
		}
		canceledIDs = append(canceledIDs, order.ID)
	}

	var placed int
	for i, level := range levels {
		if matchedLevels[i] {
			continue
		}

		_, err := e.orders.Create(ctx, orders.CreateRequest{
			UserID:     s.UserID,
			Pair:       s.Pair,
			Side:       level.side,
			Type:       domain.TypeLimit,
			Price:      level.price,
			Amount:     cfg.OrderSize,
			StrategyID: &s.ID,
		})
		if err != nil {
			// A placement failure aborts this strategy's pass; the next
			// tick recomputes and retries the remaining gaps.
			e.recordFailure(ctx, s, err)
			return err
		}
		placed++
	}

	// Every tick leaves a record, including a settled one: the trail
	// shows the ladder the tick converged on, not just its mutations.
	if err := e.strategies.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     s.UserID,
		RunAt:      e.now().UTC(),
		Status:     domain.ExecutionSuccess,
		Detail: map[string]any{
			"ladder":       ladderPrices,
			"placed":       placed,
			"canceled_ids": canceledIDs,
		},
	}); err != nil {
		return err
	}

	if placed > 0 || len(canceledIDs) > 0 {
		e.log.Info().
			Int64("strategy_id", s.ID).
			Int("placed", placed).
			Int("canceled", len(canceledIDs)).
			Msg("Grid reconciled")
		e.notifier.Notify(ctx, s.TelegramID,
			fmt.Sprintf("Grid %q reconciled on %s: %d placed, %d canceled", s.Name, s.Pair, placed, len(canceledIDs)))
	}
	return nil
}

func (e *GridEvaluator) recordFailure(ctx context.Context, s domain.Strategy, cause error) {
	if err := e.strategies.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     s.UserID,
		RunAt:      e.now().UTC(),
		Status:     domain.ExecutionFailed,
		Detail:     map[string]any{"error": cause.Error()},
	}); err != nil {
		e.log.Error().Err(err).Int64("strategy_id", s.ID).Msg("Failed to record execution failure")
	}
	e.notifier.Notify(ctx, s.TelegramID,
		fmt.Sprintf("Grid %q reconciliation failed: %v", s.Name, cause))

	if isTransportFailure(cause) {
		e.metrics.DeadmanTrips.Inc()
		if err := e.safety.Pause(ctx, "exchange unreachable during grid reconciliation", "grid"); err != nil {
			e.log.Error().Err(err).Msg("Failed to trip dead-man switch")
		}
	}
}
