package evaluator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/metrics"
	"github.com/nugraha/cakra/internal/modules/orders"
)

// OrderSyncer reconciles local open orders against the exchange.
type OrderSyncer interface {
	SyncOpen(ctx context.Context) (orders.SyncResult, error)
}

// OrderMonitor keeps local order state honest. A transport failure while
// syncing means exchange health is unknown, which trips the dead-man
// switch: trading unattended against an exchange we cannot see is worse
// than not trading.
type OrderMonitor struct {
	syncer  OrderSyncer
	safety  Safety
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewOrderMonitor builds the order monitor.
func NewOrderMonitor(syncer OrderSyncer, safety Safety, m *metrics.Metrics, log zerolog.Logger) *OrderMonitor {
	return &OrderMonitor{
		syncer:  syncer,
		safety:  safety,
		metrics: m,
		log:     log.With().Str("evaluator", "order-monitor").Logger(),
	}
}

func (e *OrderMonitor) Name() string { return "order-monitor" }

// Run performs one reconciliation pass.
func (e *OrderMonitor) Run(ctx context.Context) error {
	result, err := e.syncer.SyncOpen(ctx)
	if err != nil {
		if isTransportFailure(err) {
			e.metrics.DeadmanTrips.Inc()
			if pauseErr := e.safety.Pause(ctx, "exchange unreachable during order sync", "order-monitor"); pauseErr != nil {
				e.log.Error().Err(pauseErr).Msg("Failed to trip dead-man switch")
			}
		}
		return err
	}

	if result.Filled > 0 {
		e.log.Info().
			Int("checked", result.Checked).
			Int("filled", result.Filled).
			Msg("Order sync updated local state")
	}
	return nil
}
