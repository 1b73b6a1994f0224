package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/domain"
)

// repeatCooldown keeps a repeating alert from re-firing on every tick
// while the price sits past its target.
const repeatCooldown = time.Hour

// AlertStore is the alert state the evaluator reads and updates.
type AlertStore interface {
	ListPending() ([]domain.PriceAlert, error)
	MarkTriggered(id int64, repeat bool) error
}

// AlertEvaluator fires price alerts. Read-only towards the exchange, so
// it keeps running while trading is paused.
type AlertEvaluator struct {
	alerts   AlertStore
	prices   PriceSource
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewAlerts builds the alert evaluator.
func NewAlerts(alerts AlertStore, prices PriceSource, notifier Notifier, log zerolog.Logger) *AlertEvaluator {
	return &AlertEvaluator{
		alerts:   alerts,
		prices:   prices,
		notifier: notifier,
		log:      log.With().Str("evaluator", "alerts").Logger(),
		now:      time.Now,
	}
}

func (e *AlertEvaluator) Name() string { return "alerts" }

// Run checks every pending alert against the current price.
func (e *AlertEvaluator) Run(ctx context.Context) error {
	pending, err := e.alerts.ListPending()
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	prices := make(map[string]float64)
	for _, alert := range pending {
		if alert.Repeat && alert.TriggeredAt != nil && e.now().Sub(*alert.TriggeredAt) < repeatCooldown {
			continue
		}

		price, ok := prices[alert.Pair]
		if !ok {
			price, err = e.prices.Price(ctx, alert.Pair)
			if err != nil {
				e.log.Warn().Err(err).Str("pair", alert.Pair).Msg("Failed to resolve price for alert")
				continue
			}
			prices[alert.Pair] = price
		}

		crossed := (alert.Direction == "up" && price >= alert.TargetPrice) ||
			(alert.Direction == "down" && price <= alert.TargetPrice)
		if !crossed {
			continue
		}

		if err := e.alerts.MarkTriggered(alert.ID, alert.Repeat); err != nil {
			e.log.Error().Err(err).Int64("alert_id", alert.ID).Msg("Failed to mark alert triggered")
			continue
		}

		e.log.Info().
			Int64("alert_id", alert.ID).
			Str("pair", alert.Pair).
			Float64("price", price).
			Msg("Price alert fired")
		e.notifier.Notify(ctx, alert.TelegramID,
			fmt.Sprintf("%s is at %.2f, crossed your %s target of %.2f",
				alert.Pair, price, alert.Direction, alert.TargetPrice))
	}
	return nil
}
