// Package metrics exposes Prometheus instrumentation for the evaluators
// and the exchange gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collector set registered for this process.
type Metrics struct {
	EvaluatorTicks      *prometheus.CounterVec
	EvaluatorErrors     *prometheus.CounterVec
	OrdersPlaced        *prometheus.CounterVec
	OrdersCanceled      *prometheus.CounterVec
	RateLimitRejections prometheus.Counter
	DeadmanTrips        prometheus.Counter
	TradingPaused       prometheus.Gauge
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EvaluatorTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cakra_evaluator_ticks_total",
			Help: "Completed evaluator ticks by evaluator name.",
		}, []string{"evaluator"}),
		EvaluatorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cakra_evaluator_errors_total",
			Help: "Evaluator ticks that ended in error.",
		}, []string{"evaluator"}),
		OrdersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cakra_orders_placed_total",
			Help: "Orders placed on the exchange by side.",
		}, []string{"side"}),
		OrdersCanceled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cakra_orders_canceled_total",
			Help: "Orders canceled on the exchange by origin.",
		}, []string{"origin"}),
		RateLimitRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "cakra_rate_limit_rejections_total",
			Help: "Order mutations rejected by the per-user rate limiter.",
		}),
		DeadmanTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "cakra_deadman_trips_total",
			Help: "Times the dead-man switch was tripped.",
		}),
		TradingPaused: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cakra_trading_paused",
			Help: "1 while the dead-man switch is tripped, 0 otherwise.",
		}),
	}
}
