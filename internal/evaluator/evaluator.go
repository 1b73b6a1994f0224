// Package evaluator contains the strategy evaluators driven by the
// scheduler. Each evaluator examines persistent state, decides what the
// current tick requires, and acts through the order service. Evaluators
// never assume a previous tick ran; every decision is recomputed from
// stored state.
package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/nugraha/cakra/internal/clients/indodax"
	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/modules/orders"
)

// Job is the unit the scheduler drives.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// PriceSource resolves the current price for a pair.
type PriceSource interface {
	Price(ctx context.Context, pair string) (float64, error)
}

// OrderService is the mutation path evaluators act through.
type OrderService interface {
	Create(ctx context.Context, req orders.CreateRequest) (*domain.Order, error)
	Cancel(ctx context.Context, orderID int64, origin string) error
}

// StrategyStore is the strategy state evaluators read and append to.
type StrategyStore interface {
	ListActiveByKind(kind domain.StrategyKind) ([]domain.Strategy, error)
	Deactivate(id int64) error
	AppendExecution(rec *domain.ExecutionRecord) error
	LastSuccessfulRun(strategyID int64) (*time.Time, error)
	SuccessfulRunCount(strategyID int64) (int, error)
}

// Safety is the dead-man switch surface evaluators use: check before
// acting, trip when exchange health is unknown.
type Safety interface {
	Gate(ctx context.Context) bool
	Pause(ctx context.Context, reason, source string) error
}

// Notifier delivers best-effort user messages.
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, message string)
}

// isTransportFailure reports whether an order operation failed in a way
// that leaves exchange health unknown. Exchange rejections, the rate
// limiter and the gate itself are definitive answers, not outages.
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if indodax.IsExchangeError(err) {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrTradingPaused) {
		return false
	}
	if errors.Is(err, domain.ErrNoActiveAPIKey) {
		return false
	}
	return true
}
