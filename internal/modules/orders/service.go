package orders

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/clients/indodax"
	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/metrics"
)

// Exchange is the trade-API surface the order service needs. Satisfied by
// indodax.PrivateClient and by fakes in tests.
type Exchange interface {
	Trade(ctx context.Context, userID int64, pair, orderType string, price, amount float64) (indodax.TradeResult, error)
	CancelOrder(ctx context.Context, userID int64, pair, orderID, orderType string) error
	OpenOrders(ctx context.Context, userID int64, pair string) ([]indodax.OpenOrder, error)
}

// SafetyGate reports whether mutating exchange calls are allowed.
type SafetyGate interface {
	Gate(ctx context.Context) bool
}

// RateLimiter throttles per-user order mutations, one budget per
// action kind.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64, action string) (bool, error)
}

// Service is the single path through which anything in the process places
// or cancels exchange orders. Every mutation passes the dead-man gate and
// the per-user rate limiter, in that order.
type Service struct {
	repo     *Repository
	exchange Exchange
	gate     SafetyGate
	limiter  RateLimiter
	metrics  *metrics.Metrics
	log      zerolog.Logger

	syncMu sync.Mutex
}

// NewService wires the order service.
func NewService(repo *Repository, exchange Exchange, gate SafetyGate, limiter RateLimiter, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		exchange: exchange,
		gate:     gate,
		limiter:  limiter,
		metrics:  m,
		log:      log.With().Str("component", "orders").Logger(),
	}
}

// CreateRequest describes one order to place.
type CreateRequest struct {
	UserID     int64
	Pair       string
	Side       domain.OrderSide
	Type       domain.OrderType
	Price      float64 // ignored for market orders
	Amount     float64
	StrategyID *int64 // set for strategy orders, nil for manual ones
}

// Create places an order on the exchange and records it locally. Market
// orders are recorded as filled; limit orders rest open until the order
// monitor observes them gone.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Order, error) {
	if !s.gate.Gate(ctx) {
		return nil, domain.ErrTradingPaused
	}

	allowed, err := s.limiter.Allow(ctx, req.UserID, "create")
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !allowed {
		s.metrics.RateLimitRejections.Inc()
		return nil, domain.ErrRateLimited
	}

	price := req.Price
	if req.Type == domain.TypeMarket {
		price = 0
	}

	result, err := s.exchange.Trade(ctx, req.UserID, req.Pair, string(req.Side), price, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to place %s %s on %s: %w", req.Side, req.Type, req.Pair, err)
	}

	order := &domain.Order{
		UserID:          req.UserID,
		ExchangeOrderID: result.OrderID,
		Pair:            req.Pair,
		Side:            req.Side,
		Type:            req.Type,
		Amount:          req.Amount,
		Status:          domain.StatusOpen,
		IsStrategyOrder: req.StrategyID != nil,
		StrategyID:      req.StrategyID,
	}
	if req.Type == domain.TypeLimit {
		p := req.Price
		order.Price = &p
	} else {
		order.Status = domain.StatusFilled
	}

	if err := s.repo.Create(order); err != nil {
		// The exchange accepted the order but the local record failed.
		// The order monitor will not know about this order, so surface
		// loudly instead of hiding the divergence.
		s.log.Error().Err(err).
			Str("exchange_order_id", result.OrderID).
			Msg("Order placed on exchange but local record failed")
		return nil, err
	}

	s.metrics.OrdersPlaced.WithLabelValues(string(req.Side)).Inc()
	s.log.Info().
		Int64("user_id", req.UserID).
		Int64("order_id", order.ID).
		Str("pair", req.Pair).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Float64("amount", req.Amount).
		Msg("Order placed")

	return order, nil
}

// Cancel cancels a resting order on the exchange and marks it locally.
// origin labels who asked (an evaluator name or "manual").
func (s *Service) Cancel(ctx context.Context, orderID int64, origin string) error {
	order, err := s.repo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.StatusOpen {
		return fmt.Errorf("order %d is not open", orderID)
	}

	if !s.gate.Gate(ctx) {
		return domain.ErrTradingPaused
	}

	allowed, err := s.limiter.Allow(ctx, order.UserID, "cancel")
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !allowed {
		s.metrics.RateLimitRejections.Inc()
		return domain.ErrRateLimited
	}

	if err := s.exchange.CancelOrder(ctx, order.UserID, order.Pair, order.ExchangeOrderID, string(order.Side)); err != nil {
		return fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}

	if err := s.repo.UpdateStatus(orderID, domain.StatusCanceled); err != nil {
		return err
	}

	s.metrics.OrdersCanceled.WithLabelValues(origin).Inc()
	s.log.Info().
		Int64("order_id", orderID).
		Str("origin", origin).
		Msg("Order canceled")
	return nil
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Checked int `json:"checked"`
	Filled  int `json:"filled"`
}

// SyncOpen reconciles locally open orders against the exchange. An order
// absent from the exchange's live list is taken as filled. Exchange
// rejections for one user are logged and skipped; a transport failure
// aborts the pass and is returned so the caller can trip the dead-man
// switch. Passes are serialized: an admin-triggered sync waits for a
// scheduled one instead of interleaving with it.
func (s *Service) SyncOpen(ctx context.Context) (SyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	open, err := s.repo.ListOpen()
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Checked: len(open)}
	if len(open) == 0 {
		return result, nil
	}

	// One openOrders call per user+pair covers every local order in it.
	type scope struct {
		userID int64
		pair   string
	}
	live := make(map[scope]map[string]bool)

	for _, order := range open {
		key := scope{userID: order.UserID, pair: order.Pair}
		if _, ok := live[key]; !ok {
			exchangeOrders, err := s.exchange.OpenOrders(ctx, order.UserID, order.Pair)
			if err != nil {
				if indodax.IsExchangeError(err) {
					s.log.Warn().Err(err).
						Int64("user_id", order.UserID).
						Str("pair", order.Pair).
						Msg("Exchange rejected open orders query, skipping scope")
					live[key] = nil
					continue
				}
				return result, fmt.Errorf("failed to fetch open orders for user %d: %w", order.UserID, err)
			}

			ids := make(map[string]bool, len(exchangeOrders))
			for _, eo := range exchangeOrders {
				ids[eo.OrderID] = true
			}
			live[key] = ids
		}

		ids := live[key]
		if ids == nil {
			continue // scope skipped due to exchange rejection
		}

		if !ids[order.ExchangeOrderID] {
			if err := s.repo.UpdateStatus(order.ID, domain.StatusFilled); err != nil {
				return result, err
			}
			result.Filled++
			s.log.Info().
				Int64("order_id", order.ID).
				Str("pair", order.Pair).
				Msg("Order no longer open on exchange, marked filled")
		}
	}

	return result, nil
}
