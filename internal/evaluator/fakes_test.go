package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/modules/orders"
)

// fakeStrategyStore holds strategies and execution history in memory.
type fakeStrategyStore struct {
	mu            sync.Mutex
	strategies    []domain.Strategy
	executions    []domain.ExecutionRecord
	lastRun       map[int64]time.Time
	runCount      map[int64]int
	deactivateErr error
}

func newFakeStrategyStore(strategies ...domain.Strategy) *fakeStrategyStore {
	return &fakeStrategyStore{
		strategies: strategies,
		lastRun:    make(map[int64]time.Time),
		runCount:   make(map[int64]int),
	}
}

func (f *fakeStrategyStore) ListActiveByKind(kind domain.StrategyKind) ([]domain.Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Strategy
	for _, s := range f.strategies {
		if s.Kind == kind && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStrategyStore) Deactivate(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deactivateErr != nil {
		return f.deactivateErr
	}
	for i := range f.strategies {
		if f.strategies[i].ID == id {
			f.strategies[i].IsActive = false
			return nil
		}
	}
	return domain.ErrStrategyNotFound
}

func (f *fakeStrategyStore) AppendExecution(rec *domain.ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, *rec)
	if rec.Status == domain.ExecutionSuccess {
		f.lastRun[rec.StrategyID] = rec.RunAt
		f.runCount[rec.StrategyID]++
	}
	return nil
}

func (f *fakeStrategyStore) LastSuccessfulRun(strategyID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.lastRun[strategyID]; ok {
		return &t, nil
	}
	return nil, nil
}

func (f *fakeStrategyStore) SuccessfulRunCount(strategyID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runCount[strategyID], nil
}

func (f *fakeStrategyStore) isActive(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.strategies {
		if s.ID == id {
			return s.IsActive
		}
	}
	return false
}

func (f *fakeStrategyStore) executionsFor(id int64) []domain.ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, rec := range f.executions {
		if rec.StrategyID == id {
			out = append(out, rec)
		}
	}
	return out
}

// fakeOrderService records placements and cancels without touching any
// exchange.
type fakeOrderService struct {
	mu        sync.Mutex
	created   []orders.CreateRequest
	canceled  []int64
	nextID    int64
	createErr error
	cancelErr error
}

func (f *fakeOrderService) Create(_ context.Context, req orders.CreateRequest) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.created = append(f.created, req)
	order := &domain.Order{
		ID:              f.nextID,
		UserID:          req.UserID,
		ExchangeOrderID: fmt.Sprintf("ex-%d", f.nextID),
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
	return order, nil
}

func (f *fakeOrderService) Cancel(_ context.Context, orderID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeOrderService) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeSafety is an in-memory dead-man switch.
type fakeSafety struct {
	mu     sync.Mutex
	paused bool
	reason string
	source string
}

func (f *fakeSafety) Gate(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.paused
}

func (f *fakeSafety) Pause(_ context.Context, reason, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	f.reason = reason
	f.source = source
	return nil
}

// fakePrices serves fixed prices per pair.
type fakePrices struct {
	prices map[string]float64
	err    error
}

func (f *fakePrices) Price(_ context.Context, pair string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	price, ok := f.prices[pair]
	if !ok {
		return 0, fmt.Errorf("no price for %s", pair)
	}
	return price, nil
}

// fakeNotifier collects sent messages.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ int64, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeNotifier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}
