package evaluator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugraha/cakra/internal/domain"
)

type fakeAlertStore struct {
	mu     sync.Mutex
	alerts []domain.PriceAlert
}

func (f *fakeAlertStore) ListPending() ([]domain.PriceAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PriceAlert
	for _, a := range f.alerts {
		if !a.IsTriggered {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) MarkTriggered(id int64, repeat bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := range f.alerts {
		if f.alerts[i].ID == id {
			f.alerts[i].TriggeredAt = &now
			if !repeat {
				f.alerts[i].IsTriggered = true
			}
		}
	}
	return nil
}

func TestAlertFiresOnUpwardCross(t *testing.T) {
	store := &fakeAlertStore{alerts: []domain.PriceAlert{
		{ID: 1, UserID: 1, TelegramID: 100, Pair: "btc_idr", TargetPrice: 1000, Direction: "up"},
	}}
	notifier := &fakeNotifier{}
	e := NewAlerts(store, &fakePrices{prices: map[string]float64{"btc_idr": 1100}}, notifier, zerolog.Nop())

	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, 1, notifier.count())
	assert.True(t, store.alerts[0].IsTriggered, "one-shot alert retires after firing")
}

func TestAlertHoldsBelowTarget(t *testing.T) {
	store := &fakeAlertStore{alerts: []domain.PriceAlert{
		{ID: 1, UserID: 1, TelegramID: 100, Pair: "btc_idr", TargetPrice: 1000, Direction: "up"},
	}}
	notifier := &fakeNotifier{}
	e := NewAlerts(store, &fakePrices{prices: map[string]float64{"btc_idr": 900}}, notifier, zerolog.Nop())

	require.NoError(t, e.Run(context.Background()))
	assert.Zero(t, notifier.count())
}

func TestAlertDownwardDirection(t *testing.T) {
	store := &fakeAlertStore{alerts: []domain.PriceAlert{
		{ID: 1, UserID: 1, TelegramID: 100, Pair: "btc_idr", TargetPrice: 1000, Direction: "down"},
	}}
	notifier := &fakeNotifier{}
	e := NewAlerts(store, &fakePrices{prices: map[string]float64{"btc_idr": 950}}, notifier, zerolog.Nop())

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 1, notifier.count())
}

func TestRepeatingAlertStaysPendingWithCooldown(t *testing.T) {
	recent := time.Now().Add(-10 * time.Minute)
	store := &fakeAlertStore{alerts: []domain.PriceAlert{
		{ID: 1, UserID: 1, TelegramID: 100, Pair: "btc_idr", TargetPrice: 1000, Direction: "up",
			Repeat: true, TriggeredAt: &recent},
	}}
	notifier := &fakeNotifier{}
	e := NewAlerts(store, &fakePrices{prices: map[string]float64{"btc_idr": 1100}}, notifier, zerolog.Nop())

	require.NoError(t, e.Run(context.Background()))
	assert.Zero(t, notifier.count(), "within cooldown the repeat alert stays quiet")

	old := time.Now().Add(-2 * time.Hour)
	store.alerts[0].TriggeredAt = &old

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 1, notifier.count())
	assert.False(t, store.alerts[0].IsTriggered, "repeating alert stays pending")
}

func TestAlertPriceFailureSkipsAlertOnly(t *testing.T) {
	store := &fakeAlertStore{alerts: []domain.PriceAlert{
		{ID: 1, UserID: 1, TelegramID: 100, Pair: "unknown_pair", TargetPrice: 1000, Direction: "up"},
	}}
	notifier := &fakeNotifier{}
	e := NewAlerts(store, &fakePrices{prices: map[string]float64{}}, notifier, zerolog.Nop())

	require.NoError(t, e.Run(context.Background()), "a price lookup failure is not a tick failure")
	assert.Zero(t, notifier.count())
}
