package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugraha/cakra/internal/keyring"
)

func newTestSwitch() *Switch {
	return New(keyring.NewMemory(), zerolog.Nop())
}

func TestStatusDefaultsToRunning(t *testing.T) {
	sw := newTestSwitch()

	status, err := sw.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Paused)
	assert.True(t, sw.Gate(context.Background()))
}

func TestPauseAndResume(t *testing.T) {
	sw := newTestSwitch()
	ctx := context.Background()

	require.NoError(t, sw.Pause(ctx, "exchange unreachable", "order-monitor"))

	status, err := sw.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Paused)
	assert.Equal(t, "exchange unreachable", status.Reason)
	assert.Equal(t, "order-monitor", status.Source)
	assert.False(t, status.UpdatedAt.IsZero())
	assert.False(t, sw.Gate(ctx))

	require.NoError(t, sw.Resume(ctx, "operator"))

	status, err = sw.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Paused)
	assert.True(t, sw.Gate(ctx))
}

func TestGateFailsSafeOnStoreError(t *testing.T) {
	sw := New(brokenStore{}, zerolog.Nop())

	assert.False(t, sw.Gate(context.Background()), "unreadable state must gate trading off")
}

func TestStatusFailsSafeOnCorruptState(t *testing.T) {
	store := keyring.NewMemory()
	require.NoError(t, store.Set(context.Background(), "safety:deadman", "{not json", 0))

	sw := New(store, zerolog.Nop())

	status, err := sw.Status(context.Background())
	assert.Error(t, err)
	assert.True(t, status.Paused)
	assert.False(t, sw.Gate(context.Background()))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unavailable")
}

func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store unavailable")
}
