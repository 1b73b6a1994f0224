package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugraha/cakra/internal/database"
	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/modules/users"
)

// newTestRepo builds the repository over two databases, the same split
// production runs with: strategies in the operational store, execution
// records in the ledger.
func newTestRepo(t *testing.T) (*Repository, int64) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:strategy_test_" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileStandard,
		Name:    "test",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	ledgerDB, err := database.New(database.Config{
		Path:    "file:strategy_ledger_test_" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileLedger,
		Name:    "test-ledger",
	})
	require.NoError(t, err)
	require.NoError(t, ledgerDB.Migrate())
	t.Cleanup(func() { _ = ledgerDB.Close() })

	userRepo := users.NewRepository(db.Conn(), zerolog.Nop())
	user := &domain.User{TelegramID: 123}
	require.NoError(t, userRepo.Create(user))

	return NewRepository(db.Conn(), ledgerDB.Conn(), zerolog.Nop()), user.ID
}

func TestCreateValidatesConfig(t *testing.T) {
	repo, userID := newTestRepo(t)

	err := repo.Create(&domain.Strategy{
		UserID: userID,
		Kind:   domain.KindDCA,
		Name:   "bad",
		Pair:   "btc_idr",
		Config: []byte(`{"amount":-1,"interval":"daily","execution_time":"09:00"}`),
	})
	assert.Error(t, err, "negative amount must be rejected")

	err = repo.Create(&domain.Strategy{
		UserID: userID,
		Kind:   domain.KindDCA,
		Name:   "good",
		Pair:   "btc_idr",
		Config: []byte(`{"amount":100000,"interval":"daily","execution_time":"09:00"}`),
	})
	assert.NoError(t, err)
}

func TestListActiveByKindJoinsTelegramID(t *testing.T) {
	repo, userID := newTestRepo(t)

	s := &domain.Strategy{
		UserID: userID,
		Kind:   domain.KindGrid,
		Name:   "grid-1",
		Pair:   "btc_idr",
		Config: []byte(`{"lower_price":100,"upper_price":200,"grid_count":4,"order_size":10}`),
	}
	require.NoError(t, repo.Create(s))

	active, err := repo.ListActiveByKind(domain.KindGrid)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(123), active[0].TelegramID)

	require.NoError(t, repo.Deactivate(s.ID))

	active, err = repo.ListActiveByKind(domain.KindGrid)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDeactivateMissingStrategy(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.Deactivate(404)
	assert.ErrorIs(t, err, domain.ErrStrategyNotFound)
}

func TestExecutionTrail(t *testing.T) {
	repo, userID := newTestRepo(t)

	s := &domain.Strategy{
		UserID: userID,
		Kind:   domain.KindDCA,
		Name:   "daily",
		Pair:   "btc_idr",
		Config: []byte(`{"amount":100000,"interval":"daily","execution_time":"09:00"}`),
	}
	require.NoError(t, repo.Create(s))

	last, err := repo.LastSuccessfulRun(s.ID)
	require.NoError(t, err)
	assert.Nil(t, last, "no runs yet")

	firstRun := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     userID,
		RunAt:      firstRun,
		Status:     domain.ExecutionSuccess,
		Detail:     map[string]any{"order_id": "42"},
	}))
	require.NoError(t, repo.AppendExecution(&domain.ExecutionRecord{
		StrategyID: s.ID,
		UserID:     userID,
		RunAt:      firstRun.Add(time.Hour),
		Status:     domain.ExecutionFailed,
		Detail:     map[string]any{"error": "insufficient balance"},
	}))

	last, err = repo.LastSuccessfulRun(s.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, firstRun, *last, "failed runs do not advance the schedule")

	count, err := repo.SuccessfulRunCount(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := repo.ListExecutions(s.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.ExecutionFailed, records[0].Status, "newest first")
	assert.Equal(t, "insufficient balance", records[0].Detail["error"])
}
