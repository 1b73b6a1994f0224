package users

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugraha/cakra/internal/database"
	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/secrets"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:users_test_" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileStandard,
		Name:    "test",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	user := &domain.User{TelegramID: 555, Username: "budi", FullName: "Budi Santoso"}
	require.NoError(t, repo.Create(user))
	require.NotZero(t, user.ID)

	got, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(555), got.TelegramID)
	assert.Equal(t, "budi", got.Username)
	assert.True(t, got.IsActive)

	byTg, err := repo.GetByTelegramID(555)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byTg.ID)
}

func TestGetMissingUser(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(999)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCredentialRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	cipher, err := secrets.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	svc := NewCredentialService(repo, cipher)

	user := &domain.User{TelegramID: 777}
	require.NoError(t, repo.Create(user))

	require.NoError(t, svc.StoreCredentials(user.ID, "IDX-KEY", "IDX-SECRET", "main"))

	creds, err := svc.Credentials(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "IDX-KEY", creds.Key)
	assert.Equal(t, "IDX-SECRET", creds.Secret)
}

func TestStoreCredentialsReplacesActiveKey(t *testing.T) {
	repo := newTestRepo(t)

	cipher, err := secrets.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	svc := NewCredentialService(repo, cipher)

	user := &domain.User{TelegramID: 888}
	require.NoError(t, repo.Create(user))

	require.NoError(t, svc.StoreCredentials(user.ID, "old-key", "old-secret", "v1"))
	require.NoError(t, svc.StoreCredentials(user.ID, "new-key", "new-secret", "v2"))

	creds, err := svc.Credentials(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-key", creds.Key, "latest key should be the active one")
}

func TestCredentialsWithoutKey(t *testing.T) {
	repo := newTestRepo(t)

	cipher, err := secrets.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	svc := NewCredentialService(repo, cipher)

	user := &domain.User{TelegramID: 999}
	require.NoError(t, repo.Create(user))

	_, err = svc.Credentials(context.Background(), user.ID)
	assert.ErrorIs(t, err, domain.ErrNoActiveAPIKey)
}
