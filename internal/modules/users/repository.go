// Package users manages user accounts and their encrypted exchange
// credentials.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/database"
	"github.com/nugraha/cakra/internal/domain"
)

const usersColumns = `id, telegram_id, username, full_name, is_active, created_at, updated_at`

// Repository handles user and API key database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a user repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "users").Logger(),
	}
}

// Create inserts a new user.
func (r *Repository) Create(user *domain.User) error {
	now := time.Now().Unix()
	res, err := r.db.Exec(`
		INSERT INTO users (telegram_id, username, full_name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
	`, user.TelegramID, user.Username, user.FullName, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new user id: %w", err)
	}
	user.ID = id

	r.log.Info().Int64("user_id", id).Msg("User created")
	return nil
}

// GetByID returns a user by internal ID.
func (r *Repository) GetByID(id int64) (*domain.User, error) {
	row := r.db.QueryRow("SELECT "+usersColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetByTelegramID returns a user by Telegram chat ID.
func (r *Repository) GetByTelegramID(telegramID int64) (*domain.User, error) {
	row := r.db.QueryRow("SELECT "+usersColumns+" FROM users WHERE telegram_id = ?", telegramID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var createdAt, updatedAt int64
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FullName, &u.IsActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}

// SaveAPIKey stores an encrypted credential pair for a user, deactivating
// any previous keys so exactly one key is active per user.
func (r *Repository) SaveAPIKey(key *domain.APIKey) error {
	now := time.Now().Unix()

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE user_api_keys SET is_active = 0, updated_at = ? WHERE user_id = ?`, now, key.UserID); err != nil {
			return fmt.Errorf("failed to deactivate previous api keys: %w", err)
		}

		res, err := tx.Exec(`
			INSERT INTO user_api_keys
			(user_id, api_key_nonce, api_key_ciphertext, api_secret_nonce, api_secret_ciphertext,
			 label, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, key.UserID, key.APIKeyNonce, key.APIKeyCiphertext, key.APISecretNonce, key.APISecretCiphertext,
			key.Label, now, now)
		if err != nil {
			return fmt.Errorf("failed to store api key: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read new api key id: %w", err)
		}
		key.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Int64("user_id", key.UserID).Msg("API key stored")
	return nil
}

// ActiveKey returns the user's active encrypted credential pair.
func (r *Repository) ActiveKey(ctx context.Context, userID int64) (*domain.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, api_key_nonce, api_key_ciphertext, api_secret_nonce, api_secret_ciphertext,
		       label, is_active, created_at, updated_at
		FROM user_api_keys
		WHERE user_id = ? AND is_active = 1
		ORDER BY id DESC LIMIT 1
	`, userID)

	var k domain.APIKey
	var createdAt, updatedAt int64
	err := row.Scan(&k.ID, &k.UserID, &k.APIKeyNonce, &k.APIKeyCiphertext, &k.APISecretNonce,
		&k.APISecretCiphertext, &k.Label, &k.IsActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoActiveAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}
	k.CreatedAt = time.Unix(createdAt, 0).UTC()
	k.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &k, nil
}
