// Package alerts manages price alerts: notify a user when a pair crosses
// a target price.
package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/domain"
)

// Repository handles price alert database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an alert repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Create inserts a new price alert.
func (r *Repository) Create(a *domain.PriceAlert) error {
	if a.Direction != "up" && a.Direction != "down" {
		return fmt.Errorf("alert direction must be up or down")
	}
	if a.TargetPrice <= 0 {
		return fmt.Errorf("alert target price must be positive")
	}

	res, err := r.db.Exec(`
		INSERT INTO price_alerts (user_id, pair, target_price, direction, repeat, is_triggered, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, a.UserID, a.Pair, a.TargetPrice, a.Direction, a.Repeat, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new alert id: %w", err)
	}
	a.ID = id
	return nil
}

// ListPending returns untriggered alerts with the owner's Telegram ID
// joined in for notification routing.
func (r *Repository) ListPending() ([]domain.PriceAlert, error) {
	rows, err := r.db.Query(`
		SELECT a.id, a.user_id, u.telegram_id, a.pair, a.target_price, a.direction,
		       a.repeat, a.is_triggered, a.triggered_at, a.created_at
		FROM price_alerts a JOIN users u ON u.id = a.user_id
		WHERE a.is_triggered = 0 AND u.is_active = 1
		ORDER BY a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.PriceAlert
	for rows.Next() {
		var a domain.PriceAlert
		var triggeredAt sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.TelegramID, &a.Pair, &a.TargetPrice, &a.Direction,
			&a.Repeat, &a.IsTriggered, &triggeredAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if triggeredAt.Valid {
			t := time.Unix(triggeredAt.Int64, 0).UTC()
			a.TriggeredAt = &t
		}
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkTriggered records that an alert fired. Repeating alerts stay
// pending; one-shot alerts are retired.
func (r *Repository) MarkTriggered(id int64, repeat bool) error {
	now := time.Now().Unix()
	var err error
	if repeat {
		_, err = r.db.Exec(`UPDATE price_alerts SET triggered_at = ? WHERE id = ?`, now, id)
	} else {
		_, err = r.db.Exec(`UPDATE price_alerts SET is_triggered = 1, triggered_at = ? WHERE id = ?`, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	return nil
}
