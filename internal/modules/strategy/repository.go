// Package strategy manages user trading strategies and their append-only
// execution trail.
package strategy

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/domain"
)

// Repository handles strategy database operations. Execution records go
// to the ledger database; strategies live in the operational database.
type Repository struct {
	db       *sql.DB
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a strategy repository. db holds strategies,
// ledgerDB holds the execution trail.
func NewRepository(db, ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:       db,
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "strategy").Logger(),
	}
}

const strategyColumns = `s.id, s.user_id, u.telegram_id, s.kind, s.name, s.pair, s.config_json, s.is_active, s.created_at, s.updated_at`

// Create validates and inserts a new strategy.
func (r *Repository) Create(s *domain.Strategy) error {
	if err := domain.ValidateConfig(s.Kind, s.Config); err != nil {
		return fmt.Errorf("invalid strategy config: %w", err)
	}

	now := time.Now().Unix()
	res, err := r.db.Exec(`
		INSERT INTO strategies (user_id, kind, name, pair, config_json, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, s.UserID, string(s.Kind), s.Name, s.Pair, string(s.Config), now, now)
	if err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new strategy id: %w", err)
	}
	s.ID = id

	r.log.Info().
		Int64("strategy_id", id).
		Int64("user_id", s.UserID).
		Str("kind", string(s.Kind)).
		Str("pair", s.Pair).
		Msg("Strategy created")
	return nil
}

// GetByID returns one strategy with its owner's Telegram ID joined in.
func (r *Repository) GetByID(id int64) (*domain.Strategy, error) {
	row := r.db.QueryRow(`
		SELECT `+strategyColumns+`
		FROM strategies s JOIN users u ON u.id = s.user_id
		WHERE s.id = ?
	`, id)

	s, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStrategyNotFound
	}
	return s, err
}

// ListActiveByKind returns all active strategies of one kind across all
// active users. Evaluators iterate this list each tick.
func (r *Repository) ListActiveByKind(kind domain.StrategyKind) ([]domain.Strategy, error) {
	rows, err := r.db.Query(`
		SELECT `+strategyColumns+`
		FROM strategies s JOIN users u ON u.id = s.user_id
		WHERE s.kind = ? AND s.is_active = 1 AND u.is_active = 1
		ORDER BY s.id
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s strategies: %w", kind, err)
	}
	defer rows.Close()

	var strategies []domain.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, *s)
	}
	return strategies, rows.Err()
}

// ListByUser returns all of a user's strategies, active or not.
func (r *Repository) ListByUser(userID int64) ([]domain.Strategy, error) {
	rows, err := r.db.Query(`
		SELECT `+strategyColumns+`
		FROM strategies s JOIN users u ON u.id = s.user_id
		WHERE s.user_id = ?
		ORDER BY s.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user strategies: %w", err)
	}
	defer rows.Close()

	var strategies []domain.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, *s)
	}
	return strategies, rows.Err()
}

// Deactivate stops a strategy. The row stays for its execution history.
func (r *Repository) Deactivate(id int64) error {
	res, err := r.db.Exec(`UPDATE strategies SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate strategy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation result: %w", err)
	}
	if affected == 0 {
		return domain.ErrStrategyNotFound
	}

	r.log.Info().Int64("strategy_id", id).Msg("Strategy deactivated")
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanStrategy(row scannable) (*domain.Strategy, error) {
	var s domain.Strategy
	var kind, config string
	var createdAt, updatedAt int64
	err := row.Scan(&s.ID, &s.UserID, &s.TelegramID, &kind, &s.Name, &s.Pair, &config,
		&s.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan strategy: %w", err)
	}
	s.Kind = domain.StrategyKind(kind)
	s.Config = []byte(config)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

// AppendExecution records one evaluator action in the execution trail.
// The trail is append-only; nothing updates or deletes rows.
func (r *Repository) AppendExecution(rec *domain.ExecutionRecord) error {
	detail := "{}"
	if rec.Detail != nil {
		raw, err := json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("failed to encode execution detail: %w", err)
		}
		detail = string(raw)
	}

	now := time.Now().Unix()
	runAt := rec.RunAt.Unix()
	if rec.RunAt.IsZero() {
		runAt = now
	}

	res, err := r.ledgerDB.Exec(`
		INSERT INTO strategy_executions (strategy_id, user_id, run_at, status, detail_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.StrategyID, rec.UserID, runAt, string(rec.Status), detail, now)
	if err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read execution record id: %w", err)
	}
	rec.ID = id
	return nil
}

// LastSuccessfulRun returns when the strategy last executed successfully,
// or nil if it never has.
func (r *Repository) LastSuccessfulRun(strategyID int64) (*time.Time, error) {
	row := r.ledgerDB.QueryRow(`
		SELECT run_at FROM strategy_executions
		WHERE strategy_id = ? AND status = 'success'
		ORDER BY run_at DESC LIMIT 1
	`, strategyID)

	var runAt int64
	err := row.Scan(&runAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last execution: %w", err)
	}

	t := time.Unix(runAt, 0).UTC()
	return &t, nil
}

// SuccessfulRunCount returns how many times the strategy has executed
// successfully. DCA uses this to enforce max_runs.
func (r *Repository) SuccessfulRunCount(strategyID int64) (int, error) {
	row := r.ledgerDB.QueryRow(`
		SELECT COUNT(*) FROM strategy_executions
		WHERE strategy_id = ? AND status = 'success'
	`, strategyID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return count, nil
}

// ListExecutions returns the most recent execution records for a strategy.
func (r *Repository) ListExecutions(strategyID int64, limit int) ([]domain.ExecutionRecord, error) {
	rows, err := r.ledgerDB.Query(`
		SELECT id, strategy_id, user_id, run_at, status, detail_json, created_at
		FROM strategy_executions
		WHERE strategy_id = ?
		ORDER BY id DESC LIMIT ?
	`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var status, detail string
		var runAt, createdAt int64
		if err := rows.Scan(&rec.ID, &rec.StrategyID, &rec.UserID, &runAt, &status, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		rec.Status = domain.ExecutionStatus(status)
		rec.RunAt = time.Unix(runAt, 0).UTC()
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		if detail != "" {
			if err := json.Unmarshal([]byte(detail), &rec.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode execution detail: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
