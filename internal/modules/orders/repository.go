// Package orders records exchange orders locally and reconciles their
// status against the exchange's live order list.
package orders

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/domain"
)

const orderColumns = `id, user_id, exchange_order_id, pair, side, type, price, amount, status, is_strategy_order, strategy_id, created_at, updated_at`

// Repository handles order database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an order repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orders").Logger(),
	}
}

// Create inserts a new order record. Strategy orders must carry their
// strategy reference; the schema enforces the same rule.
func (r *Repository) Create(o *domain.Order) error {
	if o.IsStrategyOrder && o.StrategyID == nil {
		return domain.ErrStrategyOrderRef
	}

	now := time.Now().Unix()
	res, err := r.db.Exec(`
		INSERT INTO orders
		(user_id, exchange_order_id, pair, side, type, price, amount, status,
		 is_strategy_order, strategy_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.UserID, o.ExchangeOrderID, o.Pair, string(o.Side), string(o.Type), o.Price, o.Amount,
		string(o.Status), o.IsStrategyOrder, o.StrategyID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new order id: %w", err)
	}
	o.ID = id
	return nil
}

// GetByID returns one order.
func (r *Repository) GetByID(id int64) (*domain.Order, error) {
	row := r.db.QueryRow("SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

// ListOpen returns every locally open order across all users. The order
// monitor reconciles this set each tick.
func (r *Repository) ListOpen() ([]domain.Order, error) {
	return r.list("SELECT "+orderColumns+" FROM orders WHERE status = 'open' ORDER BY user_id, pair, id", nil)
}

// ListOpenByStrategy returns a strategy's open orders on one pair. Grid
// reconciliation diffs this set against the target ladder.
func (r *Repository) ListOpenByStrategy(strategyID int64) ([]domain.Order, error) {
	return r.list("SELECT "+orderColumns+" FROM orders WHERE status = 'open' AND strategy_id = ? ORDER BY id",
		[]any{strategyID})
}

// ListByUser returns a user's most recent orders.
func (r *Repository) ListByUser(userID int64, limit int) ([]domain.Order, error) {
	return r.list("SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		[]any{userID, limit})
}

func (r *Repository) list(query string, args []any) ([]domain.Order, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (*domain.Order, error) {
	var o domain.Order
	var side, orderType, status string
	var exchangeID sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&o.ID, &o.UserID, &exchangeID, &o.Pair, &side, &orderType, &o.Price, &o.Amount,
		&status, &o.IsStrategyOrder, &o.StrategyID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	o.ExchangeOrderID = exchangeID.String
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &o, nil
}

// UpdateStatus transitions an order's lifecycle state.
func (r *Repository) UpdateStatus(id int64, status domain.OrderStatus) error {
	res, err := r.db.Exec(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
