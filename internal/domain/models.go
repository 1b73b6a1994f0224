// Package domain contains the core business entities shared across modules.
// It is pure: no infrastructure dependencies.
package domain

import "time"

// StrategyKind identifies the automated trading rule a strategy implements.
type StrategyKind string

const (
	KindDCA  StrategyKind = "dca"
	KindGrid StrategyKind = "grid"
	KindTPSL StrategyKind = "tp_sl"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType distinguishes market and limit orders
type OrderType string

const (
	TypeMarket OrderType = "market"
	TypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order. Transitions away from
// "open" are driven by reconciliation against the exchange's live order
// list, never inferred locally.
type OrderStatus string

const (
	StatusOpen     OrderStatus = "open"
	StatusFilled   OrderStatus = "filled"
	StatusCanceled OrderStatus = "canceled"
)

// ExecutionStatus is the outcome of one evaluator action for a strategy
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// User is an account that owns strategies, orders and alerts
type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FullName   string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// APIKey holds a user's exchange credentials, encrypted at rest with
// AES-GCM. The plaintext only exists for the lifetime of a signed call.
type APIKey struct {
	ID                  int64
	UserID              int64
	APIKeyNonce         []byte
	APIKeyCiphertext    []byte
	APISecretNonce      []byte
	APISecretCiphertext []byte
	Label               string
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Strategy is a user-declared, persistent automated trading rule.
// Config holds the kind-specific configuration as JSON; use ParseConfig
// to obtain the typed form.
type Strategy struct {
	ID         int64
	UserID     int64
	TelegramID int64 // joined from users for notification routing
	Kind       StrategyKind
	Name       string
	Pair       string
	Config     []byte
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ExecutionRecord is an immutable audit entry produced by each evaluator
// tick for a given strategy. Append-only.
type ExecutionRecord struct {
	ID         int64
	StrategyID int64
	UserID     int64
	RunAt      time.Time
	Status     ExecutionStatus
	Detail     map[string]any
	CreatedAt  time.Time
}

// Order is a locally recorded exchange order. Manual orders have no
// strategy reference; strategy orders always do.
type Order struct {
	ID              int64
	UserID          int64
	ExchangeOrderID string
	Pair            string
	Side            OrderSide
	Type            OrderType
	Price           *float64 // nil for market orders
	Amount          float64
	Status          OrderStatus
	IsStrategyOrder bool
	StrategyID      *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PriceAlert notifies a user when a pair crosses a target price
type PriceAlert struct {
	ID          int64
	UserID      int64
	TelegramID  int64 // joined from users for notification routing
	Pair        string
	TargetPrice float64
	Direction   string // up | down
	Repeat      bool
	IsTriggered bool
	TriggeredAt *time.Time
	CreatedAt   time.Time
}

// SafetyStatus is the process-wide dead-man switch state. When Paused is
// true no evaluator issues mutating exchange calls until an explicit resume.
type SafetyStatus struct {
	Paused    bool      `json:"paused"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
