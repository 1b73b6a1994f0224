package domain

import "errors"

// Sentinel errors shared across modules. Callers branch on these with
// errors.Is; everything else is wrapped context.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrNoActiveAPIKey   = errors.New("no active api key for user")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrTradingPaused    = errors.New("trading paused by dead-man switch")
	ErrStrategyOrderRef = errors.New("strategy order requires a strategy reference")
)
