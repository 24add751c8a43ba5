package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrLockHeld is returned by TryOpen while another position is active.
	// It is a normal control-flow outcome, not a failure.
	ErrLockHeld = errors.New("trade lock held by another position")

	// ErrNoPosition is returned by Update when no position is open.
	ErrNoPosition = errors.New("no active position")

	// ErrDataUnavailable marks a snapshot that is missing required candle
	// fields. The symbol is skipped for the cycle.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidThresholds marks configuration rejected at the boundary.
	ErrInvalidThresholds = errors.New("invalid thresholds")
)

// OrderExecutionError wraps an exchange order failure. Exit failures are
// retryable: the position has already closed logically and the sell must be
// re-attempted until it is confirmed.
type OrderExecutionError struct {
	Symbol    string
	Side      string // BUY or SELL
	Retryable bool
	Err       error
}

func (e *OrderExecutionError) Error() string {
	return fmt.Sprintf("order execution failed: %s %s: %v", e.Side, e.Symbol, e.Err)
}

func (e *OrderExecutionError) Unwrap() error {
	return e.Err
}
