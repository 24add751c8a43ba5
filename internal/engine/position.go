package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PositionEngine owns the single active position and the global trade lock.
// Every mutation funnels through TryOpen / Update / ForceClose under one
// mutex, so two concurrent signals can never both open.
type PositionEngine struct {
	mu        sync.Mutex
	pos       *Position
	cooldowns *CooldownRegistry
	logger    zerolog.Logger
}

// NewPositionEngine creates a position engine wired to the cooldown registry
// that close transitions write into.
func NewPositionEngine(cooldowns *CooldownRegistry, logger zerolog.Logger) *PositionEngine {
	return &PositionEngine{
		cooldowns: cooldowns,
		logger:    logger.With().Str("component", "position_engine").Logger(),
	}
}

// TryOpen atomically checks that no non-CLOSED position exists and, if so,
// constructs the new position in OPEN state. Quantity is supplied by the
// caller; sizing policy is not the engine's concern. While a position is
// active it returns ErrLockHeld.
func (e *PositionEngine) TryOpen(symbol string, snap Snapshot, quantity float64, th Thresholds) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos != nil && e.pos.State != PositionClosed {
		return Position{}, ErrLockHeld
	}

	entry := snap.CurrentPrice
	pos := &Position{
		Symbol:              symbol,
		EntryPrice:          entry,
		EntryTime:           snap.ObservedAt,
		Quantity:            quantity,
		StopLossPrice:       entry * (1 - th.StopLossPercent/100),
		TakeProfitTrigger:   entry * (1 + th.TakeProfitPercent/100),
		TrailingStopPercent: th.TrailingStopPercent,
		HighestPrice:        entry,
		State:               PositionOpen,
		CurrentPrice:        entry,
	}
	e.pos = pos

	e.logger.Info().
		Str("symbol", symbol).
		Float64("entry_price", entry).
		Float64("quantity", quantity).
		Float64("stop_loss", pos.StopLossPrice).
		Float64("tp_trigger", pos.TakeProfitTrigger).
		Msg("position opened")

	return *pos, nil
}

// Abandon releases the lock for a position whose entry order ultimately
// failed. Nothing is recorded and no cooldown applies.
func (e *PositionEngine) Abandon(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos == nil || e.pos.Symbol != symbol {
		return
	}
	e.logger.Warn().Str("symbol", symbol).Msg("position abandoned, lock released")
	e.pos = nil
}

// Update advances the active position's risk state machine for one price
// tick. Exit checks run in a fixed order: stop loss always wins ties, and a
// trailing-stop breach is tested only after the stop has been tightened with
// the same tick's high. Returns ErrNoPosition once the position has closed.
func (e *PositionEngine) Update(price float64, now time.Time, th Thresholds) (PositionEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.pos
	if pos == nil || pos.State == PositionClosed {
		return PositionEvent{}, ErrNoPosition
	}

	pos.CurrentPrice = price
	pos.PnLPercent = PnLPercent(pos.EntryPrice, price)

	switch pos.State {
	case PositionOpen:
		if price <= pos.StopLossPrice {
			return e.close(price, now, th, ExitStopLoss), nil
		}
		if price >= pos.TakeProfitTrigger {
			pos.State = PositionTrailing
			pos.HighestPrice = price
			pos.TrailingStopPrice = price * (1 - pos.TrailingStopPercent/100)
			e.logger.Info().
				Str("symbol", pos.Symbol).
				Float64("price", price).
				Float64("trailing_stop", pos.TrailingStopPrice).
				Msg("take profit trigger reached, trailing stop activated")
			return PositionEvent{Type: EventTrailingActivated, Position: *pos}, nil
		}
		if exceeded, _ := e.timeExceeded(now, th); exceeded {
			return e.close(price, now, th, ExitTimeExit), nil
		}
		return PositionEvent{Type: EventHeld, Position: *pos}, nil

	case PositionTrailing:
		raised := false
		if price > pos.HighestPrice {
			pos.HighestPrice = price
			// Highest price only ever rises, so the stop only tightens.
			pos.TrailingStopPrice = pos.HighestPrice * (1 - pos.TrailingStopPercent/100)
			raised = true
		}
		if price <= pos.TrailingStopPrice {
			return e.close(price, now, th, ExitTrailingStop), nil
		}
		if exceeded, _ := e.timeExceeded(now, th); exceeded {
			return e.close(price, now, th, ExitTimeExit), nil
		}
		if raised {
			return PositionEvent{Type: EventStopRaised, Position: *pos}, nil
		}
		return PositionEvent{Type: EventHeld, Position: *pos}, nil
	}

	return PositionEvent{}, ErrNoPosition
}

func (e *PositionEngine) timeExceeded(now time.Time, th Thresholds) (bool, time.Duration) {
	if !th.TimeExitEnabled || th.MaxTradeDurationMinutes <= 0 {
		return false, 0
	}
	held := now.Sub(e.pos.EntryTime)
	max := time.Duration(th.MaxTradeDurationMinutes) * time.Minute
	return held >= max, held
}

// close finishes the position: the transition to CLOSED is terminal, a trade
// record is emitted, the trade lock is released and the symbol goes on
// cooldown. Caller holds the mutex.
func (e *PositionEngine) close(exitPrice float64, now time.Time, th Thresholds, reason string) PositionEvent {
	pos := e.pos
	pos.State = PositionClosed
	pos.CurrentPrice = exitPrice
	pos.PnLPercent = PnLPercent(pos.EntryPrice, exitPrice)

	trade := &TradeRecord{
		ID:         uuid.New().String(),
		Symbol:     pos.Symbol,
		EntryTime:  pos.EntryTime,
		ExitTime:   now,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		PnLPercent: pos.PnLPercent,
		ExitReason: reason,
	}

	if th.CooldownMinutes > 0 {
		e.cooldowns.Register(pos.Symbol, now.Add(time.Duration(th.CooldownMinutes)*time.Minute))
	}

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("reason", reason).
		Float64("exit_price", exitPrice).
		Float64("pnl_percent", trade.PnLPercent).
		Msg("position closed")

	final := *pos
	e.pos = nil // release the global trade lock

	return PositionEvent{Type: EventClosed, Position: final, Trade: trade}
}

// ForceClose closes the active position unconditionally, used on shutdown.
// Returns ErrNoPosition when there is nothing to close.
func (e *PositionEngine) ForceClose(price float64, now time.Time, th Thresholds) (PositionEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos == nil || e.pos.State == PositionClosed {
		return PositionEvent{}, ErrNoPosition
	}
	if price <= 0 {
		price = e.pos.CurrentPrice
	}
	return e.close(price, now, th, ExitForced), nil
}

// Active returns a copy of the live position, or false when the lock is free.
func (e *PositionEngine) Active() (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos == nil || e.pos.State == PositionClosed {
		return Position{}, false
	}
	return *e.pos, true
}

// HasActive reports whether the global trade lock is currently held.
func (e *PositionEngine) HasActive() bool {
	_, ok := e.Active()
	return ok
}

// Restore re-installs a persisted position after process restart. It fails
// with ErrLockHeld if a position is already active, preserving the
// single-position invariant during re-hydration.
func (e *PositionEngine) Restore(pos Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos != nil && e.pos.State != PositionClosed {
		return ErrLockHeld
	}
	if pos.State == PositionClosed {
		return nil
	}
	restored := pos
	e.pos = &restored
	e.logger.Info().
		Str("symbol", pos.Symbol).
		Float64("entry_price", pos.EntryPrice).
		Str("state", string(pos.State)).
		Msg("position restored from saved state")
	return nil
}
