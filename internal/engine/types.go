package engine

import (
	"fmt"
	"time"
)

// Snapshot is one immutable market reading for a symbol. It carries the
// previous (locked) 1h candle alongside the live candle so the evaluator
// never has to reach back to the exchange.
type Snapshot struct {
	Symbol         string    `json:"symbol"`
	CurrentPrice   float64   `json:"current_price"`
	CurrentVolume  float64   `json:"current_volume"`
	PrevClosePrice float64   `json:"prev_close_price"`
	PrevVolume     float64   `json:"prev_volume"`
	ElapsedMinutes float64   `json:"elapsed_minutes"`
	ObservedAt     time.Time `json:"observed_at"`
}

// Thresholds holds the tunable breakout and risk parameters. A copy is taken
// at the start of every cycle; updates staged mid-cycle only take effect on
// the next cycle boundary.
type Thresholds struct {
	TopGainersCount         int     `json:"top_gainers_count"`
	CandleTimeframe         string  `json:"candle_timeframe"`
	VolumeMultiplier        float64 `json:"volume_multiplier"`
	VolumeTimeLimit         float64 `json:"volume_time_limit"` // minutes into the candle
	PriceChangePercent      float64 `json:"price_change_percent"`
	StopLossPercent         float64 `json:"stop_loss_percent"`
	TakeProfitPercent       float64 `json:"take_profit_percent"`
	TrailingStopPercent     float64 `json:"trailing_stop_percent"`
	CooldownMinutes         int     `json:"cooldown_minutes"`
	TimeExitEnabled         bool    `json:"time_exit_enabled"`
	MaxTradeDurationMinutes int     `json:"max_trade_duration_minutes"`
}

// Validate rejects threshold sets that must never reach the engine.
func (t Thresholds) Validate() error {
	if t.TopGainersCount < 1 {
		return fmt.Errorf("%w: top_gainers_count must be >= 1", ErrInvalidThresholds)
	}
	if t.VolumeMultiplier < 0.1 {
		return fmt.Errorf("%w: volume_multiplier must be >= 0.1", ErrInvalidThresholds)
	}
	if t.VolumeTimeLimit < 1 || t.VolumeTimeLimit > 60 {
		return fmt.Errorf("%w: volume_time_limit must be between 1 and 60 minutes", ErrInvalidThresholds)
	}
	if t.PriceChangePercent < 0 {
		return fmt.Errorf("%w: price_change_percent must be >= 0", ErrInvalidThresholds)
	}
	if t.StopLossPercent <= 0 || t.StopLossPercent >= 100 {
		return fmt.Errorf("%w: stop_loss_percent must be in (0, 100)", ErrInvalidThresholds)
	}
	if t.TakeProfitPercent <= 0 {
		return fmt.Errorf("%w: take_profit_percent must be > 0", ErrInvalidThresholds)
	}
	if t.TrailingStopPercent <= 0 || t.TrailingStopPercent >= 100 {
		return fmt.Errorf("%w: trailing_stop_percent must be in (0, 100)", ErrInvalidThresholds)
	}
	if t.CooldownMinutes < 0 {
		return fmt.Errorf("%w: cooldown_minutes must be >= 0", ErrInvalidThresholds)
	}
	if t.TimeExitEnabled && t.MaxTradeDurationMinutes <= 0 {
		return fmt.Errorf("%w: max_trade_duration_minutes must be > 0 when time exit is enabled", ErrInvalidThresholds)
	}
	return nil
}

// SymbolState is the monitoring state of one tracked symbol.
type SymbolState string

const (
	StateWait     SymbolState = "WAIT"
	StateSignal   SymbolState = "SIGNAL"
	StateInTrade  SymbolState = "IN_TRADE"
	StateLocked   SymbolState = "LOCKED"
	StateCooldown SymbolState = "COOLDOWN"
	StateTimeOut  SymbolState = "TIME_OUT"
)

// SymbolStatus is the monitor's view of one symbol, refreshed every cycle.
type SymbolStatus struct {
	Symbol       string      `json:"symbol"`
	State        SymbolState `json:"state"`
	Reason       string      `json:"reason,omitempty"`
	Snapshot     Snapshot    `json:"snapshot"`
	LastSignalAt time.Time   `json:"last_signal_at,omitempty"`
}

// PositionState is the lifecycle state of the single managed position.
type PositionState string

const (
	PositionOpen     PositionState = "OPEN"
	PositionTrailing PositionState = "TRAILING"
	PositionClosed   PositionState = "CLOSED"
)

// Exit reasons recorded on trade history entries.
const (
	ExitStopLoss     = "STOP_LOSS"
	ExitTrailingStop = "TRAILING_STOP"
	ExitTimeExit     = "TIME_EXIT"
	ExitForced       = "FORCE_EXIT"
)

// Position is the single live trade. At most one Position with state other
// than CLOSED exists system-wide; the PositionEngine enforces that.
type Position struct {
	Symbol              string        `json:"symbol"`
	EntryPrice          float64       `json:"entry_price"`
	EntryTime           time.Time     `json:"entry_time"`
	Quantity            float64       `json:"quantity"`
	StopLossPrice       float64       `json:"stop_loss_price"`
	TakeProfitTrigger   float64       `json:"take_profit_trigger"`
	TrailingStopPercent float64       `json:"trailing_stop_percent"`
	HighestPrice        float64       `json:"highest_price"`
	TrailingStopPrice   float64       `json:"trailing_stop_price"`
	State               PositionState `json:"state"`
	CurrentPrice        float64       `json:"current_price"`
	PnLPercent          float64       `json:"pnl_percent"`
}

// TradeRecord is the immutable history entry produced when a position closes.
type TradeRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnLPercent float64   `json:"pnl_percent"`
	ExitReason string    `json:"exit_reason"`
}

// PositionEventType classifies the outcome of one PositionEngine.Update call.
type PositionEventType string

const (
	EventHeld              PositionEventType = "HELD"
	EventTrailingActivated PositionEventType = "TRAILING_ACTIVATED"
	EventStopRaised        PositionEventType = "STOP_RAISED"
	EventClosed            PositionEventType = "CLOSED"
)

// PositionEvent reports what a price tick did to the active position.
// Trade is non-nil only when Type is EventClosed.
type PositionEvent struct {
	Type     PositionEventType `json:"type"`
	Position Position          `json:"position"`
	Trade    *TradeRecord      `json:"trade,omitempty"`
}

// PnLPercent computes the signed percentage return between two prices.
func PnLPercent(entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	return (current - entry) / entry * 100
}
