package database

import (
	"time"
)

// Trade represents a completed trade in the database
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	PnLPercent float64   `json:"pnl_percent"`
	ExitReason string    `json:"exit_reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// TradeStats summarizes trading performance
type TradeStats struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	AvgPnLPercent   float64 `json:"avg_pnl_percent"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	BestTradePnL    float64 `json:"best_trade_pnl"`
	WorstTradePnL   float64 `json:"worst_trade_pnl"`
}
