package database

import (
	"context"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// CreateTrade inserts a completed trade
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (id, symbol, entry_price, exit_price, quantity, entry_time, exit_time, pnl_percent, exit_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		trade.ID, trade.Symbol, trade.EntryPrice, trade.ExitPrice, trade.Quantity,
		trade.EntryTime, trade.ExitTime, trade.PnLPercent, trade.ExitReason,
	).Scan(&trade.CreatedAt)
}

// GetTradeHistory retrieves completed trades, newest first
func (r *Repository) GetTradeHistory(ctx context.Context, limit, offset int) ([]*Trade, error) {
	query := `
		SELECT id, symbol, entry_price, exit_price, quantity, entry_time, exit_time, pnl_percent, exit_reason, created_at
		FROM trades
		ORDER BY exit_time DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade := &Trade{}
		err := rows.Scan(
			&trade.ID, &trade.Symbol, &trade.EntryPrice, &trade.ExitPrice, &trade.Quantity,
			&trade.EntryTime, &trade.ExitTime, &trade.PnLPercent, &trade.ExitReason, &trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// GetTradeStats aggregates performance over all completed trades
func (r *Repository) GetTradeStats(ctx context.Context) (*TradeStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE pnl_percent > 0),
			COUNT(*) FILTER (WHERE pnl_percent <= 0),
			COALESCE(AVG(pnl_percent), 0),
			COALESCE(SUM(pnl_percent), 0),
			COALESCE(MAX(pnl_percent), 0),
			COALESCE(MIN(pnl_percent), 0)
		FROM trades
	`
	stats := &TradeStats{}
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&stats.TotalTrades, &stats.WinningTrades, &stats.LosingTrades,
		&stats.AvgPnLPercent, &stats.TotalPnLPercent, &stats.BestTradePnL, &stats.WorstTradePnL,
	)
	if err != nil {
		return nil, err
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}
	return stats, nil
}
