package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/engine"
)

// Minimum notional the exchange accepts for a market buy.
const minOrderUSDT = 10.0

// liveExecutor places real market orders through the exchange client. Entries
// commit the full free USDT balance; the engine receives the resulting fill
// price and quantity and never decides sizing itself.
type liveExecutor struct {
	client binance.ExchangeClient
	logger zerolog.Logger
}

func newLiveExecutor(client binance.ExchangeClient, logger zerolog.Logger) *liveExecutor {
	return &liveExecutor{
		client: client,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

func (e *liveExecutor) OpenTrade(ctx context.Context, symbol string, price float64) (float64, float64, error) {
	balance, err := e.client.GetUSDTBalance()
	if err != nil {
		return 0, 0, &engine.OrderExecutionError{Symbol: symbol, Side: "BUY", Retryable: false, Err: fmt.Errorf("balance check: %w", err)}
	}
	if balance < minOrderUSDT {
		return 0, 0, &engine.OrderExecutionError{
			Symbol: symbol, Side: "BUY", Retryable: false,
			Err: fmt.Errorf("insufficient balance: %.2f USDT (minimum %.0f USDT required)", balance, minOrderUSDT),
		}
	}

	resp, err := e.client.PlaceMarketBuy(symbol, balance)
	if err != nil {
		return 0, 0, &engine.OrderExecutionError{Symbol: symbol, Side: "BUY", Retryable: false, Err: err}
	}

	fill := resp.FillPrice()
	e.logger.Info().
		Str("symbol", symbol).
		Float64("spent_usdt", balance).
		Float64("fill_price", fill).
		Float64("quantity", resp.ExecutedQty).
		Msg("market buy filled")

	return fill, resp.ExecutedQty, nil
}

func (e *liveExecutor) CloseTrade(ctx context.Context, symbol string, quantity float64) error {
	resp, err := e.client.PlaceMarketSell(symbol, quantity)
	if err != nil {
		return &engine.OrderExecutionError{Symbol: symbol, Side: "SELL", Retryable: true, Err: err}
	}

	e.logger.Info().
		Str("symbol", symbol).
		Float64("quantity", resp.ExecutedQty).
		Float64("proceeds_usdt", resp.CummulativeQuoteQty).
		Msg("market sell filled")

	return nil
}

var _ engine.OrderExecutor = (*liveExecutor)(nil)
