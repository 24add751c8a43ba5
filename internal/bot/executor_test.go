package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/engine"
)

type stubExchange struct {
	balance    float64
	balanceErr error
	buyResp    *binance.OrderResponse
	buyErr     error
	sellErr    error
	buys       []float64
	sells      []float64
}

func (s *stubExchange) GetUSDTBalance() (float64, error) { return s.balance, s.balanceErr }

func (s *stubExchange) PlaceMarketBuy(symbol string, quoteAmount float64) (*binance.OrderResponse, error) {
	s.buys = append(s.buys, quoteAmount)
	return s.buyResp, s.buyErr
}

func (s *stubExchange) PlaceMarketSell(symbol string, quantity float64) (*binance.OrderResponse, error) {
	s.sells = append(s.sells, quantity)
	if s.sellErr != nil {
		return nil, s.sellErr
	}
	return &binance.OrderResponse{ExecutedQty: quantity}, nil
}

func (s *stubExchange) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	return nil, errors.New("not implemented")
}
func (s *stubExchange) Get24hrTickers() ([]binance.Ticker24hr, error) {
	return nil, errors.New("not implemented")
}
func (s *stubExchange) GetCurrentPrice(symbol string) (float64, error) {
	return 0, errors.New("not implemented")
}

// TestOpenTradeCommitsFullBalance checks the whole free balance is spent and
// the fill price comes back from the actual execution, not the signal price.
func TestOpenTradeCommitsFullBalance(t *testing.T) {
	exchange := &stubExchange{
		balance: 1000,
		buyResp: &binance.OrderResponse{ExecutedQty: 9.9, CummulativeQuoteQty: 1000},
	}
	exec := newLiveExecutor(exchange, zerolog.Nop())

	fill, qty, err := exec.OpenTrade(context.Background(), "BTCUSDT", 100)
	if err != nil {
		t.Fatalf("OpenTrade failed: %v", err)
	}
	if len(exchange.buys) != 1 || exchange.buys[0] != 1000 {
		t.Errorf("Buy amounts = %v, want the full 1000 balance", exchange.buys)
	}
	if qty != 9.9 {
		t.Errorf("Quantity = %.2f, want 9.9", qty)
	}
	// 1000 quote / 9.9 base
	if fill < 101.0 || fill > 101.1 {
		t.Errorf("Fill price = %.4f, want ~101.01 from the execution", fill)
	}
}

func TestOpenTradeBelowMinimum(t *testing.T) {
	exchange := &stubExchange{balance: 9.5}
	exec := newLiveExecutor(exchange, zerolog.Nop())

	_, _, err := exec.OpenTrade(context.Background(), "BTCUSDT", 100)
	if err == nil {
		t.Fatal("Balance under 10 USDT should refuse to open")
	}
	var oerr *engine.OrderExecutionError
	if !errors.As(err, &oerr) {
		t.Fatalf("Error type = %T, want OrderExecutionError", err)
	}
	if oerr.Retryable {
		t.Error("Insufficient balance is not retryable")
	}
	if len(exchange.buys) != 0 {
		t.Error("No order should reach the exchange below the minimum")
	}
}

func TestCloseTradeFailureIsRetryable(t *testing.T) {
	exchange := &stubExchange{sellErr: errors.New("LOT_SIZE filter failure")}
	exec := newLiveExecutor(exchange, zerolog.Nop())

	err := exec.CloseTrade(context.Background(), "BTCUSDT", 1.5)
	if err == nil {
		t.Fatal("Rejected sell should surface an error")
	}
	var oerr *engine.OrderExecutionError
	if !errors.As(err, &oerr) {
		t.Fatalf("Error type = %T, want OrderExecutionError", err)
	}
	if !oerr.Retryable {
		t.Error("Failed sells must be retryable")
	}
}
