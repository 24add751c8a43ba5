package binance

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data for paper-trading mode
type MockClient struct {
	mu         sync.RWMutex // Protects prices map, balance and lastUpdate
	prices     map[string]float64
	balance    float64
	lastUpdate time.Time
	rng        *rand.Rand
}

// NewMockClient creates a new mock client with a simulated USDT balance
func NewMockClient() *MockClient {
	mc := &MockClient{
		balance:    10000.0,
		lastUpdate: time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	// Initialize with realistic base prices
	mc.prices = map[string]float64{
		"BTCUSDT":  104500.00,
		"ETHUSDT":  3900.00,
		"BNBUSDT":  710.00,
		"SOLUSDT":  220.00,
		"XRPUSDT":  2.35,
		"ADAUSDT":  1.05,
		"DOGEUSDT": 0.40,
		"AVAXUSDT": 50.00,
		"DOTUSDT":  9.50,
		"LINKUSDT": 28.00,
		"UNIUSDT":  17.50,
		"ATOMUSDT": 12.00,
		"LTCUSDT":  115.00,
		"NEARUSDT": 7.00,
		"APTUSDT":  13.50,
		"ARBUSDT":  1.10,
		"OPUSDT":   2.80,
	}

	return mc
}

// updatePrices adds small random variations to simulate market movement
func (mc *MockClient) updatePrices() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if time.Since(mc.lastUpdate) < time.Second {
		return
	}

	for symbol, price := range mc.prices {
		// Random walk: -0.5% to +0.5% change
		change := (mc.rng.Float64() - 0.5) * 0.01
		mc.prices[symbol] = price * (1 + change)
	}
	mc.lastUpdate = time.Now()
}

// GetKlines returns simulated candlestick data
func (mc *MockClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	mc.updatePrices()

	mc.mu.RLock()
	basePrice, ok := mc.prices[symbol]
	mc.mu.RUnlock()
	if !ok {
		basePrice = 100.0
	}

	var intervalDuration time.Duration
	switch interval {
	case "1m":
		intervalDuration = time.Minute
	case "5m":
		intervalDuration = 5 * time.Minute
	case "15m":
		intervalDuration = 15 * time.Minute
	case "1h":
		intervalDuration = time.Hour
	case "4h":
		intervalDuration = 4 * time.Hour
	case "1d":
		intervalDuration = 24 * time.Hour
	default:
		intervalDuration = time.Hour
	}

	klines := make([]Kline, limit)
	now := time.Now()

	currentPrice := basePrice
	for i := limit - 1; i >= 0; i-- {
		openTime := now.Truncate(intervalDuration).Add(-time.Duration(limit-1-i) * intervalDuration)
		closeTime := openTime.Add(intervalDuration)

		volatility := 0.02
		open := currentPrice
		change := (mc.rng.Float64() - 0.5) * volatility * 2
		close := open * (1 + change)

		klines[i] = Kline{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      maxOf(open, close) * (1 + mc.rng.Float64()*volatility*0.5),
			Low:       minOf(open, close) * (1 - mc.rng.Float64()*volatility*0.5),
			Close:     close,
			Volume:    1000 + mc.rng.Float64()*5000,
			CloseTime: closeTime.UnixMilli(),
		}

		currentPrice = close
	}

	return klines, nil
}

// Get24hrTickers returns simulated 24hr ticker data
func (mc *MockClient) Get24hrTickers() ([]Ticker24hr, error) {
	mc.updatePrices()

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	tickers := make([]Ticker24hr, 0, len(mc.prices))
	for symbol, price := range mc.prices {
		priceChange := (mc.rng.Float64() - 0.5) * price * 0.1 // -5% to +5%
		tickers = append(tickers, Ticker24hr{
			Symbol:             symbol,
			PriceChange:        priceChange,
			PriceChangePercent: (priceChange / price) * 100,
			LastPrice:          price,
			Volume:             1000000 + mc.rng.Float64()*10000000,
			QuoteVolume:        price * (1000000 + mc.rng.Float64()*10000000),
		})
	}

	return tickers, nil
}

// GetCurrentPrice returns simulated current price
func (mc *MockClient) GetCurrentPrice(symbol string) (float64, error) {
	mc.updatePrices()

	mc.mu.RLock()
	price, ok := mc.prices[symbol]
	mc.mu.RUnlock()

	if ok {
		return price, nil
	}
	return 100.0, nil
}

// GetUSDTBalance returns the simulated free USDT balance
func (mc *MockClient) GetUSDTBalance() (float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.balance, nil
}

// PlaceMarketBuy simulates a market buy, debiting the paper balance
func (mc *MockClient) PlaceMarketBuy(symbol string, quoteAmount float64) (*OrderResponse, error) {
	price, _ := mc.GetCurrentPrice(symbol)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if quoteAmount > mc.balance {
		return nil, fmt.Errorf("insufficient balance: have %.2f, need %.2f", mc.balance, quoteAmount)
	}
	mc.balance -= quoteAmount
	qty := quoteAmount / price

	return &OrderResponse{
		Symbol:              symbol,
		OrderId:             mc.rng.Int63n(1000000),
		ClientOrderId:       "mock_" + time.Now().Format("20060102150405"),
		TransactTime:        time.Now().UnixMilli(),
		OrigQty:             qty,
		ExecutedQty:         qty,
		CummulativeQuoteQty: quoteAmount,
		Status:              "FILLED",
		Side:                "BUY",
	}, nil
}

// PlaceMarketSell simulates a market sell, crediting the paper balance
func (mc *MockClient) PlaceMarketSell(symbol string, quantity float64) (*OrderResponse, error) {
	price, _ := mc.GetCurrentPrice(symbol)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	proceeds := quantity * price
	mc.balance += proceeds

	return &OrderResponse{
		Symbol:              symbol,
		OrderId:             mc.rng.Int63n(1000000),
		ClientOrderId:       "mock_" + time.Now().Format("20060102150405"),
		TransactTime:        time.Now().UnixMilli(),
		OrigQty:             quantity,
		ExecutedQty:         quantity,
		CummulativeQuoteQty: proceeds,
		Status:              "FILLED",
		Side:                "SELL",
	}, nil
}

// SetPrice overrides a symbol's price, used to drive simulated breakouts.
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = price
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minOf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
