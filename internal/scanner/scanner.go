package scanner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/engine"
)

// MarketScanner finds the top gaining USDT pairs and produces candle
// snapshots for them. It is the engine's snapshot provider.
type MarketScanner struct {
	client  binance.ExchangeClient
	tracker *CandleTracker
	config  Config
	sem     chan struct{} // bounds concurrent kline fetches
}

func NewMarketScanner(client binance.ExchangeClient, config Config) (*MarketScanner, error) {
	tracker, err := NewCandleTracker(client, config)
	if err != nil {
		return nil, err
	}
	workers := config.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &MarketScanner{
		client:  client,
		tracker: tracker,
		config:  config,
		sem:     make(chan struct{}, workers),
	}, nil
}

// TopSymbols returns the top n USDT pairs by 24hr price change percent,
// excluding leveraged tokens. Fetches a buffer beyond n so the exclusions
// do not shrink the result below n.
func (sc *MarketScanner) TopSymbols(ctx context.Context, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tickers, err := sc.client.Get24hrTickers()
	if err != nil {
		return nil, fmt.Errorf("error scanning market: %w", err)
	}

	candidates := make([]binance.Ticker24hr, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		if isLeveragedToken(t.Symbol) {
			continue
		}
		candidates = append(candidates, t)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].PriceChangePercent > candidates[j].PriceChangePercent
	})

	limit := int(float64(n) * sc.config.ScanBuffer)
	if limit > len(candidates) {
		limit = len(candidates)
	}

	symbols := make([]string, 0, n)
	for _, t := range candidates[:limit] {
		symbols = append(symbols, t.Symbol)
		if len(symbols) == n {
			break
		}
	}

	log.Printf("[Scanner] Top gainers: %v", symbols)
	return symbols, nil
}

// CandleSnapshot returns the tracked snapshot for one symbol. Callers fan out
// per symbol; the worker semaphore keeps the exchange request rate bounded.
func (sc *MarketScanner) CandleSnapshot(ctx context.Context, symbol string) (engine.Snapshot, error) {
	select {
	case sc.sem <- struct{}{}:
	case <-ctx.Done():
		return engine.Snapshot{}, ctx.Err()
	}
	defer func() { <-sc.sem }()

	return sc.tracker.Snapshot(symbol)
}

// isLeveragedToken filters Binance leveraged tokens out of the watch list
func isLeveragedToken(symbol string) bool {
	base := strings.TrimSuffix(symbol, "USDT")
	for _, suffix := range []string{"UP", "DOWN", "BULL", "BEAR"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

var _ engine.SnapshotProvider = (*MarketScanner)(nil)
