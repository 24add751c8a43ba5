package scanner

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/engine"
)

// CandleTracker builds candle snapshots from exchange klines. The previous
// candle's close and volume are locked once per candle period, and whole
// snapshots are cached briefly so overlapping requests within one cycle do
// not refetch.
type CandleTracker struct {
	client    binance.ExchangeClient
	timeframe string
	period    time.Duration
	ttl       time.Duration

	mu     sync.Mutex
	locked map[string]lockedCandle
	cache  map[string]cachedSnapshot
}

func NewCandleTracker(client binance.ExchangeClient, cfg Config) (*CandleTracker, error) {
	period, err := timeframeDuration(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	return &CandleTracker{
		client:    client,
		timeframe: cfg.Timeframe,
		period:    period,
		ttl:       cfg.CacheTTL,
		locked:    make(map[string]lockedCandle),
		cache:     make(map[string]cachedSnapshot),
	}, nil
}

// Snapshot returns the current candle snapshot for a symbol, fetching klines
// when the cached one has expired.
func (ct *CandleTracker) Snapshot(symbol string) (engine.Snapshot, error) {
	now := time.Now()

	ct.mu.Lock()
	if cached, ok := ct.cache[symbol]; ok && now.Before(cached.expiresAt) {
		snap := cached.snap
		ct.mu.Unlock()
		return snap, nil
	}
	ct.mu.Unlock()

	klines, err := ct.client.GetKlines(symbol, ct.timeframe, 2)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("error fetching klines for %s: %w", symbol, err)
	}
	if len(klines) < 2 {
		return engine.Snapshot{}, fmt.Errorf("%w: %s has %d candles, need 2", engine.ErrDataUnavailable, symbol, len(klines))
	}

	prev, current := klines[0], klines[1]
	currentOpen := time.UnixMilli(current.OpenTime)

	ct.mu.Lock()
	defer ct.mu.Unlock()

	// Lock the previous candle once per period. Re-reads within the same
	// period keep the first observed values even if the exchange restates.
	lc, ok := ct.locked[symbol]
	if !ok || !lc.openTime.Equal(currentOpen) {
		lc = lockedCandle{
			openTime:   currentOpen,
			closePrice: prev.Close,
			volume:     prev.Volume,
		}
		ct.locked[symbol] = lc
	}

	snap := engine.Snapshot{
		Symbol:         symbol,
		CurrentPrice:   current.Close,
		CurrentVolume:  current.Volume,
		PrevClosePrice: lc.closePrice,
		PrevVolume:     lc.volume,
		ElapsedMinutes: elapsedMinutes(currentOpen, now, ct.period),
		ObservedAt:     now,
	}

	ct.cache[symbol] = cachedSnapshot{snap: snap, expiresAt: now.Add(ct.ttl)}
	return snap, nil
}

// elapsedMinutes returns minutes since the candle opened, clamped to the
// period length so clock skew never produces an out-of-range value.
func elapsedMinutes(openTime, now time.Time, period time.Duration) float64 {
	elapsed := now.Sub(openTime).Minutes()
	if elapsed < 0 {
		return 0
	}
	if max := period.Minutes(); elapsed > max {
		return max
	}
	return elapsed
}

func timeframeDuration(tf string) (time.Duration, error) {
	switch strings.ToLower(tf) {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported timeframe: %s", tf)
}
