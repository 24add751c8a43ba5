package scanner

import (
	"time"

	"breakout-trading-bot/internal/engine"
)

// Config controls market scanning and candle tracking
type Config struct {
	Timeframe   string        // candle timeframe, e.g. "1h"
	CacheTTL    time.Duration // minimum interval between kline refetches per symbol
	ScanBuffer  float64       // over-fetch factor before leveraged-pair filtering
	WorkerCount int           // concurrent snapshot fetches
}

// DefaultConfig returns the scanning defaults
func DefaultConfig() Config {
	return Config{
		Timeframe:   "1h",
		CacheTTL:    10 * time.Second,
		ScanBuffer:  1.5,
		WorkerCount: 5,
	}
}

// cachedSnapshot is a snapshot with an expiry, keyed by symbol
type cachedSnapshot struct {
	snap      engine.Snapshot
	expiresAt time.Time
}

// lockedCandle is the previous closed candle, frozen for the duration of the
// current candle period so every evaluation in that period compares against
// the same baseline.
type lockedCandle struct {
	openTime   time.Time // open time of the CURRENT candle this lock belongs to
	closePrice float64
	volume     float64
}
