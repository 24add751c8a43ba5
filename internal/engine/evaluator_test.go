package engine

import (
	"testing"
	"time"
)

func testThresholds() Thresholds {
	return Thresholds{
		TopGainersCount:         10,
		CandleTimeframe:         "1h",
		VolumeMultiplier:        2,
		VolumeTimeLimit:         15,
		PriceChangePercent:      2,
		StopLossPercent:         1.5,
		TakeProfitPercent:       5,
		TrailingStopPercent:     1,
		CooldownMinutes:         60,
		TimeExitEnabled:         true,
		MaxTradeDurationMinutes: 240,
	}
}

// TestEvaluateBreakout checks the canonical passing snapshot: volume doubled,
// price cleared the 2% gain, candle still inside the time window.
func TestEvaluateBreakout(t *testing.T) {
	snap := Snapshot{
		Symbol:         "BTCUSDT",
		CurrentPrice:   100,
		CurrentVolume:  500,
		PrevClosePrice: 95,
		PrevVolume:     200,
		ElapsedMinutes: 10,
		ObservedAt:     time.Now(),
	}

	if !Evaluate(snap, testThresholds()) {
		t.Error("Should signal: 500 >= 400 volume, 100 >= 96.9 price, 10 <= 15 minutes")
	}
}

func TestEvaluateVolumeNotReached(t *testing.T) {
	snap := Snapshot{
		CurrentPrice:   100,
		CurrentVolume:  399,
		PrevClosePrice: 95,
		PrevVolume:     200,
		ElapsedMinutes: 10,
	}

	ok, reason := EvaluateReason(snap, testThresholds())
	if ok {
		t.Error("Should not signal with volume below multiplier")
	}
	if reason == "" {
		t.Error("Blocked evaluation should carry a reason")
	}
}

func TestEvaluatePriceNotReached(t *testing.T) {
	snap := Snapshot{
		CurrentPrice:   96.8, // needs 96.9
		CurrentVolume:  500,
		PrevClosePrice: 95,
		PrevVolume:     200,
		ElapsedMinutes: 10,
	}

	if Evaluate(snap, testThresholds()) {
		t.Error("Should not signal below required price gain")
	}
}

func TestEvaluateTimeLimitExceeded(t *testing.T) {
	snap := Snapshot{
		CurrentPrice:   100,
		CurrentVolume:  500,
		PrevClosePrice: 95,
		PrevVolume:     200,
		ElapsedMinutes: 16,
	}

	if Evaluate(snap, testThresholds()) {
		t.Error("Should not signal past the volume time limit")
	}
}

// TestEvaluateMissingCandleData guards against division-by-zero style bugs:
// snapshots with no previous candle never signal.
func TestEvaluateMissingCandleData(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
	}{
		{"zero prev volume", Snapshot{CurrentPrice: 100, CurrentVolume: 500, PrevClosePrice: 95, PrevVolume: 0, ElapsedMinutes: 10}},
		{"zero prev close", Snapshot{CurrentPrice: 100, CurrentVolume: 500, PrevClosePrice: 0, PrevVolume: 200, ElapsedMinutes: 10}},
		{"both zero", Snapshot{CurrentPrice: 100, CurrentVolume: 500, ElapsedMinutes: 10}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Evaluate(tc.snap, testThresholds()) {
				t.Error("Should never signal without previous candle data")
			}
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := testThresholds().Validate(); err != nil {
		t.Errorf("Valid thresholds rejected: %v", err)
	}

	bad := testThresholds()
	bad.VolumeMultiplier = 0
	if err := bad.Validate(); err == nil {
		t.Error("Zero multiplier should be rejected")
	}

	bad = testThresholds()
	bad.StopLossPercent = -1
	if err := bad.Validate(); err == nil {
		t.Error("Negative stop loss should be rejected")
	}

	bad = testThresholds()
	bad.VolumeTimeLimit = 75
	if err := bad.Validate(); err == nil {
		t.Error("Time limit beyond the candle should be rejected")
	}

	bad = testThresholds()
	bad.TimeExitEnabled = true
	bad.MaxTradeDurationMinutes = 0
	if err := bad.Validate(); err == nil {
		t.Error("Time exit without a duration should be rejected")
	}
}
