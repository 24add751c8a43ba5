package engine

import "fmt"

// Evaluate is the pure entry condition check. It returns true only when the
// breakout candle is still young enough, volume has at least multiplied past
// the previous candle's, and price has cleared the required gain over the
// previous close. A snapshot with no previous candle data never signals.
func Evaluate(snap Snapshot, th Thresholds) bool {
	ok, _ := EvaluateReason(snap, th)
	return ok
}

// EvaluateReason runs the same check as Evaluate but also reports which
// condition blocked the signal, for the status display.
func EvaluateReason(snap Snapshot, th Thresholds) (bool, string) {
	// Insufficient candle history: treat as no signal, never an error.
	if snap.PrevVolume <= 0 || snap.PrevClosePrice <= 0 {
		return false, "insufficient candle data"
	}

	if snap.ElapsedMinutes > th.VolumeTimeLimit {
		return false, fmt.Sprintf("exceeded %.0f minute time limit", th.VolumeTimeLimit)
	}

	requiredVolume := snap.PrevVolume * th.VolumeMultiplier
	if snap.CurrentVolume < requiredVolume {
		return false, fmt.Sprintf("volume not reached (need %.0f, have %.0f)", requiredVolume, snap.CurrentVolume)
	}

	requiredPrice := snap.PrevClosePrice * (1 + th.PriceChangePercent/100)
	if snap.CurrentPrice < requiredPrice {
		return false, fmt.Sprintf("price not reached (need %.8g, have %.8g)", requiredPrice, snap.CurrentPrice)
	}

	return true, fmt.Sprintf("volume %.0f/%.0f, price %.8g/%.8g",
		snap.CurrentVolume, requiredVolume, snap.CurrentPrice, requiredPrice)
}

// RequiredMetrics exposes the thresholds a symbol must cross, for the UI.
type RequiredMetrics struct {
	RequiredVolume  float64 `json:"required_volume"`
	RequiredPrice   float64 `json:"required_price"`
	VolumeTimeLimit float64 `json:"volume_time_limit"`
}

// ComputeRequiredMetrics derives the concrete volume/price targets for a
// symbol from its previous candle.
func ComputeRequiredMetrics(snap Snapshot, th Thresholds) RequiredMetrics {
	return RequiredMetrics{
		RequiredVolume:  snap.PrevVolume * th.VolumeMultiplier,
		RequiredPrice:   snap.PrevClosePrice * (1 + th.PriceChangePercent/100),
		VolumeTimeLimit: th.VolumeTimeLimit,
	}
}
