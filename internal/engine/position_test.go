package engine

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestEngine() *PositionEngine {
	return NewPositionEngine(NewCooldownRegistry(), zerolog.Nop())
}

func entrySnapshot(symbol string, price float64) Snapshot {
	return Snapshot{
		Symbol:         symbol,
		CurrentPrice:   price,
		CurrentVolume:  500,
		PrevClosePrice: price * 0.95,
		PrevVolume:     200,
		ElapsedMinutes: 10,
		ObservedAt:     time.Now(),
	}
}

func TestTryOpenComputesLevels(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()

	pos, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 0.5, th)
	if err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	if pos.StopLossPrice != 98.5 {
		t.Errorf("Stop loss = %.4f, want 98.5", pos.StopLossPrice)
	}
	if pos.TakeProfitTrigger != 105 {
		t.Errorf("Take profit trigger = %.4f, want 105", pos.TakeProfitTrigger)
	}
	if pos.State != PositionOpen {
		t.Errorf("New position state = %s, want %s", pos.State, PositionOpen)
	}
	if pos.HighestPrice != 100 {
		t.Errorf("Highest price should start at entry, got %.4f", pos.HighestPrice)
	}
}

// TestStopLossExit drives an open position through a stop breach and checks
// the realized loss on the trade record.
func TestStopLossExit(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	now := time.Now()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	ev, err := eng.Update(98.4, now, th)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if ev.Type != EventClosed {
		t.Fatalf("Event = %s, want %s", ev.Type, EventClosed)
	}
	if ev.Trade == nil {
		t.Fatal("Closed event should carry a trade record")
	}
	if ev.Trade.ExitReason != ExitStopLoss {
		t.Errorf("Exit reason = %s, want %s", ev.Trade.ExitReason, ExitStopLoss)
	}
	if math.Abs(ev.Trade.PnLPercent-(-1.6)) > 0.0001 {
		t.Errorf("PnL = %.4f, want -1.6", ev.Trade.PnLPercent)
	}
	if eng.HasActive() {
		t.Error("Lock should be released after close")
	}
}

// TestTrailingStopLifecycle follows the take-profit trigger, a ratchet of the
// trailing stop on a new high, and finally the trailing breach.
func TestTrailingStopLifecycle(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	now := time.Now()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	// 105 hits the trigger and arms the trailing stop at 103.95.
	ev, err := eng.Update(105, now, th)
	if err != nil {
		t.Fatalf("Update at 105 failed: %v", err)
	}
	if ev.Type != EventTrailingActivated {
		t.Fatalf("Event at 105 = %s, want %s", ev.Type, EventTrailingActivated)
	}
	if math.Abs(ev.Position.TrailingStopPrice-103.95) > 0.0001 {
		t.Errorf("Trailing stop = %.4f, want 103.95", ev.Position.TrailingStopPrice)
	}

	// New high raises the stop to 108.9.
	ev, err = eng.Update(110, now, th)
	if err != nil {
		t.Fatalf("Update at 110 failed: %v", err)
	}
	if ev.Type != EventStopRaised {
		t.Fatalf("Event at 110 = %s, want %s", ev.Type, EventStopRaised)
	}
	if math.Abs(ev.Position.TrailingStopPrice-108.9) > 0.0001 {
		t.Errorf("Trailing stop = %.4f, want 108.9", ev.Position.TrailingStopPrice)
	}

	// 108.8 is below the raised stop.
	ev, err = eng.Update(108.8, now, th)
	if err != nil {
		t.Fatalf("Update at 108.8 failed: %v", err)
	}
	if ev.Type != EventClosed {
		t.Fatalf("Event at 108.8 = %s, want %s", ev.Type, EventClosed)
	}
	if ev.Trade.ExitReason != ExitTrailingStop {
		t.Errorf("Exit reason = %s, want %s", ev.Trade.ExitReason, ExitTrailingStop)
	}
	if math.Abs(ev.Trade.PnLPercent-8.8) > 0.0001 {
		t.Errorf("PnL = %.4f, want 8.8", ev.Trade.PnLPercent)
	}
}

// TestTrailingStopNeverLowers feeds a falling price that stays above the stop
// and checks the stop does not move down.
func TestTrailingStopNeverLowers(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	now := time.Now()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	if _, err := eng.Update(110, now, th); err != nil {
		t.Fatalf("Update at 110 failed: %v", err)
	}
	ev, err := eng.Update(109.5, now, th)
	if err != nil {
		t.Fatalf("Update at 109.5 failed: %v", err)
	}
	if ev.Type == EventClosed {
		t.Fatal("109.5 is above the 108.9 stop, should not close")
	}
	if math.Abs(ev.Position.TrailingStopPrice-108.9) > 0.0001 {
		t.Errorf("Trailing stop moved to %.4f, must stay at 108.9", ev.Position.TrailingStopPrice)
	}
	if ev.Position.HighestPrice != 110 {
		t.Errorf("Highest price moved to %.4f, must stay at 110", ev.Position.HighestPrice)
	}
}

// TestStopLossAtExactLevel confirms a tick exactly at the stop price closes.
func TestStopLossAtExactLevel(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	th.StopLossPercent = 10
	th.TakeProfitPercent = 5
	now := time.Now()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	ev, err := eng.Update(90, now, th)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if ev.Type != EventClosed || ev.Trade.ExitReason != ExitStopLoss {
		t.Errorf("Expected stop loss close, got %s / %v", ev.Type, ev.Trade)
	}
}

func TestTimeExit(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	th.MaxTradeDurationMinutes = 240

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	later := time.Now().Add(241 * time.Minute)
	ev, err := eng.Update(101, later, th)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if ev.Type != EventClosed {
		t.Fatalf("Event = %s, want %s", ev.Type, EventClosed)
	}
	if ev.Trade.ExitReason != ExitTimeExit {
		t.Errorf("Exit reason = %s, want %s", ev.Trade.ExitReason, ExitTimeExit)
	}
}

func TestTimeExitDisabled(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	th.TimeExitEnabled = false

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	later := time.Now().Add(24 * time.Hour)
	ev, err := eng.Update(101, later, th)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if ev.Type == EventClosed {
		t.Error("Position should stay open with time exit disabled")
	}
}

// TestSingleTradeLock races many goroutines at TryOpen; exactly one may win.
func TestSingleTradeLock(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()

	var wg sync.WaitGroup
	var mu sync.Mutex
	opened := 0
	locked := 0

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT"}
	for i := 0; i < 20; i++ {
		sym := symbols[i%len(symbols)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.TryOpen(sym, entrySnapshot(sym, 100), 1, th)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, ErrLockHeld):
				locked++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if opened != 1 {
		t.Errorf("Opened %d positions, the lock allows exactly 1", opened)
	}
	if locked != 19 {
		t.Errorf("Rejected %d attempts, want 19", locked)
	}
}

func TestUpdateAfterCloseReturnsNoPosition(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	now := time.Now()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}
	if _, err := eng.Update(98, now, th); err != nil {
		t.Fatalf("Closing update failed: %v", err)
	}

	if _, err := eng.Update(97, now, th); !errors.Is(err, ErrNoPosition) {
		t.Errorf("Update after close = %v, want ErrNoPosition", err)
	}
}

func TestCloseRegistersCooldown(t *testing.T) {
	cooldowns := NewCooldownRegistry()
	eng := NewPositionEngine(cooldowns, zerolog.Nop())
	th := testThresholds()
	now := time.Now()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}
	if _, err := eng.Update(98, now, th); err != nil {
		t.Fatalf("Closing update failed: %v", err)
	}

	if !cooldowns.IsCoolingDown("BTCUSDT", now.Add(time.Minute)) {
		t.Error("Symbol should be cooling down after a close")
	}
	if cooldowns.IsCoolingDown("BTCUSDT", now.Add(61*time.Minute)) {
		t.Error("Cooldown should expire after the configured window")
	}
}

func TestAbandonReleasesLock(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}
	eng.Abandon("BTCUSDT")

	if eng.HasActive() {
		t.Error("Abandon should release the lock")
	}
	if _, err := eng.TryOpen("ETHUSDT", entrySnapshot("ETHUSDT", 50), 1, th); err != nil {
		t.Errorf("TryOpen after abandon failed: %v", err)
	}
}

func TestForceClose(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()
	now := time.Now()

	if _, err := eng.TryOpen("BTCUSDT", entrySnapshot("BTCUSDT", 100), 1, th); err != nil {
		t.Fatalf("TryOpen failed: %v", err)
	}

	ev, err := eng.ForceClose(102, now, th)
	if err != nil {
		t.Fatalf("ForceClose failed: %v", err)
	}
	if ev.Trade.ExitReason != ExitForced {
		t.Errorf("Exit reason = %s, want %s", ev.Trade.ExitReason, ExitForced)
	}
	if math.Abs(ev.Trade.PnLPercent-2) > 0.0001 {
		t.Errorf("PnL = %.4f, want 2", ev.Trade.PnLPercent)
	}

	if _, err := eng.ForceClose(102, now, th); !errors.Is(err, ErrNoPosition) {
		t.Errorf("Second ForceClose = %v, want ErrNoPosition", err)
	}
}

func TestRestore(t *testing.T) {
	eng := newTestEngine()
	th := testThresholds()

	saved := Position{
		Symbol:              "BTCUSDT",
		EntryPrice:          100,
		EntryTime:           time.Now().Add(-time.Hour),
		Quantity:            1,
		StopLossPrice:       98.5,
		TakeProfitTrigger:   105,
		TrailingStopPercent: 1,
		HighestPrice:        100,
		State:               PositionOpen,
	}

	if err := eng.Restore(saved); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !eng.HasActive() {
		t.Fatal("Restored position should hold the lock")
	}
	if _, err := eng.TryOpen("ETHUSDT", entrySnapshot("ETHUSDT", 50), 1, th); !errors.Is(err, ErrLockHeld) {
		t.Errorf("TryOpen with restored position = %v, want ErrLockHeld", err)
	}
}
