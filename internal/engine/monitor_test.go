package engine

import (
	"testing"
	"time"
)

func TestSyncSymbolsAddsAndDrops(t *testing.T) {
	m := NewMonitor()

	m.SyncSymbols([]string{"BTCUSDT", "ETHUSDT"}, "")
	if got := m.Symbols(); len(got) != 2 {
		t.Fatalf("Tracking %d symbols, want 2", len(got))
	}
	st, ok := m.Status("BTCUSDT")
	if !ok || st.State != StateWait {
		t.Errorf("New symbol state = %v, want WAIT", st.State)
	}

	// ETHUSDT falls out of the scan but holds the position, so it stays.
	m.SyncSymbols([]string{"BTCUSDT", "SOLUSDT"}, "ETHUSDT")
	if _, ok := m.Status("ETHUSDT"); !ok {
		t.Error("Active symbol must survive dropping out of the scan")
	}

	// Without the position it is dropped.
	m.SyncSymbols([]string{"BTCUSDT", "SOLUSDT"}, "")
	if _, ok := m.Status("ETHUSDT"); ok {
		t.Error("Inactive symbol outside the scan should be dropped")
	}
}

func TestTransitionSignal(t *testing.T) {
	m := NewMonitor()
	th := testThresholds()
	m.SyncSymbols([]string{"BTCUSDT"}, "")

	st, signaled := m.Transition("BTCUSDT", TransitionInput{
		Snapshot: entrySnapshot("BTCUSDT", 100),
		Now:      time.Now(),
	}, th)

	if !signaled {
		t.Fatal("Breakout snapshot should signal")
	}
	if st.State != StateSignal {
		t.Errorf("State = %s, want %s", st.State, StateSignal)
	}
	if st.LastSignalAt.IsZero() {
		t.Error("Signal should record its timestamp")
	}
}

func TestTransitionLockedWhileTradeActive(t *testing.T) {
	m := NewMonitor()
	th := testThresholds()
	m.SyncSymbols([]string{"BTCUSDT", "ETHUSDT"}, "")

	st, signaled := m.Transition("ETHUSDT", TransitionInput{
		Snapshot:   entrySnapshot("ETHUSDT", 100),
		LockHeld:   true,
		LockSymbol: "BTCUSDT",
		Now:        time.Now(),
	}, th)

	if signaled {
		t.Error("Symbol must not signal while another trade is active")
	}
	if st.State != StateLocked {
		t.Errorf("State = %s, want %s", st.State, StateLocked)
	}
}

func TestTransitionInTradeForLockHolder(t *testing.T) {
	m := NewMonitor()
	th := testThresholds()
	m.SyncSymbols([]string{"BTCUSDT"}, "")

	st, signaled := m.Transition("BTCUSDT", TransitionInput{
		Snapshot:   entrySnapshot("BTCUSDT", 100),
		LockHeld:   true,
		LockSymbol: "BTCUSDT",
		Now:        time.Now(),
	}, th)

	if signaled {
		t.Error("Lock holder never re-signals")
	}
	if st.State != StateInTrade {
		t.Errorf("State = %s, want %s", st.State, StateInTrade)
	}
}

func TestTransitionCooldownBlocksSignal(t *testing.T) {
	m := NewMonitor()
	th := testThresholds()
	m.SyncSymbols([]string{"BTCUSDT"}, "")
	now := time.Now()

	st, signaled := m.Transition("BTCUSDT", TransitionInput{
		Snapshot:   entrySnapshot("BTCUSDT", 100),
		CoolingNow: true,
		CooldownBy: now.Add(30 * time.Minute),
		Now:        now,
	}, th)

	if signaled {
		t.Error("Cooling symbol must never signal, even on a fresh breakout")
	}
	if st.State != StateCooldown {
		t.Errorf("State = %s, want %s", st.State, StateCooldown)
	}
}

func TestTransitionTimeOut(t *testing.T) {
	m := NewMonitor()
	th := testThresholds()
	m.SyncSymbols([]string{"BTCUSDT"}, "")

	snap := entrySnapshot("BTCUSDT", 100)
	snap.ElapsedMinutes = 20 // past the 15 minute window

	st, signaled := m.Transition("BTCUSDT", TransitionInput{Snapshot: snap, Now: time.Now()}, th)
	if signaled {
		t.Error("Expired window must not signal")
	}
	if st.State != StateTimeOut {
		t.Errorf("State = %s, want %s", st.State, StateTimeOut)
	}

	// TIME_OUT is transient: a fresh candle recomputes from inputs.
	snap.ElapsedMinutes = 5
	st, _ = m.Transition("BTCUSDT", TransitionInput{Snapshot: snap, Now: time.Now()}, th)
	if st.State == StateTimeOut {
		t.Error("TIME_OUT should not persist across a fresh window")
	}
}

func TestStatusesSorted(t *testing.T) {
	m := NewMonitor()
	m.SyncSymbols([]string{"XRPUSDT", "ADAUSDT", "BTCUSDT"}, "")

	got := m.Statuses()
	want := []string{"ADAUSDT", "BTCUSDT", "XRPUSDT"}
	for i, st := range got {
		if st.Symbol != want[i] {
			t.Errorf("Statuses[%d] = %s, want %s", i, st.Symbol, want[i])
		}
	}
}
