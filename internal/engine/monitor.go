package engine

import (
	"sort"
	"sync"
	"time"
)

// Monitor tracks the per-symbol decision state machine for every symbol in
// the current watch set. Transitions are driven by Transition, which the
// coordinator calls once per symbol per cycle; TIME_OUT and LOCKED never
// persist across an input change and are recomputed from inputs each call.
type Monitor struct {
	mu       sync.Mutex
	statuses map[string]SymbolStatus
}

func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]SymbolStatus)}
}

// SyncSymbols reconciles the tracked set with the latest scan result. New
// symbols start in WAIT; symbols no longer present are dropped unless they
// hold the active position, which stays tracked until it closes.
func (m *Monitor) SyncSymbols(symbols []string, activeSymbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
		if _, ok := m.statuses[s]; !ok {
			m.statuses[s] = SymbolStatus{Symbol: s, State: StateWait, Reason: "monitoring"}
		}
	}
	for s := range m.statuses {
		if !want[s] && s != activeSymbol {
			delete(m.statuses, s)
		}
	}
}

// TransitionInput carries everything a single symbol's transition needs.
// Symbols whose snapshot fetch failed are never transitioned at all; the
// coordinator skips them and their previous status stands.
type TransitionInput struct {
	Snapshot   Snapshot
	LockHeld   bool
	LockSymbol string
	CoolingNow bool
	CooldownBy time.Time
	Now        time.Time
}

// Transition computes the symbol's next state from the current inputs and
// records it. It returns the new status and whether the symbol produced an
// actionable entry signal (state SIGNAL with the lock free).
func (m *Monitor) Transition(symbol string, in TransitionInput, th Thresholds) (SymbolStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.statuses[symbol]
	if !ok {
		st = SymbolStatus{Symbol: symbol, State: StateWait}
	}

	next := m.next(st, symbol, in, th)
	m.statuses[symbol] = next
	return next, next.State == StateSignal
}

func (m *Monitor) next(st SymbolStatus, symbol string, in TransitionInput, th Thresholds) SymbolStatus {
	now := in.Now

	// The symbol holding the position is IN_TRADE regardless of anything else.
	if in.LockHeld && in.LockSymbol == symbol {
		return SymbolStatus{Symbol: symbol, State: StateInTrade, Reason: "position open", Snapshot: st.Snapshot, LastSignalAt: st.LastSignalAt}
	}

	if in.CoolingNow {
		return SymbolStatus{
			Symbol:   symbol,
			State:    StateCooldown,
			Reason:   "cooldown until " + in.CooldownBy.Format("15:04:05"),
			Snapshot: st.Snapshot,
		}
	}

	snap := in.Snapshot

	if snap.ElapsedMinutes > th.VolumeTimeLimit {
		return SymbolStatus{Symbol: symbol, State: StateTimeOut, Reason: "volume window expired", Snapshot: snap}
	}

	meets, reason := EvaluateReason(snap, th)
	if !meets {
		return SymbolStatus{Symbol: symbol, State: StateWait, Reason: reason, Snapshot: snap}
	}

	// Conditions met. With the lock held elsewhere the symbol is LOCKED out;
	// otherwise it signals.
	if in.LockHeld {
		return SymbolStatus{Symbol: symbol, State: StateLocked, Reason: "trade active on " + in.LockSymbol, Snapshot: snap}
	}
	return SymbolStatus{Symbol: symbol, State: StateSignal, Reason: "entry conditions met", Snapshot: snap, LastSignalAt: now}
}

// SetInTrade marks a symbol as holding the open position. Used right after a
// successful entry so broadcast state is consistent within the same cycle.
func (m *Monitor) SetInTrade(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.statuses[symbol]
	st.Symbol = symbol
	st.State = StateInTrade
	st.Reason = "position open"
	m.statuses[symbol] = st
}

// markClosed records the post-exit status for the symbol whose trade just
// closed, so the same cycle's result does not still show IN_TRADE. The next
// Transition recomputes from fresh inputs.
func (m *Monitor) markClosed(symbol string, coolingUntil time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.statuses[symbol]
	st.Symbol = symbol
	if coolingUntil.IsZero() {
		st.State = StateWait
		st.Reason = "monitoring"
	} else {
		st.State = StateCooldown
		st.Reason = "cooldown until " + coolingUntil.Format("15:04:05")
	}
	m.statuses[symbol] = st
}

// markTimedOut records a transient TIME_OUT for a symbol whose accepted
// signal could not be acted on. The next Transition recomputes from inputs.
func (m *Monitor) markTimedOut(symbol, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.statuses[symbol]
	st.Symbol = symbol
	st.State = StateTimeOut
	st.Reason = reason
	m.statuses[symbol] = st
}

// Status returns the last computed status for one symbol.
func (m *Monitor) Status(symbol string) (SymbolStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[symbol]
	return st, ok
}

// Statuses returns all tracked statuses ordered by symbol.
func (m *Monitor) Statuses() []SymbolStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SymbolStatus, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns the tracked symbol set in sorted order.
func (m *Monitor) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.statuses))
	for s := range m.statuses {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
