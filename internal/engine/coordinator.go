package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SnapshotProvider supplies the watch list and per-symbol candle snapshots.
// Implementations wrap exchange I/O; the coordinator treats every call as a
// suspension point bounded by the cycle context.
type SnapshotProvider interface {
	TopSymbols(ctx context.Context, n int) ([]string, error)
	CandleSnapshot(ctx context.Context, symbol string) (Snapshot, error)
}

// OrderExecutor places real orders around engine transitions. OpenTrade runs
// after a signal wins the lock and returns the fill price and quantity;
// CloseTrade runs after a position has closed logically.
type OrderExecutor interface {
	OpenTrade(ctx context.Context, symbol string, price float64) (fillPrice, quantity float64, err error)
	CloseTrade(ctx context.Context, symbol string, quantity float64) error
}

// CycleResult is the immutable outcome of one complete evaluation pass.
type CycleResult struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Symbols      []SymbolStatus
	Position     *Position
	ClosedTrades []TradeRecord
	Alerts       []string
}

const maxCloseRetries = 5

// pendingClose is a sell order that failed and must be retried. The position
// is already logically closed; only the exchange side is outstanding.
type pendingClose struct {
	symbol   string
	quantity float64
	attempts int
	nextTry  time.Time
	lastErr  error
}

// Coordinator drives the scan cycle: market scan, per-symbol transitions in
// deterministic order, position update, one CycleResult per tick. Snapshot
// fetches fan out concurrently; all state transitions happen in a single
// serialized section.
type Coordinator struct {
	provider  SnapshotProvider
	executor  OrderExecutor
	monitor   *Monitor
	positions *PositionEngine
	cooldowns *CooldownRegistry
	logger    zerolog.Logger

	mu         sync.Mutex
	thresholds Thresholds
	staged     *Thresholds
	pending    []pendingClose
}

func NewCoordinator(provider SnapshotProvider, executor OrderExecutor, monitor *Monitor, positions *PositionEngine, cooldowns *CooldownRegistry, th Thresholds, logger zerolog.Logger) (*Coordinator, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		provider:   provider,
		executor:   executor,
		monitor:    monitor,
		positions:  positions,
		cooldowns:  cooldowns,
		thresholds: th,
		logger:     logger.With().Str("component", "coordinator").Logger(),
	}, nil
}

// UpdateThresholds stages a new thresholds set. Validation happens here, at
// the configuration boundary; the staged values take effect at the next
// cycle start so no cycle ever observes mixed thresholds.
func (c *Coordinator) UpdateThresholds(th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	staged := th
	c.staged = &staged
	c.mu.Unlock()
	c.logger.Info().Msg("thresholds staged for next cycle")
	return nil
}

// Thresholds returns the set in effect for the current cycle.
func (c *Coordinator) Thresholds() Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds
}

// RunCycle executes one full evaluation pass and returns its result. An
// error means the cycle was abandoned before any transition was applied and
// should simply be retried next tick.
func (c *Coordinator) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	th := c.beginCycle()

	symbols, err := c.provider.TopSymbols(ctx, th.TopGainersCount)
	if err != nil {
		return CycleResult{}, fmt.Errorf("market scan: %w", err)
	}
	sort.Strings(symbols)

	activeSymbol := ""
	if pos, ok := c.positions.Active(); ok {
		activeSymbol = pos.Symbol
	}
	c.monitor.SyncSymbols(symbols, activeSymbol)
	tracked := c.monitor.Symbols()

	snapshots := c.fetchSnapshots(ctx, tracked)

	result := CycleResult{
		ID:        uuid.New().String(),
		StartedAt: start,
	}

	// Serialized section: per-symbol transitions then position update. One
	// symbol finishes its transition before the next starts, and cancellation
	// is honored only between symbols so no transition is left half-applied.
	for _, symbol := range tracked {
		if ctx.Err() != nil {
			break
		}
		snap, ok := snapshots[symbol]
		if !ok {
			// DataUnavailable: skipped this cycle, previous status stands.
			continue
		}
		c.transitionSymbol(ctx, symbol, snap, th, &result)
	}

	c.updatePosition(ctx, snapshots, th, &result)
	c.retryPendingCloses(ctx, &result)

	result.Symbols = c.monitor.Statuses()
	if pos, ok := c.positions.Active(); ok {
		result.Position = &pos
	}
	result.FinishedAt = time.Now()
	return result, nil
}

// beginCycle applies any staged thresholds and returns the set for this
// cycle.
func (c *Coordinator) beginCycle() Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staged != nil {
		c.thresholds = *c.staged
		c.staged = nil
		c.logger.Info().Msg("staged thresholds applied")
	}
	return c.thresholds
}

// fetchSnapshots fans out snapshot retrieval across symbols. Failures drop
// the symbol from this cycle only.
func (c *Coordinator) fetchSnapshots(ctx context.Context, symbols []string) map[string]Snapshot {
	type fetched struct {
		symbol string
		snap   Snapshot
		err    error
	}

	results := make(chan fetched, len(symbols))
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			snap, err := c.provider.CandleSnapshot(ctx, symbol)
			results <- fetched{symbol: symbol, snap: snap, err: err}
		}(symbol)
	}
	wg.Wait()
	close(results)

	out := make(map[string]Snapshot, len(symbols))
	for f := range results {
		if f.err != nil {
			c.logger.Warn().Str("symbol", f.symbol).Err(f.err).Msg("snapshot fetch failed, symbol skipped this cycle")
			continue
		}
		out[f.symbol] = f.snap
	}
	return out
}

func (c *Coordinator) transitionSymbol(ctx context.Context, symbol string, snap Snapshot, th Thresholds, result *CycleResult) {
	lockSymbol := ""
	lockHeld := false
	if pos, ok := c.positions.Active(); ok {
		lockHeld = true
		lockSymbol = pos.Symbol
	}
	cooling := c.cooldowns.IsCoolingDown(symbol, snap.ObservedAt)
	var coolBy time.Time
	if cooling {
		coolBy = snap.ObservedAt.Add(c.cooldowns.Remaining(symbol, snap.ObservedAt))
	}

	_, signaled := c.monitor.Transition(symbol, TransitionInput{
		Snapshot:   snap,
		LockHeld:   lockHeld,
		LockSymbol: lockSymbol,
		CoolingNow: cooling,
		CooldownBy: coolBy,
		Now:        snap.ObservedAt,
	}, th)
	if !signaled {
		return
	}

	c.logger.Info().
		Str("symbol", symbol).
		Float64("price", snap.CurrentPrice).
		Msg("entry signal")

	fillPrice, quantity, err := c.executor.OpenTrade(ctx, symbol, snap.CurrentPrice)
	if err != nil {
		// Failed opens are abandoned; the symbol shows TIME_OUT this cycle
		// and reverts to WAIT next cycle if conditions no longer hold.
		c.logger.Error().Str("symbol", symbol).Err(err).Msg("open order failed, signal abandoned")
		c.monitor.markTimedOut(symbol, "open order failed")
		result.Alerts = append(result.Alerts, fmt.Sprintf("open order failed for %s: %v", symbol, err))
		return
	}

	entrySnap := snap
	if fillPrice > 0 {
		entrySnap.CurrentPrice = fillPrice
	}
	if _, err := c.positions.TryOpen(symbol, entrySnap, quantity, th); err != nil {
		if errors.Is(err, ErrLockHeld) {
			// Should not happen inside the serialized section, but if it does
			// the bought quantity must be unwound.
			c.logger.Error().Str("symbol", symbol).Msg("lock held after fill, unwinding entry")
			c.queueClose(symbol, quantity, err)
		}
		return
	}
	c.monitor.SetInTrade(symbol)
}

// updatePosition runs the risk state machine for the active position using
// this cycle's price for its symbol.
func (c *Coordinator) updatePosition(ctx context.Context, snapshots map[string]Snapshot, th Thresholds, result *CycleResult) {
	pos, ok := c.positions.Active()
	if !ok {
		return
	}
	snap, ok := snapshots[pos.Symbol]
	if !ok {
		c.logger.Warn().Str("symbol", pos.Symbol).Msg("no fresh price for active position this cycle")
		return
	}

	ev, err := c.positions.Update(snap.CurrentPrice, snap.ObservedAt, th)
	if err != nil {
		return
	}
	if ev.Type != EventClosed {
		return
	}

	result.ClosedTrades = append(result.ClosedTrades, *ev.Trade)

	var coolBy time.Time
	if c.cooldowns.IsCoolingDown(ev.Position.Symbol, snap.ObservedAt) {
		coolBy = snap.ObservedAt.Add(c.cooldowns.Remaining(ev.Position.Symbol, snap.ObservedAt))
	}
	c.monitor.markClosed(ev.Position.Symbol, coolBy)

	if err := c.executor.CloseTrade(ctx, ev.Position.Symbol, ev.Position.Quantity); err != nil {
		c.logger.Error().Str("symbol", ev.Position.Symbol).Err(err).Msg("close order failed, queued for retry")
		c.queueClose(ev.Position.Symbol, ev.Position.Quantity, err)
		result.Alerts = append(result.Alerts, fmt.Sprintf("close order failed for %s: %v", ev.Position.Symbol, err))
	}
}

func (c *Coordinator) queueClose(symbol string, quantity float64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, pendingClose{
		symbol:   symbol,
		quantity: quantity,
		attempts: 1,
		nextTry:  time.Now().Add(backoff(1)),
		lastErr:  cause,
	})
}

// retryPendingCloses re-attempts failed sell orders with bounded backoff.
// A close that exhausts its retries stays in the queue as a standing fatal
// alert; it is never silently dropped.
func (c *Coordinator) retryPendingCloses(ctx context.Context, result *CycleResult) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	now := time.Now()
	var remaining []pendingClose
	for _, p := range pending {
		if p.attempts >= maxCloseRetries {
			result.Alerts = append(result.Alerts, fmt.Sprintf("FATAL: close order for %s failed %d times: %v", p.symbol, p.attempts, p.lastErr))
			remaining = append(remaining, p)
			continue
		}
		if now.Before(p.nextTry) {
			result.Alerts = append(result.Alerts, fmt.Sprintf("close order for %s pending retry: %v", p.symbol, p.lastErr))
			remaining = append(remaining, p)
			continue
		}
		if err := c.executor.CloseTrade(ctx, p.symbol, p.quantity); err != nil {
			p.attempts++
			p.nextTry = now.Add(backoff(p.attempts))
			p.lastErr = &OrderExecutionError{Symbol: p.symbol, Side: "SELL", Retryable: p.attempts < maxCloseRetries, Err: err}
			c.logger.Error().Str("symbol", p.symbol).Int("attempts", p.attempts).Err(err).Msg("close order retry failed")
			result.Alerts = append(result.Alerts, fmt.Sprintf("close order retry %d failed for %s: %v", p.attempts, p.symbol, err))
			remaining = append(remaining, p)
			continue
		}
		c.logger.Info().Str("symbol", p.symbol).Int("attempts", p.attempts).Msg("pending close order filled")
	}

	c.mu.Lock()
	c.pending = append(remaining, c.pending...)
	c.mu.Unlock()
}

// PendingCloses reports how many close orders are still outstanding.
func (c *Coordinator) PendingCloses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
