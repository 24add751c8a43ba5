package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"breakout-trading-bot/config"
	"breakout-trading-bot/internal/binance"
	"breakout-trading-bot/internal/database"
	"breakout-trading-bot/internal/engine"
	"breakout-trading-bot/internal/events"
	"breakout-trading-bot/internal/scanner"
)

// TradingBot wires the scan cycle engine to the exchange, persistence and
// event delivery. One cycle runs per tick; cycles never overlap.
type TradingBot struct {
	client      binance.ExchangeClient
	cfg         *config.Config
	repo        *database.Repository
	stateRepo   *database.RedisStateRepository
	eventBus    *events.EventBus
	logger      zerolog.Logger
	coordinator *engine.Coordinator
	monitor     *engine.Monitor
	positions   *engine.PositionEngine
	cooldowns   *engine.CooldownRegistry

	mu         sync.Mutex
	running    bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	lastActive string // symbol of the position seen in the previous cycle
}

// NewTradingBot builds the bot from configuration. repo and stateRepo may be
// nil; history persistence and restart re-hydration are then disabled.
func NewTradingBot(cfg *config.Config, repo *database.Repository, stateRepo *database.RedisStateRepository, eventBus *events.EventBus, logger zerolog.Logger) (*TradingBot, error) {
	var client binance.ExchangeClient
	if cfg.BinanceConfig.MockMode {
		logger.Warn().Msg("mock mode enabled, using simulated exchange")
		client = binance.NewMockClient()
	} else {
		baseURL := cfg.BinanceConfig.BaseURL
		if cfg.BinanceConfig.TestNet {
			baseURL = "https://testnet.binance.vision"
		}
		client = binance.NewClient(cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey, baseURL)
	}

	th := thresholdsFromConfig(cfg.TradingConfig)
	if err := th.Validate(); err != nil {
		return nil, err
	}

	marketScanner, err := scanner.NewMarketScanner(client, scanner.Config{
		Timeframe:   cfg.TradingConfig.CandleTimeframe,
		CacheTTL:    time.Duration(cfg.ScannerConfig.CacheTTLSeconds) * time.Second,
		ScanBuffer:  cfg.ScannerConfig.ScanBuffer,
		WorkerCount: cfg.ScannerConfig.WorkerCount,
	})
	if err != nil {
		return nil, fmt.Errorf("scanner init: %w", err)
	}

	cooldowns := engine.NewCooldownRegistry()
	positions := engine.NewPositionEngine(cooldowns, logger)
	monitor := engine.NewMonitor()
	executor := newLiveExecutor(client, logger)

	coordinator, err := engine.NewCoordinator(marketScanner, executor, monitor, positions, cooldowns, th, logger)
	if err != nil {
		return nil, err
	}

	bot := &TradingBot{
		client:      client,
		cfg:         cfg,
		repo:        repo,
		stateRepo:   stateRepo,
		eventBus:    eventBus,
		logger:      logger.With().Str("component", "bot").Logger(),
		coordinator: coordinator,
		monitor:     monitor,
		positions:   positions,
		cooldowns:   cooldowns,
	}

	if err := bot.restoreState(); err != nil {
		return nil, err
	}

	return bot, nil
}

func thresholdsFromConfig(t config.TradingConfig) engine.Thresholds {
	return engine.Thresholds{
		TopGainersCount:         t.TopGainersCount,
		CandleTimeframe:         t.CandleTimeframe,
		VolumeMultiplier:        t.VolumeMultiplier,
		VolumeTimeLimit:         t.VolumeTimeLimitMinutes,
		PriceChangePercent:      t.PriceChangePercent,
		StopLossPercent:         t.StopLossPercent,
		TakeProfitPercent:       t.TakeProfitPercent,
		TrailingStopPercent:     t.TrailingStopPercent,
		CooldownMinutes:         t.CooldownMinutes,
		TimeExitEnabled:         t.TimeExitEnabled,
		MaxTradeDurationMinutes: t.MaxTradeDurationMinutes,
	}
}

// restoreState re-hydrates the position and cooldowns saved by a previous
// run. A saved position re-acquires the global trade lock before the first
// cycle runs.
func (b *TradingBot) restoreState() error {
	if b.stateRepo == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := b.stateRepo.LoadState(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("could not load saved state, starting cold")
		return nil
	}
	if state == nil {
		return nil
	}

	if state.Position != nil {
		if err := b.positions.Restore(*state.Position); err != nil {
			return fmt.Errorf("restore position: %w", err)
		}
		b.lastActive = state.Position.Symbol
	}
	if len(state.Cooldowns) > 0 {
		b.cooldowns.Restore(state.Cooldowns, time.Now())
	}

	b.logger.Info().
		Bool("position", state.Position != nil).
		Int("cooldowns", len(state.Cooldowns)).
		Time("saved_at", state.SavedAt).
		Msg("state restored")
	return nil
}

// Start launches the scan loop. Returns an error if already running.
func (b *TradingBot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.stopChan = make(chan struct{})
	b.running = true
	b.wg.Add(1)
	go b.runLoop(b.stopChan)

	b.logger.Info().Msg("trading bot started")
	b.eventBus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{}})
	return nil
}

// Stop halts the scan loop, waiting for the in-flight cycle to drain. When
// close_on_stop is set, the open position is force-closed at the last price.
func (b *TradingBot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	close(b.stopChan)
	b.running = false
	b.mu.Unlock()

	b.wg.Wait()

	if b.cfg.TradingConfig.CloseOnStop {
		b.forceCloseOnStop()
	}
	b.saveState()

	b.logger.Info().Msg("trading bot stopped")
	b.eventBus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
	return nil
}

func (b *TradingBot) forceCloseOnStop() {
	pos, ok := b.positions.Active()
	if !ok {
		return
	}

	price, err := b.client.GetCurrentPrice(pos.Symbol)
	if err != nil {
		b.logger.Error().Str("symbol", pos.Symbol).Err(err).Msg("no price for shutdown close, using last seen")
		price = pos.CurrentPrice
	}

	ev, err := b.positions.ForceClose(price, time.Now(), b.coordinator.Thresholds())
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	executor := newLiveExecutor(b.client, b.logger)
	if err := executor.CloseTrade(ctx, ev.Position.Symbol, ev.Position.Quantity); err != nil {
		b.logger.Error().Str("symbol", ev.Position.Symbol).Err(err).Msg("shutdown close order failed, position closed logically")
	}
	b.persistTrades([]engine.TradeRecord{*ev.Trade})
	b.publishClosed(*ev.Trade)
}

// runLoop drives one cycle per tick. The first cycle runs immediately.
func (b *TradingBot) runLoop(stopChan chan struct{}) {
	defer b.wg.Done()

	interval := time.Duration(b.cfg.TradingConfig.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.runCycle()

	for {
		select {
		case <-ticker.C:
			b.runCycle()
		case <-stopChan:
			return
		}
	}
}

func (b *TradingBot) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := b.coordinator.RunCycle(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("cycle abandoned, will retry next tick")
		b.eventBus.PublishError("coordinator", "cycle abandoned", err)
		return
	}

	b.publishCycle(result)
	b.persistTrades(result.ClosedTrades)
	for _, trade := range result.ClosedTrades {
		b.publishClosed(trade)
	}
	b.saveState()
}

// publishCycle pushes the cycle outcome onto the event bus for the UI.
func (b *TradingBot) publishCycle(result engine.CycleResult) {
	markets := make([]map[string]interface{}, 0, len(result.Symbols))
	for _, st := range result.Symbols {
		markets = append(markets, map[string]interface{}{
			"symbol":          st.Symbol,
			"state":           st.State,
			"reason":          st.Reason,
			"current_price":   st.Snapshot.CurrentPrice,
			"current_volume":  st.Snapshot.CurrentVolume,
			"prev_close":      st.Snapshot.PrevClosePrice,
			"prev_volume":     st.Snapshot.PrevVolume,
			"elapsed_minutes": st.Snapshot.ElapsedMinutes,
		})
	}
	b.eventBus.Publish(events.Event{
		Type: events.EventMarketUpdate,
		Data: map[string]interface{}{"cycle_id": result.ID, "markets": markets},
	})

	for _, st := range result.Symbols {
		if st.State == engine.StateSignal {
			b.eventBus.PublishSignal(st.Symbol, st.Reason, st.Snapshot.CurrentPrice)
		}
	}

	active := ""
	if result.Position != nil {
		active = result.Position.Symbol
	}
	if active != "" && active != b.lastActive {
		b.eventBus.PublishTradeOpened(active, result.Position.EntryPrice, result.Position.Quantity)
	}
	b.lastActive = active

	if result.Position != nil {
		pos := result.Position
		b.eventBus.Publish(events.Event{
			Type: events.EventTradeUpdate,
			Data: map[string]interface{}{
				"symbol":        pos.Symbol,
				"state":         pos.State,
				"entry_price":   pos.EntryPrice,
				"current_price": pos.CurrentPrice,
				"pnl_percent":   pos.PnLPercent,
				"stop_loss":     pos.StopLossPrice,
				"trailing_stop": pos.TrailingStopPrice,
			},
		})
	}

	for _, alert := range result.Alerts {
		b.logger.Warn().Str("alert", alert).Msg("cycle alert")
		b.eventBus.PublishLog("warn", alert)
	}
}

func (b *TradingBot) publishClosed(trade engine.TradeRecord) {
	b.eventBus.PublishTradeClosed(trade.Symbol, trade.ExitReason, trade.EntryPrice, trade.ExitPrice, trade.PnLPercent)
	b.eventBus.Publish(events.Event{Type: events.EventHistoryUpdate, Data: map[string]interface{}{"trade_id": trade.ID}})
}

func (b *TradingBot) persistTrades(trades []engine.TradeRecord) {
	if b.repo == nil || len(trades) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, t := range trades {
		record := &database.Trade{
			ID:         t.ID,
			Symbol:     t.Symbol,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Quantity:   t.Quantity,
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
			PnLPercent: t.PnLPercent,
			ExitReason: t.ExitReason,
		}
		if err := b.repo.CreateTrade(ctx, record); err != nil {
			b.logger.Error().Str("trade_id", t.ID).Err(err).Msg("failed to persist trade")
		}
	}
}

func (b *TradingBot) saveState() {
	if b.stateRepo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state := &database.BotState{Cooldowns: b.cooldowns.Snapshot(time.Now())}
	if pos, ok := b.positions.Active(); ok {
		state.Position = &pos
	}

	// Nothing worth resuming: drop any stale saved state instead.
	if state.Position == nil && len(state.Cooldowns) == 0 {
		if err := b.stateRepo.ClearState(ctx); err != nil {
			b.logger.Error().Err(err).Msg("failed to clear bot state")
		}
		return
	}

	if err := b.stateRepo.SaveState(ctx, state); err != nil {
		b.logger.Error().Err(err).Msg("failed to save bot state")
	}
}

// IsRunning reports whether the scan loop is active.
func (b *TradingBot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// SymbolStatuses returns the latest per-symbol states.
func (b *TradingBot) SymbolStatuses() []engine.SymbolStatus {
	return b.monitor.Statuses()
}

// ActivePosition returns the open position, if any.
func (b *TradingBot) ActivePosition() (engine.Position, bool) {
	return b.positions.Active()
}

// Thresholds returns the thresholds in effect.
func (b *TradingBot) Thresholds() engine.Thresholds {
	return b.coordinator.Thresholds()
}

// UpdateThresholds stages new thresholds for the next cycle.
func (b *TradingBot) UpdateThresholds(th engine.Thresholds) error {
	return b.coordinator.UpdateThresholds(th)
}

// Balance returns the free USDT balance.
func (b *TradingBot) Balance() (float64, error) {
	return b.client.GetUSDTBalance()
}
