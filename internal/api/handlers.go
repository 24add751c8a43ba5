package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"breakout-trading-bot/internal/engine"

	"github.com/gin-gonic/gin"
)

// handleGetStatus returns the bot's running state and balance
func (s *Server) handleGetStatus(c *gin.Context) {
	balance, err := s.botAPI.Balance()
	balanceOK := err == nil

	c.JSON(http.StatusOK, gin.H{
		"running":    s.botAPI.IsRunning(),
		"balance":    balance,
		"balance_ok": balanceOK,
		"clients":    wsHub.GetClientCount(),
	})
}

// handleGetMarkets returns per-symbol monitoring states
func (s *Server) handleGetMarkets(c *gin.Context) {
	statuses := s.botAPI.SymbolStatuses()
	th := s.botAPI.Thresholds()

	markets := make([]gin.H, 0, len(statuses))
	for _, st := range statuses {
		required := engine.ComputeRequiredMetrics(st.Snapshot, th)
		markets = append(markets, gin.H{
			"symbol":          st.Symbol,
			"state":           st.State,
			"reason":          st.Reason,
			"current_price":   st.Snapshot.CurrentPrice,
			"current_volume":  st.Snapshot.CurrentVolume,
			"prev_close":      st.Snapshot.PrevClosePrice,
			"prev_volume":     st.Snapshot.PrevVolume,
			"elapsed_minutes": st.Snapshot.ElapsedMinutes,
			"required_volume": required.RequiredVolume,
			"required_price":  required.RequiredPrice,
		})
	}

	c.JSON(http.StatusOK, gin.H{"markets": markets})
}

// handleGetPosition returns the active position, if any
func (s *Server) handleGetPosition(c *gin.Context) {
	pos, ok := s.botAPI.ActivePosition()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"position": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": gin.H{
		"symbol":              pos.Symbol,
		"state":               pos.State,
		"entry_price":         pos.EntryPrice,
		"entry_time":          pos.EntryTime,
		"quantity":            pos.Quantity,
		"current_price":       pos.CurrentPrice,
		"pnl_percent":         pos.PnLPercent,
		"stop_loss":           pos.StopLossPrice,
		"take_profit_trigger": pos.TakeProfitTrigger,
		"highest_price":       pos.HighestPrice,
		"trailing_stop":       pos.TrailingStopPrice,
	}})
}

// handleGetHistory returns completed trades with pagination
func (s *Server) handleGetHistory(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []struct{}{}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	trades, err := s.repo.GetTradeHistory(ctx, limit, offset)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch trade history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// handleGetStats returns aggregated trade performance
func (s *Server) handleGetStats(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusOK, gin.H{"total_trades": 0})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.repo.GetTradeStats(ctx)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch trade stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// handleGetConfig returns the thresholds currently in effect
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.Thresholds())
}

// handleUpdateConfig stages new thresholds, applied at the next cycle
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var th engine.Thresholds
	if err := c.ShouldBindJSON(&th); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid thresholds payload: "+err.Error())
		return
	}

	if err := s.botAPI.UpdateThresholds(th); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Thresholds updated, effective next cycle"})
}

// handleStartBot starts the trading loop
func (s *Server) handleStartBot(c *gin.Context) {
	if err := s.botAPI.Start(); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bot started"})
}

// handleStopBot stops the trading loop
func (s *Server) handleStopBot(c *gin.Context) {
	if err := s.botAPI.Stop(); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bot stopped"})
}
