package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"breakout-trading-bot/internal/database"
	"breakout-trading-bot/internal/engine"
	"breakout-trading-bot/internal/events"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *database.Repository
	eventBus   *events.EventBus
	botAPI     BotAPI
	config     ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
}

// BotAPI interface defines methods the bot must expose to the API
type BotAPI interface {
	IsRunning() bool
	Start() error
	Stop() error
	SymbolStatuses() []engine.SymbolStatus
	ActivePosition() (engine.Position, bool)
	Thresholds() engine.Thresholds
	UpdateThresholds(engine.Thresholds) error
	Balance() (float64, error)
}

// NewServer creates a new API server
func NewServer(config ServerConfig, repo *database.Repository, eventBus *events.EventBus, botAPI BotAPI) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:   router,
		repo:     repo,
		eventBus: eventBus,
		botAPI:   botAPI,
		config:   config,
	}

	server.setupRoutes()

	// Initialize WebSocket hub for real-time event broadcasting
	InitWebSocket(eventBus)

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleGetStatus)
		api.GET("/markets", s.handleGetMarkets)
		api.GET("/position", s.handleGetPosition)
		api.GET("/history", s.handleGetHistory)
		api.GET("/stats", s.handleGetStats)
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handleUpdateConfig)
		api.POST("/bot/start", s.handleStartBot)
		api.POST("/bot/stop", s.handleStopBot)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if s.repo != nil {
		if err := s.repo.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}
