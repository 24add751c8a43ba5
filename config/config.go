package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	BinanceConfig  BinanceConfig  `json:"binance"`
	TradingConfig  TradingConfig  `json:"trading"`
	ScannerConfig  ScannerConfig  `json:"scanner"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	ServerConfig   ServerConfig   `json:"server"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // Use simulated data when Binance API is unavailable
}

// TradingConfig holds the breakout entry and exit thresholds
type TradingConfig struct {
	TopGainersCount         int     `json:"top_gainers_count"`
	CandleTimeframe         string  `json:"candle_timeframe"`
	VolumeMultiplier        float64 `json:"volume_multiplier"`
	VolumeTimeLimitMinutes  float64 `json:"volume_time_limit_minutes"`
	PriceChangePercent      float64 `json:"price_change_percent"`
	StopLossPercent         float64 `json:"stop_loss_percent"`
	TakeProfitPercent       float64 `json:"take_profit_percent"`
	TrailingStopPercent     float64 `json:"trailing_stop_percent"`
	CooldownMinutes         int     `json:"cooldown_minutes"`
	TimeExitEnabled         bool    `json:"time_exit_enabled"`
	MaxTradeDurationMinutes int     `json:"max_trade_duration_minutes"`
	ScanIntervalSeconds     int     `json:"scan_interval_seconds"`
	CloseOnStop             bool    `json:"close_on_stop"` // Force-close the open position on shutdown
}

type ScannerConfig struct {
	CacheTTLSeconds int     `json:"cache_ttl_seconds"`
	ScanBuffer      float64 `json:"scan_buffer"`
	WorkerCount     int     `json:"worker_count"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	ProductionMode  bool   `json:"production_mode"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // Output as JSON instead of console
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// A missing file means defaults only; a file that exists but will
		// not parse must not be silently replaced by defaults.
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	t := &cfg.TradingConfig
	if t.TopGainersCount == 0 {
		t.TopGainersCount = 10
	}
	if t.CandleTimeframe == "" {
		t.CandleTimeframe = "1h"
	}
	if t.VolumeMultiplier == 0 {
		t.VolumeMultiplier = 3.0
	}
	if t.VolumeTimeLimitMinutes == 0 {
		t.VolumeTimeLimitMinutes = 30
	}
	if t.PriceChangePercent == 0 {
		t.PriceChangePercent = 2.0
	}
	if t.StopLossPercent == 0 {
		t.StopLossPercent = 2.0
	}
	if t.TakeProfitPercent == 0 {
		t.TakeProfitPercent = 5.0
	}
	if t.TrailingStopPercent == 0 {
		t.TrailingStopPercent = 1.0
	}
	if t.CooldownMinutes == 0 {
		t.CooldownMinutes = 60
	}
	if t.MaxTradeDurationMinutes == 0 {
		t.MaxTradeDurationMinutes = 240
	}
	if t.ScanIntervalSeconds == 0 {
		t.ScanIntervalSeconds = 10
	}

	if cfg.ScannerConfig.CacheTTLSeconds == 0 {
		cfg.ScannerConfig.CacheTTLSeconds = 10
	}
	if cfg.ScannerConfig.ScanBuffer == 0 {
		cfg.ScannerConfig.ScanBuffer = 1.5
	}
	if cfg.ScannerConfig.WorkerCount == 0 {
		cfg.ScannerConfig.WorkerCount = 5
	}

	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}

	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		cfg.BinanceConfig.TestNet = v == "true"
	}
	if v := os.Getenv("MOCK_MODE"); v != "" {
		cfg.BinanceConfig.MockMode = v == "true"
	}

	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	if v := os.Getenv("PRODUCTION_MODE"); v != "" {
		cfg.ServerConfig.ProductionMode = v == "true"
	}

	if v := os.Getenv("DATABASE_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LoggingConfig.JSONFormat = v == "true"
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
