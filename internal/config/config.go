// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the trading database
	Port     int
	LogLevel string
	DevMode  bool

	// Shared keyed state. Empty RedisURL selects the in-memory keyring,
	// which is only safe for single-process deployments.
	RedisURL string

	// Exchange endpoints
	ExchangeBaseURL  string // public REST API
	ExchangeTradeURL string // private (signed) trade API
	PriceFeedWSURL   string // streaming ticker feed, optional
	ExchangeTimeout  time.Duration
	PriceStaleAfter  time.Duration

	// Credential encryption key (AES-GCM), at least 32 characters
	MasterKey string

	// Notifications
	TelegramBotToken string

	// Evaluator intervals
	DCAInterval          time.Duration
	GridInterval         time.Duration
	TPSLInterval         time.Duration
	AlertInterval        time.Duration
	OrderMonitorInterval time.Duration

	// Per-user order rate limit (fixed window)
	OrderRateLimit  int
	OrderRateWindow time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CAKRA_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("CAKRA_PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		RedisURL: getEnv("REDIS_URL", ""),

		ExchangeBaseURL:  getEnv("EXCHANGE_BASE_URL", "https://indodax.com/api"),
		ExchangeTradeURL: getEnv("EXCHANGE_TRADE_URL", "https://indodax.com/tapi"),
		PriceFeedWSURL:   getEnv("PRICE_FEED_WS_URL", ""),
		ExchangeTimeout:  getEnvAsDuration("EXCHANGE_TIMEOUT", 10*time.Second),
		PriceStaleAfter:  getEnvAsDuration("PRICE_STALE_AFTER", 5*time.Second),

		MasterKey: getEnv("APP_SECRET_KEY", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		DCAInterval:          getEnvAsDuration("DCA_INTERVAL", time.Minute),
		GridInterval:         getEnvAsDuration("GRID_INTERVAL", 5*time.Minute),
		TPSLInterval:         getEnvAsDuration("TPSL_INTERVAL", time.Minute),
		AlertInterval:        getEnvAsDuration("ALERT_INTERVAL", 15*time.Second),
		OrderMonitorInterval: getEnvAsDuration("ORDER_MONITOR_INTERVAL", time.Minute),

		OrderRateLimit:  getEnvAsInt("ORDER_RATE_LIMIT", 30),
		OrderRateWindow: getEnvAsDuration("ORDER_RATE_WINDOW", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if len(c.MasterKey) < 32 {
		return fmt.Errorf("APP_SECRET_KEY must be at least 32 characters")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
