package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the engine
type Config struct {
	// Broker (Alpaca-compatible)
	BrokerBaseURL   string
	BrokerDataURL   string
	BrokerAPIKey    string
	BrokerAPISecret string

	// Mode
	DryRun bool
	Debug  bool

	// Risk limits
	MaxPositionSize          decimal.Decimal
	MaxDailyExposureFraction decimal.Decimal
	MaxPositions             int
	MaxSinglePositionPercent decimal.Decimal

	// Bracket defaults (per-trade values from the feed take precedence)
	TP1QuantityFraction decimal.Decimal

	// Executor
	FillTimeout       time.Duration
	PollInterval      time.Duration
	PacingDelay       time.Duration
	TradingHoursOnly  bool
	AvoidFirstMinutes int
	AvoidLastMinutes  int

	// Position cache
	CacheTTL time.Duration

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Journal database: postgres URL or sqlite path
	DatabaseURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		BrokerBaseURL:   getEnv("BROKER_BASE_URL", "https://paper-api.alpaca.markets"),
		BrokerDataURL:   getEnv("BROKER_DATA_URL", "https://data.alpaca.markets"),
		BrokerAPIKey:    os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret: os.Getenv("BROKER_API_SECRET"),

		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		MaxPositionSize:          getEnvDecimal("MAX_POSITION_SIZE", decimal.NewFromInt(2000)),
		MaxDailyExposureFraction: getEnvDecimal("MAX_DAILY_EXPOSURE_FRACTION", decimal.NewFromFloat(0.5)),
		MaxPositions:             getEnvInt("MAX_POSITIONS", 10),
		MaxSinglePositionPercent: getEnvDecimal("MAX_SINGLE_POSITION_PCT", decimal.NewFromFloat(0.10)),

		TP1QuantityFraction: getEnvDecimal("TP1_QUANTITY_FRACTION", decimal.NewFromFloat(0.3)),

		FillTimeout:       time.Duration(getEnvInt("FILL_TIMEOUT_SEC", 30)) * time.Second,
		PollInterval:      time.Duration(getEnvInt("POLL_INTERVAL_SEC", 1)) * time.Second,
		PacingDelay:       time.Duration(getEnvInt("PACING_DELAY_SEC", 2)) * time.Second,
		TradingHoursOnly:  getEnvBool("TRADING_HOURS_ONLY", true),
		AvoidFirstMinutes: getEnvInt("AVOID_FIRST_MINUTES", 15),
		AvoidLastMinutes:  getEnvInt("AVOID_LAST_MINUTES", 15),

		CacheTTL: time.Duration(getEnvInt("CACHE_TTL_SEC", 30)) * time.Second,

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabaseURL: getEnv("DATABASE_URL", "data/tradepilot.db"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !c.DryRun && (c.BrokerAPIKey == "" || c.BrokerAPISecret == "") {
		return fmt.Errorf("BROKER_API_KEY and BROKER_API_SECRET are required unless DRY_RUN=true")
	}
	if !c.MaxPositionSize.IsPositive() {
		return fmt.Errorf("MAX_POSITION_SIZE must be positive, got %s", c.MaxPositionSize)
	}
	if !c.MaxDailyExposureFraction.IsPositive() || c.MaxDailyExposureFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("MAX_DAILY_EXPOSURE_FRACTION must be in (0,1], got %s", c.MaxDailyExposureFraction)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("MAX_POSITIONS must be positive, got %d", c.MaxPositions)
	}
	if c.TP1QuantityFraction.IsNegative() || c.TP1QuantityFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("TP1_QUANTITY_FRACTION must be in [0,1], got %s", c.TP1QuantityFraction)
	}
	if c.FillTimeout <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("FILL_TIMEOUT_SEC and POLL_INTERVAL_SEC must be positive")
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
