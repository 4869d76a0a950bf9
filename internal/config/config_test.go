package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.MaxPositionSize.Equal(decimal.NewFromInt(2000)))
	assert.True(t, cfg.MaxDailyExposureFraction.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, 10, cfg.MaxPositions)
	assert.Equal(t, 30*time.Second, cfg.FillTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.True(t, cfg.TradingHoursOnly)
	assert.Equal(t, 15, cfg.AvoidFirstMinutes)
	assert.Equal(t, "data/tradepilot.db", cfg.DatabaseURL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MAX_POSITION_SIZE", "500")
	t.Setenv("MAX_DAILY_EXPOSURE_FRACTION", "0.25")
	t.Setenv("FILL_TIMEOUT_SEC", "60")
	t.Setenv("TRADING_HOURS_ONLY", "false")
	t.Setenv("TELEGRAM_CHAT_ID", "123456789")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.MaxPositionSize.Equal(decimal.NewFromInt(500)))
	assert.True(t, cfg.MaxDailyExposureFraction.Equal(decimal.NewFromFloat(0.25)))
	assert.Equal(t, 60*time.Second, cfg.FillTimeout)
	assert.False(t, cfg.TradingHoursOnly)
	assert.Equal(t, int64(123456789), cfg.TelegramChatID)
}

func TestLoad_LiveModeRequiresKeys(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("BROKER_API_KEY", "")
	t.Setenv("BROKER_API_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKER_API_KEY")
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"exposure fraction over one", "MAX_DAILY_EXPOSURE_FRACTION", "1.5"},
		{"negative position size", "MAX_POSITION_SIZE", "-100"},
		{"zero max positions", "MAX_POSITIONS", "0"},
		{"tp1 fraction over one", "TP1_QUANTITY_FRACTION", "2"},
		{"malformed chat id", "TELEGRAM_CHAT_ID", "not-a-number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
