package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fazecat/momentumwatch/Internal/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MIN_PRICE", "MIN_VOLUME", "PICKS", "TOP_N_SEED", "TRADING_CAPITAL",
		"MAX_RISK_PERCENT", "DAILY_PROFIT_GOAL", "HISTORY_DRIVER", "DATABASE_URL", "REDIS_ADDR", "WEBHOOK_URL",
		"MAX_EXTENSION_ATR", "MIN_FLOAT", "MAX_FLOAT", "MIN_MARKET_CAP", "MAX_MARKET_CAP", "MAX_PCT_CHANGE",
		"FUNDAMENTALS_PROVIDER", "SENDGRID_API_KEY", "FROM_EMAIL", "TO_EMAIL"} {
		t.Setenv(k, "")
	}
}

func TestParse_ShippedFile(t *testing.T) {
	clearEnv(t)
	data, err := os.ReadFile("config.yaml")
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("filters:\n  min_price: 2.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Filters.MinPrice)
	assert.Equal(t, int64(1_000_000), cfg.Filters.MinVolume)
	assert.Equal(t, 5, cfg.Output.Picks)
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIN_PRICE", "3")
	t.Setenv("PICKS", "7")
	t.Setenv("TRADING_CAPITAL", "25000")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("FUNDAMENTALS_PROVIDER", "none")
	t.Setenv("SENDGRID_API_KEY", "sg-key")
	t.Setenv("FROM_EMAIL", "scanner@example.com")
	t.Setenv("TO_EMAIL", "a@example.com")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Global.Fundamentals)
	assert.Equal(t, "sg-key", cfg.Notifications.Email.SendGridAPIKey)
	assert.Equal(t, "scanner@example.com", cfg.Notifications.Email.FromEmail)
	assert.Equal(t, "a@example.com", cfg.Notifications.Email.ToEmail)
	assert.Equal(t, 3.0, cfg.Filters.MinPrice)
	assert.Equal(t, 7, cfg.Output.Picks)
	assert.Equal(t, 25000.0, cfg.Account.TradingCapital)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIN_VOLUME", "lots")

	_, err := Parse(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "MIN_VOLUME")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative weight", func(c *Config) { c.Ranking.Weights.RVOL = -1 }, "ranking weights"},
		{"zero stop", func(c *Config) { c.Levels.StopATRMultiple = 0 }, "stop_atr_multiple"},
		{"targets not increasing", func(c *Config) { c.Levels.TargetATRMultiples = []float64{1, 3, 2} }, "target_atr_multiples"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad driver", func(c *Config) { c.History.Driver = "mongo" }, "driver"},
		{"zero picks", func(c *Config) { c.Output.Picks = 0 }, "picks"},
		{"bad fundamentals", func(c *Config) { c.Global.Fundamentals = "bloomberg" }, "fundamentals"},
		{"email without credentials", func(c *Config) { c.Notifications.Channels.Email = true }, "SENDGRID_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Levels.BuyZoneWidthATR["ORB_BREAKOUT"] = 0.3
	cfg.Levels.BuyZoneWidthATR["NOT_A_SETUP"] = 9

	sc := cfg.ScannerConfig()
	assert.Equal(t, 5*time.Minute, sc.Indicators.OpeningRange)
	assert.Equal(t, 0.40, sc.Ranking.Weights.PctChange)
	assert.Equal(t, 0.3, sc.Levels.BuyZoneWidthATR[types.SetupORBBreakout])
	assert.Len(t, sc.Levels.BuyZoneWidthATR, 4)
	assert.Equal(t, [3]float64{1, 2, 3}, sc.Levels.TargetATRMultiples)
	require.NotNil(t, sc.Account)
	assert.Equal(t, 10_000.0, sc.Account.TradingCapital)
	assert.True(t, sc.Criteria.ExcludeETF)

	win, err := cfg.ExecutionWindow()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+40*time.Minute, win.At)

	mh, err := cfg.MarketHours()
	require.NoError(t, err)
	assert.Equal(t, 16*time.Hour, mh.Close)

	assert.Equal(t, 12*time.Hour, cfg.CacheTTL())
	assert.Equal(t, "sqlite3", cfg.DatabaseConfig().Driver)

	assert.NotNil(t, cfg.FundamentalsSource())
	cfg.Global.Fundamentals = "none"
	assert.Nil(t, cfg.FundamentalsSource())

	cfg.Notifications.Email.SendGridAPIKey = "sg-key"
	cfg.Notifications.Email.FromEmail = "scanner@example.com"
	cfg.Notifications.Email.ToEmail = " a@example.com, ,b@example.com "
	email := cfg.EmailConfig()
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, email.To)
	assert.Equal(t, "Momentum Watchlist", email.FromName)
	assert.Equal(t, "sg-key", email.APIKey)
}

func TestSaveAndConfigureInteractive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()

	input := strings.Join([]string{
		"2", "4", "", "", "", "",
		"4", "20000", "0.5", "",
		"1",
		"5",
	}, "\n") + "\n"
	var out bytes.Buffer
	require.NoError(t, ConfigureInteractive(cfg, strings.NewReader(input), &out, path))

	assert.Equal(t, 4.0, cfg.Filters.MinPrice)
	assert.Equal(t, 20000.0, cfg.Account.TradingCapital)
	assert.Equal(t, 0.5, cfg.Account.MaxRiskPercent)
	assert.Equal(t, 200.0, cfg.Account.DailyProfitGoal)
	assert.Contains(t, out.String(), "Configuration saved")

	clearEnv(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	reloaded, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}
