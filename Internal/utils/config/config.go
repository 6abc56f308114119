package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Global struct {
		MarketHours struct {
			RegularOpen  string `yaml:"regular_open"`
			RegularClose string `yaml:"regular_close"`
			Timezone     string `yaml:"timezone"`
		} `yaml:"market_hours"`
		Provider     string `yaml:"provider"`
		Fundamentals string `yaml:"fundamentals"` // yahoo or none
	} `yaml:"global"`

	Schedule struct {
		RunTime         string `yaml:"run_time"` // HH:MM in schedule timezone
		Timezone        string `yaml:"timezone"`
		ToleranceMinute int    `yaml:"tolerance_minutes"`
	} `yaml:"schedule"`

	Filters FilterConfig `yaml:"filters"`

	Indicators IndicatorConfig `yaml:"indicators"`

	Ranking RankingConfig `yaml:"ranking"`

	Levels LevelsConfig `yaml:"levels"`

	Account AccountConfig `yaml:"account"`

	Output struct {
		Picks           int     `yaml:"picks"`
		LeaderboardSize int     `yaml:"leaderboard_size"`
		TopNSeed        int     `yaml:"top_n_seed"`
		MinScore        float64 `yaml:"min_score"`
		Workers         int     `yaml:"workers"`
	} `yaml:"output"`

	History struct {
		Driver    string `yaml:"driver"` // postgres or sqlite3
		DSN       string `yaml:"dsn"`
		KeepDays  int    `yaml:"keep_days"`
		FailOnDup bool   `yaml:"fail_on_duplicate"`
	} `yaml:"history"`

	Cache struct {
		RedisAddr string `yaml:"redis_addr"`
		TTLHours  int    `yaml:"ttl_hours"`
		Namespace string `yaml:"namespace"`
	} `yaml:"cache"`

	Notifications struct {
		Channels struct {
			Console bool `yaml:"console"`
			Webhook bool `yaml:"webhook"`
			Email   bool `yaml:"email"`
		} `yaml:"channels"`
		WebhookURL         string `yaml:"webhook_url"`
		NotifyMarketClosed bool   `yaml:"notify_market_closed"`
		Email              struct {
			SendGridAPIKey string `yaml:"-"`
			FromEmail      string `yaml:"from_email"`
			FromName       string `yaml:"from_name"`
			ToEmail        string `yaml:"to_email"` // comma separated
		} `yaml:"email"`
	} `yaml:"notifications"`
}

type FilterConfig struct {
	MinPrice     float64 `yaml:"min_price"`
	MinVolume    int64   `yaml:"min_volume"`
	MinFloat     int64   `yaml:"min_float"`
	MaxFloat     int64   `yaml:"max_float"`
	MinMarketCap float64 `yaml:"min_market_cap"`
	MaxMarketCap float64 `yaml:"max_market_cap"`
	MaxPctChange float64 `yaml:"max_pct_change"`
	ExcludeOTC   bool    `yaml:"exclude_otc"`
	ExcludeETF   bool    `yaml:"exclude_etf"`
}

type IndicatorConfig struct {
	OpeningRangeMinutes int     `yaml:"opening_range_minutes"`
	BarIntervalMinutes  int     `yaml:"bar_interval_minutes"`
	ATRPeriod           int     `yaml:"atr_period"`
	PullbackLookback    int     `yaml:"pullback_lookback_bars"`
	ReclaimLookback     int     `yaml:"reclaim_lookback_bars"`
	MinATRFraction      float64 `yaml:"min_atr_fraction"`
	BaselineDays        int     `yaml:"baseline_days"`
}

type RankingConfig struct {
	Weights struct {
		PctChange float64 `yaml:"pct_change"`
		RVOL      float64 `yaml:"rvol"`
		NearHOD   float64 `yaml:"near_hod"`
	} `yaml:"weights"`
	MaxExtensionATR float64 `yaml:"max_extension_atr"`
}

type LevelsConfig struct {
	StopATRMultiple    float64            `yaml:"stop_atr_multiple"`
	TargetATRMultiples []float64          `yaml:"target_atr_multiples"`
	BuyZoneWidthATR    map[string]float64 `yaml:"buy_zone_width_atr"`
	LowVolume          int64              `yaml:"low_volume"`
}

type AccountConfig struct {
	TradingCapital     float64 `yaml:"trading_capital"`
	MaxRiskPercent     float64 `yaml:"max_risk_percent"`
	DailyProfitGoal    float64 `yaml:"daily_profit_goal"`
	MaxPositionPercent float64 `yaml:"max_position_percent"`
}

// LoadConfig reads config.yaml from the first location that has one, then
// applies environment overrides and validates the result.
func LoadConfig() (*Config, error) {
	// Resolve path relative to this file first
	_, filePath, _, ok := runtime.Caller(0)
	var basePath string
	if ok {
		basePath = filepath.Dir(filePath)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	possiblePaths := []string{}
	if p := os.Getenv("SCANNER_CONFIG"); p != "" {
		possiblePaths = append(possiblePaths, p)
	}
	if basePath != "" {
		possiblePaths = append(possiblePaths, filepath.Join(basePath, "config.yaml"))
	}
	possiblePaths = append(possiblePaths,
		filepath.Join(cwd, "Internal", "utils", "config", "config.yaml"),
		"config.yaml",
	)

	var data []byte
	var foundPath string
	for _, path := range possiblePaths {
		data, err = os.ReadFile(path)
		if err == nil {
			foundPath = path
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find config.yaml: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", foundPath, err)
	}

	slog.Debug("config loaded", slog.String("path", foundPath))
	return cfg, nil
}

// Parse decodes yaml on top of the defaults, applies environment overrides
// and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{}

	cfg.Global.MarketHours.RegularOpen = "09:30"
	cfg.Global.MarketHours.RegularClose = "16:00"
	cfg.Global.MarketHours.Timezone = "America/New_York"
	cfg.Global.Provider = "alpaca"
	cfg.Global.Fundamentals = "yahoo"

	cfg.Schedule.RunTime = "08:40"
	cfg.Schedule.Timezone = "America/Chicago"
	cfg.Schedule.ToleranceMinute = 2

	cfg.Filters = FilterConfig{
		MinPrice:     5.0,
		MinVolume:    1_000_000,
		MaxPctChange: 60,
		ExcludeOTC:   true,
		ExcludeETF:   true,
	}

	cfg.Indicators = IndicatorConfig{
		OpeningRangeMinutes: 5,
		BarIntervalMinutes:  1,
		ATRPeriod:           14,
		PullbackLookback:    10,
		ReclaimLookback:     5,
		MinATRFraction:      0.001,
		BaselineDays:        20,
	}

	cfg.Ranking.Weights.PctChange = 0.40
	cfg.Ranking.Weights.RVOL = 0.35
	cfg.Ranking.Weights.NearHOD = 0.25
	cfg.Ranking.MaxExtensionATR = 2.0

	cfg.Levels = LevelsConfig{
		StopATRMultiple:    1.0,
		TargetATRMultiples: []float64{1, 2, 3},
		BuyZoneWidthATR: map[string]float64{
			"ORB_BREAKOUT":   0.15,
			"VWAP_RECLAIM":   0.20,
			"FIRST_PULLBACK": 0.20,
			"FALLBACK":       0.15,
		},
		LowVolume: 500_000,
	}

	cfg.Account = AccountConfig{
		TradingCapital:     10_000,
		MaxRiskPercent:     1.0,
		DailyProfitGoal:    200,
		MaxPositionPercent: 100,
	}

	cfg.Output.Picks = 5
	cfg.Output.LeaderboardSize = 10
	cfg.Output.TopNSeed = 50
	cfg.Output.MinScore = -1
	cfg.Output.Workers = 8

	cfg.History.Driver = "sqlite3"
	cfg.History.DSN = "history.db"
	cfg.History.KeepDays = 90

	cfg.Cache.TTLHours = 12
	cfg.Cache.Namespace = "momentumwatch"

	cfg.Notifications.Channels.Console = true
	cfg.Notifications.Email.FromName = "Momentum Watchlist"

	return cfg
}

// ApplyEnv overrides thresholds and secrets from the environment.
func (c *Config) ApplyEnv() error {
	var errs []error
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setInt := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setFloat("MIN_PRICE", &c.Filters.MinPrice)
	setInt("MIN_VOLUME", &c.Filters.MinVolume)
	setInt("MIN_FLOAT", &c.Filters.MinFloat)
	setInt("MAX_FLOAT", &c.Filters.MaxFloat)
	setFloat("MIN_MARKET_CAP", &c.Filters.MinMarketCap)
	setFloat("MAX_MARKET_CAP", &c.Filters.MaxMarketCap)
	setFloat("MAX_PCT_CHANGE", &c.Filters.MaxPctChange)
	setFloat("MAX_EXTENSION_ATR", &c.Ranking.MaxExtensionATR)

	picks := int64(c.Output.Picks)
	setInt("PICKS", &picks)
	c.Output.Picks = int(picks)
	seed := int64(c.Output.TopNSeed)
	setInt("TOP_N_SEED", &seed)
	c.Output.TopNSeed = int(seed)

	setFloat("TRADING_CAPITAL", &c.Account.TradingCapital)
	setFloat("MAX_RISK_PERCENT", &c.Account.MaxRiskPercent)
	setFloat("DAILY_PROFIT_GOAL", &c.Account.DailyProfitGoal)

	setString("HISTORY_DRIVER", &c.History.Driver)
	setString("DATABASE_URL", &c.History.DSN)
	setString("REDIS_ADDR", &c.Cache.RedisAddr)
	setString("WEBHOOK_URL", &c.Notifications.WebhookURL)
	setString("FUNDAMENTALS_PROVIDER", &c.Global.Fundamentals)
	setString("SENDGRID_API_KEY", &c.Notifications.Email.SendGridAPIKey)
	setString("FROM_EMAIL", &c.Notifications.Email.FromEmail)
	setString("TO_EMAIL", &c.Notifications.Email.ToEmail)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string

	w := c.Ranking.Weights
	if w.PctChange < 0 || w.RVOL < 0 || w.NearHOD < 0 || w.PctChange+w.RVOL+w.NearHOD <= 0 {
		problems = append(problems, "ranking weights must be non-negative with a positive sum")
	}
	if c.Ranking.MaxExtensionATR <= 0 {
		problems = append(problems, "max_extension_atr must be > 0")
	}
	if c.Levels.StopATRMultiple <= 0 {
		problems = append(problems, "stop_atr_multiple must be > 0")
	}
	if m := c.Levels.TargetATRMultiples; len(m) != 3 || m[0] <= 0 || m[0] >= m[1] || m[1] >= m[2] {
		problems = append(problems, "target_atr_multiples must be three strictly increasing positive values")
	}
	for setup, width := range c.Levels.BuyZoneWidthATR {
		if width < 0 {
			problems = append(problems, fmt.Sprintf("buy_zone_width_atr[%s] must be >= 0", setup))
		}
	}
	if c.Indicators.ATRPeriod < 2 {
		problems = append(problems, "atr_period must be >= 2")
	}
	if c.Indicators.OpeningRangeMinutes <= 0 || c.Indicators.BarIntervalMinutes <= 0 {
		problems = append(problems, "opening range and bar interval must be > 0")
	}
	if c.Output.Picks <= 0 {
		problems = append(problems, "picks must be > 0")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("schedule timezone: %v", err))
	}
	if _, err := time.Parse("15:04", c.Schedule.RunTime); err != nil {
		problems = append(problems, fmt.Sprintf("schedule run_time: %v", err))
	}
	switch c.History.Driver {
	case "postgres", "sqlite3":
	default:
		problems = append(problems, fmt.Sprintf("history driver %q not supported", c.History.Driver))
	}
	switch c.Global.Fundamentals {
	case "", "none", "yahoo":
	default:
		problems = append(problems, fmt.Sprintf("fundamentals provider %q not supported", c.Global.Fundamentals))
	}
	if e := c.Notifications.Email; c.Notifications.Channels.Email &&
		(e.SendGridAPIKey == "" || e.FromEmail == "" || e.ToEmail == "") {
		problems = append(problems, "email channel needs SENDGRID_API_KEY, FROM_EMAIL and TO_EMAIL")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
