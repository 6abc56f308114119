package config

import (
	"os"
	"strings"
	"time"

	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/handlers/risk"
	"github.com/fazecat/momentumwatch/Internal/notifications"
	"github.com/fazecat/momentumwatch/Internal/strategy"
	"github.com/fazecat/momentumwatch/Internal/strategy/indicators"
	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils"
	"github.com/fazecat/momentumwatch/Internal/utils/scanner"
	"github.com/fazecat/momentumwatch/Internal/utils/scoring"
)

func (c *Config) ScannerConfig() scanner.Config {
	account := c.AccountRisk()
	return scanner.Config{
		Criteria:        c.ScreenerCriteria(),
		Indicators:      c.IndicatorConfig(),
		Ranking:         c.RankingConfig(),
		Levels:          c.LevelConfig(),
		Account:         &account,
		Picks:           c.Output.Picks,
		LeaderboardSize: c.Output.LeaderboardSize,
		MinScore:        c.Output.MinScore,
		Workers:         c.Output.Workers,
	}
}

func (c *Config) ScreenerCriteria() scanner.ScreenerCriteria {
	f := c.Filters
	return scanner.ScreenerCriteria{
		MinPrice:     f.MinPrice,
		MinVolume:    f.MinVolume,
		MinFloat:     f.MinFloat,
		MaxFloat:     f.MaxFloat,
		MinMarketCap: f.MinMarketCap,
		MaxMarketCap: f.MaxMarketCap,
		MaxPctChange: f.MaxPctChange,
		ExcludeOTC:   f.ExcludeOTC,
		ExcludeETF:   f.ExcludeETF,
	}
}

func (c *Config) IndicatorConfig() indicators.Config {
	ic := c.Indicators
	return indicators.Config{
		OpeningRange:     time.Duration(ic.OpeningRangeMinutes) * time.Minute,
		BarInterval:      time.Duration(ic.BarIntervalMinutes) * time.Minute,
		ATRPeriod:        ic.ATRPeriod,
		PullbackLookback: ic.PullbackLookback,
		ReclaimLookback:  ic.ReclaimLookback,
		MinATRFraction:   ic.MinATRFraction,
	}
}

// RankingConfig starts from the scoring defaults; only weights and the
// extension threshold are configurable.
func (c *Config) RankingConfig() scoring.Config {
	rc := scoring.DefaultConfig()
	rc.Weights = scoring.Weights{
		PctChange: c.Ranking.Weights.PctChange,
		RVOL:      c.Ranking.Weights.RVOL,
		NearHOD:   c.Ranking.Weights.NearHOD,
	}
	rc.MaxExtensionATR = c.Ranking.MaxExtensionATR
	return rc
}

func (c *Config) LevelConfig() strategy.LevelConfig {
	lc := strategy.DefaultLevelConfig()
	lc.StopATRMultiple = c.Levels.StopATRMultiple
	if m := c.Levels.TargetATRMultiples; len(m) == 3 {
		lc.TargetATRMultiples = [3]float64{m[0], m[1], m[2]}
	}
	for name, width := range c.Levels.BuyZoneWidthATR {
		if setup := types.SetupType(name); setup.Valid() {
			lc.BuyZoneWidthATR[setup] = width
		}
	}
	lc.MaxExtensionATR = c.Ranking.MaxExtensionATR
	if c.Levels.LowVolume > 0 {
		lc.LowVolume = c.Levels.LowVolume
	}
	return lc
}

func (c *Config) AccountRisk() risk.AccountRisk {
	return risk.AccountRisk{
		TradingCapital:     c.Account.TradingCapital,
		MaxRiskPercent:     c.Account.MaxRiskPercent,
		DailyProfitGoal:    c.Account.DailyProfitGoal,
		MaxPositionPercent: c.Account.MaxPositionPercent,
	}
}

func (c *Config) MarketHours() (utils.MarketHours, error) {
	mh := c.Global.MarketHours
	return utils.ParseMarketHours(mh.RegularOpen, mh.RegularClose, mh.Timezone)
}

func (c *Config) ExecutionWindow() (utils.ExecutionWindow, error) {
	return utils.ParseExecutionWindow(c.Schedule.RunTime, c.Schedule.Timezone, c.Schedule.ToleranceMinute)
}

// AlpacaOptions reads credentials from the environment.
func (c *Config) AlpacaOptions() datafeed.AlpacaOptions {
	return datafeed.AlpacaOptions{
		APIKey:       os.Getenv("ALPACA_API_KEY"),
		APISecret:    os.Getenv("ALPACA_API_SECRET"),
		DataURL:      os.Getenv("ALPACA_DATA_URL"),
		TradeURL:     os.Getenv("ALPACA_BASE_URL"),
		Feed:         os.Getenv("ALPACA_FEED"),
		BaselineDays: c.Indicators.BaselineDays,
	}
}

func (c *Config) DatabaseConfig() datafeed.DatabaseConfig {
	return datafeed.DatabaseConfig{Driver: c.History.Driver, DSN: c.History.DSN}
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// FundamentalsSource returns nil when fundamentals lookups are disabled.
func (c *Config) FundamentalsSource() datafeed.FundamentalsSource {
	if c.Global.Fundamentals != "yahoo" {
		return nil
	}
	return datafeed.NewYahooFundamentals()
}

func (c *Config) EmailConfig() notifications.EmailConfig {
	e := c.Notifications.Email
	var to []string
	for _, addr := range strings.Split(e.ToEmail, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return notifications.EmailConfig{
		APIKey:   e.SendGridAPIKey,
		From:     e.FromEmail,
		FromName: e.FromName,
		To:       to,
	}
}
