package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils"
	"github.com/fazecat/momentumwatch/Internal/utils/scanner"
)

type Bar = types.Bar

const (
	defaultDataURL  = "https://data.alpaca.markets"
	defaultTradeURL = "https://paper-api.alpaca.markets"
	sessionLength   = 390 * time.Minute
)

type marketDataClient interface {
	GetSnapshots(symbols []string, req marketdata.GetSnapshotRequest) (map[string]*marketdata.Snapshot, error)
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

type tradingClient interface {
	GetAsset(symbol string) (*alpaca.Asset, error)
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// DailyBarSource returns trailing daily bars per symbol ending before end.
type DailyBarSource interface {
	DailyBars(ctx context.Context, symbols []string, end time.Time, days int) (map[string][]types.Bar, error)
}

type AlpacaOptions struct {
	APIKey       string
	APISecret    string
	DataURL      string
	TradeURL     string
	Feed         string // iex or sip
	BaselineDays int
}

// AlpacaProvider assembles candidate snapshots from the Alpaca screener,
// market data and asset endpoints.
type AlpacaProvider struct {
	opts         AlpacaOptions
	httpClient   *http.Client
	md           marketDataClient
	trading      tradingClient
	daily        DailyBarSource
	fundamentals FundamentalsSource
	feed         marketdata.Feed
	retry        utils.RetryConfig
	metrics      *metrics.Metrics
}

// NewAlpacaProvider reads missing credentials from ALPACA_API_KEY and
// ALPACA_API_SECRET.
func NewAlpacaProvider(opts AlpacaOptions, m *metrics.Metrics) (*AlpacaProvider, error) {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("ALPACA_API_KEY")
	}
	if opts.APISecret == "" {
		opts.APISecret = os.Getenv("ALPACA_API_SECRET")
	}
	if opts.APIKey == "" || opts.APISecret == "" {
		return nil, fmt.Errorf("ALPACA_API_KEY or ALPACA_API_SECRET not set")
	}
	if opts.DataURL == "" {
		opts.DataURL = defaultDataURL
	}
	if opts.TradeURL == "" {
		opts.TradeURL = defaultTradeURL
	}
	if opts.BaselineDays <= 0 {
		opts.BaselineDays = 20
	}

	p := &AlpacaProvider{
		opts:       opts,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
		}),
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.TradeURL,
		}),
		feed:    marketdata.IEX,
		retry:   utils.DefaultRetryConfig(),
		metrics: m,
	}
	if strings.EqualFold(opts.Feed, "sip") {
		p.feed = marketdata.SIP
	}
	p.daily = p
	return p, nil
}

func (p *AlpacaProvider) Name() string {
	return "alpaca"
}

// WithFundamentalsSource fills float and market cap from src.
func (p *AlpacaProvider) WithFundamentalsSource(src FundamentalsSource) *AlpacaProvider {
	p.fundamentals = src
	return p
}

// WithDailyBarSource routes daily bar lookups through src, e.g. a cache
// wrapping this provider.
func (p *AlpacaProvider) WithDailyBarSource(src DailyBarSource) *AlpacaProvider {
	p.daily = src
	return p
}

type moverEntry struct {
	Symbol        string  `json:"symbol"`
	PercentChange float64 `json:"percent_change"`
	Change        float64 `json:"change"`
	Price         float64 `json:"price"`
}

type moversResponse struct {
	Gainers []moverEntry `json:"gainers"`
	Losers  []moverEntry `json:"losers"`
}

type activeEntry struct {
	Symbol     string  `json:"symbol"`
	Volume     float64 `json:"volume"`
	TradeCount float64 `json:"trade_count"`
}

type mostActivesResponse struct {
	MostActives []activeEntry `json:"most_actives"`
}

func (p *AlpacaProvider) getJSON(ctx context.Context, path string, out any) error {
	apiURL := strings.TrimRight(p.opts.DataURL, "/") + path

	return utils.RetryWithBackoffContext(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return utils.Permanent(err)
		}
		req.Header.Set("APCA-API-KEY-ID", p.opts.APIKey)
		req.Header.Set("APCA-API-SECRET-KEY", p.opts.APISecret)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return utils.Permanent(fmt.Errorf("alpaca %s: %s", path, resp.Status))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("alpaca %s: %s", path, resp.Status)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}, p.retry)
}

// FetchMovers returns today's top gainers by percent change.
func (p *AlpacaProvider) FetchMovers(ctx context.Context, top int) ([]types.Candidate, error) {
	var r moversResponse
	if err := p.getJSON(ctx, fmt.Sprintf("/v1beta1/screener/stocks/movers?top=%d", top), &r); err != nil {
		return nil, fmt.Errorf("failed to fetch movers: %w", err)
	}

	out := make([]types.Candidate, 0, len(r.Gainers))
	for _, g := range r.Gainers {
		out = append(out, types.Candidate{
			Symbol:    g.Symbol,
			Price:     g.Price,
			PctChange: g.PercentChange,
			Source:    "movers",
		})
	}
	return out, nil
}

// FetchMostActives returns the most traded symbols by volume.
func (p *AlpacaProvider) FetchMostActives(ctx context.Context, top int) ([]types.Candidate, error) {
	var r mostActivesResponse
	if err := p.getJSON(ctx, fmt.Sprintf("/v1beta1/screener/stocks/most-actives?by=volume&top=%d", top), &r); err != nil {
		return nil, fmt.Errorf("failed to fetch most actives: %w", err)
	}

	out := make([]types.Candidate, 0, len(r.MostActives))
	for _, a := range r.MostActives {
		out = append(out, types.Candidate{
			Symbol: a.Symbol,
			Volume: int64(a.Volume),
			Source: "most_actives",
		})
	}
	return out, nil
}

// FetchCandidates builds the raw snapshot: movers and most actives are
// merged and capped at seed, then enriched with quotes, bars, asset
// metadata and fundamentals. Symbols without a snapshot are dropped.
func (p *AlpacaProvider) FetchCandidates(ctx context.Context, sessionStart, now time.Time, seed int) ([]types.Candidate, error) {
	movers, err := p.FetchMovers(ctx, seed)
	if err != nil {
		p.metrics.IncProviderError()
		return nil, err
	}
	actives, err := p.FetchMostActives(ctx, seed)
	if err != nil {
		// Movers alone still make a usable seed list.
		p.metrics.IncProviderError()
		slog.WarnContext(ctx, "most actives unavailable", slog.Any("error", err))
	}

	seeded := scanner.SeedCandidates(seed, movers, actives)
	if len(seeded) == 0 {
		return []types.Candidate{}, nil
	}
	symbols := make([]string, 0, len(seeded))
	for _, c := range seeded {
		symbols = append(symbols, c.Symbol)
	}

	snapshots, err := p.md.GetSnapshots(symbols, marketdata.GetSnapshotRequest{Feed: p.feed})
	if err != nil {
		p.metrics.IncProviderError()
		return nil, fmt.Errorf("failed to fetch snapshots: %w", err)
	}

	intraday, err := p.md.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     sessionStart,
		End:       now,
		Feed:      p.feed,
	})
	if err != nil {
		p.metrics.IncProviderError()
		slog.WarnContext(ctx, "intraday bars unavailable", slog.Any("error", err))
		intraday = map[string][]marketdata.Bar{}
	}

	daily, err := p.daily.DailyBars(ctx, symbols, sessionStart, p.opts.BaselineDays)
	if err != nil {
		p.metrics.IncProviderError()
		slog.WarnContext(ctx, "daily bars unavailable", slog.Any("error", err))
		daily = map[string][]types.Bar{}
	}

	funds := p.fetchFundamentals(ctx, symbols)
	elapsed := elapsedFraction(sessionStart, now)

	cands := make([]types.Candidate, 0, len(seeded))
	for _, seedCand := range seeded {
		snap, ok := snapshots[seedCand.Symbol]
		if !ok || snap == nil {
			slog.DebugContext(ctx, "no snapshot", slog.String("symbol", seedCand.Symbol))
			continue
		}

		c := buildCandidate(seedCand, snap, convertBars(intraday[seedCand.Symbol]), daily[seedCand.Symbol], sessionStart)
		c.VolumeBaseline = VolumeBaseline(c.DailyBars, elapsed)
		p.applyAsset(&c)
		applyFundamentals(&c, funds[seedCand.Symbol])
		cands = append(cands, c)
	}

	slog.InfoContext(ctx, "candidates fetched",
		slog.Int("movers", len(movers)),
		slog.Int("actives", len(actives)),
		slog.Int("candidates", len(cands)))
	return cands, nil
}

// DailyBars fetches trailing daily bars straight from Alpaca.
func (p *AlpacaProvider) DailyBars(ctx context.Context, symbols []string, end time.Time, days int) (map[string][]types.Bar, error) {
	if len(symbols) == 0 {
		return map[string][]types.Bar{}, nil
	}
	// Calendar days comfortably cover the requested trading days.
	start := end.AddDate(0, 0, -(days*7/5 + 10))

	raw, err := p.md.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      p.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily bars: %w", err)
	}

	out := make(map[string][]types.Bar, len(raw))
	for sym, bars := range raw {
		converted := convertBars(bars)
		if len(converted) > days {
			converted = converted[len(converted)-days:]
		}
		out[sym] = converted
	}
	return out, nil
}

func (p *AlpacaProvider) applyAsset(c *types.Candidate) {
	asset, err := p.trading.GetAsset(c.Symbol)
	if err != nil || asset == nil {
		slog.Debug("asset lookup failed", slog.String("symbol", c.Symbol), slog.Any("error", err))
		return
	}
	c.IsOTC = strings.EqualFold(string(asset.Exchange), "OTC")
	c.IsETF = LooksLikeETF(asset.Name)
}

// LooksLikeETF guesses from the asset name; Alpaca has no fund flag.
func LooksLikeETF(name string) bool {
	upper := " " + strings.ToUpper(name) + " "
	for _, marker := range []string{" ETF ", " ETN ", " ETF,", " FUND ", " TRUST ETF"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

func buildCandidate(seed types.Candidate, snap *marketdata.Snapshot, bars, daily []types.Bar, sessionStart time.Time) types.Candidate {
	c := types.Candidate{
		Symbol:       seed.Symbol,
		Price:        seed.Price,
		PctChange:    seed.PctChange,
		Volume:       seed.Volume,
		Bars:         bars,
		DailyBars:    daily,
		SessionStart: sessionStart,
		Source:       seed.Source,
	}

	if snap.LatestTrade != nil && snap.LatestTrade.Price > 0 {
		c.Price = snap.LatestTrade.Price
	}
	if snap.DailyBar != nil {
		c.Open = snap.DailyBar.Open
		c.High = snap.DailyBar.High
		c.Low = snap.DailyBar.Low
		c.Volume = int64(snap.DailyBar.Volume)
		if c.Price == 0 {
			c.Price = snap.DailyBar.Close
		}
	}
	if snap.PrevDailyBar != nil && snap.PrevDailyBar.Close > 0 {
		c.PrevClose = snap.PrevDailyBar.Close
		c.PctChange = (c.Price - c.PrevClose) / c.PrevClose * 100
	}

	// The daily snapshot can include today's bar; history must not.
	day := sessionStart.Truncate(24 * time.Hour)
	for len(c.DailyBars) > 0 && !c.DailyBars[len(c.DailyBars)-1].Timestamp.Before(day) {
		c.DailyBars = c.DailyBars[:len(c.DailyBars)-1]
	}
	return c
}

func convertBars(in []marketdata.Bar) []types.Bar {
	out := make([]types.Bar, 0, len(in))
	for _, b := range in {
		out = append(out, types.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// VolumeBaseline approximates the usual cumulative volume at this point in
// the session as average daily volume times the elapsed share of the
// session. Nil without history.
func VolumeBaseline(daily []types.Bar, elapsed float64) *float64 {
	if len(daily) == 0 || elapsed <= 0 {
		return nil
	}
	volumes := make([]int64, len(daily))
	for i, b := range daily {
		volumes[i] = b.Volume
	}
	avg := utils.CalculateAvgVolume(volumes, len(volumes))
	if avg <= 0 {
		return nil
	}
	return types.Float(avg * elapsed)
}

func elapsedFraction(sessionStart, now time.Time) float64 {
	if sessionStart.IsZero() || !now.After(sessionStart) {
		return 0
	}
	f := float64(now.Sub(sessionStart)) / float64(sessionLength)
	return min(f, 1)
}
