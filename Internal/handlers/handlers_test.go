package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/notifications"
	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils"
	"github.com/fazecat/momentumwatch/Internal/utils/config"
)

// 08:40 America/Chicago on a Monday.
var (
	runTime      = time.Date(2025, 3, 3, 14, 40, 0, 0, time.UTC)
	sessionStart = time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)
)

type fakeMarket struct {
	open      bool
	calErr    error
	fetchErr  error
	cands     []types.Candidate
	fetches   int
	calendars int
}

func (f *fakeMarket) Name() string { return "fake" }

func (f *fakeMarket) FetchCandidates(ctx context.Context, start, now time.Time, seed int) ([]types.Candidate, error) {
	f.fetches++
	return f.cands, f.fetchErr
}

func (f *fakeMarket) TradingSession(ctx context.Context, day time.Time, mh utils.MarketHours) (time.Time, bool, error) {
	f.calendars++
	if f.calErr != nil {
		return time.Time{}, false, f.calErr
	}
	if !f.open {
		return time.Time{}, false, nil
	}
	return sessionStart, true, nil
}

type recordingNotifier struct {
	reports []notifications.Report
}

func (r *recordingNotifier) Send(ctx context.Context, report notifications.Report) error {
	r.reports = append(r.reports, report)
	return nil
}

func mover(symbol string, last float64) types.Candidate {
	bars := make([]types.Bar, 10)
	open := 10.0
	step := (last - open) / 9
	for i := range bars {
		c := open + step*float64(i)
		bars[i] = types.Bar{
			Timestamp: sessionStart.Add(time.Duration(i) * time.Minute),
			Open:      c - step/2, High: c + 0.01, Low: c - step, Close: c,
			Volume: 300_000,
		}
	}
	baseline := 1_000_000.0
	return types.Candidate{
		Symbol: symbol, Price: last, PrevClose: 9.5, PctChange: (last - 9.5) / 9.5 * 100,
		Volume: 3_000_000, Open: open, High: last + 0.01, Low: open - step,
		Bars: bars, SessionStart: sessionStart, VolumeBaseline: &baseline,
	}
}

type fixture struct {
	cfg      *config.Config
	market   *fakeMarket
	store    *datafeed.HistoryStore
	notifier *recordingNotifier
	runner   *DailyRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := datafeed.OpenHistoryStore(context.Background(), datafeed.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	market := &fakeMarket{open: true}
	for i := 0; i < 4; i++ {
		market.cands = append(market.cands, mover(fmt.Sprintf("MOV%d", i), 11+float64(i)*0.2))
	}
	n := &recordingNotifier{}

	return &fixture{
		cfg:      cfg,
		market:   market,
		store:    store,
		notifier: n,
		runner:   NewDailyRunner(cfg, market, store, n, metrics.NewMetrics(), "test"),
	}
}

func TestRun_OutsideWindow(t *testing.T) {
	f := newFixture(t)

	rep, err := f.runner.Run(context.Background(), RunOptions{Now: runTime.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOutsideWindow, rep.Outcome)
	assert.Zero(t, f.market.calendars)
	assert.Zero(t, f.market.fetches)
}

func TestRun_MarketClosed(t *testing.T) {
	f := newFixture(t)
	f.market.open = false
	f.cfg.Notifications.NotifyMarketClosed = true

	rep, err := f.runner.Run(context.Background(), RunOptions{Now: runTime})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMarketClosed, rep.Outcome)
	assert.Zero(t, f.market.fetches)
	require.Len(t, f.notifier.reports, 1)
	assert.Equal(t, notifications.KindMarketClosed, f.notifier.reports[0].Kind)
	assert.Contains(t, f.notifier.reports[0].Text, "08:40 CST")
}

func TestRun_CompletesThenSkipsDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rep, err := f.runner.Run(ctx, RunOptions{Now: runTime})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, rep.Outcome)
	assert.Equal(t, "2025-03-03", rep.RunDate)
	require.NotNil(t, rep.Record)
	assert.NotEmpty(t, rep.Record.RunID)
	assert.Equal(t, "fake", rep.Record.Provider)
	assert.Equal(t, len(rep.Record.Picks), rep.Record.PicksCount)
	assert.NotEmpty(t, rep.Record.Picks)

	stored, err := f.store.LoadRun(ctx, "2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, rep.Record.RunID, stored.RunID)

	require.Len(t, f.notifier.reports, 1)
	assert.Equal(t, notifications.KindWatchlist, f.notifier.reports[0].Kind)
	assert.Contains(t, f.notifier.reports[0].Text, "Mon Mar 3 2025 08:40 CST")

	rep, err = f.runner.Run(ctx, RunOptions{Now: runTime.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRecorded, rep.Outcome)
	assert.Equal(t, 1, f.market.fetches)
}

func TestRun_ForceOverwritesAndIgnoresGates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.runner.Run(ctx, RunOptions{Now: runTime})
	require.NoError(t, err)

	f.market.open = false
	second, err := f.runner.Run(ctx, RunOptions{Now: runTime.Add(3 * time.Hour), Force: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, second.Outcome)
	assert.NotEqual(t, first.Record.RunID, second.Record.RunID)

	stored, err := f.store.LoadRun(ctx, "2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, second.Record.RunID, stored.RunID)
}

func TestRun_FailOnDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cfg.History.FailOnDup = true

	_, err := f.runner.Run(ctx, RunOptions{Now: runTime})
	require.NoError(t, err)
	_, err = f.runner.Run(ctx, RunOptions{Now: runTime})
	assert.True(t, errors.Is(err, ErrDuplicateRun))
}

func TestRun_NoPicksReport(t *testing.T) {
	f := newFixture(t)
	f.market.cands = []types.Candidate{{Symbol: "PENY", Price: 1.2, Volume: 5_000_000}}

	rep, err := f.runner.Run(context.Background(), RunOptions{Now: runTime})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, rep.Outcome)
	assert.Empty(t, rep.Record.Picks)
	require.Len(t, f.notifier.reports, 1)
	assert.Equal(t, notifications.KindNoPicks, f.notifier.reports[0].Kind)
}

func TestRun_ProviderErrors(t *testing.T) {
	f := newFixture(t)
	f.market.fetchErr = errors.New("screener down")

	_, err := f.runner.Run(context.Background(), RunOptions{Now: runTime})
	require.Error(t, err)

	exists, err := f.store.Exists(context.Background(), "2025-03-03")
	require.NoError(t, err)
	assert.False(t, exists)

	f.market.fetchErr = nil
	f.market.calErr = errors.New("calendar down")
	_, err = f.runner.Run(context.Background(), RunOptions{Now: runTime})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar")
}

func TestBuildNotifier(t *testing.T) {
	cfg := config.Default()
	n := BuildNotifier(cfg, notifications.NewLogNotifier(nil))
	assert.Len(t, n, 1)

	cfg.Notifications.Channels.Webhook = true
	cfg.Notifications.WebhookURL = "http://localhost:9/hook"
	assert.Len(t, BuildNotifier(cfg, nil), 1)

	cfg.Notifications.Channels.Email = true
	assert.Len(t, BuildNotifier(cfg, nil), 1, "email without credentials is skipped")

	cfg.Notifications.Email.SendGridAPIKey = "sg-key"
	cfg.Notifications.Email.FromEmail = "scanner@example.com"
	cfg.Notifications.Email.ToEmail = "a@example.com, b@example.com"
	multi, ok := BuildNotifier(cfg, notifications.NewLogNotifier(nil)).(notifications.MultiNotifier)
	require.True(t, ok)
	require.Len(t, multi, 3)
	assert.IsType(t, &notifications.EmailNotifier{}, multi[2])
}
