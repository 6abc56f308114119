// Package handlers drives one daily scan from time gate to delivery.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/logger"
	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/notifications"
	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils"
	"github.com/fazecat/momentumwatch/Internal/utils/config"
	"github.com/fazecat/momentumwatch/Internal/utils/scanner"
)

var (
	ErrRunInProgress = errors.New("a scan is already running")
	ErrDuplicateRun  = errors.New("run already recorded for today")
)

type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeOutsideWindow   Outcome = "skipped_outside_window"
	OutcomeMarketClosed    Outcome = "skipped_market_closed"
	OutcomeAlreadyRecorded Outcome = "skipped_duplicate"
)

// MarketSource is a candidate source that also knows the trading calendar.
type MarketSource interface {
	scanner.CandidateSource
	TradingSession(ctx context.Context, day time.Time, mh utils.MarketHours) (time.Time, bool, error)
}

type RunHistory interface {
	Exists(ctx context.Context, runDate string) (bool, error)
	SaveRun(ctx context.Context, rec types.RunRecord, force bool) error
	Cleanup(ctx context.Context, now time.Time, keepDays int) (int64, error)
}

type RunOptions struct {
	Force bool
	Now   time.Time // zero means time.Now()
}

type RunReport struct {
	Outcome Outcome               `json:"outcome"`
	RunDate string                `json:"run_date"`
	Record  *types.RunRecord      `json:"record,omitempty"`
	Report  *notifications.Report `json:"-"`
}

// DailyRunner wires the scanner to its collaborators. Only one Run executes
// at a time.
type DailyRunner struct {
	cfg      *config.Config
	scanner  *scanner.Scanner
	source   MarketSource
	history  RunHistory
	notifier notifications.Notifier
	metrics  *metrics.Metrics
	version  string

	mu sync.Mutex
}

func NewDailyRunner(cfg *config.Config, src MarketSource, history RunHistory, notifier notifications.Notifier, m *metrics.Metrics, version string) *DailyRunner {
	return &DailyRunner{
		cfg:      cfg,
		scanner:  scanner.New(cfg.ScannerConfig(), m),
		source:   src,
		history:  history,
		notifier: notifier,
		metrics:  m,
		version:  version,
	}
}

// Run gates on the execution window, the trading calendar and the
// duplicate guard, then scans, persists and notifies. Force skips all
// three gates and overwrites an existing record.
func (d *DailyRunner) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if !d.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer d.mu.Unlock()

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	window, err := d.cfg.ExecutionWindow()
	if err != nil {
		return nil, err
	}
	mh, err := d.cfg.MarketHours()
	if err != nil {
		return nil, err
	}
	runDate := now.In(window.Location).Format("2006-01-02")
	report := &RunReport{RunDate: runDate}

	if !opts.Force && !window.Contains(now) {
		slog.InfoContext(ctx, "outside execution window", slog.Time("now", now), slog.String("run_time", d.cfg.Schedule.RunTime))
		d.metrics.IncRun(string(OutcomeOutsideWindow))
		report.Outcome = OutcomeOutsideWindow
		return report, nil
	}

	sessionStart, open, err := d.source.TradingSession(ctx, now, mh)
	if err != nil {
		d.metrics.IncProviderError()
		return nil, fmt.Errorf("failed to check market calendar: %w", err)
	}
	if !open {
		if !opts.Force {
			slog.InfoContext(ctx, "market closed today", slog.String("date", runDate))
			d.notifyMarketClosed(ctx, runDate, now, window.Location)
			d.metrics.IncRun(string(OutcomeMarketClosed))
			report.Outcome = OutcomeMarketClosed
			return report, nil
		}
		sessionStart = mh.SessionOpen(now)
	}

	if !opts.Force {
		exists, err := d.history.Exists(ctx, runDate)
		if err != nil {
			return nil, err
		}
		if exists {
			if d.cfg.History.FailOnDup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateRun, runDate)
			}
			slog.InfoContext(ctx, "run already recorded", slog.String("date", runDate))
			d.metrics.IncRun(string(OutcomeAlreadyRecorded))
			report.Outcome = OutcomeAlreadyRecorded
			return report, nil
		}
	}

	runID := logger.NewRunID()
	ctx = logger.WithRunID(ctx, runID)
	slog.InfoContext(ctx, "scan starting", append(logger.LogWithRun(ctx),
		slog.String("date", runDate),
		slog.Bool("forced", opts.Force),
		slog.Time("session_start", sessionStart))...)

	result, err := d.scanner.Scan(ctx, d.source, sessionStart, now, d.cfg.Output.TopNSeed)
	if err != nil {
		d.metrics.IncRun("error")
		return nil, err
	}

	rec := types.RunRecord{
		RunID:        runID,
		RunDate:      runDate,
		RunTimestamp: now.UTC(),
		Provider:     d.source.Name(),
		Version:      d.version,
		PicksCount:   len(result.Picks),
		Picks:        result.Picks,
		Leaderboard:  result.Leaderboard,
		Rejected:     result.Rejected,
	}

	if err := d.history.SaveRun(ctx, rec, opts.Force); err != nil {
		if errors.Is(err, datafeed.ErrRunExists) {
			d.metrics.IncRun(string(OutcomeAlreadyRecorded))
			report.Outcome = OutcomeAlreadyRecorded
			return report, nil
		}
		d.metrics.IncRun("error")
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	msg, err := notifications.BuildReport(rec, d.meta(runID, now, window.Location))
	if err != nil {
		slog.ErrorContext(ctx, "report rendering failed", slog.Any("error", err))
	} else {
		report.Report = &msg
		if d.notifier != nil {
			if err := d.notifier.Send(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "notification failed", slog.Any("error", err))
			}
		}
	}

	if removed, err := d.history.Cleanup(ctx, now, d.cfg.History.KeepDays); err != nil {
		slog.WarnContext(ctx, "history cleanup failed", slog.Any("error", err))
	} else if removed > 0 {
		slog.InfoContext(ctx, "history cleaned", slog.Int64("removed", removed))
	}

	d.metrics.IncRun(string(OutcomeCompleted))
	report.Outcome = OutcomeCompleted
	report.Record = &rec
	return report, nil
}

func (d *DailyRunner) notifyMarketClosed(ctx context.Context, runDate string, now time.Time, loc *time.Location) {
	if !d.cfg.Notifications.NotifyMarketClosed || d.notifier == nil {
		return
	}
	msg, err := notifications.BuildMarketClosedReport(runDate, d.meta("", now, loc))
	if err == nil {
		err = d.notifier.Send(ctx, msg)
	}
	if err != nil {
		slog.ErrorContext(ctx, "market closed notification failed", slog.Any("error", err))
	}
}

// meta stamps reports in the schedule timezone the run was gated on.
func (d *DailyRunner) meta(runID string, now time.Time, loc *time.Location) notifications.RunMeta {
	return notifications.RunMeta{
		RunID:     runID,
		Timestamp: now,
		Location:  loc,
		Provider:  d.source.Name(),
		Version:   d.version,
		Capital:   d.cfg.Account.TradingCapital,
	}
}

// BuildNotifier assembles the configured delivery channels.
func BuildNotifier(cfg *config.Config, console *notifications.LogNotifier) notifications.Notifier {
	var multi notifications.MultiNotifier
	if cfg.Notifications.Channels.Console && console != nil {
		multi = append(multi, console)
	}
	if cfg.Notifications.Channels.Webhook && cfg.Notifications.WebhookURL != "" {
		multi = append(multi, notifications.NewWebhookNotifier(cfg.Notifications.WebhookURL))
	}
	if cfg.Notifications.Channels.Email {
		email, err := notifications.NewEmailNotifier(cfg.EmailConfig())
		if err != nil {
			slog.Error("email channel disabled", slog.Any("error", err))
		} else {
			multi = append(multi, email)
		}
	}
	return multi
}
