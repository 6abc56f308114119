package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/handlers"
	"github.com/fazecat/momentumwatch/Internal/notifications"
	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils"
	"github.com/fazecat/momentumwatch/Internal/utils/config"
	"github.com/fazecat/momentumwatch/Internal/utils/formatting"
)

type Runner interface {
	Run(ctx context.Context, opts handlers.RunOptions) (*handlers.RunReport, error)
}

type History interface {
	LatestRun(ctx context.Context) (*types.RunRecord, error)
	LoadRun(ctx context.Context, runDate string) (*types.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]datafeed.RunSummary, error)
	SymbolHistory(ctx context.Context, symbol string, limit int) ([]datafeed.PickRecord, error)
}

// Menu is the terminal front end over the runner and the run history.
type Menu struct {
	Runner     Runner
	History    History
	Config     *config.Config
	ConfigPath string

	in  *bufio.Reader
	out io.Writer
}

func NewMenu(runner Runner, history History, cfg *config.Config, configPath string, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		Runner:     runner,
		History:    history,
		Config:     cfg,
		ConfigPath: configPath,
		in:         bufio.NewReader(in),
		out:        out,
	}
}

// Loop shows the menu until the user exits or input ends.
func (m *Menu) Loop(ctx context.Context) error {
	for {
		fmt.Fprintln(m.out, "\n--- Momentum Watch Menu ---")
		fmt.Fprintln(m.out, "1. Run Scan Now")
		fmt.Fprintln(m.out, "2. Show Latest Watchlist")
		fmt.Fprintln(m.out, "3. Show Watchlist By Date")
		fmt.Fprintln(m.out, "4. Run History")
		fmt.Fprintln(m.out, "5. Symbol Pick History")
		fmt.Fprintln(m.out, "6. Market Status")
		fmt.Fprintln(m.out, "7. Configure Settings")
		fmt.Fprintln(m.out, "8. Exit")
		fmt.Fprint(m.out, "Enter choice (1-8): ")

		choice, err := m.readLine()
		if err != nil {
			return nil
		}

		switch choice {
		case "1":
			m.runScan(ctx)
		case "2":
			rec, err := m.History.LatestRun(ctx)
			m.showRun(rec, err)
		case "3":
			fmt.Fprint(m.out, "Date (YYYY-MM-DD): ")
			input, _ := m.readLine()
			date := formatting.ParseDate(input)
			if date.IsZero() {
				fmt.Fprintln(m.out, "❌ Invalid date")
				continue
			}
			rec, err := m.History.LoadRun(ctx, date.Format("2006-01-02"))
			m.showRun(rec, err)
		case "4":
			m.showHistory(ctx)
		case "5":
			fmt.Fprint(m.out, "Symbol: ")
			sym, _ := m.readLine()
			m.showSymbol(ctx, strings.ToUpper(sym))
		case "6":
			m.showMarketStatus(time.Now())
		case "7":
			if err := config.ConfigureInteractive(m.Config, m.in, m.out, m.ConfigPath); err != nil {
				fmt.Fprintf(m.out, "❌ %v\n", err)
			}
		case "8":
			fmt.Fprintln(m.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(m.out, "Invalid choice. Try again.")
		}
	}
}

func (m *Menu) readLine() (string, error) {
	line, err := m.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (m *Menu) runScan(ctx context.Context) {
	fmt.Fprintln(m.out, "🔍 Running scan (forced)...")
	rep, err := m.Runner.Run(ctx, handlers.RunOptions{Force: true})
	if err != nil {
		fmt.Fprintf(m.out, "❌ Scan failed: %v\n", err)
		return
	}
	fmt.Fprintf(m.out, "✅ %s for %s\n", rep.Outcome, rep.RunDate)
	if rep.Report != nil {
		fmt.Fprint(m.out, rep.Report.Text)
	}
}

func (m *Menu) showRun(rec *types.RunRecord, err error) {
	if errors.Is(err, datafeed.ErrRunNotFound) {
		fmt.Fprintln(m.out, "No run recorded.")
		return
	}
	if err != nil {
		fmt.Fprintf(m.out, "❌ %v\n", err)
		return
	}
	var loc *time.Location
	if window, err := m.Config.ExecutionWindow(); err == nil {
		loc = window.Location
	} else {
		fmt.Fprintf(m.out, "⚠️  showing UTC times: %v\n", err)
	}
	report, err := notifications.BuildReport(*rec, notifications.RunMeta{
		RunID:     rec.RunID,
		Timestamp: rec.RunTimestamp,
		Location:  loc,
		Provider:  rec.Provider,
		Version:   rec.Version,
	})
	if err != nil {
		fmt.Fprintf(m.out, "❌ %v\n", err)
		return
	}
	fmt.Fprint(m.out, report.Text)
}

func (m *Menu) showHistory(ctx context.Context) {
	runs, err := m.History.ListRuns(ctx, 20)
	if err != nil {
		fmt.Fprintf(m.out, "❌ %v\n", err)
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(m.out, "No runs recorded yet.")
		return
	}
	fmt.Fprintf(m.out, "\n%-12s %-8s %-6s %s\n", "Date", "Provider", "Picks", "Run ID")
	fmt.Fprintln(m.out, formatting.Separator(64))
	for _, r := range runs {
		fmt.Fprintf(m.out, "%-12s %-8s %-6d %s\n", r.RunDate, r.Provider, r.PicksCount, r.RunID)
	}
}

func (m *Menu) showSymbol(ctx context.Context, symbol string) {
	picks, err := m.History.SymbolHistory(ctx, symbol, 20)
	if err != nil {
		fmt.Fprintf(m.out, "❌ %v\n", err)
		return
	}
	if len(picks) == 0 {
		fmt.Fprintf(m.out, "%s has not been picked.\n", symbol)
		return
	}
	for _, p := range picks {
		fmt.Fprintf(m.out, "%s  #%d %-6s %-15s score %s  buy %s stop %s t1 %s\n",
			p.RunDate, p.Rank, p.Symbol, p.Setup, p.Score, orNA(p.BuyLow), orNA(p.Stop), orNA(p.Target1))
	}
}

func (m *Menu) showMarketStatus(now time.Time) {
	mh, err := m.Config.MarketHours()
	if err != nil {
		fmt.Fprintf(m.out, "❌ %v\n", err)
		return
	}
	status, open := utils.CheckMarketStatus(now, mh)
	fmt.Fprintf(m.out, "Market Status: %s (Open: %v)\n", status, open)
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
