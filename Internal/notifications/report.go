package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils/formatting"
	"github.com/fazecat/momentumwatch/Internal/utils/scoring"
)

const disclaimer = "This watchlist is for informational purposes only and is not investment advice. " +
	"Trading involves risk of loss."

type ReportKind string

const (
	KindWatchlist    ReportKind = "watchlist"
	KindNoPicks      ReportKind = "no_picks"
	KindMarketClosed ReportKind = "market_closed"
)

// Report is one rendered message, ready for any Notifier.
type Report struct {
	Kind    ReportKind `json:"kind"`
	Subject string     `json:"subject"`
	Text    string     `json:"text"`
	HTML    string     `json:"html"`
}

// RunMeta is the header information shown on every report.
type RunMeta struct {
	RunID     string
	Timestamp time.Time
	Location  *time.Location
	Provider  string
	Version   string
	Capital   float64
}

func (m RunMeta) stamp() string {
	ts := m.Timestamp
	if m.Location != nil {
		ts = ts.In(m.Location)
	}
	return ts.Format("Mon Jan 2 2006 15:04 MST")
}

// BuildReport renders the watchlist for rec, or the no-picks variant when
// nothing qualified.
func BuildReport(rec types.RunRecord, meta RunMeta) (Report, error) {
	if len(rec.Picks) == 0 {
		return BuildNoPicksReport(rec, meta)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "MOMENTUM WATCHLIST  %s  (%s)\n", meta.stamp(), meta.Provider)
	text.WriteString(formatting.Separator(72) + "\n")
	for _, p := range rec.Picks {
		writePickText(&text, p)
	}
	if len(rec.Leaderboard) > 0 {
		text.WriteString("\nLEADERBOARD\n")
		text.WriteString(formatting.Separator(72) + "\n")
		for _, e := range rec.Leaderboard {
			vwap := "below"
			if e.AboveVWAP {
				vwap = "above"
			}
			fmt.Fprintf(&text, "%2d. %-6s score %6.3f  %8s  rvol %.1fx  hod %s  vwap %s\n",
				e.Rank, e.Symbol, e.Score, formatting.SignedPercent(e.PctChange), e.RVOL,
				formatting.Ratio(e.NearHOD), vwap)
		}
	}
	text.WriteString("\n" + disclaimer + "\n")

	html, err := render("watchlist", watchlistHTML, map[string]any{
		"Meta":        meta,
		"Stamp":       meta.stamp(),
		"Picks":       rec.Picks,
		"Leaderboard": rec.Leaderboard,
		"Disclaimer":  disclaimer,
	})
	if err != nil {
		return Report{}, err
	}

	return Report{
		Kind:    KindWatchlist,
		Subject: fmt.Sprintf("Momentum Watchlist %s: %s", rec.RunDate, pickSymbols(rec.Picks)),
		Text:    text.String(),
		HTML:    html,
	}, nil
}

// BuildNoPicksReport lists the first rejections so the reader sees why the
// day came up empty.
func BuildNoPicksReport(rec types.RunRecord, meta RunMeta) (Report, error) {
	rejected := rec.Rejected
	if len(rejected) > 10 {
		rejected = rejected[:10]
	}

	var text strings.Builder
	fmt.Fprintf(&text, "NO PICKS TODAY  %s  (%s)\n", meta.stamp(), meta.Provider)
	text.WriteString(formatting.Separator(72) + "\n")
	text.WriteString("No stocks met all criteria for today's watchlist.\n")
	if len(rejected) > 0 {
		text.WriteString("\nTop rejected candidates:\n")
		for _, r := range rejected {
			fmt.Fprintf(&text, "  %-6s %s\n", r.Symbol, r.Reason)
		}
	}
	text.WriteString("\n" + disclaimer + "\n")

	html, err := render("no_picks", noPicksHTML, map[string]any{
		"Stamp":      meta.stamp(),
		"Meta":       meta,
		"Rejected":   rejected,
		"Disclaimer": disclaimer,
	})
	if err != nil {
		return Report{}, err
	}
	return Report{
		Kind:    KindNoPicks,
		Subject: fmt.Sprintf("Momentum Watchlist %s: no picks", rec.RunDate),
		Text:    text.String(),
		HTML:    html,
	}, nil
}

func BuildMarketClosedReport(date string, meta RunMeta) (Report, error) {
	text := fmt.Sprintf("MARKET CLOSED  %s\nThe market is closed today (%s). No watchlist generated.\n", meta.stamp(), date)
	html, err := render("market_closed", marketClosedHTML, map[string]any{
		"Stamp":      meta.stamp(),
		"Date":       date,
		"Disclaimer": disclaimer,
	})
	if err != nil {
		return Report{}, err
	}
	return Report{
		Kind:    KindMarketClosed,
		Subject: fmt.Sprintf("Market closed %s", date),
		Text:    text,
		HTML:    html,
	}, nil
}

func writePickText(b *strings.Builder, p types.TradePlan) {
	c := p.Candidate
	ind := p.Indicators
	fmt.Fprintf(b, "\n#%d %s  %s  %s  score %.3f %s  [%s]\n",
		p.Rank, c.Symbol, formatting.Price(&c.Price), formatting.SignedPercent(c.PctChange),
		p.FinalScore, scoring.ScoreCategory(p.FinalScore), p.Setup)
	fmt.Fprintf(b, "   vol %s  rvol %.1fx  vwap %s  hod %s (%s)  atr %s\n",
		formatting.Volume(c.Volume), ind.RVOL, formatting.Price(ind.VWAP), formatting.Price(ind.HOD),
		formatting.Ratio(ind.NearHOD), formatting.Price(ind.ATR))
	fmt.Fprintf(b, "   buy %s - %s  stop %s  targets %s / %s / %s\n",
		formatting.Price(p.BuyZoneLow), formatting.Price(p.BuyZoneHigh), formatting.Price(p.Stop),
		formatting.Price(p.Target1), formatting.Price(p.Target2), formatting.Price(p.Target3))
	if pos := p.Position; pos != nil {
		goal := ""
		if pos.MeetsDailyGoal {
			goal = "  meets daily goal"
		}
		fmt.Fprintf(b, "   size %d sh  risk $%.2f  T1 +$%.2f  T2 +$%.2f  T3 +$%.2f%s\n",
			pos.Shares, pos.DollarRisk, pos.ProfitT1, pos.ProfitT2, pos.ProfitT3, goal)
	} else if p.PositionNote != "" {
		fmt.Fprintf(b, "   size n/a (%s)\n", p.PositionNote)
	}
	if flags := p.RiskFlags.List(); len(flags) > 0 {
		fmt.Fprintf(b, "   flags: %s\n", strings.Join(flags, ", "))
	}
	if p.Explanation != "" {
		fmt.Fprintf(b, "   %s\n", p.Explanation)
	}
}

func pickSymbols(picks []types.TradePlan) string {
	syms := make([]string, 0, len(picks))
	for _, p := range picks {
		syms = append(syms, p.Candidate.Symbol)
	}
	return strings.Join(syms, ", ")
}

var funcs = template.FuncMap{
	"price":  formatting.Price,
	"pct":    formatting.SignedPercent,
	"ratio":  formatting.Ratio,
	"volume": formatting.Volume,
	"score":  func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"money":  func(v float64) string { return fmt.Sprintf("$%.2f", v) },
}

func render(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Funcs(funcs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s report: %w", name, err)
	}
	return buf.String(), nil
}

const pageHead = `<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; color: #1f2937;">`

const pageFoot = `<p style="font-size: 11px; color: #888; margin-top: 30px; border-top: 1px solid #ddd; padding-top: 15px;">{{.Disclaimer}}</p>
</body></html>`

const watchlistHTML = pageHead + `
<h1>Momentum Watchlist</h1>
<p>{{.Stamp}} | Provider: {{.Meta.Provider}}</p>
<h2>Today's Top Picks ({{len .Picks}})</h2>
{{range .Picks}}
<div style="border: 1px solid #e5e7eb; border-radius: 8px; padding: 16px; margin-bottom: 16px;">
  <div><strong>#{{.Rank}} {{.Candidate.Symbol}}</strong> {{money .Candidate.Price}} {{pct .Candidate.PctChange}}
    <span style="float: right;">Score {{score .FinalScore}} | {{.Setup}}</span></div>
  <div>Volume {{volume .Candidate.Volume}} | RVOL {{printf "%.1f" .Indicators.RVOL}}x | VWAP {{price .Indicators.VWAP}} | HOD {{price .Indicators.HOD}} ({{ratio .Indicators.NearHOD}})</div>
  <div>Buy {{price .BuyZoneLow}} - {{price .BuyZoneHigh}} | Stop {{price .Stop}} | Targets {{price .Target1}} / {{price .Target2}} / {{price .Target3}}</div>
  {{with .Position}}<div>Shares {{.Shares}} | Risk {{money .DollarRisk}} | T1 profit {{money .ProfitT1}}{{if .MeetsDailyGoal}} | meets goal{{end}}</div>{{end}}
  {{with .RiskFlags.List}}<div>{{range .}}<span style="background: #fef3c7; padding: 2px 6px; margin-right: 4px;">{{.}}</span>{{end}}</div>{{end}}
  <div style="font-size: 12px; color: #6b7280; font-style: italic;">{{.Explanation}}</div>
</div>
{{end}}
{{if .Leaderboard}}
<h2>Leaderboard</h2>
<table style="width: 100%; border-collapse: collapse; font-size: 13px;">
<tr><th>Rank</th><th>Symbol</th><th>Score</th><th>% Chg</th><th>RVOL</th><th>Near HOD</th><th>VWAP</th></tr>
{{range .Leaderboard}}<tr><td>{{.Rank}}</td><td>{{.Symbol}}</td><td>{{score .Score}}</td><td>{{pct .PctChange}}</td><td>{{printf "%.1f" .RVOL}}x</td><td>{{ratio .NearHOD}}</td><td>{{if .AboveVWAP}}above{{else}}below{{end}}</td></tr>
{{end}}</table>
{{end}}
` + pageFoot

const noPicksHTML = pageHead + `
<h1>No Picks Today</h1>
<p>{{.Stamp}} | Provider: {{.Meta.Provider}}</p>
<p>No stocks met all criteria for today's watchlist.</p>
{{if .Rejected}}<h3>Top Rejected Candidates</h3>
<table><tr><th>Symbol</th><th>Reason</th></tr>
{{range .Rejected}}<tr><td>{{.Symbol}}</td><td>{{.Reason}}</td></tr>
{{end}}</table>{{end}}
` + pageFoot

const marketClosedHTML = pageHead + `
<h1>Market Closed</h1>
<p>{{.Stamp}}</p>
<p>The market is closed today ({{.Date}}). No watchlist generated.</p>
` + pageFoot
