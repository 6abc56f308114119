package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ConfigureInteractive allows users to interactively tune thresholds and
// save them to path.
func ConfigureInteractive(cfg *Config, in io.Reader, out io.Writer, path string) error {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprintln(out, "\n⚙️  Configuration Menu:")
		fmt.Fprintln(out, "1. View Current Configuration")
		fmt.Fprintln(out, "2. Configure Filters")
		fmt.Fprintln(out, "3. Configure Ranking Weights")
		fmt.Fprintln(out, "4. Configure Account Risk")
		fmt.Fprintln(out, "5. Save & Exit")
		fmt.Fprint(out, "Select option: ")

		choice, err := reader.ReadString('\n')
		if err != nil && choice == "" {
			return fmt.Errorf("configuration aborted: %w", err)
		}

		switch strings.TrimSpace(choice) {
		case "1":
			DisplayConfiguration(cfg, out)
		case "2":
			configureFilters(cfg, reader, out)
		case "3":
			configureWeights(cfg, reader, out)
		case "4":
			configureAccount(cfg, reader, out)
		case "5":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "❌ %v\n", err)
				continue
			}
			if err := SaveConfig(cfg, path); err != nil {
				fmt.Fprintf(out, "❌ Error saving config: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "✅ Configuration saved successfully!")
			return nil
		default:
			fmt.Fprintln(out, "❌ Invalid option")
		}
	}
}

// DisplayConfiguration shows current configuration
func DisplayConfiguration(cfg *Config, out io.Writer) {
	fmt.Fprintln(out, "\n📋 Current Configuration:")

	f := cfg.Filters
	fmt.Fprintln(out, "\n=== Filters ===")
	fmt.Fprintf(out, "  • Min Price: $%.2f\n", f.MinPrice)
	fmt.Fprintf(out, "  • Min Volume: %d\n", f.MinVolume)
	fmt.Fprintf(out, "  • Float: %d - %d\n", f.MinFloat, f.MaxFloat)
	fmt.Fprintf(out, "  • Market Cap: $%.0f - $%.0f\n", f.MinMarketCap, f.MaxMarketCap)
	fmt.Fprintf(out, "  • Max Pct Change: %.1f%%\n", f.MaxPctChange)
	fmt.Fprintf(out, "  • Exclude OTC: %s\n", enabledStr(f.ExcludeOTC))
	fmt.Fprintf(out, "  • Exclude ETF: %s\n", enabledStr(f.ExcludeETF))

	w := cfg.Ranking.Weights
	fmt.Fprintln(out, "\n=== Ranking ===")
	fmt.Fprintf(out, "  • Weights: pct %.2f / rvol %.2f / near HOD %.2f\n", w.PctChange, w.RVOL, w.NearHOD)
	fmt.Fprintf(out, "  • Max Extension: %.1f ATR\n", cfg.Ranking.MaxExtensionATR)

	a := cfg.Account
	fmt.Fprintln(out, "\n=== Account ===")
	fmt.Fprintf(out, "  • Trading Capital: $%.2f\n", a.TradingCapital)
	fmt.Fprintf(out, "  • Max Risk: %.2f%%\n", a.MaxRiskPercent)
	fmt.Fprintf(out, "  • Daily Profit Goal: $%.2f\n", a.DailyProfitGoal)

	fmt.Fprintln(out, "\n=== Schedule ===")
	fmt.Fprintf(out, "Run Time: %s %s (±%d min)\n", cfg.Schedule.RunTime, cfg.Schedule.Timezone, cfg.Schedule.ToleranceMinute)
	fmt.Fprintf(out, "Picks: %d, Seed: %d\n", cfg.Output.Picks, cfg.Output.TopNSeed)
}

func configureFilters(cfg *Config, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "\n🔎 Configure Filters (blank keeps current):")
	promptFloat(reader, out, "Min price", &cfg.Filters.MinPrice)
	promptInt(reader, out, "Min volume", &cfg.Filters.MinVolume)
	promptInt(reader, out, "Min float (0 = off)", &cfg.Filters.MinFloat)
	promptInt(reader, out, "Max float (0 = off)", &cfg.Filters.MaxFloat)
	promptFloat(reader, out, "Max pct change", &cfg.Filters.MaxPctChange)
	fmt.Fprintln(out, "✅ Filters updated")
}

func configureWeights(cfg *Config, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "\n⚖️  Configure Ranking Weights:")
	promptFloat(reader, out, "Pct change weight", &cfg.Ranking.Weights.PctChange)
	promptFloat(reader, out, "RVOL weight", &cfg.Ranking.Weights.RVOL)
	promptFloat(reader, out, "Near HOD weight", &cfg.Ranking.Weights.NearHOD)
	promptFloat(reader, out, "Max extension (ATR)", &cfg.Ranking.MaxExtensionATR)

	w := cfg.Ranking.Weights
	if sum := w.PctChange + w.RVOL + w.NearHOD; sum > 0 && (sum < 0.99 || sum > 1.01) {
		fmt.Fprintf(out, "⚠️  Weights sum to %.2f; scores will not span -1..1 as usual\n", sum)
	}
	fmt.Fprintln(out, "✅ Weights updated")
}

func configureAccount(cfg *Config, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "\n💰 Configure Account Risk:")
	promptFloat(reader, out, "Trading capital", &cfg.Account.TradingCapital)
	promptFloat(reader, out, "Max risk percent", &cfg.Account.MaxRiskPercent)
	promptFloat(reader, out, "Daily profit goal", &cfg.Account.DailyProfitGoal)
	fmt.Fprintln(out, "✅ Account updated")
}

func promptFloat(reader *bufio.Reader, out io.Writer, label string, dst *float64) {
	fmt.Fprintf(out, "%s [%g]: ", label, *dst)
	input, _ := reader.ReadString('\n')
	if val, err := strconv.ParseFloat(strings.TrimSpace(input), 64); err == nil {
		*dst = val
	}
}

func promptInt(reader *bufio.Reader, out io.Writer, label string, dst *int64) {
	fmt.Fprintf(out, "%s [%d]: ", label, *dst)
	input, _ := reader.ReadString('\n')
	if val, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64); err == nil {
		*dst = val
	}
}

func enabledStr(enabled bool) string {
	if enabled {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}
