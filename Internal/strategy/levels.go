package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fazecat/momentumwatch/Internal/handlers/risk"
	"github.com/fazecat/momentumwatch/Internal/types"
)

type LevelConfig struct {
	StopATRMultiple    float64
	TargetATRMultiples [3]float64
	BuyZoneWidthATR    map[types.SetupType]float64

	// Risk flag thresholds
	MaxExtensionATR   float64
	NearHODThreshold  float64
	LowVolume         int64
	ExtremeGainerPct  float64
	LowFloat          int64
	LargeCapMarketCap float64
}

func DefaultLevelConfig() LevelConfig {
	return LevelConfig{
		StopATRMultiple:    1.0,
		TargetATRMultiples: [3]float64{1, 2, 3},
		BuyZoneWidthATR: map[types.SetupType]float64{
			types.SetupORBBreakout:   0.15,
			types.SetupVWAPReclaim:   0.20,
			types.SetupFirstPullback: 0.20,
			types.SetupFallback:      0.15,
		},
		MaxExtensionATR:   2.0,
		NearHODThreshold:  0.97,
		LowVolume:         500_000,
		ExtremeGainerPct:  30,
		LowFloat:          10_000_000,
		LargeCapMarketCap: 20_000_000_000,
	}
}

// Anchor returns the price the setup's levels are built around.
func Anchor(cs types.ClassifiedSetup) float64 {
	ind := cs.Indicators
	price := cs.Candidate.Price

	switch cs.Setup {
	case types.SetupORBBreakout:
		if ind.ORH != nil {
			return *ind.ORH
		}
	case types.SetupVWAPReclaim:
		if ind.VWAP != nil {
			return *ind.VWAP
		}
	case types.SetupFirstPullback:
		if ind.PullbackHigh != nil {
			return *ind.PullbackHigh
		}
	}
	return price
}

// ComputeLevels derives the buy zone, stop and targets from the setup anchor
// and ATR. The stop never sits above the buy zone and targets strictly
// increase. Without any ATR estimate the levels stay nil.
func ComputeLevels(cs types.ClassifiedSetup, cfg LevelConfig) types.TradePlan {
	plan := types.TradePlan{
		ClassifiedSetup:   cs,
		RiskFlags:         ComputeRiskFlags(cs, cfg),
		ReducedConfidence: cs.Indicators.ATRReducedConfidence,
	}

	atr := cs.Indicators.ATR
	if atr == nil || *atr <= 0 {
		plan.ReducedConfidence = true
		plan.Explanation = explain(plan) + " | no ATR estimate, levels unavailable"
		return plan
	}

	anchor := Anchor(cs)
	width := cfg.BuyZoneWidthATR[cs.Setup]

	buyLow := anchor
	buyHigh := anchor + width**atr
	stop := min(anchor-cfg.StopATRMultiple**atr, buyLow)

	plan.BuyZoneLow = types.Float(buyLow)
	plan.BuyZoneHigh = types.Float(buyHigh)
	plan.Stop = types.Float(stop)
	plan.Target1 = types.Float(anchor + cfg.TargetATRMultiples[0]**atr)
	plan.Target2 = types.Float(anchor + cfg.TargetATRMultiples[1]**atr)
	plan.Target3 = types.Float(anchor + cfg.TargetATRMultiples[2]**atr)

	plan.Explanation = explain(plan)
	return plan
}

// ComputeRiskFlags evaluates each advisory flag on its own. A flag whose
// input is unavailable stays false.
func ComputeRiskFlags(cs types.ClassifiedSetup, cfg LevelConfig) types.RiskFlags {
	c := cs.Candidate
	ind := cs.Indicators
	var flags types.RiskFlags

	if ind.VWAP != nil {
		flags.BelowVWAP = c.Price < *ind.VWAP
		if ind.ATR != nil && *ind.ATR > 0 {
			flags.OverextendedATR = (c.Price-*ind.VWAP) / *ind.ATR > cfg.MaxExtensionATR
		}
	}
	flags.NotNearHOD = ind.NearHOD < cfg.NearHODThreshold
	flags.LowVolume = c.Volume < cfg.LowVolume
	flags.FadingFromOpen = ind.VsOpenPct != nil && *ind.VsOpenPct < 0
	flags.ExtremeGainer = c.PctChange > cfg.ExtremeGainerPct
	flags.LowFloat = c.Float != nil && *c.Float < cfg.LowFloat
	flags.LargeCap = c.MarketCap != nil && *c.MarketCap > cfg.LargeCapMarketCap

	return flags
}

// BuildPlans turns classified setups into trade plans. Position sizing runs
// only when account parameters are given.
func BuildPlans(classified []types.ClassifiedSetup, cfg LevelConfig, account *risk.AccountRisk) []types.TradePlan {
	plans := make([]types.TradePlan, 0, len(classified))
	for _, cs := range classified {
		plan := ComputeLevels(cs, cfg)
		if plan.Target1 != nil {
			if v := ValidatePlan(plan); !v.IsValid {
				slog.Warn("plan failed validation",
					slog.String("symbol", cs.Candidate.Symbol),
					slog.String("issues", strings.Join(v.Issues, "; ")))
			}
		}

		if account != nil {
			pos, err := risk.CalculatePositionSize(plan, *account)
			switch {
			case err == nil:
				plan.Position = pos
			case errors.Is(err, risk.ErrSizingUnavailable):
				plan.PositionNote = err.Error()
			default:
				plan.PositionNote = fmt.Sprintf("sizing failed: %v", err)
			}
		}

		plans = append(plans, plan)
	}
	return plans
}

type PlanValidation struct {
	IsValid bool
	Issues  []string
}

// ValidatePlan checks the ordering guarantees of a long plan.
func ValidatePlan(plan types.TradePlan) *PlanValidation {
	validation := &PlanValidation{
		IsValid: true,
		Issues:  []string{},
	}

	if plan.BuyZoneLow == nil || plan.Stop == nil || plan.Target1 == nil || plan.Target2 == nil || plan.Target3 == nil {
		validation.IsValid = false
		validation.Issues = append(validation.Issues, "levels unavailable")
		return validation
	}

	if *plan.Stop > *plan.BuyZoneLow {
		validation.IsValid = false
		validation.Issues = append(validation.Issues,
			fmt.Sprintf("stop %.2f above buy zone low %.2f", *plan.Stop, *plan.BuyZoneLow))
	}
	if plan.BuyZoneHigh != nil && *plan.BuyZoneHigh < *plan.BuyZoneLow {
		validation.IsValid = false
		validation.Issues = append(validation.Issues, "buy zone high below buy zone low")
	}
	if !(*plan.Target1 < *plan.Target2 && *plan.Target2 < *plan.Target3) {
		validation.IsValid = false
		validation.Issues = append(validation.Issues, "targets not strictly increasing")
	}
	if *plan.Target1 <= *plan.BuyZoneLow {
		validation.IsValid = false
		validation.Issues = append(validation.Issues, "first target not above entry")
	}

	return validation
}

func explain(plan types.TradePlan) string {
	c := plan.Candidate
	ind := plan.Indicators

	parts := []string{fmt.Sprintf("%s %+.1f%%", plan.Setup, c.PctChange)}
	if ind.VWAP != nil {
		rel := "above"
		if c.Price < *ind.VWAP {
			rel = "below"
		}
		parts = append(parts, fmt.Sprintf("%s VWAP %.2f", rel, *ind.VWAP))
	}
	parts = append(parts, fmt.Sprintf("RVOL %.1fx", ind.RVOL))
	parts = append(parts, fmt.Sprintf("%.0f%% of HOD", ind.NearHOD*100))
	if plan.ReducedConfidence {
		parts = append(parts, "ATR reduced confidence")
	}
	if flags := plan.RiskFlags.List(); len(flags) > 0 {
		parts = append(parts, "flags: "+strings.Join(flags, ","))
	}
	return strings.Join(parts, " | ")
}
