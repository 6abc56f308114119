package risk

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fazecat/momentumwatch/Internal/types"
)

var ErrSizingUnavailable = errors.New("position sizing unavailable")

// Account parameters used to size a plan. MaxRiskPercent is in percent,
// 1.0 means 1% of capital at risk per trade.
type AccountRisk struct {
	TradingCapital  float64
	MaxRiskPercent  float64
	DailyProfitGoal float64
	// Largest share of capital a single position may use, in percent.
	MaxPositionPercent float64
}

func DefaultAccountRisk() AccountRisk {
	return AccountRisk{
		TradingCapital:     10_000,
		MaxRiskPercent:     1.0,
		DailyProfitGoal:    200,
		MaxPositionPercent: 100,
	}
}

func (a AccountRisk) Validate() error {
	if a.TradingCapital <= 0 {
		return fmt.Errorf("%w: trading capital must be > 0", ErrSizingUnavailable)
	}
	if a.MaxRiskPercent <= 0 {
		return fmt.Errorf("%w: max risk percent must be > 0", ErrSizingUnavailable)
	}
	return nil
}

// CalculateSafePositionSize returns floor(capital*risk% / (entry-stop)),
// capped so the position never costs more than the allowed share of
// capital. Returns 0 when the stop is not below entry.
func CalculateSafePositionSize(account AccountRisk, entryPrice, stopLossPrice float64) int64 {
	capital := decimal.NewFromFloat(account.TradingCapital)
	riskAmount := capital.Mul(decimal.NewFromFloat(account.MaxRiskPercent)).Div(decimal.NewFromInt(100))
	priceRisk := decimal.NewFromFloat(entryPrice).Sub(decimal.NewFromFloat(stopLossPrice))

	if !priceRisk.IsPositive() || entryPrice <= 0 {
		slog.Debug("invalid stop for sizing", slog.Float64("entry", entryPrice), slog.Float64("stop", stopLossPrice))
		return 0
	}

	quantity := riskAmount.Div(priceRisk).Floor().IntPart()

	maxPercent := account.MaxPositionPercent
	if maxPercent <= 0 {
		maxPercent = 100
	}
	maxPositionValue := capital.Mul(decimal.NewFromFloat(maxPercent)).Div(decimal.NewFromInt(100))
	maxQuantity := maxPositionValue.Div(decimal.NewFromFloat(entryPrice)).Floor().IntPart()

	if quantity > maxQuantity {
		quantity = maxQuantity
	}
	return quantity
}

// CalculatePositionSize sizes a trade plan entering at the buy zone low.
// Money fields are rounded to cents.
func CalculatePositionSize(plan types.TradePlan, account AccountRisk) (*types.PositionSize, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if plan.BuyZoneLow == nil || plan.Stop == nil {
		return nil, fmt.Errorf("%w: levels unavailable", ErrSizingUnavailable)
	}

	entry := *plan.BuyZoneLow
	stop := *plan.Stop
	if entry-stop <= 0 {
		return nil, fmt.Errorf("%w: stop %.2f not below entry %.2f", ErrSizingUnavailable, stop, entry)
	}

	shares := CalculateSafePositionSize(account, entry, stop)
	if shares <= 0 {
		return nil, fmt.Errorf("%w: risk budget buys no shares at %.2f", ErrSizingUnavailable, entry)
	}

	qty := decimal.NewFromInt(shares)
	entryDec := decimal.NewFromFloat(entry)
	riskPerShare := entryDec.Sub(decimal.NewFromFloat(stop))

	profitAt := func(target *float64) decimal.Decimal {
		if target == nil {
			return decimal.Zero
		}
		return decimal.NewFromFloat(*target).Sub(entryDec).Mul(qty).Round(2)
	}
	p1 := profitAt(plan.Target1)

	pos := &types.PositionSize{
		Shares:         shares,
		EntryPrice:     entryDec.Round(2).InexactFloat64(),
		RiskPerShare:   riskPerShare.Round(2).InexactFloat64(),
		DollarRisk:     riskPerShare.Mul(qty).Round(2).InexactFloat64(),
		ProfitT1:       p1.InexactFloat64(),
		ProfitT2:       profitAt(plan.Target2).InexactFloat64(),
		ProfitT3:       profitAt(plan.Target3).InexactFloat64(),
		MeetsDailyGoal: account.DailyProfitGoal > 0 && p1.GreaterThanOrEqual(decimal.NewFromFloat(account.DailyProfitGoal)),
	}
	return pos, nil
}
