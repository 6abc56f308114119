package scanner

import (
	"fmt"
	"math"

	"github.com/fazecat/momentumwatch/Internal/types"
)

// FilterStage names which candidate fields a filter pass may rely on.
// Both stages run before indicators are computed.
type FilterStage string

const (
	// StageQuote checks quote fields and data sanity.
	StageQuote FilterStage = "pre_filter"
	// StageMetadata checks float, market cap and move size, which come from
	// the provider's metadata lookups.
	StageMetadata FilterStage = "post_filter"
)

// Zero bounds are treated as unset.
type ScreenerCriteria struct {
	MinPrice     float64
	MinVolume    int64
	MinFloat     int64
	MaxFloat     int64
	MinMarketCap float64
	MaxMarketCap float64
	MaxPctChange float64
	ExcludeOTC   bool
	ExcludeETF   bool
}

func DefaultScreenerCriteria() ScreenerCriteria {
	return ScreenerCriteria{
		MinPrice:     5.0,
		MinVolume:    1_000_000,
		MaxPctChange: 60,
		ExcludeOTC:   true,
		ExcludeETF:   true,
	}
}

// ValidateCandidate rejects data that cannot be scored at all.
func ValidateCandidate(c types.Candidate) error {
	if c.Symbol == "" {
		return fmt.Errorf("missing symbol")
	}
	if math.IsNaN(c.Price) || c.Price <= 0 {
		return fmt.Errorf("invalid price %v", c.Price)
	}
	if c.Volume < 0 {
		return fmt.Errorf("negative volume %d", c.Volume)
	}
	for i, b := range c.Bars {
		if b.High < b.Low {
			return fmt.Errorf("bar %d high %.2f below low %.2f", i, b.High, b.Low)
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar %d negative volume", i)
		}
		if i > 0 && !b.Timestamp.After(c.Bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d out of order", i)
		}
	}
	return nil
}

// FilterCandidates splits candidates into those passing the stage's hard
// filters and rejections carrying a readable reason.
func FilterCandidates(cands []types.Candidate, criteria ScreenerCriteria, stage FilterStage) ([]types.Candidate, []types.Rejection) {
	passed := make([]types.Candidate, 0, len(cands))
	rejected := []types.Rejection{}

	for _, c := range cands {
		var reason string
		if stage == StageQuote {
			reason = preFilterReason(c, criteria)
		} else {
			reason = postFilterReason(c, criteria)
		}

		if reason != "" {
			rejected = append(rejected, types.Rejection{Symbol: c.Symbol, Reason: reason})
			continue
		}
		passed = append(passed, c)
	}
	return passed, rejected
}

func preFilterReason(c types.Candidate, criteria ScreenerCriteria) string {
	if err := ValidateCandidate(c); err != nil {
		return "malformed data: " + err.Error()
	}
	if criteria.MinPrice > 0 && c.Price < criteria.MinPrice {
		return fmt.Sprintf("price $%.2f < min $%.2f", c.Price, criteria.MinPrice)
	}
	if criteria.MinVolume > 0 && c.Volume < criteria.MinVolume {
		return fmt.Sprintf("volume %d < min %d", c.Volume, criteria.MinVolume)
	}
	if criteria.ExcludeOTC && c.IsOTC {
		return "OTC security"
	}
	if criteria.ExcludeETF && c.IsETF {
		return "ETF excluded"
	}
	return ""
}

// Float and market cap bounds only apply when the value is known.
func postFilterReason(c types.Candidate, criteria ScreenerCriteria) string {
	if c.Float != nil {
		if criteria.MinFloat > 0 && *c.Float < criteria.MinFloat {
			return fmt.Sprintf("float %d < min %d", *c.Float, criteria.MinFloat)
		}
		if criteria.MaxFloat > 0 && *c.Float > criteria.MaxFloat {
			return fmt.Sprintf("float %d > max %d", *c.Float, criteria.MaxFloat)
		}
	}
	if c.MarketCap != nil {
		if criteria.MinMarketCap > 0 && *c.MarketCap < criteria.MinMarketCap {
			return fmt.Sprintf("market cap $%.0f < min $%.0f", *c.MarketCap, criteria.MinMarketCap)
		}
		if criteria.MaxMarketCap > 0 && *c.MarketCap > criteria.MaxMarketCap {
			return fmt.Sprintf("market cap $%.0f > max $%.0f", *c.MarketCap, criteria.MaxMarketCap)
		}
	}
	if criteria.MaxPctChange > 0 && c.PctChange > criteria.MaxPctChange {
		return fmt.Sprintf("pct change %.1f%% > max %.1f%%", c.PctChange, criteria.MaxPctChange)
	}
	return ""
}
