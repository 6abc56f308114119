package indicators

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils"
)

// Config controls the indicator windows. All lookbacks are counted in bars.
type Config struct {
	OpeningRange     time.Duration
	BarInterval      time.Duration
	ATRPeriod        int
	PullbackLookback int
	ReclaimLookback  int
	// Share of price used as ATR when nothing else is available.
	MinATRFraction float64
}

func DefaultConfig() Config {
	return Config{
		OpeningRange:     5 * time.Minute,
		BarInterval:      time.Minute,
		ATRPeriod:        14,
		PullbackLookback: 10,
		ReclaimLookback:  5,
		MinATRFraction:   0.001,
	}
}

// Compute builds the indicator set for one candidate. It reads only c and
// never fails; missing data shows up as nil fields or neutral values.
func Compute(c types.Candidate, cfg Config) types.IndicatorSet {
	set := types.IndicatorSet{BarCount: len(c.Bars)}

	set.VWAP = ComputeVWAP(c.Bars)

	set.HOD, set.LOD = ComputeHODLOD(c.Bars)
	if set.HOD == nil && c.High > 0 {
		set.HOD = types.Float(c.High)
	}
	if set.LOD == nil && c.Low > 0 {
		set.LOD = types.Float(c.Low)
	}

	set.ORH, set.ORL = ComputeOpeningRange(c.Bars, c.SessionStart, cfg.OpeningRange, cfg.BarInterval)

	set.ATR, set.ATRPeriods, set.ATRReducedConfidence = estimateATR(c, set, cfg)

	set.RVOL = ComputeRVOL(c.Volume, c.VolumeBaseline)
	set.NearHOD = ComputeNearHOD(c.Price, set.HOD)

	set.VsOpenPct = ComputeVsOpen(c.Price, c.Open)
	set.GreenFromOpen = set.VsOpenPct != nil && *set.VsOpenPct >= 0

	set.PullbackHigh, set.PullbackLow = FindPullback(c.Bars, cfg.PullbackLookback)
	set.VWAPReclaim = DetectVWAPReclaim(c.Bars, set.VWAP, c.Price, cfg.ReclaimLookback)

	return set
}

// estimateATR walks from daily bars to intraday bars to the session range
// to a fixed share of price. Anything short of a full daily window is
// reported as reduced confidence.
func estimateATR(c types.Candidate, set types.IndicatorSet, cfg Config) (*float64, int, bool) {
	if len(c.DailyBars) > 0 {
		atr, periods, reduced := ComputeATR(c.DailyBars, cfg.ATRPeriod)
		if atr > 0 {
			return types.Float(atr), periods, reduced
		}
	}

	if len(c.Bars) >= 2 {
		if atr := utils.Average(TrueRanges(c.Bars)); atr > 0 {
			return types.Float(atr), 0, true
		}
	}

	if set.HOD != nil && set.LOD != nil && *set.HOD > *set.LOD {
		return types.Float(*set.HOD - *set.LOD), 0, true
	}

	if c.Price > 0 && cfg.MinATRFraction > 0 {
		return types.Float(c.Price * cfg.MinATRFraction), 0, true
	}
	return nil, 0, true
}

// ComputeAll enriches every candidate using up to workers goroutines. The
// result keeps the input order.
func ComputeAll(ctx context.Context, cands []types.Candidate, cfg Config, workers int) []types.EnrichedCandidate {
	out := make([]types.EnrichedCandidate, len(cands))
	if len(cands) == 0 {
		return out
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i := range cands {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out[i] = types.EnrichedCandidate{
				Candidate:  cands[i],
				Indicators: Compute(cands[i], cfg),
			}
		}(i)
	}

	wg.Wait()

	slog.DebugContext(ctx, "indicators computed", slog.Int("candidates", len(cands)), slog.Int("workers", workers))
	return out
}
