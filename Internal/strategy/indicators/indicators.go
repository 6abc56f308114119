package indicators

import (
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils"
)

// ComputeVWAP returns the volume-weighted typical price over bars. When the
// bars carry no volume the last close is used. Returns nil for no bars.
func ComputeVWAP(bars []types.Bar) *float64 {
	if len(bars) == 0 {
		return nil
	}

	cumulativeTPV := 0.0
	cumulativeVol := 0.0
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3.0
		cumulativeTPV += typical * float64(b.Volume)
		cumulativeVol += float64(b.Volume)
	}

	if cumulativeVol <= 0 {
		return types.Float(bars[len(bars)-1].Close)
	}
	return types.Float(cumulativeTPV / cumulativeVol)
}

// ComputeHODLOD returns the session high and low of bars.
func ComputeHODLOD(bars []types.Bar) (hod, lod *float64) {
	if len(bars) == 0 {
		return nil, nil
	}

	high := bars[0].High
	low := bars[0].Low
	for _, b := range bars[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return types.Float(high), types.Float(low)
}

// ComputeOpeningRange returns the high and low of the bars inside the first
// window of the session. The range is unavailable until the window holds a
// full set of bars.
func ComputeOpeningRange(bars []types.Bar, sessionStart time.Time, window, interval time.Duration) (orh, orl *float64) {
	if len(bars) == 0 || window <= 0 {
		return nil, nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if sessionStart.IsZero() {
		sessionStart = bars[0].Timestamp
	}

	required := int(window / interval)
	if required < 1 {
		required = 1
	}

	end := sessionStart.Add(window)
	var inRange []types.Bar
	for _, b := range bars {
		if b.Timestamp.Before(sessionStart) || !b.Timestamp.Before(end) {
			continue
		}
		inRange = append(inRange, b)
	}

	if len(inRange) < required {
		return nil, nil
	}
	return ComputeHODLOD(inRange)
}

// TrueRanges returns one true range per bar. The first bar has no previous
// close and uses its high-low range.
func TrueRanges(bars []types.Bar) []float64 {
	trs := make([]float64, len(bars))
	for i, b := range bars {
		hl := b.High - b.Low
		if i == 0 {
			trs[i] = hl
			continue
		}
		prevClose := bars[i-1].Close
		hc := math.Abs(b.High - prevClose)
		lc := math.Abs(b.Low - prevClose)
		trs[i] = math.Max(hl, math.Max(hc, lc))
	}
	return trs
}

// ComputeATR averages the trailing true ranges of daily bars over period.
// With fewer periods than requested it averages what exists and reports
// reduced confidence. periods is the number of true ranges averaged.
func ComputeATR(daily []types.Bar, period int) (atr float64, periods int, reduced bool) {
	if len(daily) == 0 || period <= 0 {
		return 0, 0, true
	}

	// The first daily bar has no previous close, so it only seeds the next
	// true range unless it is all there is.
	trs := TrueRanges(daily)
	if len(trs) > 1 {
		trs = trs[1:]
	}

	if len(trs) >= period && period >= 2 {
		sma := talib.Sma(trs, period)
		return sma[len(sma)-1], period, false
	}

	n := len(trs)
	if n > period {
		trs = trs[n-period:]
		n = period
	}
	return utils.Average(trs), n, n < period || len(daily) < 2
}

// ComputeRVOL returns volume relative to the time-of-day baseline. Without a
// usable baseline the ratio is neutral.
func ComputeRVOL(volume int64, baseline *float64) float64 {
	if baseline == nil || *baseline <= 0 {
		return 1.0
	}
	return float64(volume) / *baseline
}

// ComputeNearHOD returns price/HOD clamped to [0, 1]. 0 when HOD is unknown.
func ComputeNearHOD(price float64, hod *float64) float64 {
	if hod == nil || *hod <= 0 {
		return 0
	}
	return clamp(price / *hod, 0, 1)
}

// ComputeVsOpen returns the percent move of price from the session open.
func ComputeVsOpen(price, open float64) *float64 {
	if open <= 0 {
		return nil
	}
	return types.Float((price - open) / open * 100)
}

// FindPullback looks at the last lookback bars for a local high followed by
// a retracement. It returns the high and the lowest low printed after it.
// Both are nil if the high is the most recent bar.
func FindPullback(bars []types.Bar, lookback int) (high, low *float64) {
	if lookback <= 1 || len(bars) < 2 {
		return nil, nil
	}

	window := bars
	if len(window) > lookback {
		window = window[len(window)-lookback:]
	}

	peak := 0
	for i, b := range window {
		if b.High >= window[peak].High {
			peak = i
		}
	}
	if peak == len(window)-1 {
		return nil, nil
	}

	trough := window[peak+1].Low
	for _, b := range window[peak+2:] {
		trough = math.Min(trough, b.Low)
	}
	if trough >= window[peak].High {
		return nil, nil
	}
	return types.Float(window[peak].High), types.Float(trough)
}

// DetectVWAPReclaim reports whether a bar inside the lookback window closed
// below VWAP before the current price moved back above it.
func DetectVWAPReclaim(bars []types.Bar, vwap *float64, price float64, lookback int) bool {
	if vwap == nil || lookback <= 0 || len(bars) < 2 {
		return false
	}
	if price <= *vwap {
		return false
	}

	// The latest bar is the reclaim bar itself.
	prior := bars[:len(bars)-1]
	if len(prior) > lookback {
		prior = prior[len(prior)-lookback:]
	}
	for _, b := range prior {
		if b.Close < *vwap {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
