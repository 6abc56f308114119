package scoring

import (
	"sort"

	"github.com/fazecat/momentumwatch/Internal/types"
)

// NeutralRank is assigned when a metric does not vary across the set.
const NeutralRank = 0.5

type Weights struct {
	PctChange float64
	RVOL      float64
	NearHOD   float64
}

type GainerTier struct {
	Above   float64
	Penalty float64
}

type Config struct {
	Weights Weights

	AboveVWAPBonus      float64
	BelowVWAPPenalty    float64
	MaxExtensionATR     float64
	OverextendedPenalty float64

	// Tiers ordered from highest threshold down; only the first hit applies.
	GainerTiers []GainerTier

	DeepFadePct        float64
	DeepFadePenalty    float64
	ShallowFadePenalty float64

	ContinuationNearHOD float64
	ContinuationBonus   float64
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{PctChange: 0.40, RVOL: 0.35, NearHOD: 0.25},

		AboveVWAPBonus:      0.05,
		BelowVWAPPenalty:    -0.10,
		MaxExtensionATR:     2.0,
		OverextendedPenalty: -0.08,

		GainerTiers: []GainerTier{
			{Above: 40, Penalty: -0.12},
			{Above: 30, Penalty: -0.08},
			{Above: 20, Penalty: -0.04},
		},

		DeepFadePct:        -2.0,
		DeepFadePenalty:    -0.10,
		ShallowFadePenalty: -0.03,

		ContinuationNearHOD: 0.98,
		ContinuationBonus:   0.05,
	}
}

// RankNormalize maps values onto [0, 1] by dense rank: the smallest distinct
// value gets 0, the largest 1, equal values share a rank. A set with one
// member or no variance gets NeutralRank everywhere.
func RankNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	distinct := make([]float64, len(values))
	copy(distinct, values)
	sort.Float64s(distinct)
	n := 0
	for i, v := range distinct {
		if i == 0 || v != distinct[n-1] {
			distinct[n] = v
			n++
		}
	}
	distinct = distinct[:n]

	if n < 2 {
		for i := range out {
			out[i] = NeutralRank
		}
		return out
	}

	for i, v := range values {
		idx := sort.SearchFloat64s(distinct, v)
		out[i] = float64(idx) / float64(n-1)
	}
	return out
}

// Adjustments evaluates every additive rule for one candidate. Rules whose
// inputs are unavailable are skipped.
func Adjustments(ec types.EnrichedCandidate, cfg Config) []types.Adjustment {
	c := ec.Candidate
	ind := ec.Indicators
	adj := []types.Adjustment{}

	if ind.VWAP != nil {
		switch {
		case c.Price > *ind.VWAP:
			adj = append(adj, types.Adjustment{Name: "above_vwap", Value: cfg.AboveVWAPBonus})
		case c.Price < *ind.VWAP:
			adj = append(adj, types.Adjustment{Name: "below_vwap", Value: cfg.BelowVWAPPenalty})
		}

		if ind.ATR != nil && *ind.ATR > 0 && c.Price > *ind.VWAP+cfg.MaxExtensionATR**ind.ATR {
			adj = append(adj, types.Adjustment{Name: "overextended_atr", Value: cfg.OverextendedPenalty})
		}
	}

	for _, tier := range cfg.GainerTiers {
		if c.PctChange > tier.Above {
			adj = append(adj, types.Adjustment{Name: "extreme_gainer", Value: tier.Penalty})
			break
		}
	}

	if ind.VsOpenPct != nil {
		switch vs := *ind.VsOpenPct; {
		case vs < cfg.DeepFadePct:
			adj = append(adj, types.Adjustment{Name: "fading_from_open", Value: cfg.DeepFadePenalty})
		case vs < 0:
			adj = append(adj, types.Adjustment{Name: "soft_fade", Value: cfg.ShallowFadePenalty})
		case ind.GreenFromOpen && ind.NearHOD >= cfg.ContinuationNearHOD:
			adj = append(adj, types.Adjustment{Name: "continuation", Value: cfg.ContinuationBonus})
		}
	}

	return adj
}

// Score ranks the set and returns it ordered by final score descending,
// ties broken by symbol. The output is independent of input order.
func Score(cands []types.EnrichedCandidate, cfg Config) []types.ScoredCandidate {
	scored := make([]types.ScoredCandidate, 0, len(cands))
	if len(cands) == 0 {
		return scored
	}

	pct := make([]float64, len(cands))
	rvol := make([]float64, len(cands))
	near := make([]float64, len(cands))
	for i, ec := range cands {
		pct[i] = ec.Candidate.PctChange
		rvol[i] = ec.Indicators.RVOL
		near[i] = ec.Indicators.NearHOD
	}
	pctRank := RankNormalize(pct)
	rvolRank := RankNormalize(rvol)
	nearRank := RankNormalize(near)

	for i, ec := range cands {
		base := cfg.Weights.PctChange*pctRank[i] +
			cfg.Weights.RVOL*rvolRank[i] +
			cfg.Weights.NearHOD*nearRank[i]

		adj := Adjustments(ec, cfg)
		total := 0.0
		for _, a := range adj {
			total += a.Value
		}

		scored = append(scored, types.ScoredCandidate{
			EnrichedCandidate: ec,
			PctChangeRank:     pctRank[i],
			RVOLRank:          rvolRank[i],
			NearHODRank:       nearRank[i],
			BaseScore:         base,
			Adjustments:       adj,
			AdjustmentTotal:   total,
			FinalScore:        base + total,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		return scored[i].Candidate.Symbol < scored[j].Candidate.Symbol
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}

	return scored
}

// SelectTop returns up to n leading candidates with a final score of at
// least minScore.
func SelectTop(scored []types.ScoredCandidate, n int, minScore float64) []types.ScoredCandidate {
	out := []types.ScoredCandidate{}
	for _, sc := range scored {
		if len(out) >= n {
			break
		}
		if sc.FinalScore < minScore {
			continue
		}
		out = append(out, sc)
	}
	return out
}

func Leaderboard(scored []types.ScoredCandidate, n int) []types.LeaderboardEntry {
	if n > len(scored) {
		n = len(scored)
	}
	board := make([]types.LeaderboardEntry, 0, n)
	for _, sc := range scored[:n] {
		ind := sc.Indicators
		board = append(board, types.LeaderboardEntry{
			Rank:      sc.Rank,
			Symbol:    sc.Candidate.Symbol,
			Score:     sc.FinalScore,
			PctChange: sc.Candidate.PctChange,
			RVOL:      ind.RVOL,
			NearHOD:   ind.NearHOD,
			AboveVWAP: ind.VWAP != nil && sc.Candidate.Price > *ind.VWAP,
		})
	}
	return board
}

func ScoreCategory(score float64) string {
	if score >= 0.85 {
		return "🟢 Excellent"
	}
	if score >= 0.65 {
		return "🟢 Good"
	}
	if score >= 0.45 {
		return "🟡 Fair"
	}
	if score >= 0.25 {
		return "🟠 Moderate"
	}
	return "🔴 Poor"
}
