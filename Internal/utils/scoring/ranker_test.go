package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fazecat/momentumwatch/Internal/types"
)

func enriched(symbol string, pct, price, vwap, rvol, near, vsOpen float64) types.EnrichedCandidate {
	return types.EnrichedCandidate{
		Candidate: types.Candidate{Symbol: symbol, Price: price, PctChange: pct},
		Indicators: types.IndicatorSet{
			VWAP:          types.Float(vwap),
			ATR:           types.Float(1.0),
			RVOL:          rvol,
			NearHOD:       near,
			VsOpenPct:     types.Float(vsOpen),
			GreenFromOpen: vsOpen >= 0,
		},
	}
}

func adjustmentNamed(adj []types.Adjustment, name string) (types.Adjustment, bool) {
	for _, a := range adj {
		if a.Name == name {
			return a, true
		}
	}
	return types.Adjustment{}, false
}

func TestRankNormalize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{"empty", nil, []float64{}},
		{"single member", []float64{7}, []float64{0.5}},
		{"zero variance", []float64{3, 3, 3}, []float64{0.5, 0.5, 0.5}},
		{"distinct", []float64{10, 30, 20}, []float64{0, 1, 0.5}},
		{"tied max", []float64{5, 9, 9, 1}, []float64{0.5, 1, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RankNormalize(tt.values)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestRankNormalize_RangeAndMax(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 2 + r.Intn(30)
		values := make([]float64, n)
		for i := range values {
			values[i] = float64(r.Intn(10))
		}

		ranks := RankNormalize(values)
		sawOne := false
		allEqual := true
		for i, rk := range ranks {
			assert.GreaterOrEqual(t, rk, 0.0)
			assert.LessOrEqual(t, rk, 1.0)
			if rk == 1.0 {
				sawOne = true
			}
			if values[i] != values[0] {
				allEqual = false
			}
		}
		if !allEqual {
			assert.True(t, sawOne, "some member must rank 1.0: %v", values)
		}
	}
}

func TestScore_EmptyInput(t *testing.T) {
	out := Score(nil, DefaultConfig())
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestScore_ContinuationVersusFade(t *testing.T) {
	cfg := DefaultConfig()

	green := enriched("GRN", 15, 10.5, 10.0, 5.0, 0.99, 3.0)
	red := enriched("RED", 15, 10.5, 10.0, 5.0, 0.99, -1.0)
	filler := enriched("FIL", 8, 4.0, 4.2, 1.5, 0.90, -3.0)

	scored := Score([]types.EnrichedCandidate{red, filler, green}, cfg)
	require.Len(t, scored, 3)

	bySymbol := map[string]types.ScoredCandidate{}
	for _, sc := range scored {
		bySymbol[sc.Candidate.Symbol] = sc
	}

	g := bySymbol["GRN"]
	_, hasVWAP := adjustmentNamed(g.Adjustments, "above_vwap")
	_, hasCont := adjustmentNamed(g.Adjustments, "continuation")
	assert.True(t, hasVWAP)
	assert.True(t, hasCont)
	assert.Equal(t, 1.0, g.RVOLRank)

	rd := bySymbol["RED"]
	_, redCont := adjustmentNamed(rd.Adjustments, "continuation")
	fade, redFade := adjustmentNamed(rd.Adjustments, "soft_fade")
	assert.False(t, redCont)
	assert.True(t, redFade)
	assert.Equal(t, -0.03, fade.Value)

	assert.Equal(t, g.BaseScore, rd.BaseScore)
	assert.Less(t, rd.FinalScore, g.FinalScore)
	assert.Equal(t, "GRN", scored[0].Candidate.Symbol)
	assert.Equal(t, 1, scored[0].Rank)
}

func TestAdjustments_ExtremeGainerHighestTierOnly(t *testing.T) {
	ec := enriched("HOT", 45, 10, 10, 1, 0.5, 1)

	var gainer []types.Adjustment
	for _, a := range Adjustments(ec, DefaultConfig()) {
		if a.Name == "extreme_gainer" {
			gainer = append(gainer, a)
		}
	}
	require.Len(t, gainer, 1)
	assert.Equal(t, -0.12, gainer[0].Value)
}

func TestAdjustments(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		ec   types.EnrichedCandidate
		want map[string]float64
	}{
		{
			name: "below vwap and deep fade",
			ec:   enriched("A", 5, 9.5, 10, 1, 0.9, -4),
			want: map[string]float64{"below_vwap": -0.10, "fading_from_open": -0.10},
		},
		{
			name: "overextended above vwap",
			ec:   enriched("B", 22, 13, 10, 1, 0.9, 1),
			want: map[string]float64{"above_vwap": 0.05, "overextended_atr": -0.08, "extreme_gainer": -0.04},
		},
		{
			name: "at vwap exactly",
			ec:   enriched("C", 5, 10, 10, 1, 0.9, 0.5),
			want: map[string]float64{},
		},
		{
			name: "thirty tier",
			ec:   enriched("D", 35, 10, 10, 1, 0.9, 0),
			want: map[string]float64{"extreme_gainer": -0.08},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]float64{}
			for _, a := range Adjustments(tt.ec, cfg) {
				got[a.Name] = a.Value
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdjustments_UnavailableInputsSkipped(t *testing.T) {
	ec := types.EnrichedCandidate{
		Candidate:  types.Candidate{Symbol: "BARE", Price: 10, PctChange: 5},
		Indicators: types.IndicatorSet{RVOL: 1},
	}
	assert.Empty(t, Adjustments(ec, DefaultConfig()))
}

func TestScore_PermutationInvariant(t *testing.T) {
	cands := []types.EnrichedCandidate{
		enriched("AAA", 12, 10.5, 10, 3, 0.99, 2),
		enriched("BBB", 25, 20, 21, 6, 0.91, -1),
		enriched("CCC", 8, 7, 6.9, 2, 0.97, 0.5),
		enriched("DDD", 41, 3, 2.5, 9, 1.0, 12),
		enriched("EEE", 12, 15, 14, 3, 0.99, 2),
	}
	want := Score(cands, DefaultConfig())

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]types.EnrichedCandidate(nil), cands...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Score(shuffled, DefaultConfig()))
	}
}

func TestScore_TiesBrokenBySymbol(t *testing.T) {
	a := enriched("ZED", 10, 10, 10, 2, 0.9, 1)
	b := enriched("ABC", 10, 10, 10, 2, 0.9, 1)

	scored := Score([]types.EnrichedCandidate{a, b}, DefaultConfig())
	require.Len(t, scored, 2)
	assert.Equal(t, scored[0].FinalScore, scored[1].FinalScore)
	assert.Equal(t, "ABC", scored[0].Candidate.Symbol)
	assert.Equal(t, "ZED", scored[1].Candidate.Symbol)
}

func TestSelectTopAndLeaderboard(t *testing.T) {
	cands := []types.EnrichedCandidate{
		enriched("AAA", 12, 10.5, 10, 3, 0.99, 2),
		enriched("BBB", 25, 20, 21, 6, 0.91, -1),
		enriched("CCC", 8, 7, 6.9, 2, 0.97, 0.5),
	}
	scored := Score(cands, DefaultConfig())

	top := SelectTop(scored, 2, -10)
	require.Len(t, top, 2)
	assert.Equal(t, scored[0].Candidate.Symbol, top[0].Candidate.Symbol)

	assert.Empty(t, SelectTop(scored, 5, 10))

	board := Leaderboard(scored, 10)
	require.Len(t, board, 3)
	for i, e := range board {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestScoreCategory(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.9, "🟢 Excellent"},
		{0.7, "🟢 Good"},
		{0.5, "🟡 Fair"},
		{0.3, "🟠 Moderate"},
		{-0.2, "🔴 Poor"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScoreCategory(tt.score))
	}
}
