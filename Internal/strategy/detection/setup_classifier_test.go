package detection

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fazecat/momentumwatch/Internal/types"
)

func scored(price float64, ind types.IndicatorSet) types.ScoredCandidate {
	return types.ScoredCandidate{
		EnrichedCandidate: types.EnrichedCandidate{
			Candidate:  types.Candidate{Symbol: "TEST", Price: price},
			Indicators: ind,
		},
	}
}

func TestClassify(t *testing.T) {
	c := NewSetupClassifier()

	tests := []struct {
		name  string
		price float64
		ind   types.IndicatorSet
		want  types.SetupType
	}{
		{
			name:  "orb breakout",
			price: 10.5,
			ind: types.IndicatorSet{
				VWAP: types.Float(10), ORH: types.Float(10.4),
				NearHOD: 0.99, GreenFromOpen: true,
			},
			want: types.SetupORBBreakout,
		},
		{
			name:  "orb blocked when red falls to reclaim",
			price: 10.5,
			ind: types.IndicatorSet{
				VWAP: types.Float(10), ORH: types.Float(10.4),
				NearHOD: 0.99, VWAPReclaim: true,
			},
			want: types.SetupVWAPReclaim,
		},
		{
			name:  "first pullback",
			price: 10.8,
			ind: types.IndicatorSet{
				VWAP: types.Float(10), PullbackHigh: types.Float(11), PullbackLow: types.Float(10.6),
				NearHOD: 0.98, GreenFromOpen: true,
			},
			want: types.SetupFirstPullback,
		},
		{
			name:  "pullback beats reclaim when both match",
			price: 10.8,
			ind: types.IndicatorSet{
				VWAP: types.Float(10), PullbackHigh: types.Float(11), PullbackLow: types.Float(10.6),
				NearHOD: 0.98, GreenFromOpen: true, VWAPReclaim: true,
			},
			want: types.SetupFirstPullback,
		},
		{
			name:  "shallow pullback is not a setup",
			price: 10.95,
			ind: types.IndicatorSet{
				VWAP: types.Float(10), PullbackHigh: types.Float(11), PullbackLow: types.Float(10.95),
				NearHOD: 0.995, GreenFromOpen: true,
			},
			want: types.SetupFallback,
		},
		{
			name:  "pullback low under vwap",
			price: 10.8,
			ind: types.IndicatorSet{
				VWAP: types.Float(10.7), PullbackHigh: types.Float(11), PullbackLow: types.Float(10.6),
				NearHOD: 0.98, GreenFromOpen: true,
			},
			want: types.SetupFallback,
		},
		{
			name:  "vwap reclaim",
			price: 10.2,
			ind:   types.IndicatorSet{VWAP: types.Float(10), VWAPReclaim: true, NearHOD: 0.9},
			want:  types.SetupVWAPReclaim,
		},
		{
			name:  "orb unavailable",
			price: 10.5,
			ind:   types.IndicatorSet{VWAP: types.Float(10), NearHOD: 1, GreenFromOpen: true},
			want:  types.SetupFallback,
		},
		{
			name:  "no indicators",
			price: 10,
			want:  types.SetupFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(scored(tt.price, tt.ind)))
		})
	}
}

func randomFloat(r *rand.Rand) *float64 {
	if r.Intn(4) == 0 {
		return nil
	}
	return types.Float(9 + 2*r.Float64())
}

func TestClassify_Totality(t *testing.T) {
	c := NewSetupClassifier()
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		ind := types.IndicatorSet{
			VWAP:          randomFloat(r),
			ORH:           randomFloat(r),
			PullbackHigh:  randomFloat(r),
			PullbackLow:   randomFloat(r),
			NearHOD:       r.Float64(),
			GreenFromOpen: r.Intn(2) == 0,
			VWAPReclaim:   r.Intn(2) == 0,
		}
		got := c.Classify(scored(9+2*r.Float64(), ind))
		require.True(t, got.Valid(), "got %q", got)
	}
}

func TestClassifyAll_PreservesOrder(t *testing.T) {
	c := NewSetupClassifier()
	in := []types.ScoredCandidate{
		scored(10, types.IndicatorSet{}),
		scored(10.2, types.IndicatorSet{VWAP: types.Float(10), VWAPReclaim: true}),
	}
	in[0].Candidate.Symbol = "AAA"
	in[1].Candidate.Symbol = "BBB"

	out := c.ClassifyAll(in)
	require.Len(t, out, 2)
	assert.Equal(t, "AAA", out[0].Candidate.Symbol)
	assert.Equal(t, types.SetupFallback, out[0].Setup)
	assert.Equal(t, types.SetupVWAPReclaim, out[1].Setup)
}

func TestRules_Order(t *testing.T) {
	rules := NewSetupClassifier().Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, types.SetupORBBreakout, rules[0].Setup)
	assert.Equal(t, types.SetupFirstPullback, rules[1].Setup)
	assert.Equal(t, types.SetupVWAPReclaim, rules[2].Setup)
}
