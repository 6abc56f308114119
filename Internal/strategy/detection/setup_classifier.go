package detection

import (
	"github.com/fazecat/momentumwatch/Internal/types"
)

// a named predicate tied to the setup it produces
type SetupRule struct {
	Setup types.SetupType
	Match func(sc types.ScoredCandidate) bool
}

// assigns exactly one setup per candidate; the first matching rule wins
type SetupClassifier struct {
	ORBNearHOD       float64
	PullbackNearHOD  float64
	MinPullbackDepth float64 // fraction of the pullback high
	rules            []SetupRule
}

// creates a classifier with the default thresholds and rule order
func NewSetupClassifier() *SetupClassifier {
	sc := &SetupClassifier{
		ORBNearHOD:       0.98,
		PullbackNearHOD:  0.97,
		MinPullbackDepth: 0.01,
	}
	sc.rules = sc.defaultRules()
	return sc
}

// rule order is significant; FALLBACK is implicit after the last rule
func (c *SetupClassifier) defaultRules() []SetupRule {
	return []SetupRule{
		{Setup: types.SetupORBBreakout, Match: c.isORBBreakout},
		{Setup: types.SetupFirstPullback, Match: c.isFirstPullback},
		{Setup: types.SetupVWAPReclaim, Match: c.isVWAPReclaim},
	}
}

func (c *SetupClassifier) Rules() []SetupRule {
	return c.rules
}

func (c *SetupClassifier) Classify(sc types.ScoredCandidate) types.SetupType {
	for _, rule := range c.rules {
		if rule.Match(sc) {
			return rule.Setup
		}
	}
	return types.SetupFallback
}

func (c *SetupClassifier) ClassifyAll(scored []types.ScoredCandidate) []types.ClassifiedSetup {
	out := make([]types.ClassifiedSetup, 0, len(scored))
	for _, sc := range scored {
		out = append(out, types.ClassifiedSetup{
			ScoredCandidate: sc,
			Setup:           c.Classify(sc),
		})
	}
	return out
}

func aboveVWAP(sc types.ScoredCandidate) bool {
	vwap := sc.Indicators.VWAP
	return vwap != nil && sc.Candidate.Price > *vwap
}

func (c *SetupClassifier) isORBBreakout(sc types.ScoredCandidate) bool {
	ind := sc.Indicators
	if ind.ORH == nil {
		return false
	}
	return sc.Candidate.Price >= *ind.ORH &&
		aboveVWAP(sc) &&
		ind.NearHOD >= c.ORBNearHOD &&
		ind.GreenFromOpen
}

func (c *SetupClassifier) isFirstPullback(sc types.ScoredCandidate) bool {
	ind := sc.Indicators
	if ind.PullbackHigh == nil || ind.PullbackLow == nil || ind.VWAP == nil || *ind.PullbackHigh <= 0 {
		return false
	}
	depth := (*ind.PullbackHigh - *ind.PullbackLow) / *ind.PullbackHigh
	return aboveVWAP(sc) &&
		ind.NearHOD >= c.PullbackNearHOD &&
		*ind.PullbackLow > *ind.VWAP &&
		ind.GreenFromOpen &&
		depth >= c.MinPullbackDepth
}

func (c *SetupClassifier) isVWAPReclaim(sc types.ScoredCandidate) bool {
	return aboveVWAP(sc) && sc.Indicators.VWAPReclaim
}
