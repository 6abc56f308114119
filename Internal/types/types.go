package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

// Candidate is the raw per-symbol snapshot for one run. Nothing downstream
// mutates it.
type Candidate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	PrevClose float64 `json:"prev_close"`
	PctChange float64 `json:"pct_change"`
	Volume    int64   `json:"volume"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`

	Bars         []Bar     `json:"bars,omitempty"`
	DailyBars    []Bar     `json:"daily_bars,omitempty"`
	SessionStart time.Time `json:"session_start"`

	// Historical average cumulative volume at the same time of day.
	VolumeBaseline *float64 `json:"volume_baseline"`
	Float          *int64   `json:"float"`
	MarketCap      *float64 `json:"market_cap"`

	IsETF  bool   `json:"is_etf"`
	IsOTC  bool   `json:"is_otc"`
	Source string `json:"source,omitempty"`
}

// IndicatorSet holds per-symbol indicators. A nil pointer means the value
// could not be computed from the data available.
type IndicatorSet struct {
	VWAP         *float64 `json:"vwap"`
	HOD          *float64 `json:"hod"`
	LOD          *float64 `json:"lod"`
	ORH          *float64 `json:"orh"`
	ORL          *float64 `json:"orl"`
	ATR          *float64 `json:"atr"`
	PullbackHigh *float64 `json:"pullback_high"`
	PullbackLow  *float64 `json:"pullback_low"`
	VsOpenPct    *float64 `json:"vs_open_pct"`

	NearHOD              float64 `json:"near_hod"`
	RVOL                 float64 `json:"rvol"`
	ATRPeriods           int     `json:"atr_periods"`
	ATRReducedConfidence bool    `json:"atr_reduced_confidence"`
	GreenFromOpen        bool    `json:"green_from_open"`
	VWAPReclaim          bool    `json:"vwap_reclaim"`
	BarCount             int     `json:"bar_count"`
}

type EnrichedCandidate struct {
	Candidate  Candidate    `json:"candidate"`
	Indicators IndicatorSet `json:"indicators"`
}

type Adjustment struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type ScoredCandidate struct {
	EnrichedCandidate

	PctChangeRank   float64      `json:"pct_change_rank"`
	RVOLRank        float64      `json:"rvol_rank"`
	NearHODRank     float64      `json:"near_hod_rank"`
	BaseScore       float64      `json:"base_score"`
	Adjustments     []Adjustment `json:"adjustments"`
	AdjustmentTotal float64      `json:"adjustment_total"`
	FinalScore      float64      `json:"final_score"`
	Rank            int          `json:"rank"`
}

type SetupType string

const (
	SetupORBBreakout   SetupType = "ORB_BREAKOUT"
	SetupVWAPReclaim   SetupType = "VWAP_RECLAIM"
	SetupFirstPullback SetupType = "FIRST_PULLBACK"
	SetupFallback      SetupType = "FALLBACK"
)

func (s SetupType) Valid() bool {
	switch s {
	case SetupORBBreakout, SetupVWAPReclaim, SetupFirstPullback, SetupFallback:
		return true
	}
	return false
}

func (s *SetupType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := SetupType(raw)
	if !v.Valid() {
		return fmt.Errorf("unknown setup type %q", raw)
	}
	*s = v
	return nil
}

type ClassifiedSetup struct {
	ScoredCandidate
	Setup SetupType `json:"setup"`
}

// RiskFlags are advisory only; they never change score or setup.
type RiskFlags struct {
	BelowVWAP       bool `json:"below_vwap"`
	OverextendedATR bool `json:"overextended_atr"`
	NotNearHOD      bool `json:"not_near_hod"`
	LowVolume       bool `json:"low_volume"`
	FadingFromOpen  bool `json:"fading_from_open"`
	ExtremeGainer   bool `json:"extreme_gainer"`
	LowFloat        bool `json:"low_float"`
	LargeCap        bool `json:"large_cap"`
}

// List returns the names of the raised flags in a fixed order.
func (f RiskFlags) List() []string {
	out := []string{}
	add := func(on bool, name string) {
		if on {
			out = append(out, name)
		}
	}
	add(f.BelowVWAP, "below_vwap")
	add(f.OverextendedATR, "overextended_atr")
	add(f.NotNearHOD, "not_near_hod")
	add(f.LowVolume, "low_volume")
	add(f.FadingFromOpen, "fading_from_open")
	add(f.ExtremeGainer, "extreme_gainer")
	add(f.LowFloat, "low_float")
	add(f.LargeCap, "large_cap")
	return out
}

type PositionSize struct {
	Shares         int64   `json:"shares"`
	EntryPrice     float64 `json:"entry_price"`
	RiskPerShare   float64 `json:"risk_per_share"`
	DollarRisk     float64 `json:"dollar_risk"`
	ProfitT1       float64 `json:"profit_t1"`
	ProfitT2       float64 `json:"profit_t2"`
	ProfitT3       float64 `json:"profit_t3"`
	MeetsDailyGoal bool    `json:"meets_daily_goal"`
}

type TradePlan struct {
	ClassifiedSetup

	BuyZoneLow  *float64 `json:"buy_zone_low"`
	BuyZoneHigh *float64 `json:"buy_zone_high"`
	Stop        *float64 `json:"stop"`
	Target1     *float64 `json:"target_1"`
	Target2     *float64 `json:"target_2"`
	Target3     *float64 `json:"target_3"`

	RiskFlags         RiskFlags     `json:"risk_flags"`
	ReducedConfidence bool          `json:"reduced_confidence"`
	Position          *PositionSize `json:"position"`
	PositionNote      string        `json:"position_note,omitempty"`
	Explanation       string        `json:"explanation"`
}

type LeaderboardEntry struct {
	Rank      int     `json:"rank"`
	Symbol    string  `json:"symbol"`
	Score     float64 `json:"score"`
	PctChange float64 `json:"pct_change"`
	RVOL      float64 `json:"rvol"`
	NearHOD   float64 `json:"near_hod"`
	AboveVWAP bool    `json:"above_vwap"`
}

type Rejection struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RunRecord is the persisted result of one daily run.
type RunRecord struct {
	RunID        string             `json:"run_id"`
	RunDate      string             `json:"run_date"`
	RunTimestamp time.Time          `json:"run_timestamp"`
	Provider     string             `json:"provider"`
	Version      string             `json:"version"`
	PicksCount   int                `json:"picks_count"`
	Picks        []TradePlan        `json:"picks"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	Rejected     []Rejection        `json:"rejected,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
