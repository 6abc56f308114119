package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fazecat/momentumwatch/Internal/handlers/risk"
	"github.com/fazecat/momentumwatch/Internal/logger"
	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/strategy"
	"github.com/fazecat/momentumwatch/Internal/strategy/detection"
	"github.com/fazecat/momentumwatch/Internal/strategy/indicators"
	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils/scoring"
)

// CandidateSource supplies the raw snapshot for one run.
type CandidateSource interface {
	Name() string
	FetchCandidates(ctx context.Context, sessionStart, now time.Time, seed int) ([]types.Candidate, error)
}

type Config struct {
	Criteria   ScreenerCriteria
	Indicators indicators.Config
	Ranking    scoring.Config
	Levels     strategy.LevelConfig
	Account    *risk.AccountRisk

	Picks           int
	LeaderboardSize int
	MinScore        float64
	Workers         int
}

func DefaultConfig() Config {
	account := risk.DefaultAccountRisk()
	return Config{
		Criteria:        DefaultScreenerCriteria(),
		Indicators:      indicators.DefaultConfig(),
		Ranking:         scoring.DefaultConfig(),
		Levels:          strategy.DefaultLevelConfig(),
		Account:         &account,
		Picks:           5,
		LeaderboardSize: 10,
		MinScore:        -1,
		Workers:         8,
	}
}

type Result struct {
	Picks       []types.TradePlan
	Plans       []types.TradePlan
	Leaderboard []types.LeaderboardEntry
	Rejected    []types.Rejection

	CandidatesIn     int
	CandidatesPassed int
}

type Scanner struct {
	cfg        Config
	classifier *detection.SetupClassifier
	metrics    *metrics.Metrics
}

func New(cfg Config, m *metrics.Metrics) *Scanner {
	return &Scanner{
		cfg:        cfg,
		classifier: detection.NewSetupClassifier(),
		metrics:    m,
	}
}

func (s *Scanner) Config() Config {
	return s.cfg
}

// Run takes one candidate snapshot through filtering, indicators, ranking,
// classification and levels. An empty snapshot yields an empty result.
func (s *Scanner) Run(ctx context.Context, cands []types.Candidate) (*Result, error) {
	result := &Result{
		Picks:        []types.TradePlan{},
		Plans:        []types.TradePlan{},
		Leaderboard:  []types.LeaderboardEntry{},
		Rejected:     []types.Rejection{},
		CandidatesIn: len(cands),
	}
	logAttrs := logger.LogWithRun(ctx)

	start := time.Now()
	passed, rejected := FilterCandidates(cands, s.cfg.Criteria, StageQuote)
	result.Rejected = append(result.Rejected, rejected...)
	s.metrics.AddRejected(string(StageQuote), len(rejected))

	passed, rejected = FilterCandidates(passed, s.cfg.Criteria, StageMetadata)
	result.Rejected = append(result.Rejected, rejected...)
	s.metrics.AddRejected(string(StageMetadata), len(rejected))
	s.metrics.ObserveStage("filter", start)

	result.CandidatesPassed = len(passed)
	s.metrics.SetCandidates("passed", len(passed))
	slog.InfoContext(ctx, "candidates filtered", append(logAttrs,
		slog.Int("in", len(cands)),
		slog.Int("passed", len(passed)),
		slog.Int("rejected", len(result.Rejected)))...)

	if len(passed) == 0 {
		return result, nil
	}

	start = time.Now()
	enriched := indicators.ComputeAll(ctx, passed, s.cfg.Indicators, s.cfg.Workers)
	s.metrics.ObserveStage("indicators", start)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	start = time.Now()
	scored := scoring.Score(enriched, s.cfg.Ranking)
	s.metrics.ObserveStage("ranker", start)
	s.metrics.SetCandidates("ranked", len(scored))

	start = time.Now()
	classified := s.classifier.ClassifyAll(scored)
	for _, cs := range classified {
		s.metrics.IncSetup(string(cs.Setup))
	}
	s.metrics.ObserveStage("classifier", start)

	start = time.Now()
	result.Plans = strategy.BuildPlans(classified, s.cfg.Levels, s.cfg.Account)
	s.metrics.ObserveStage("levels", start)

	result.Picks = SelectPicks(result.Plans, s.cfg.Picks, s.cfg.MinScore)
	result.Leaderboard = scoring.Leaderboard(scored, s.cfg.LeaderboardSize)
	s.metrics.SetPicks(len(result.Picks))

	slog.InfoContext(ctx, "scan complete", append(logAttrs,
		slog.Int("ranked", len(scored)),
		slog.Int("picks", len(result.Picks)),
		slog.String("top", topSymbols(result.Picks)))...)

	return result, nil
}

// Scan fetches a fresh snapshot from src and runs the pipeline over it.
func (s *Scanner) Scan(ctx context.Context, src CandidateSource, sessionStart, now time.Time, seed int) (*Result, error) {
	start := time.Now()
	cands, err := src.FetchCandidates(ctx, sessionStart, now, seed)
	s.metrics.ObserveStage("fetch", start)
	if err != nil {
		s.metrics.IncProviderError()
		return nil, fmt.Errorf("failed to fetch candidates from %s: %w", src.Name(), err)
	}
	return s.Run(ctx, cands)
}

// SelectPicks keeps plans in rank order and returns up to n whose score
// reaches minScore.
func SelectPicks(plans []types.TradePlan, n int, minScore float64) []types.TradePlan {
	picks := []types.TradePlan{}
	for _, p := range plans {
		if len(picks) >= n {
			break
		}
		if p.FinalScore < minScore {
			continue
		}
		picks = append(picks, p)
	}
	return picks
}

// SeedCandidates merges several mover lists, keeps the first occurrence of
// each symbol and caps the result at limit, largest movers first.
func SeedCandidates(limit int, lists ...[]types.Candidate) []types.Candidate {
	seen := map[string]bool{}
	merged := []types.Candidate{}
	for _, list := range lists {
		for _, c := range list {
			sym := strings.ToUpper(strings.TrimSpace(c.Symbol))
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			c.Symbol = sym
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PctChange > merged[j].PctChange
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func topSymbols(plans []types.TradePlan) string {
	syms := make([]string, 0, len(plans))
	for _, p := range plans {
		syms = append(syms, p.Candidate.Symbol)
	}
	return strings.Join(syms, ",")
}
