package datafeed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fazecat/momentumwatch/Internal/types"
)

var (
	ErrRunExists   = errors.New("run already recorded for this date")
	ErrRunNotFound = errors.New("run not found")
)

// RunSummary is a history listing row without the full payload.
type RunSummary struct {
	RunDate      string    `json:"run_date"`
	RunID        string    `json:"run_id"`
	RunTimestamp time.Time `json:"run_timestamp"`
	Provider     string    `json:"provider"`
	PicksCount   int       `json:"picks_count"`
}

// PickRecord is one persisted pick, levels stored as cent-rounded strings.
type PickRecord struct {
	RunDate string `json:"run_date"`
	Rank    int    `json:"rank"`
	Symbol  string `json:"symbol"`
	Setup   string `json:"setup"`
	Score   string `json:"score"`
	BuyLow  string `json:"buy_low,omitempty"`
	Stop    string `json:"stop,omitempty"`
	Target1 string `json:"target_1,omitempty"`
}

// HistoryStore keeps one record per trading date.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// OpenHistoryStore opens the database described by cfg and prepares the schema.
func OpenHistoryStore(ctx context.Context, cfg DatabaseConfig) (*HistoryStore, error) {
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewHistoryStore(db), nil
}

func (h *HistoryStore) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *HistoryStore) HealthCheck(ctx context.Context) error {
	if h == nil {
		return fmt.Errorf("history store is not initialized")
	}
	return HealthCheck(ctx, h.db)
}

// Exists reports whether a run was already stored for runDate.
func (h *HistoryStore) Exists(ctx context.Context, runDate string) (bool, error) {
	var n int
	err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_runs WHERE run_date = $1`, runDate).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check run %s: %w", runDate, err)
	}
	return n > 0, nil
}

// SaveRun persists rec. Without force a second record for the same date
// returns ErrRunExists; with force it replaces the stored one.
func (h *HistoryStore) SaveRun(ctx context.Context, rec types.RunRecord, force bool) error {
	if rec.RunDate == "" {
		return fmt.Errorf("run record has no date")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_runs WHERE run_date = $1`, rec.RunDate).Scan(&n); err != nil {
		return fmt.Errorf("failed to check run %s: %w", rec.RunDate, err)
	}
	if n > 0 && !force {
		return ErrRunExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_runs (run_date, run_id, run_ts, provider, version, picks_count, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_date) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			run_ts = EXCLUDED.run_ts,
			provider = EXCLUDED.provider,
			version = EXCLUDED.version,
			picks_count = EXCLUDED.picks_count,
			payload = EXCLUDED.payload`,
		rec.RunDate, rec.RunID, rec.RunTimestamp.UTC().Format(time.RFC3339), rec.Provider,
		rec.Version, len(rec.Picks), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunDate, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_picks WHERE run_date = $1`, rec.RunDate); err != nil {
		return fmt.Errorf("failed to clear picks for %s: %w", rec.RunDate, err)
	}
	for i, p := range rec.Picks {
		pr := toPickRecord(rec.RunDate, i+1, p)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scan_picks (run_date, pick_rank, symbol, setup, score, buy_low, stop, target_1)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			pr.RunDate, pr.Rank, pr.Symbol, pr.Setup, pr.Score, pr.BuyLow, pr.Stop, pr.Target1)
		if err != nil {
			return fmt.Errorf("failed to save pick %s: %w", pr.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", rec.RunDate, err)
	}
	return nil
}

func (h *HistoryStore) LoadRun(ctx context.Context, runDate string) (*types.RunRecord, error) {
	var payload string
	err := h.db.QueryRowContext(ctx, `SELECT payload FROM scan_runs WHERE run_date = $1`, runDate).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runDate, err)
	}
	return decodeRun(payload)
}

// LatestRun returns the most recent stored run.
func (h *HistoryStore) LatestRun(ctx context.Context) (*types.RunRecord, error) {
	var payload string
	err := h.db.QueryRowContext(ctx, `SELECT payload FROM scan_runs ORDER BY run_date DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	return decodeRun(payload)
}

// ListRuns returns run summaries, newest first.
func (h *HistoryStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT run_date, run_id, run_ts, provider, picks_count
		FROM scan_runs ORDER BY run_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		var ts string
		if err := rows.Scan(&s.RunDate, &s.RunID, &ts, &s.Provider, &s.PicksCount); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		s.RunTimestamp, _ = time.Parse(time.RFC3339, ts)
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// SymbolHistory lists past picks of one symbol, newest first.
func (h *HistoryStore) SymbolHistory(ctx context.Context, symbol string, limit int) ([]PickRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT run_date, pick_rank, symbol, setup, score, buy_low, stop, target_1
		FROM scan_picks WHERE symbol = $1 ORDER BY run_date DESC LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query picks for %s: %w", symbol, err)
	}
	defer rows.Close()

	picks := []PickRecord{}
	for rows.Next() {
		var p PickRecord
		var buyLow, stop, t1 sql.NullString
		if err := rows.Scan(&p.RunDate, &p.Rank, &p.Symbol, &p.Setup, &p.Score, &buyLow, &stop, &t1); err != nil {
			return nil, fmt.Errorf("failed to scan pick row: %w", err)
		}
		p.BuyLow, p.Stop, p.Target1 = buyLow.String, stop.String, t1.String
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

// Cleanup removes runs older than keepDays before now.
func (h *HistoryStore) Cleanup(ctx context.Context, now time.Time, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -keepDays).Format("2006-01-02")

	if _, err := h.db.ExecContext(ctx, `DELETE FROM scan_picks WHERE run_date < $1`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to clean picks: %w", err)
	}
	res, err := h.db.ExecContext(ctx, `DELETE FROM scan_runs WHERE run_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean runs: %w", err)
	}
	return res.RowsAffected()
}

func decodeRun(payload string) (*types.RunRecord, error) {
	var rec types.RunRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	return &rec, nil
}

func toPickRecord(runDate string, rank int, p types.TradePlan) PickRecord {
	return PickRecord{
		RunDate: runDate,
		Rank:    rank,
		Symbol:  p.Candidate.Symbol,
		Setup:   string(p.Setup),
		Score:   decimal.NewFromFloat(p.FinalScore).Round(4).String(),
		BuyLow:  cents(p.BuyZoneLow),
		Stop:    cents(p.Stop),
		Target1: cents(p.Target1),
	}
}

func cents(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).Round(2).StringFixed(2)
}
