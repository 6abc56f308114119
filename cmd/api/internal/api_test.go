package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/handlers"
	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/types"
)

type fakeRuns struct {
	runs    map[string]*types.RunRecord
	latest  string
	healthy error
}

func (f *fakeRuns) LatestRun(ctx context.Context) (*types.RunRecord, error) {
	if f.latest == "" {
		return nil, datafeed.ErrRunNotFound
	}
	return f.runs[f.latest], nil
}

func (f *fakeRuns) LoadRun(ctx context.Context, date string) (*types.RunRecord, error) {
	if rec, ok := f.runs[date]; ok {
		return rec, nil
	}
	return nil, datafeed.ErrRunNotFound
}

func (f *fakeRuns) ListRuns(ctx context.Context, limit int) ([]datafeed.RunSummary, error) {
	out := []datafeed.RunSummary{}
	for date, rec := range f.runs {
		out = append(out, datafeed.RunSummary{RunDate: date, RunID: rec.RunID})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRuns) SymbolHistory(ctx context.Context, symbol string, limit int) ([]datafeed.PickRecord, error) {
	return []datafeed.PickRecord{{RunDate: "2025-03-03", Symbol: symbol, Rank: 1}}, nil
}

func (f *fakeRuns) HealthCheck(ctx context.Context) error { return f.healthy }

type fakeTrigger struct {
	err    error
	forced bool
}

func (f *fakeTrigger) Run(ctx context.Context, opts handlers.RunOptions) (*handlers.RunReport, error) {
	f.forced = opts.Force
	if f.err != nil {
		return nil, f.err
	}
	return &handlers.RunReport{Outcome: handlers.OutcomeCompleted, RunDate: "2025-03-03"}, nil
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestAPI(t *testing.T) (*API, *fakeRuns, *fakeTrigger) {
	t.Helper()
	jm, err := NewJWTManager("test-secret")
	require.NoError(t, err)

	runs := &fakeRuns{
		runs: map[string]*types.RunRecord{
			"2025-03-03": {RunID: "run-1", RunDate: "2025-03-03", RunTimestamp: time.Date(2025, 3, 3, 14, 40, 0, 0, time.UTC)},
		},
		latest: "2025-03-03",
	}
	trigger := &fakeTrigger{}
	return &API{Runs: runs, Scanner: trigger, JWTManager: jm, AdminKey: "admin-key", Metrics: metrics.NewMetrics()}, runs, trigger
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	api, runs, _ := newTestAPI(t)
	h := api.Routes()

	rec, resp := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	runs.healthy = errors.New("db gone")
	rec, resp = do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestRunsEndpoints(t *testing.T) {
	api, runs, _ := newTestAPI(t)
	h := api.Routes()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"list", "/api/runs?limit=5", http.StatusOK},
		{"latest", "/api/runs/latest", http.StatusOK},
		{"by date", "/api/runs/2025-03-03", http.StatusOK},
		{"compact date", "/api/runs/20250303", http.StatusOK},
		{"missing date", "/api/runs/2025-03-04", http.StatusNotFound},
		{"bad date", "/api/runs/yesterday", http.StatusBadRequest},
		{"symbol picks", "/api/symbols/abcd/picks", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, h, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	_, resp := do(t, h, http.MethodGet, "/api/runs/latest", "", nil)
	var got types.RunRecord
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "run-1", got.RunID)

	_, resp = do(t, h, http.MethodGet, "/api/symbols/abcd/picks", "", nil)
	assert.Contains(t, string(resp.Data), `"ABCD"`)

	runs.latest = ""
	rec, _ := do(t, h, http.MethodGet, "/api/runs/latest", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenAndScan(t *testing.T) {
	api, _, trigger := newTestAPI(t)
	h := api.Routes()

	rec, _ := do(t, h, http.MethodPost, "/api/token", "", map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/scan", `{"force":true}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := do(t, h, http.MethodPost, "/api/token", `{"user_id":"ops"}`, map[string]string{"X-Admin-Key": "admin-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &tok))
	require.NotEmpty(t, tok.Token)

	claims, err := api.JWTManager.ValidateToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.UserID)

	auth := map[string]string{"Authorization": "Bearer " + tok.Token}
	rec, resp = do(t, h, http.MethodPost, "/api/scan", `{"force":true}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, trigger.forced)
	assert.Contains(t, string(resp.Data), "completed")

	trigger.err = handlers.ErrRunInProgress
	rec, _ = do(t, h, http.MethodPost, "/api/scan", "", auth)
	assert.Equal(t, http.StatusConflict, rec.Code)

	trigger.err = errors.New("provider down")
	rec, _ = do(t, h, http.MethodPost, "/api/scan", "", auth)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	api, _, _ := newTestAPI(t)
	api.Metrics.IncRun("completed")

	rec, _ := do(t, api.Routes(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "momentum_scan_runs_total")
}

func TestValidateToken_WrongSecret(t *testing.T) {
	a, err := NewJWTManager("one")
	require.NoError(t, err)
	b, err := NewJWTManager("two")
	require.NoError(t, err)

	tok, err := a.GenerateToken("u", "", 1)
	require.NoError(t, err)
	_, err = b.ValidateToken(tok)
	assert.Error(t, err)
}
