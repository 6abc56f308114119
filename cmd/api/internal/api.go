package internal

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/handlers"
	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/types"
	"github.com/fazecat/momentumwatch/Internal/utils/formatting"
)

type RunStore interface {
	LatestRun(ctx context.Context) (*types.RunRecord, error)
	LoadRun(ctx context.Context, runDate string) (*types.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]datafeed.RunSummary, error)
	SymbolHistory(ctx context.Context, symbol string, limit int) ([]datafeed.PickRecord, error)
	HealthCheck(ctx context.Context) error
}

type ScanTrigger interface {
	Run(ctx context.Context, opts handlers.RunOptions) (*handlers.RunReport, error)
}

type API struct {
	Runs       RunStore
	Scanner    ScanTrigger
	JWTManager *JWTManager
	AdminKey   string
	Metrics    *metrics.Metrics
}

// Routes builds the router. The scan trigger is only mounted when a
// scanner is configured.
func (api *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", api.HandleHealth)
	if api.Metrics != nil {
		r.Handle("/metrics", api.Metrics.Handler())
	}

	r.Get("/api/runs", api.HandleListRuns)
	r.Get("/api/runs/latest", api.HandleLatestRun)
	r.Get("/api/runs/{date}", api.HandleGetRun)
	r.Get("/api/symbols/{symbol}/picks", api.HandleSymbolHistory)
	r.Post("/api/token", api.HandleGenerateToken)

	if api.Scanner != nil && api.JWTManager != nil {
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(api.JWTManager))
			r.Post("/api/scan", api.HandleTriggerScan)
		})
	}
	return r
}

func (api *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := api.Runs.HealthCheck(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, "healthy")
}

func (api *API) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := api.Runs.ListRuns(r.Context(), queryLimit(r, 30))
	if err != nil {
		slog.ErrorContext(r.Context(), "list runs failed", slog.Any("error", err))
		WriteError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	WriteJSON(w, http.StatusOK, runs)
}

func (api *API) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	rec, err := api.Runs.LatestRun(r.Context())
	api.writeRun(w, r, rec, err)
}

func (api *API) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	date := formatting.ParseDate(chi.URLParam(r, "date"))
	if date.IsZero() {
		WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	rec, err := api.Runs.LoadRun(r.Context(), date.Format("2006-01-02"))
	api.writeRun(w, r, rec, err)
}

func (api *API) writeRun(w http.ResponseWriter, r *http.Request, rec *types.RunRecord, err error) {
	switch {
	case errors.Is(err, datafeed.ErrRunNotFound):
		WriteError(w, http.StatusNotFound, "run not found")
	case err != nil:
		slog.ErrorContext(r.Context(), "load run failed", slog.Any("error", err))
		WriteError(w, http.StatusInternalServerError, "Failed to load run")
	default:
		WriteJSON(w, http.StatusOK, rec)
	}
}

func (api *API) HandleSymbolHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	picks, err := api.Runs.SymbolHistory(r.Context(), symbol, queryLimit(r, 30))
	if err != nil {
		slog.ErrorContext(r.Context(), "symbol history failed", slog.String("symbol", symbol), slog.Any("error", err))
		WriteError(w, http.StatusInternalServerError, "Failed to fetch picks")
		return
	}
	WriteJSON(w, http.StatusOK, picks)
}

type tokenRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// HandleGenerateToken issues a 24h token to callers holding the admin key.
func (api *API) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	if api.JWTManager == nil || api.AdminKey == "" {
		WriteError(w, http.StatusServiceUnavailable, "token issuing disabled")
		return
	}
	key := r.Header.Get("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(api.AdminKey)) != 1 {
		WriteError(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	var req tokenRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.UserID == "" {
		req.UserID = "admin"
	}

	token, err := api.JWTManager.GenerateToken(req.UserID, req.Email, 24)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": 24 * 3600,
	})
}

type scanRequest struct {
	Force bool `json:"force"`
}

func (api *API) HandleTriggerScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if claims := ClaimsFrom(r.Context()); claims != nil {
		slog.InfoContext(r.Context(), "scan requested", slog.String("user", claims.UserID), slog.Bool("force", req.Force))
	}

	rep, err := api.Scanner.Run(r.Context(), handlers.RunOptions{Force: req.Force})
	switch {
	case errors.Is(err, handlers.ErrRunInProgress):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, handlers.ErrDuplicateRun):
		WriteError(w, http.StatusConflict, err.Error())
	case err != nil:
		slog.ErrorContext(r.Context(), "scan failed", slog.Any("error", err))
		WriteError(w, http.StatusBadGateway, "Scan failed")
	default:
		WriteJSON(w, http.StatusOK, rep)
	}
}

func queryLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
