package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fazecat/momentumwatch/Internal/cache"
	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/handlers"
	"github.com/fazecat/momentumwatch/Internal/logger"
	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/notifications"
	"github.com/fazecat/momentumwatch/Internal/utils/config"
	"github.com/fazecat/momentumwatch/cmd/api/internal"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../../.env")
	logger.Init("momentumwatch-api", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := datafeed.OpenHistoryStore(ctx, cfg.DatabaseConfig())
	if err != nil {
		slog.Error("failed to open history store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.NewMetrics()
	apiServer := &internal.API{
		Runs:     store,
		AdminKey: os.Getenv("ADMIN_API_KEY"),
		Metrics:  m,
	}

	// The scan trigger needs both Alpaca credentials and a signing key.
	jwtManager, err := internal.NewJWTManager("")
	if err != nil {
		slog.Warn("scan trigger disabled", slog.Any("error", err))
	} else {
		apiServer.JWTManager = jwtManager
		provider, err := datafeed.NewAlpacaProvider(cfg.AlpacaOptions(), m)
		if err != nil {
			slog.Warn("scan trigger disabled", slog.Any("error", err))
		} else {
			rdb, err := cache.NewRedisClient(ctx, cfg.Cache.RedisAddr, os.Getenv("REDIS_PASSWORD"))
			if err != nil {
				slog.Warn("daily bar cache disabled", slog.Any("error", err))
			}
			if rdb != nil {
				defer rdb.Close()
			}
			provider.WithDailyBarSource(cache.NewCachingDailyBars(rdb, cfg.CacheTTL(), provider, cfg.Cache.Namespace, m))
			if src := cfg.FundamentalsSource(); src != nil {
				provider.WithFundamentalsSource(src)
			}

			notifier := handlers.BuildNotifier(cfg, notifications.NewLogNotifier(nil))
			apiServer.Scanner = handlers.NewDailyRunner(cfg, provider, store, notifier, m, version)
		}
	}

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting API server", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
