package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fazecat/momentumwatch/Internal/cache"
	datafeed "github.com/fazecat/momentumwatch/Internal/database"
	"github.com/fazecat/momentumwatch/Internal/handlers"
	"github.com/fazecat/momentumwatch/Internal/logger"
	"github.com/fazecat/momentumwatch/Internal/metrics"
	"github.com/fazecat/momentumwatch/Internal/notifications"
	"github.com/fazecat/momentumwatch/Internal/utils/config"
	"github.com/fazecat/momentumwatch/interactive"
)

const version = "1.0.0"

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitSkipped = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	force := flag.Bool("force", false, "run even outside the window, on a closed day or when today is already recorded")
	menu := flag.Bool("interactive", false, "start the interactive menu")
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	_ = godotenv.Load()
	logger.Init("momentumwatch", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	if *configPath != "" {
		os.Setenv("SCANNER_CONFIG", *configPath)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := datafeed.OpenHistoryStore(ctx, cfg.DatabaseConfig())
	if err != nil {
		slog.Error("failed to open history store", slog.Any("error", err))
		return exitError
	}
	defer store.Close()

	m := metrics.NewMetrics()
	provider, err := datafeed.NewAlpacaProvider(cfg.AlpacaOptions(), m)
	if err != nil {
		slog.Error("failed to create data provider", slog.Any("error", err))
		return exitError
	}

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

	notifier := handlers.BuildNotifier(cfg, notifications.NewLogNotifier(os.Stdout))
	runner := handlers.NewDailyRunner(cfg, provider, store, notifier, m, version)

	if *menu {
		path := *configPath
		if path == "" {
			path = "config.yaml"
		}
		if err := interactive.NewMenu(runner, store, cfg, path, os.Stdin, os.Stdout).Loop(ctx); err != nil {
			slog.Error("menu failed", slog.Any("error", err))
			return exitError
		}
		return exitOK
	}

	rep, err := runner.Run(ctx, handlers.RunOptions{Force: *force})
	if err != nil {
		slog.Error("daily run failed", slog.Any("error", err), slog.Bool("duplicate", errors.Is(err, handlers.ErrDuplicateRun)))
		return exitError
	}

	slog.Info("daily run finished", slog.String("outcome", string(rep.Outcome)), slog.String("date", rep.RunDate))
	if rep.Outcome != handlers.OutcomeCompleted {
		return exitSkipped
	}
	return exitOK
}
