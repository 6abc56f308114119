package datafeed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type DatabaseConfig struct {
	Driver string // postgres or sqlite3
	DSN    string
}

// PostgresDSN builds a lib/pq connection string from DB_* variables.
func PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnvOrDefault("DB_HOST", "localhost"),
		getEnvOrDefault("DB_PORT", "5432"),
		getEnvOrDefault("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		getEnvOrDefault("DB_NAME", "momentumwatch"),
		getEnvOrDefault("DB_SSLMODE", "disable"),
	)
}

// OpenDatabase connects, pings and creates the history schema.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case "postgres":
		if dsn == "" {
			dsn = PostgresDSN()
		}
	case "sqlite3":
		if dsn == "" {
			dsn = "history.db"
		}
		if dsn != ":memory:" {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err = initializeSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	slog.Info("database connected", slog.String("driver", cfg.Driver))
	return db, nil
}

// initializeSchema creates the run history tables if they don't exist
func initializeSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			run_date     TEXT PRIMARY KEY,
			run_id       TEXT NOT NULL,
			run_ts       TEXT NOT NULL,
			provider     TEXT NOT NULL,
			version      TEXT NOT NULL,
			picks_count  INTEGER NOT NULL,
			payload      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scan_picks (
			run_date   TEXT NOT NULL,
			pick_rank  INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			setup      TEXT NOT NULL,
			score      TEXT NOT NULL,
			buy_low    TEXT,
			stop       TEXT,
			target_1   TEXT,
			PRIMARY KEY (run_date, pick_rank)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_picks_symbol ON scan_picks(symbol)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.PingContext(ctx)
}
