package utils

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// PermanentError stops retrying immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	return &PermanentError{Err: err}
}

func RetryWithBackoff(fn func() error, cfg RetryConfig) error {
	return RetryWithBackoffContext(context.Background(), fn, cfg)
}

// RetryWithBackoffContext calls fn until it succeeds, returns a permanent
// error, the attempts run out or ctx is done.
func RetryWithBackoffContext(ctx context.Context, fn func() error, cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.InitialDelay

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Warn("retrying after error", slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.Any("error", err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
