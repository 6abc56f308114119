package utils

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

type MarketHours struct {
	Open     time.Duration // offset from local midnight
	Close    time.Duration
	Location *time.Location
}

// ParseMarketHours builds MarketHours from "HH:MM" strings and an IANA zone.
func ParseMarketHours(open, close, tz string) (MarketHours, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return MarketHours{}, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return MarketHours{}, err
	}
	c, err := parseClock(close)
	if err != nil {
		return MarketHours{}, err
	}
	return MarketHours{Open: o, Close: c, Location: loc}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// SessionOpen returns the regular session open on now's local date.
func (m MarketHours) SessionOpen(now time.Time) time.Time {
	local := now.In(m.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.Location)
	return midnight.Add(m.Open)
}

func (m MarketHours) SessionClose(now time.Time) time.Time {
	local := now.In(m.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.Location)
	return midnight.Add(m.Close)
}

func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// CheckMarketStatus reports the session phase for now. Holidays are not
// known here; the provider calendar covers those.
func CheckMarketStatus(now time.Time, m MarketHours) (string, bool) {
	local := now.In(m.Location)
	if !IsWeekday(local) {
		return "CLOSED", false
	}
	switch {
	case local.Before(m.SessionOpen(local)):
		return "PRE_MARKET", false
	case local.Before(m.SessionClose(local)):
		return "OPEN", true
	default:
		return "AFTER_HOURS", false
	}
}

type ExecutionWindow struct {
	At        time.Duration // offset from local midnight
	Tolerance time.Duration
	Location  *time.Location
}

func ParseExecutionWindow(at, tz string, toleranceMinutes int) (ExecutionWindow, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return ExecutionWindow{}, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	offset, err := parseClock(at)
	if err != nil {
		return ExecutionWindow{}, err
	}
	return ExecutionWindow{
		At:        offset,
		Tolerance: time.Duration(toleranceMinutes) * time.Minute,
		Location:  loc,
	}, nil
}

// Contains reports whether now is within tolerance of the scheduled time on
// its local date. Wall-clock based, so it holds across DST changes.
func (w ExecutionWindow) Contains(now time.Time) bool {
	local := now.In(w.Location)
	target := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.Location).Add(w.At)
	diff := local.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= w.Tolerance
}
