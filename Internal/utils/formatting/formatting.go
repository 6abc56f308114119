package formatting

import (
	"fmt"
	"strings"
	"time"
)

// Separator returns a line separator of given width
func Separator(width int) string {
	return strings.Repeat("=", width)
}

// Price formats a level, "n/a" when unavailable.
func Price(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.2f", *v)
}

// SignedPercent formats 12.345 as "+12.35%".
func SignedPercent(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

// Ratio formats a 0..1 value as a percentage.
func Ratio(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// Volume abbreviates share counts: 1250000 -> "1.25M".
func Volume(v int64) string {
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(v)/1e9)
	case v >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(v)/1e6)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", float64(v)/1e3)
	}
	return fmt.Sprintf("%d", v)
}

// ParseDate parses a date string in multiple formats
func ParseDate(dateStr string) time.Time {
	formats := []string{
		"2006-01-02", // YYYY-MM-DD (standard)
		"20060102",
		"01/02/2006", // MM/DD/YYYY (US format)
		"01-02-2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t
		}
	}

	return time.Time{}
}
