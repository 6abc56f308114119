package datafeed

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"github.com/fazecat/momentumwatch/Internal/utils"
)

// TradingSession asks the Alpaca calendar whether day is a trading day and
// returns its regular session open. mh supplies the exchange timezone.
func (p *AlpacaProvider) TradingSession(ctx context.Context, day time.Time, mh utils.MarketHours) (time.Time, bool, error) {
	local := day.In(mh.Location)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, mh.Location)

	var days []alpaca.CalendarDay
	err := utils.RetryWithBackoffContext(ctx, func() error {
		var err error
		days, err = p.trading.GetCalendar(alpaca.GetCalendarRequest{Start: date, End: date})
		return err
	}, p.retry)
	if err != nil {
		p.metrics.IncProviderError()
		return time.Time{}, false, fmt.Errorf("failed to fetch market calendar: %w", err)
	}

	return sessionFromCalendar(days, date, mh)
}

func sessionFromCalendar(days []alpaca.CalendarDay, date time.Time, mh utils.MarketHours) (time.Time, bool, error) {
	want := date.Format("2006-01-02")
	for _, d := range days {
		if d.Date != want {
			continue
		}
		open, err := time.ParseInLocation("2006-01-02 15:04", d.Date+" "+d.Open, mh.Location)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid calendar open %q: %w", d.Open, err)
		}
		return open, true, nil
	}
	return time.Time{}, false, nil
}
