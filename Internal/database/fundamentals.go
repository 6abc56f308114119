package datafeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/equity"

	"github.com/fazecat/momentumwatch/Internal/types"
)

// Fundamentals holds the share structure the screener filters on. Nil
// means the value is unknown.
type Fundamentals struct {
	Float     *int64
	MarketCap *float64
}

// FundamentalsSource looks up float and market cap. Symbols it knows
// nothing about are absent from the result.
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, symbols []string) (map[string]Fundamentals, error)
}

// YahooFundamentals reads Yahoo Finance equity quotes. Yahoo's quote
// endpoint carries shares outstanding but not float, so shares outstanding
// stands in for float.
type YahooFundamentals struct {
	list func(symbols []string) ([]*finance.Equity, error)
}

func NewYahooFundamentals() *YahooFundamentals {
	return &YahooFundamentals{list: listEquities}
}

func listEquities(symbols []string) ([]*finance.Equity, error) {
	iter := equity.List(symbols)
	out := make([]*finance.Equity, 0, len(symbols))
	for iter.Next() {
		out = append(out, iter.Equity())
	}
	return out, iter.Err()
}

func (y *YahooFundamentals) Fundamentals(ctx context.Context, symbols []string) (map[string]Fundamentals, error) {
	out := make(map[string]Fundamentals, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	equities, err := y.list(symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch yahoo quotes: %w", err)
	}

	for _, e := range equities {
		if e == nil || e.Symbol == "" {
			continue
		}
		var f Fundamentals
		if shares := int64(e.SharesOutstanding); shares > 0 {
			f.Float = &shares
		}
		if mcap := float64(e.MarketCap); mcap > 0 {
			f.MarketCap = &mcap
		}
		out[strings.ToUpper(e.Symbol)] = f
	}
	return out, nil
}

func applyFundamentals(c *types.Candidate, f Fundamentals) {
	if f.Float != nil {
		c.Float = f.Float
	}
	if f.MarketCap != nil {
		c.MarketCap = f.MarketCap
	}
}

func (p *AlpacaProvider) fetchFundamentals(ctx context.Context, symbols []string) map[string]Fundamentals {
	if p.fundamentals == nil {
		return map[string]Fundamentals{}
	}
	funds, err := p.fundamentals.Fundamentals(ctx, symbols)
	if err != nil {
		// Unknown float and market cap only disable their bounds.
		p.metrics.IncProviderError()
		slog.WarnContext(ctx, "fundamentals unavailable", slog.Any("error", err))
		return map[string]Fundamentals{}
	}
	return funds
}
