package taxlot

import (
	"context"
	"errors"
	"fmt"

	"github.com/etnz/taxlot/date"
	"github.com/shopspring/decimal"
)

// PriceQuote is the unit price of an asset in base fiat for one day.
// Historical quotes never change: once stored, a quote is permanent.
type PriceQuote struct {
	Asset  string          `json:"asset"`
	Day    date.Date       `json:"day"`
	Price  decimal.Decimal `json:"price"`
	Source string          `json:"source,omitempty"` // provider that supplied it
}

// PriceSource supplies historical daily prices in base fiat.
type PriceSource interface {
	HistoricalPrice(ctx context.Context, asset string, day date.Date) (PriceQuote, error)
}

// RateSource supplies the base fiat to national currency rate for a day.
type RateSource interface {
	Rate(ctx context.Context, day date.Date) (decimal.Decimal, error)
}

// PriceSourceFunc adapts a function to a PriceSource.
type PriceSourceFunc func(ctx context.Context, asset string, day date.Date) (PriceQuote, error)

func (f PriceSourceFunc) HistoricalPrice(ctx context.Context, asset string, day date.Date) (PriceQuote, error) {
	return f(ctx, asset, day)
}

// RateSourceFunc adapts a function to a RateSource.
type RateSourceFunc func(ctx context.Context, day date.Date) (decimal.Decimal, error)

func (f RateSourceFunc) Rate(ctx context.Context, day date.Date) (decimal.Decimal, error) {
	return f(ctx, day)
}

type chain []PriceSource

// ChainSources returns a PriceSource that asks each source in turn and returns the first price.
func ChainSources(sources ...PriceSource) PriceSource { return chain(sources) }

func (c chain) HistoricalPrice(ctx context.Context, asset string, day date.Date) (PriceQuote, error) {
	var errs []error
	for _, s := range c {
		q, err := s.HistoricalPrice(ctx, asset, day)
		if err == nil {
			return q, nil
		}
		if ctx.Err() != nil {
			return PriceQuote{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return PriceQuote{}, fmt.Errorf("%w: no price source for %s", ErrPriceUnavailable, asset)
	}
	return PriceQuote{}, errors.Join(errs...)
}
