package taxlot

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/taxlot/date"
	"github.com/shopspring/decimal"
)

// VND is a helper for test to create national currency money from const.
func VND(v float64) Money { return M(v, "VND") }

// USD is a helper for test to create base fiat money from const.
func USD(v float64) Money { return M(v, "USD") }

// mustQ parses a quantity or panics.
func mustQ(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// mustTime parses an RFC3339 timestamp or panics.
func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// fakePrices is a price source with fixed prices per asset, whatever the day.
type fakePrices struct {
	prices map[string]float64
	calls  atomic.Int32
}

func (f *fakePrices) HistoricalPrice(_ context.Context, asset string, day date.Date) (PriceQuote, error) {
	f.calls.Add(1)
	p, ok := f.prices[asset]
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: no price for %s", ErrExternalSource, asset)
	}
	return PriceQuote{Asset: asset, Day: day, Price: decimal.NewFromFloat(p), Source: "fake"}, nil
}

// fixedRate is a live rate source returning the same rate every day.
func fixedRate(rate float64) RateSource {
	return RateSourceFunc(func(context.Context, date.Date) (decimal.Decimal, error) {
		return decimal.NewFromFloat(rate), nil
	})
}

// newTestEngine returns an engine over a memory store, pricing in USD and taxing in VND
// at 25,000 VND per USD.
func newTestEngine(t *testing.T, prices map[string]float64, opts Options) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	resolver := NewResolver(&fakePrices{prices: prices}, fixedRate(25000), store, ResolverOptions{
		Base:     "USD",
		National: "VND",
		Pegged:   []string{"USDT"},
	})
	normalizer := NewNormalizer("USD")
	normalizer.Now = func() time.Time { return mustTime("2026-01-01T00:00:00Z") }
	if opts.Rates.Transfer.IsZero() && opts.Rates.OtherIncome.IsZero() {
		fee := opts.Rates.Fee
		opts.Rates = DefaultRates()
		opts.Rates.Fee = fee
	}
	e, err := NewEngine(store, resolver, normalizer, opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e, store
}
