package taxlot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/etnz/taxlot/date"
	"github.com/shopspring/decimal"
)

func testResolver(source PriceSource, rates RateSource, store QuoteStore, fallback FallbackPolicy) *Resolver {
	return NewResolver(source, rates, store, ResolverOptions{
		Base:     "USD",
		National: "VND",
		Pegged:   []string{"USDT", "USDC"},
		Fallback: fallback,
	})
}

func TestResolver_Cache(t *testing.T) {
	ctx := context.Background()
	src := &fakePrices{prices: map[string]float64{"BTC": 40000}}
	store := NewMemoryStore()
	r := testResolver(src, nil, store, FallbackSkip)
	day := date.New(2025, 5, 1)

	for range 3 {
		res := r.ResolveDay(ctx, "BTC", day)
		if !res.Available || !res.Quote.Price.Equal(decimal.NewFromInt(40000)) {
			t.Fatalf("ResolveDay() = %+v, want 40000", res)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source called %d times, want 1", got)
	}
	if _, ok, _ := store.Quote(ctx, "BTC", day); !ok {
		t.Error("ResolveDay() did not persist the quote")
	}

	// A new resolver over the same store does not call the source again.
	other := &fakePrices{prices: map[string]float64{"BTC": 1}}
	r = testResolver(other, nil, store, FallbackSkip)
	if res := r.ResolveDay(ctx, "BTC", day); !res.Quote.Price.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("ResolveDay() = %v, want the stored 40000", res.Quote.Price)
	}
	if got := other.calls.Load(); got != 0 {
		t.Errorf("source called %d times, want 0", got)
	}
}

func TestResolver_SingleFlight(t *testing.T) {
	ctx := context.Background()
	var calls int
	var mu sync.Mutex
	release := make(chan struct{})
	src := PriceSourceFunc(func(_ context.Context, asset string, day date.Date) (PriceQuote, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return PriceQuote{Asset: asset, Day: day, Price: decimal.NewFromInt(3000)}, nil
	})
	r := testResolver(src, nil, nil, FallbackSkip)

	var wg sync.WaitGroup
	results := make([]PriceResult, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.ResolveDay(ctx, "ETH", date.New(2025, 5, 1))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("source called %d times, want 1", calls)
	}
	for i, res := range results {
		if !res.Available || !res.Quote.Price.Equal(decimal.NewFromInt(3000)) {
			t.Errorf("ResolveDay()[%d] = %+v, want 3000", i, res)
		}
	}
}

func TestResolver_Unavailable(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name   string
		source PriceSource
	}{
		{"no source", nil},
		{"unknown asset", &fakePrices{}},
		{"zero price", PriceSourceFunc(func(context.Context, string, date.Date) (PriceQuote, error) {
			return PriceQuote{Price: decimal.Zero}, nil
		})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := testResolver(tc.source, nil, NewMemoryStore(), FallbackSkip)
			res := r.ResolveDay(ctx, "XYZ", date.New(2025, 5, 1))
			if res.Available {
				t.Errorf("ResolveDay() = %+v, want unavailable", res)
			}
			if res.Reason == "" {
				t.Error("ResolveDay() has no reason")
			}
		})
	}
}

func TestResolver_LastKnown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.PutQuote(ctx, PriceQuote{Asset: "BTC", Day: date.New(2025, 4, 28), Price: decimal.NewFromInt(39000), Source: "manual"}); err != nil {
		t.Fatal(err)
	}
	failing := PriceSourceFunc(func(context.Context, string, date.Date) (PriceQuote, error) {
		return PriceQuote{}, ErrExternalSource
	})

	res := testResolver(failing, nil, store, FallbackLastKnown).ResolveDay(ctx, "BTC", date.New(2025, 5, 1))
	if !res.Available || !res.Stale || !res.Quote.Price.Equal(decimal.NewFromInt(39000)) {
		t.Errorf("ResolveDay(last-known) = %+v, want stale 39000", res)
	}
	if res.Quote.Day != date.New(2025, 4, 28) {
		t.Errorf("ResolveDay(last-known).Day = %v, want 2025-04-28", res.Quote.Day)
	}

	res = testResolver(failing, nil, store, FallbackSkip).ResolveDay(ctx, "BTC", date.New(2025, 5, 1))
	if res.Available {
		t.Errorf("ResolveDay(skip) = %+v, want unavailable", res)
	}
}

func TestResolver_Pegged(t *testing.T) {
	src := &fakePrices{}
	r := testResolver(src, nil, nil, FallbackSkip)
	for _, asset := range []string{"USDT", "USDC", "USD"} {
		res := r.ResolveDay(context.Background(), asset, date.New(2025, 5, 1))
		if !res.Available || !res.Quote.Price.Equal(decimal.NewFromInt(1)) {
			t.Errorf("ResolveDay(%s) = %+v, want 1", asset, res)
		}
	}
	if src.calls.Load() != 0 {
		t.Error("pegged assets must not reach the source")
	}
}

func TestResolver_Day(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	r := NewResolver(nil, nil, nil, ResolverOptions{Base: "USD", National: "VND", Location: loc})
	// 20:00 UTC is already the next day in Ho Chi Minh City.
	if got := r.Day(mustTime("2025-04-30T20:00:00Z")); got != date.New(2025, 5, 1) {
		t.Errorf("Day() = %v, want 2025-05-01", got)
	}
}

func TestResolver_Convert(t *testing.T) {
	ctx := context.Background()
	day := date.New(2025, 5, 1)
	failing := RateSourceFunc(func(context.Context, date.Date) (decimal.Decimal, error) {
		return decimal.Zero, ErrExternalSource
	})
	testCases := []struct {
		name       string
		rates      RateSource
		manual     float64
		national   string
		wantRate   float64
		wantSource RateOrigin
		wantErr    error
	}{
		{"live", fixedRate(25400), 25000, "VND", 25400, RateLive, nil},
		{"manual only", nil, 25000, "VND", 25000, RateManual, nil},
		{"manual fallback", failing, 25000, "VND", 25000, RateManualFallback, nil},
		{"identity", failing, 0, "USD", 1, RateIdentity, nil},
		{"no rate at all", failing, 0, "VND", 0, "", ErrPriceUnavailable},
		{"no source", nil, 0, "VND", 0, "", ErrPriceUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(nil, tc.rates, nil, ResolverOptions{Base: "USD", National: tc.national, ManualRate: decimal.NewFromFloat(tc.manual)})
			conv, err := r.Convert(ctx, day)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Convert() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Convert() unexpected error: %v", err)
			}
			if !conv.Rate.Equal(decimal.NewFromFloat(tc.wantRate)) || conv.Source != tc.wantSource {
				t.Errorf("Convert() = %v %v, want %v %v", conv.Rate, conv.Source, tc.wantRate, tc.wantSource)
			}
		})
	}
}

func TestConversion_Apply(t *testing.T) {
	conv := Conversion{From: "USD", To: "VND", Rate: decimal.NewFromInt(25000)}
	if got := conv.Apply(USD(40000)); !got.Equal(VND(1_000_000_000)) {
		t.Errorf("Apply() = %v, want 1,000,000,000 VND", got)
	}
}

func TestParseFallbackPolicy(t *testing.T) {
	for _, p := range []FallbackPolicy{FallbackSkip, FallbackLastKnown} {
		got, err := ParseFallbackPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseFallbackPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParseFallbackPolicy("guess"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ParseFallbackPolicy(guess) error = %v, want ErrConfiguration", err)
	}
}
