package taxlot

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/logger"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// FallbackPolicy decides what happens when a price cannot be resolved.
type FallbackPolicy int

const (
	// FallbackSkip leaves the price unavailable, the event is reported unresolved.
	FallbackSkip FallbackPolicy = iota
	// FallbackLastKnown uses the latest stored quote before the day.
	FallbackLastKnown
)

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackSkip:
		return "skip"
	case FallbackLastKnown:
		return "last-known"
	default:
		return "unknown"
	}
}

// ParseFallbackPolicy parses "skip" or "last-known".
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch s {
	case "skip", "":
		return FallbackSkip, nil
	case "last-known":
		return FallbackLastKnown, nil
	default:
		return 0, fmt.Errorf("%w: unknown price fallback: %q", ErrConfiguration, s)
	}
}

// RateOrigin tells which source produced a conversion rate.
type RateOrigin string

const (
	RateIdentity       RateOrigin = "identity"        // base and national currency are the same
	RateLive           RateOrigin = "live"            // from the live rate source
	RateManual         RateOrigin = "manual"          // the configured constant
	RateManualFallback RateOrigin = "manual-fallback" // the constant, after the live source failed
)

// Conversion is the rate used to convert base fiat to the national currency on a day.
type Conversion struct {
	Day    date.Date       `json:"day"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Rate   decimal.Decimal `json:"rate"` // units of To per unit of From
	Source RateOrigin      `json:"source"`
}

// Apply converts m, expressed in the base currency, to the national currency.
func (c Conversion) Apply(m Money) Money { return m.Convert(c.Rate, c.To) }

// PriceResult is the outcome of a price resolution. It never carries an error:
// an unavailable price has Available false and a Reason.
type PriceResult struct {
	Quote     PriceQuote `json:"quote"`
	Available bool       `json:"available"`
	Stale     bool       `json:"stale,omitempty"` // a last-known quote from an earlier day
	Reason    string     `json:"reason,omitempty"`
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Base       string          // base fiat currency, e.g. USD
	National   string          // national currency, e.g. VND
	Pegged     []string        // assets priced at exactly 1 unit of base fiat
	Fallback   FallbackPolicy  // what to do when the source fails
	ManualRate decimal.Decimal // manual conversion rate, zero for none
	Location   *time.Location  // where calendar days are observed
}

// Resolver resolves daily prices and conversion rates.
//
// Successful lookups are cached for the life of the resolver and written to the
// quote store: historical prices never change, so nothing is ever evicted.
// Concurrent misses for the same key share a single external lookup.
type Resolver struct {
	source PriceSource
	rates  RateSource
	quotes QuoteStore
	opts   ResolverOptions

	mem   *cache.Cache
	group singleflight.Group
}

// NewResolver returns a Resolver. rates and quotes may be nil.
func NewResolver(source PriceSource, rates RateSource, quotes QuoteStore, opts ResolverOptions) *Resolver {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Resolver{
		source: source,
		rates:  rates,
		quotes: quotes,
		opts:   opts,
		mem:    cache.New(cache.NoExpiration, 0),
	}
}

// Base returns the base fiat currency.
func (r *Resolver) Base() string { return r.opts.Base }

// National returns the national currency.
func (r *Resolver) National() string { return r.opts.National }

// Day returns the calendar day of t where prices are observed.
func (r *Resolver) Day(t time.Time) date.Date { return date.Of(t, r.opts.Location) }

func (r *Resolver) pegged(asset string) bool {
	return strings.EqualFold(asset, r.opts.Base) || slices.Contains(r.opts.Pegged, asset)
}

// Resolve returns the unit price of asset in base fiat on the calendar day of at.
func (r *Resolver) Resolve(ctx context.Context, asset string, at time.Time) PriceResult {
	return r.ResolveDay(ctx, asset, r.Day(at))
}

// ResolveDay returns the unit price of asset in base fiat on day.
func (r *Resolver) ResolveDay(ctx context.Context, asset string, day date.Date) PriceResult {
	if r.pegged(asset) {
		return PriceResult{Quote: PriceQuote{Asset: asset, Day: day, Price: decimal.NewFromInt(1), Source: "peg"}, Available: true}
	}
	key := "price-" + asset + "-" + day.String()
	if v, ok := r.mem.Get(key); ok {
		return PriceResult{Quote: v.(PriceQuote), Available: true}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if v, ok := r.mem.Get(key); ok {
			return v, nil
		}
		if r.quotes != nil {
			q, ok, err := r.quotes.Quote(ctx, asset, day)
			if err != nil {
				logger.FromContext(ctx).Warn("reading quote cache", "asset", asset, "day", day, "error", err)
			} else if ok {
				r.mem.Set(key, q, cache.NoExpiration)
				return q, nil
			}
		}
		if r.source == nil {
			return nil, fmt.Errorf("%w: no price source configured", ErrPriceUnavailable)
		}
		q, err := r.source.HistoricalPrice(ctx, asset, day)
		if err != nil {
			return nil, err
		}
		if !q.Price.IsPositive() {
			return nil, fmt.Errorf("%w: source returned non positive price %v for %s on %s", ErrPriceUnavailable, q.Price, asset, day)
		}
		q.Asset, q.Day = asset, day
		r.mem.Set(key, q, cache.NoExpiration)
		if r.quotes != nil {
			if err := r.quotes.PutQuote(ctx, q); err != nil {
				logger.FromContext(ctx).Warn("writing quote cache", "asset", asset, "day", day, "error", err)
			}
		}
		return q, nil
	})
	if err == nil {
		return PriceResult{Quote: v.(PriceQuote), Available: true}
	}

	res := PriceResult{Quote: PriceQuote{Asset: asset, Day: day}, Reason: err.Error()}
	if r.opts.Fallback == FallbackLastKnown && r.quotes != nil {
		q, ok, qerr := r.quotes.LatestQuote(ctx, asset, day)
		if qerr == nil && ok {
			logger.FromContext(ctx).Warn("using last known price", "asset", asset, "day", day, "from", q.Day, "reason", res.Reason)
			return PriceResult{Quote: q, Available: true, Stale: true, Reason: res.Reason}
		}
	}
	logger.FromContext(ctx).Warn("price unavailable", "asset", asset, "day", day, "reason", res.Reason)
	return res
}

// Convert returns the conversion from base fiat to the national currency on day.
//
// The live rate source is preferred. When it fails the manual rate is used and the
// conversion says so. Without any rate it fails with ErrPriceUnavailable.
func (r *Resolver) Convert(ctx context.Context, day date.Date) (Conversion, error) {
	conv := Conversion{Day: day, From: r.opts.Base, To: r.opts.National}
	if r.opts.Base == r.opts.National {
		conv.Rate, conv.Source = decimal.NewFromInt(1), RateIdentity
		return conv, nil
	}
	manual := r.opts.ManualRate.IsPositive()
	if r.rates == nil {
		if !manual {
			return conv, fmt.Errorf("%w: no rate source for %s/%s", ErrPriceUnavailable, conv.From, conv.To)
		}
		conv.Rate, conv.Source = r.opts.ManualRate, RateManual
		return conv, nil
	}

	key := "rate-" + day.String()
	if v, ok := r.mem.Get(key); ok {
		return v.(Conversion), nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		rate, err := r.rates.Rate(ctx, day)
		if err != nil {
			return nil, err
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("%w: non positive rate %v", ErrExternalSource, rate)
		}
		c := conv
		c.Rate, c.Source = rate, RateLive
		r.mem.Set(key, c, cache.NoExpiration)
		return c, nil
	})
	if err == nil {
		return v.(Conversion), nil
	}
	if manual {
		logger.FromContext(ctx).Warn("live rate unavailable, using manual rate", "day", day, "rate", r.opts.ManualRate, "error", err)
		conv.Rate, conv.Source = r.opts.ManualRate, RateManualFallback
		return conv, nil
	}
	return conv, fmt.Errorf("%w: rate %s/%s on %s: %w", ErrPriceUnavailable, conv.From, conv.To, day, err)
}
