// Package binance reads historical daily prices from the Binance public market data API.
package binance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/fetch"
)

// DefaultURL is the public spot API.
const DefaultURL = "https://api.binance.com"

// Source prices an asset with the daily close of its USDT pair.
//
//	GET /api/v3/klines?symbol=BTCUSDT&interval=1d&startTime=1746057600000&limit=1
//	[[1746057600000,"94172.00","97437.96","93985.23","96489.91","21365.29", ...]]
//
// The fifth field is the close price.
type Source struct {
	URL    string
	Quote  string // quote asset of the pair, USDT by default
	client *fetch.Client
}

// New returns a Source over client, or a default client when nil.
func New(client *fetch.Client) *Source {
	if client == nil {
		// Binance allows 6000 weight per minute, a kline request weighs 2.
		client = fetch.New(20, 5)
	}
	return &Source{URL: DefaultURL, Quote: "USDT", client: client}
}

// HistoricalPrice implements taxlot.PriceSource.
func (s *Source) HistoricalPrice(ctx context.Context, asset string, day date.Date) (taxlot.PriceQuote, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(asset)+s.Quote)
	q.Set("interval", "1d")
	q.Set("startTime", fmt.Sprint(day.Start(time.UTC).UnixMilli()))
	q.Set("limit", "1")
	addr := s.URL + "/api/v3/klines?" + q.Encode()

	body, err := s.client.Get(ctx, addr)
	if err != nil {
		if fetch.NotFound(err) {
			return taxlot.PriceQuote{}, fmt.Errorf("%w: binance has no %s%s pair: %w", taxlot.ErrPriceUnavailable, asset, s.Quote, err)
		}
		return taxlot.PriceQuote{}, fmt.Errorf("%w: binance %s on %s: %w", taxlot.ErrExternalSource, asset, day, err)
	}
	jval, err := fetch.Extract(body, "$[0][4]")
	if err != nil {
		// No candle: the pair did not trade that day.
		return taxlot.PriceQuote{}, fmt.Errorf("%w: binance has no %s%s candle on %s", taxlot.ErrPriceUnavailable, asset, s.Quote, day)
	}
	price, err := fetch.ToDecimal(jval)
	if err != nil {
		return taxlot.PriceQuote{}, fmt.Errorf("%w: binance %s on %s: %w", taxlot.ErrExternalSource, asset, day, err)
	}
	return taxlot.PriceQuote{Asset: asset, Day: day, Price: price, Source: "binance"}, nil
}

var _ taxlot.PriceSource = (*Source)(nil)
