// Package coingecko reads historical prices from the CoinGecko API.
package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/fetch"
)

// DefaultURL is the public v3 API.
const DefaultURL = "https://api.coingecko.com/api/v3"

// IDs maps well known symbols to CoinGecko coin ids. Other symbols are looked up
// by their lower case name.
var IDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"MATIC": "matic-network",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
}

// Source prices an asset in USD with the CoinGecko coin history.
//
//	GET /coins/bitcoin/history?date=01-05-2025&localization=false
//	{"id":"bitcoin","market_data":{"current_price":{"usd":94180.4, ...}}}
type Source struct {
	URL    string
	IDs    map[string]string
	client *fetch.Client
}

// New returns a Source. An apiKey, when set, is sent as the demo API key.
func New(client *fetch.Client, apiKey string) *Source {
	if client == nil {
		// The free tier allows about 30 calls per minute.
		client = fetch.New(0.5, 1)
	}
	if apiKey != "" {
		client.Header.Set("x-cg-demo-api-key", apiKey)
	}
	return &Source{URL: DefaultURL, IDs: IDs, client: client}
}

func (s *Source) id(asset string) string {
	if id, ok := s.IDs[strings.ToUpper(asset)]; ok {
		return id
	}
	return strings.ToLower(asset)
}

// HistoricalPrice implements taxlot.PriceSource.
func (s *Source) HistoricalPrice(ctx context.Context, asset string, day date.Date) (taxlot.PriceQuote, error) {
	id := s.id(asset)
	addr := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false", s.URL, url.PathEscape(id), day.Format("02-01-2006"))

	body, err := s.client.Get(ctx, addr)
	if err != nil {
		if fetch.NotFound(err) {
			return taxlot.PriceQuote{}, fmt.Errorf("%w: coingecko has no coin %q: %w", taxlot.ErrPriceUnavailable, id, err)
		}
		return taxlot.PriceQuote{}, fmt.Errorf("%w: coingecko %s on %s: %w", taxlot.ErrExternalSource, asset, day, err)
	}
	// Days before the coin listing have no market data.
	jval, err := fetch.Extract(body, "$.market_data.current_price.usd")
	if err != nil {
		return taxlot.PriceQuote{}, fmt.Errorf("%w: coingecko has no %s price on %s", taxlot.ErrPriceUnavailable, id, day)
	}
	price, err := fetch.ToDecimal(jval)
	if err != nil {
		return taxlot.PriceQuote{}, fmt.Errorf("%w: coingecko %s on %s: %w", taxlot.ErrExternalSource, asset, day, err)
	}
	return taxlot.PriceQuote{Asset: asset, Day: day, Price: price, Source: "coingecko"}, nil
}

var _ taxlot.PriceSource = (*Source)(nil)
