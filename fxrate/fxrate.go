// Package fxrate reads the base to national currency rate from the open ExchangeRate-API.
package fxrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/fetch"
	"github.com/shopspring/decimal"
)

// DefaultURL is the open access endpoint, it needs no key.
const DefaultURL = "https://open.er-api.com/v6/latest"

// Source is a live rate source.
//
//	GET /v6/latest/USD
//	{"result":"success","base_code":"USD","rates":{"USD":1,"VND":26005.5, ...}}
//
// The open endpoint only knows the latest rate: the rate of every day is the rate
// of the first time it was asked, the Resolver keeps it for the rest of the run.
type Source struct {
	URL      string
	Base     string
	National string
	client   *fetch.Client
}

// New returns a Source converting base to national.
func New(client *fetch.Client, base, national string) *Source {
	if client == nil {
		client = fetch.New(1, 1)
	}
	return &Source{URL: DefaultURL, Base: strings.ToUpper(base), National: strings.ToUpper(national), client: client}
}

// Rate implements taxlot.RateSource.
func (s *Source) Rate(ctx context.Context, day date.Date) (decimal.Decimal, error) {
	addr := fmt.Sprintf("%s/%s", s.URL, s.Base)
	rate, err := s.client.Decimal(ctx, addr, "$.rates."+s.National)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s rate: %w", taxlot.ErrExternalSource, s.Base, s.National, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s/%s rate %v", taxlot.ErrExternalSource, s.Base, s.National, rate)
	}
	return rate, nil
}

var _ taxlot.RateSource = (*Source)(nil)
