package taxlot

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/etnz/taxlot/date"
)

// Bucketing is the time granularity of a Summary.
type Bucketing int

const (
	ByMonth Bucketing = iota
	ByQuarter
	ByYear
	All
)

func (b Bucketing) String() string {
	switch b {
	case ByMonth:
		return "month"
	case ByQuarter:
		return "quarter"
	case ByYear:
		return "year"
	case All:
		return "all"
	default:
		return fmt.Sprintf("bucketing(%d)", int(b))
	}
}

// ParseBucketing parses month, quarter, year or all.
func ParseBucketing(s string) (Bucketing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "monthly":
		return ByMonth, nil
	case "quarter", "quarterly":
		return ByQuarter, nil
	case "year", "yearly":
		return ByYear, nil
	case "all":
		return All, nil
	default:
		return 0, fmt.Errorf("%w: unknown bucketing %q", ErrConfiguration, s)
	}
}

func (b Bucketing) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Bucketing) UnmarshalText(text []byte) error {
	v, err := ParseBucketing(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// bucket returns the key and the range of the bucket containing day.
func (b Bucketing) bucket(day date.Date) (string, date.Range) {
	var p date.Period
	switch b {
	case ByMonth:
		p = date.Monthly
	case ByQuarter:
		p = date.Quarterly
	case ByYear:
		p = date.Yearly
	default:
		return "all", date.Range{}
	}
	r := date.NewRange(day, p)
	return r.Key(), r
}

// Issue is an unresolved event that makes a bucket untrustworthy.
type Issue struct {
	TxID    string      `json:"txId"`
	Asset   string      `json:"asset"`
	Status  EventStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Totals are the amounts accumulated in a bucket, in the national currency.
type Totals struct {
	Transactions   int   `json:"transactions"`
	Events         int   `json:"events"`
	TransferTax    Money `json:"transferTax"`
	OtherIncomeTax Money `json:"otherIncomeTax"`
	Proceeds       Money `json:"proceeds"`
	CostBasis      Money `json:"costBasis"`
	RealizedGain   Money `json:"realizedGain"`
}

// TotalTax returns the sum of all taxes.
func (t Totals) TotalTax() Money { return t.TransferTax.Add(t.OtherIncomeTax) }

// AssetTotals are the totals of one asset in a bucket.
type AssetTotals struct {
	Asset string `json:"asset"`
	Totals
}

// Bucket is one period of a Summary.
type Bucket struct {
	Key  string    `json:"key"` // 2025-03, 2025-Q1, 2025 or all
	From date.Date `json:"from,omitzero"`
	To   date.Date `json:"to,omitzero"`
	Totals
	Unresolved int           `json:"unresolved"`
	Flagged    bool          `json:"flagged"` // some events could not be computed
	Issues     []Issue       `json:"issues,omitempty"`
	Assets     []AssetTotals `json:"assets,omitempty"`
}

// Summary is a bucketed view of tax events and transactions.
type Summary struct {
	Bucketing Bucketing `json:"bucketing"`
	Currency  string    `json:"currency"`
	Buckets   []Bucket  `json:"buckets"`
	Total     Bucket    `json:"total"`
}

// Aggregator folds events and transactions into summaries.
// The zero value observes days in UTC.
type Aggregator struct {
	Location *time.Location
	Currency string // national currency
}

type bucketAcc struct {
	Bucket
	assets map[string]*AssetTotals
}

func (a Aggregator) newAcc(key string, r date.Range) *bucketAcc {
	zero := M(0, a.Currency)
	return &bucketAcc{
		Bucket: Bucket{
			Key:  key,
			From: r.From,
			To:   r.To,
			Totals: Totals{
				TransferTax:    zero,
				OtherIncomeTax: zero,
				Proceeds:       zero,
				CostBasis:      zero,
				RealizedGain:   zero,
			},
		},
		assets: make(map[string]*AssetTotals),
	}
}

func (b *bucketAcc) asset(a Aggregator, asset string) *AssetTotals {
	t, ok := b.assets[asset]
	if !ok {
		zero := M(0, a.Currency)
		t = &AssetTotals{Asset: asset, Totals: Totals{
			TransferTax:    zero,
			OtherIncomeTax: zero,
			Proceeds:       zero,
			CostBasis:      zero,
			RealizedGain:   zero,
		}}
		b.assets[asset] = t
	}
	return t
}

func (t *Totals) addEvent(e TaxEvent) {
	t.Events++
	if e.Unresolved() {
		return
	}
	switch e.Treatment {
	case TransferTax:
		t.TransferTax = t.TransferTax.Add(e.Tax)
	case OtherIncomeTax:
		t.OtherIncomeTax = t.OtherIncomeTax.Add(e.Tax)
	}
	if e.Class == Disposal || e.Class == Exchange {
		t.Proceeds = t.Proceeds.Add(e.Proceeds)
		t.CostBasis = t.CostBasis.Add(e.CostBasis)
		t.RealizedGain = t.RealizedGain.Add(e.Gain)
	}
}

// add folds e into the bucket. An exchange is a disposal of the given asset, so
// its proceeds, cost basis and gain are filed under that asset.
func (b *bucketAcc) add(a Aggregator, e TaxEvent) {
	b.addEvent(e)
	asset := e.Asset
	if e.Class == Exchange && e.Given != "" {
		asset = e.Given
	}
	b.asset(a, asset).addEvent(e)
	if e.Unresolved() {
		b.Unresolved++
		b.Flagged = true
		b.Issues = append(b.Issues, Issue{TxID: e.TxID, Asset: e.Asset, Status: e.Status, Message: e.Message})
	}
}

func (b *bucketAcc) count(a Aggregator, tx Transaction) {
	b.Transactions++
	b.asset(a, tx.Asset).Transactions++
}

func (b *bucketAcc) bucket() Bucket {
	out := b.Bucket
	out.Assets = nil
	for _, asset := range slices.Sorted(maps.Keys(b.assets)) {
		out.Assets = append(out.Assets, *b.assets[asset])
	}
	return out
}

// Aggregate groups events and transactions by bucketing and totals them.
//
// It is a pure fold: the same inputs always give the same Summary, so a summary is
// recomputed rather than corrected.
func (a Aggregator) Aggregate(events []TaxEvent, txs []Transaction, b Bucketing) Summary {
	accs := make(map[string]*bucketAcc)
	get := func(t time.Time) *bucketAcc {
		key, r := b.bucket(date.Of(t, a.Location))
		acc, ok := accs[key]
		if !ok {
			acc = a.newAcc(key, r)
			accs[key] = acc
		}
		return acc
	}
	total := a.newAcc("total", date.Range{})

	for _, tx := range txs {
		get(tx.Time).count(a, tx)
		total.count(a, tx)
	}
	for _, e := range events {
		get(e.Time).add(a, e)
		total.add(a, e)
	}

	s := Summary{Bucketing: b, Currency: a.Currency, Total: total.bucket()}
	for _, acc := range accs {
		s.Buckets = append(s.Buckets, acc.bucket())
	}
	slices.SortFunc(s.Buckets, func(x, y Bucket) int { return cmp.Compare(x.Key, y.Key) })
	return s
}
