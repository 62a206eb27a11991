package renderer

import (
	"strings"
	"testing"
	"time"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/shopspring/decimal"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// assertContains checks that every want line is part of the markdown output.
func assertContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q\ngot:\n%s", want, got)
		}
	}
}

func TestTemplatesParse(t *testing.T) {
	entries, err := templates.ReadDir("templates")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("no templates embedded")
	}
	for _, e := range entries {
		got := renderTemplate("t", e.Name(), nil, nil)
		if strings.HasPrefix(got, "error parsing") || strings.HasPrefix(got, "error reading") {
			t.Errorf("template %s: %s", e.Name(), got)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	vnd := func(v float64) taxlot.Money { return taxlot.M(v, "VND") }
	zero := vnd(0)
	bucket := func(key string, transfer, income, gain float64, issues ...taxlot.Issue) taxlot.Bucket {
		return taxlot.Bucket{
			Key: key,
			Totals: taxlot.Totals{
				Transactions:   3,
				Events:         2,
				TransferTax:    vnd(transfer),
				OtherIncomeTax: vnd(income),
				Proceeds:       zero,
				CostBasis:      zero,
				RealizedGain:   vnd(gain),
			},
			Unresolved: len(issues),
			Flagged:    len(issues) > 0,
			Issues:     issues,
		}
	}
	issue := taxlot.Issue{TxID: "0123456789abcdef", Asset: "PEPE", Status: taxlot.PriceUnavailable, Message: "no | price"}
	total := bucket("total", 110000, 750000, -8000000, issue)
	total.Assets = []taxlot.AssetTotals{{Asset: "SOL", Totals: taxlot.Totals{
		Transactions: 1, Events: 1, TransferTax: zero, OtherIncomeTax: vnd(750000), Proceeds: zero, CostBasis: zero, RealizedGain: zero,
	}}}
	s := taxlot.Summary{
		Bucketing: taxlot.ByMonth,
		Currency:  "VND",
		Buckets:   []taxlot.Bucket{bucket("2025-04", 60000, 0, 0), bucket("2025-05", 50000, 750000, -8000000, issue)},
		Total:     total,
	}

	got := RenderSummary(s)
	assertContains(t, got,
		"# Tax summary (VND, by "+taxlot.ByMonth.String()+")",
		"| 2025-04 | 3 | 2 | "+vnd(60000).String()+" | ",
		"| 2025-05 ⚠ | 3 | 2 | ",
		"| **Total** ⚠ | 3 | 2 | "+vnd(110000).String()+" | "+vnd(750000).String()+" | "+vnd(860000).String()+" | "+vnd(-8000000).String()+" | 1 |",
		"## By asset",
		"| SOL | 1 | 1 | ",
		"## Unresolved events",
		"### 2025-05",
		"- `0123456789ab…` PEPE: price-unavailable, no \\| price",
	)
	if strings.Contains(got, "### 2025-04") {
		t.Errorf("RenderSummary() lists issues of a clean period:\n%s", got)
	}
}

func TestRenderSummary_Clean(t *testing.T) {
	got := RenderSummary(taxlot.Summary{Bucketing: taxlot.All, Currency: "VND", Total: taxlot.Bucket{Key: "total"}})
	if strings.Contains(got, "Unresolved events") || strings.Contains(got, "By asset") {
		t.Errorf("RenderSummary() of an empty summary has optional sections:\n%s", got)
	}
}

func TestRenderEvents(t *testing.T) {
	events := []taxlot.TaxEvent{{
		TxID:         "tx-1",
		Time:         mustTime("2025-05-02T10:00:00Z"),
		Class:        taxlot.RewardIncome,
		Reward:       taxlot.Staking,
		Asset:        "SOL",
		Amount:       taxlot.Q(2),
		Treatment:    taxlot.OtherIncomeTax,
		NationalBase: taxlot.M(7500000, "VND"),
		Tax:          taxlot.M(750000, "VND"),
		Gain:         taxlot.M(0, "VND"),
		StalePrice:   true,
	}}
	got := RenderEvents(events)
	assertContains(t, got,
		"# Tax events",
		"| 2025-05-02 10:00 | `tx-1` | reward-income (staking) | 2 SOL | "+taxlot.M(7500000, "VND").String()+" | other-income-tax | "+taxlot.M(750000, "VND").String()+" | - | resolved (stale) |",
	)

	if got := RenderEvents(nil); !strings.Contains(got, "No tax events.") {
		t.Errorf("RenderEvents(nil) = %q, want the empty notice", got)
	}
}

func TestRenderTransactions(t *testing.T) {
	txs := []taxlot.Transaction{
		{ID: "a", Seq: 1, Time: mustTime("2025-03-01T10:00:00Z"), Class: taxlot.Acquisition, Asset: "ETH", Amount: taxlot.Q(1), UnitPrice: taxlot.M(2400, "USD"), Provenance: "csv"},
		{ID: "b", Seq: 2, Time: mustTime("2025-05-01T10:00:00Z"), Class: taxlot.Exchange, Asset: "ETH", Amount: taxlot.Q(1), Received: "BTC", ReceivedQ: taxlot.Q(0.05), Provenance: "wallet", NativeType: "swap"},
		{ID: "c", Seq: 3, Time: mustTime("2025-05-03T10:00:00Z"), Class: taxlot.Other, Asset: "XYZ", Amount: taxlot.Q(1), Provenance: "wallet", NativeType: "bridge", Review: true, Note: "multi\nline"},
	}
	got := RenderTransactions(txs)
	assertContains(t, got,
		"| 1 | 2025-03-01 10:00 | acquisition | 1 ETH |  | "+taxlot.M(2400, "USD").String()+" | csv |  |",
		"| 2 | 2025-05-01 10:00 | exchange | 1 ETH | 0.05 BTC |  | wallet (swap) |  |",
		"| 3 | 2025-05-03 10:00 | other ⚠ | 1 XYZ |  |  | wallet (bridge) | multi line |",
	)
}

func TestRenderLots(t *testing.T) {
	lots := []taxlot.Lot{
		{Asset: "SOL", Seq: 1, Original: taxlot.Q(2), Remaining: taxlot.Q(2), UnitCost: taxlot.M(3750000, "VND"), Acquired: mustTime("2025-05-02T10:00:00Z"), Source: "r"},
		{Asset: "BTC", Seq: 2, Original: taxlot.Q(1), Remaining: taxlot.Q(0.4), UnitCost: taxlot.M(1000000000, "VND"), Acquired: mustTime("2025-05-01T10:00:00Z"), Source: "s"},
		{Asset: "BTC", Seq: 1, Original: taxlot.Q(1), Remaining: taxlot.Q(0), UnitCost: taxlot.M(750000000, "VND"), Acquired: mustTime("2025-04-01T10:00:00Z"), Source: "b"},
		{Asset: "XYZ", Seq: 1, Original: taxlot.Q(100), Remaining: taxlot.Q(100), Acquired: mustTime("2025-05-01T10:00:00Z"), Source: "x", UnknownCost: true},
	}
	got := RenderLots(lots)
	assertContains(t, got, "| BTC | 1 | 2025-04-01 10:00 | 1 | retired |", "| BTC | 2 | 2025-05-01 10:00 | 1 | 0.4 |", "| 100 | 100 | unknown |")
	btc1 := strings.Index(got, "| BTC | 1 |")
	btc2 := strings.Index(got, "| BTC | 2 |")
	sol := strings.Index(got, "| SOL | 1 |")
	if !(btc1 < btc2 && btc2 < sol) {
		t.Errorf("RenderLots() rows are not in asset then FIFO order:\n%s", got)
	}
}

func TestRenderHoldings(t *testing.T) {
	got := RenderHoldings(map[string]taxlot.Quantity{"SOL": taxlot.Q(2), "BTC": taxlot.Q(0.04)})
	assertContains(t, got, "| BTC | 0.04 |\n| SOL | 2 |")
	if got := RenderHoldings(nil); !strings.Contains(got, "No holdings.") {
		t.Errorf("RenderHoldings(nil) = %q, want the empty notice", got)
	}
}

func TestRenderImport(t *testing.T) {
	r := taxlot.ImportReport{
		BatchID:    "batch",
		Provenance: "binance",
		Accepted:   make([]taxlot.Transaction, 3),
		Duplicates: []string{"x"},
		Rejected:   []taxlot.Rejection{{Index: 4, Record: taxlot.Record{Key: "k4"}, Reason: "amount: not a number"}},
		Flagged:    []taxlot.Transaction{{ID: "f", NativeType: "bridge", Asset: "XYZ", Amount: taxlot.Q(1)}},
		NewLots:    2,
	}
	got := RenderImport(r)
	assertContains(t, got,
		"# Import binance",
		"Batch `batch`: 3 accepted, 1 duplicates, 1 rejected, 1 to review, 2 new lots.",
		"| 4 | k4 | amount: not a number |",
		"- `f` bridge: 1 XYZ",
	)
	if strings.Contains(got, "## Tax events") {
		t.Errorf("RenderImport() shows an empty events section:\n%s", got)
	}
}

func TestRenderRate(t *testing.T) {
	c := taxlot.Conversion{Day: date.New(2025, 5, 1), From: "USD", To: "VND", Rate: decimal.NewFromInt(25000), Source: taxlot.RateManualFallback}
	assertContains(t, RenderRate(c), "# Rate on 2025-05-01", "1 USD = 25000 VND (manual-fallback)")
}

func TestRenderProblems(t *testing.T) {
	if got := RenderProblems(taxlot.StatusSuccess, "ok", nil); got != "" {
		t.Errorf("RenderProblems(success) = %q, want empty", got)
	}
	got := RenderProblems(taxlot.StatusPartial, "1 event unresolved", []taxlot.Problem{{Kind: taxlot.KindPriceUnavailable, Ref: "tx-1", Message: "no price"}})
	assertContains(t, got, "> **partial**: 1 event unresolved", "> - "+taxlot.KindPriceUnavailable.String()+" `tx-1`: no price")
}
