package taxlot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
	"unicode"
)

// CSVFormat is a known CSV export layout.
type CSVFormat int

const (
	UnknownCSV CSVFormat = iota
	// CustomCSV has the columns date, type, token, amount and optionally price, value,
	// source, chain, key, received_token, received_amount and note.
	CustomCSV
	// BinanceCSV is the Binance spot trade history: Date(UTC), Pair, Side, Price, Executed, Amount, Fee.
	BinanceCSV
)

func (f CSVFormat) String() string {
	switch f {
	case CustomCSV:
		return "custom"
	case BinanceCSV:
		return "binance"
	default:
		return "unknown"
	}
}

// DetectCSVFormat recognizes a layout from its header row.
func DetectCSVFormat(header []string) CSVFormat {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	has := func(names ...string) bool {
		for _, n := range names {
			if !slices.Contains(cols, n) {
				return false
			}
		}
		return true
	}
	switch {
	case has("date(utc)", "pair", "side", "executed"):
		return BinanceCSV
	case has("date", "type", "token", "amount"):
		return CustomCSV
	default:
		return UnknownCSV
	}
}

// quoteAssets are the quote currencies recognized at the end of an exchange pair, longest first.
var quoteAssets = []string{"FDUSD", "USDT", "BUSD", "USDC", "BTC", "ETH", "BNB", "USD", "EUR"}

// stableQuotes are quote currencies whose prices are taken as base fiat prices.
var stableQuotes = []string{"FDUSD", "USDT", "BUSD", "USDC", "USD"}

// SplitPair splits an exchange pair such as BTCUSDT into its base and quote assets.
func SplitPair(pair string) (base, quote string, ok bool) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	for _, q := range quoteAssets {
		if strings.HasSuffix(pair, q) && len(pair) > len(q) {
			return strings.TrimSuffix(pair, q), q, true
		}
	}
	return "", "", false
}

// splitAmount splits a Binance amount such as "0.0010000BTC" into number and asset.
func splitAmount(s string) (Number, string) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	i := strings.IndexFunc(s, func(r rune) bool { return unicode.IsLetter(r) })
	if i < 0 {
		return Number(s), ""
	}
	return Number(strings.TrimSpace(s[:i])), strings.ToUpper(s[i:])
}

// DecodeCSV reads records from a CSV export, detecting its layout.
// Rows that cannot be mapped are still returned, the Normalizer rejects them with a reason.
func DecodeCSV(r io.Reader) ([]Record, CSVFormat, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, UnknownCSV, nil
	}
	if err != nil {
		return nil, UnknownCSV, fmt.Errorf("reading csv header: %w", err)
	}
	format := DetectCSVFormat(header)
	if format == UnknownCSV {
		return nil, format, fmt.Errorf("unrecognized csv header %q", header)
	}
	index := make(map[string]int)
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	occurrences := make(map[string]int)
	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, format, fmt.Errorf("line %d: %w", line, err)
		}
		col := func(name string) string {
			if i, ok := index[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		// Rows without a natural key are identified by their content and
		// their rank among identical rows, which is stable across re-imports.
		content := strings.Join(row, "|")
		occurrences[content]++
		rowKey := fmt.Sprintf("%s#%d", content, occurrences[content])

		switch format {
		case BinanceCSV:
			records = append(records, binanceRecords(col, rowKey)...)
		case CustomCSV:
			records = append(records, customRecord(col, rowKey))
		}
	}
	return records, format, nil
}

func parseCSVTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func customRecord(col func(string) string, rowKey string) Record {
	key := col("key")
	if key == "" {
		key = rowKey
	}
	provenance := col("source")
	if provenance == "" {
		provenance = ProvenanceCSV
	}
	note := col("note")
	if chain := col("chain"); chain != "" {
		note = strings.TrimSpace(chain + " " + note)
	}
	return Record{
		Key:             key,
		Time:            parseCSVTime(col("date")),
		Type:            col("type"),
		Asset:           col("token"),
		Amount:          Number(col("amount")),
		SecondaryAsset:  col("received_token"),
		SecondaryAmount: Number(col("received_amount")),
		Price:           Number(col("price")),
		Note:            note,
		Provenance:      provenance,
	}
}

// binanceRecords maps a trade row to a record, plus a fee record when a fee was charged.
// Trades against a stable quote are buys and sells priced in base fiat, trades against
// a crypto quote are swaps.
func binanceRecords(col func(string) string, rowKey string) []Record {
	at := parseCSVTime(col("date(utc)"))
	side := strings.ToUpper(col("side"))
	executed, _ := splitAmount(col("executed"))
	amount, _ := splitAmount(col("amount"))
	base, quote, ok := SplitPair(col("pair"))
	if !ok {
		// Leave the asset empty: the Normalizer will reject the row.
		return []Record{{Key: rowKey, Time: at, Type: side, Amount: executed, Provenance: ProvenanceBinance}}
	}

	rec := Record{Key: rowKey, Time: at, Provenance: ProvenanceBinance}
	switch {
	case slices.Contains(stableQuotes, quote):
		rec.Type, rec.Asset, rec.Amount, rec.Price = side, base, executed, Number(col("price"))
	case side == "BUY":
		rec.Type, rec.Asset, rec.Amount, rec.SecondaryAsset, rec.SecondaryAmount = "swap", quote, amount, base, executed
	default:
		rec.Type, rec.Asset, rec.Amount, rec.SecondaryAsset, rec.SecondaryAmount = "swap", base, executed, quote, amount
	}
	records := []Record{rec}

	if fee, asset := splitAmount(col("fee")); asset != "" {
		if q, err := ParseQuantity(string(fee)); err == nil && q.IsPositive() {
			records = append(records, Record{
				Key:        rowKey + ":fee",
				Time:       at,
				Type:       "transaction fee",
				Asset:      asset,
				Amount:     fee,
				Provenance: ProvenanceBinance,
			})
		}
	}
	return records
}
