package taxlot

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// Well known provenance tags.
const (
	ProvenanceBinance = "binance"
	ProvenanceCSV     = "csv"
	ProvenanceWallet  = "wallet"
)

// Number is a decimal number as written by a source. In JSON it may be a number or a string.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	*n = Number(strings.Trim(string(b), `"`))
	return nil
}

// Record is a source record, as handed over by an ingestion collaborator
// (wallet indexer, exchange export, CSV file).
type Record struct {
	Key             string    `json:"key"`  // natural key: trade id, tx hash and log index
	Time            time.Time `json:"time"` // when it happened
	Type            string    `json:"type"` // native transaction type
	Asset           string    `json:"asset"`
	Amount          Number    `json:"amount"`
	SecondaryAsset  string    `json:"secondaryAsset,omitempty"`  // received asset of a swap
	SecondaryAmount Number    `json:"secondaryAmount,omitempty"` // received amount of a swap
	Price           Number    `json:"price,omitempty"`           // unit price in base fiat, if known
	Note            string    `json:"note,omitempty"`
	Provenance      string    `json:"provenance,omitempty"`
}

// Rejection is a record the normalizer could not turn into a Transaction.
type Rejection struct {
	Index  int    `json:"index"` // position in the batch
	Record Record `json:"record"`
	Reason string `json:"reason"`
}

// NormalizeResult is the outcome of a batch normalization.
type NormalizeResult struct {
	Accepted   []Transaction `json:"accepted"`   // sorted by time, feed order on ties
	Rejected   []Rejection   `json:"rejected"`   // itemized validation failures
	Duplicates []string      `json:"duplicates"` // IDs already known, skipped
	Flagged    []Transaction `json:"flagged"`    // accepted with an unmapped native type
}

// genesis is the earliest acceptable timestamp.
var genesis = time.Date(2009, time.January, 3, 0, 0, 0, 0, time.UTC)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,19}$`)

var strictPolicy = bluemonday.StrictPolicy()

// Normalizer turns source records into canonical Transactions. It has no side effects.
type Normalizer struct {
	Vocabulary *Vocabulary
	Assets     map[string]bool  // known symbols, nil accepts any well formed symbol
	Base       string           // currency of record prices
	Now        func() time.Time // clock for the timestamp range check
	MinTime    time.Time        // earliest acceptable timestamp
}

// NewNormalizer returns a Normalizer with the default vocabulary.
func NewNormalizer(base string) *Normalizer {
	return &Normalizer{
		Vocabulary: DefaultVocabulary(),
		Base:       base,
		Now:        time.Now,
		MinTime:    genesis,
	}
}

// Normalize converts a batch of records. Records whose identity is already known
// (seen reports true, seen may be nil) or repeated in the batch are skipped as
// duplicates. Malformed records are rejected individually and the batch goes on.
func (n *Normalizer) Normalize(records []Record, provenance string, seen func(id string) bool) NormalizeResult {
	var res NormalizeResult
	batch := make(map[string]bool)
	for i, r := range records {
		tx, err := n.normalize(r, provenance)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Record: r, Reason: err.Error()})
			continue
		}
		if batch[tx.ID] || (seen != nil && seen(tx.ID)) {
			res.Duplicates = append(res.Duplicates, tx.ID)
			continue
		}
		batch[tx.ID] = true
		res.Accepted = append(res.Accepted, tx)
	}
	slices.SortStableFunc(res.Accepted, func(a, b Transaction) int { return a.Time.Compare(b.Time) })
	for _, tx := range res.Accepted {
		if tx.Review {
			res.Flagged = append(res.Flagged, tx)
		}
	}
	return res
}

func (n *Normalizer) symbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("unknown asset symbol %q", s)
	}
	if n.Assets != nil && !n.Assets[sym] {
		return "", fmt.Errorf("unknown asset symbol %q", s)
	}
	return sym, nil
}

func positive(field string, v Number) (Quantity, error) {
	q, err := ParseQuantity(strings.TrimSpace(string(v)))
	if err != nil {
		return Quantity{}, fmt.Errorf("non-parseable %s %q", field, v)
	}
	switch {
	case q.IsZero():
		return Quantity{}, fmt.Errorf("zero %s", field)
	case q.IsNegative():
		return Quantity{}, fmt.Errorf("negative %s %v", field, q)
	}
	return q, nil
}

func (n *Normalizer) normalize(r Record, provenance string) (Transaction, error) {
	if provenance == "" {
		provenance = r.Provenance
	}
	var reasons []string
	fail := func(format string, args ...any) { reasons = append(reasons, fmt.Sprintf(format, args...)) }

	for _, f := range []struct{ name, value string }{
		{"key", r.Key}, {"type", r.Type}, {"asset", r.Asset}, {"amount", string(r.Amount)}, {"provenance", provenance},
	} {
		if strings.TrimSpace(f.value) == "" {
			fail("missing required field %s", f.name)
		}
	}
	if r.Time.IsZero() {
		fail("missing required field time")
	} else if r.Time.Before(n.MinTime) || (n.Now != nil && r.Time.After(n.Now().Add(24*time.Hour))) {
		fail("timestamp %s out of range", r.Time.Format(time.RFC3339))
	}

	tx := Transaction{
		Time:       r.Time,
		Provenance: provenance,
		NativeType: strings.TrimSpace(r.Type),
		Note:       sanitize(r.Note),
	}
	if r.Key != "" && provenance != "" {
		tx.ID = TransactionID(provenance, strings.TrimSpace(r.Key))
	}
	if r.Asset != "" {
		sym, err := n.symbol(r.Asset)
		if err != nil {
			fail("%v", err)
		}
		tx.Asset = sym
	}
	if r.Amount != "" {
		q, err := positive("amount", r.Amount)
		if err != nil {
			fail("%v", err)
		}
		tx.Amount = q
	}
	if r.Price != "" {
		p, err := decimal.NewFromString(strings.TrimSpace(string(r.Price)))
		switch {
		case err != nil:
			fail("non-parseable price %q", r.Price)
		case p.IsNegative():
			fail("negative price %v", p)
		default:
			tx.UnitPrice = M(p, n.Base)
		}
	}

	if r.Type != "" {
		m, ok := n.Vocabulary.Lookup(provenance, r.Type)
		if !ok {
			m, tx.Review = Mapping{Class: Other}, true
		}
		tx.Class, tx.Reward = m.Class, m.Reward
	}
	if tx.Class == Exchange {
		if r.SecondaryAsset == "" || r.SecondaryAmount == "" {
			fail("missing required field secondaryAsset/secondaryAmount for an exchange")
		} else {
			sym, err := n.symbol(r.SecondaryAsset)
			if err != nil {
				fail("%v", err)
			}
			q, err := positive("secondaryAmount", r.SecondaryAmount)
			if err != nil {
				fail("%v", err)
			}
			if sym != "" && sym == tx.Asset {
				fail("exchange of %s for itself", sym)
			}
			tx.Received, tx.ReceivedQ = sym, q
		}
	}

	if len(reasons) > 0 {
		return Transaction{}, fmt.Errorf("%w: %s", ErrValidation, strings.Join(reasons, "; "))
	}
	return tx, nil
}

// sanitize strips markup and control characters from free text, and defuses
// spreadsheet formulas so that notes can be exported safely.
func sanitize(s string) string {
	s = strictPolicy.Sanitize(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' {
			return r
		}
		return -1
	}, s)
	s = strings.TrimSpace(s)
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}
