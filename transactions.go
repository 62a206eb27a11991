package taxlot

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Transaction is the canonical, source independent record of one economic event.
// It is created once by the Normalizer and never mutated.
type Transaction struct {
	ID         string         `json:"id"`                   // stable identity key
	Seq        int64          `json:"seq"`                  // import order, breaks timestamp ties
	Time       time.Time      `json:"time"`                 // when it happened
	Class      Classification `json:"class"`                // canonical classification
	Reward     RewardKind     `json:"reward,omitempty"`     // set for reward income
	Asset      string         `json:"asset"`                // primary asset symbol
	Amount     Quantity       `json:"amount"`               // primary amount, strictly positive
	UnitPrice  Money          `json:"unitPrice,omitzero"`   // optional unit price in base fiat
	Received   string         `json:"received,omitempty"`   // exchange: received asset
	ReceivedQ  Quantity       `json:"receivedQty,omitzero"` // exchange: received amount
	Provenance string         `json:"provenance"`           // ingestion source
	NativeType string         `json:"nativeType,omitempty"` // type in the source vocabulary
	Note       string         `json:"note,omitempty"`
	Review     bool           `json:"review,omitempty"` // unmapped native type
}

// TransactionID derives the identity key of a record from its provenance and natural key.
func TransactionID(provenance, key string) string {
	sum := sha256.Sum256([]byte(provenance + ":" + key))
	return hex.EncodeToString(sum[:])
}

// HasPrice reports whether the unit price was known at ingestion.
func (tx Transaction) HasPrice() bool { return !tx.UnitPrice.IsZero() }

// Validate checks the canonical invariants of tx.
func (tx Transaction) Validate() error {
	var errs []error
	if tx.ID == "" {
		errs = append(errs, errors.New("missing identity key"))
	}
	if tx.Time.IsZero() {
		errs = append(errs, errors.New("missing timestamp"))
	}
	if tx.Asset == "" {
		errs = append(errs, errors.New("missing asset"))
	}
	if !tx.Amount.IsPositive() {
		errs = append(errs, fmt.Errorf("amount must be positive, got %v", tx.Amount))
	}
	if tx.UnitPrice.IsNegative() {
		errs = append(errs, fmt.Errorf("negative unit price %v", tx.UnitPrice.Decimal()))
	}
	if tx.Class == Exchange {
		if tx.Received == "" {
			errs = append(errs, errors.New("exchange without received asset"))
		}
		if !tx.ReceivedQ.IsPositive() {
			errs = append(errs, fmt.Errorf("exchange received amount must be positive, got %v", tx.ReceivedQ))
		}
		if tx.Received == tx.Asset {
			errs = append(errs, fmt.Errorf("exchange of %s for itself", tx.Asset))
		}
	}
	if tx.Class == RewardIncome && tx.Reward == NoReward {
		errs = append(errs, errors.New("reward income without reward kind"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: transaction %s: %w", ErrValidation, tx.ID, err)
	}
	return nil
}

// Before orders transactions by time, then by import sequence.
func (tx Transaction) Before(o Transaction) bool {
	if !tx.Time.Equal(o.Time) {
		return tx.Time.Before(o.Time)
	}
	return tx.Seq < o.Seq
}

// SortTransactions sorts txs in replay order, it is stable.
func SortTransactions(txs []Transaction) {
	slices.SortStableFunc(txs, func(a, b Transaction) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
}

// Filter selects transactions. Zero fields match everything.
type Filter struct {
	Asset   string           // matches the primary or the received asset
	From    time.Time        // inclusive
	To      time.Time        // exclusive
	Classes []Classification // any of
}

// Match reports whether tx passes the filter.
func (f Filter) Match(tx Transaction) bool {
	if f.Asset != "" && tx.Asset != f.Asset && tx.Received != f.Asset {
		return false
	}
	if !f.From.IsZero() && tx.Time.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.Time.Before(f.To) {
		return false
	}
	if len(f.Classes) > 0 && !slices.Contains(f.Classes, tx.Class) {
		return false
	}
	return true
}
