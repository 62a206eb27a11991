package taxlot

import (
	"context"
	"time"

	"github.com/etnz/taxlot/date"
)

// TransactionStore is the durable, append only transaction log.
type TransactionStore interface {
	// AppendTransactions appends txs whose ID is not yet known and returns how many were added.
	AppendTransactions(ctx context.Context, txs []Transaction) (int, error)
	HasTransaction(ctx context.Context, id string) (bool, error)
	// Transactions returns the matching transactions in replay order.
	Transactions(ctx context.Context, f Filter) ([]Transaction, error)
	// LastSeq returns the highest import sequence in the log, 0 when empty.
	LastSeq(ctx context.Context) (int64, error)
}

// LotFilter selects lots. Zero fields match everything.
type LotFilter struct {
	Asset string
	Until time.Time // acquired at or before
}

// Match reports whether l passes the filter.
func (f LotFilter) Match(l Lot) bool {
	if f.Asset != "" && l.Asset != f.Asset {
		return false
	}
	if !f.Until.IsZero() && l.Acquired.After(f.Until) {
		return false
	}
	return true
}

// LotStore persists the FIFO queues.
type LotStore interface {
	// SaveLots upserts lots keyed by (asset, seq).
	SaveLots(ctx context.Context, lots []Lot) error
	// ReplaceLots replaces the whole queue state.
	ReplaceLots(ctx context.Context, lots []Lot) error
	// Lots returns matching lots sorted by asset and sequence.
	Lots(ctx context.Context, f LotFilter) ([]Lot, error)
}

// QuoteStore persists price quotes keyed by (asset, day).
type QuoteStore interface {
	PutQuote(ctx context.Context, q PriceQuote) error
	Quote(ctx context.Context, asset string, day date.Date) (PriceQuote, bool, error)
	// LatestQuote returns the most recent quote on or before day.
	LatestQuote(ctx context.Context, asset string, day date.Date) (PriceQuote, bool, error)
	Quotes(ctx context.Context, asset string, r date.Range) ([]PriceQuote, error)
}

// Store is the full persistence capability of the engine.
type Store interface {
	TransactionStore
	LotStore
	QuoteStore
}
