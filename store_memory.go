package taxlot

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/etnz/taxlot/date"
)

type lotKey struct {
	asset string
	seq   int64
}

// MemoryStore is a Store kept in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	txs    []Transaction
	ids    map[string]bool
	lots   map[lotKey]Lot
	quotes map[string]*date.History[PriceQuote]
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:    make(map[string]bool),
		lots:   make(map[lotKey]Lot),
		quotes: make(map[string]*date.History[PriceQuote]),
	}
}

func (s *MemoryStore) AppendTransactions(_ context.Context, txs []Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, tx := range txs {
		if s.ids[tx.ID] {
			continue
		}
		s.ids[tx.ID] = true
		s.txs = append(s.txs, tx)
		added++
	}
	return added, nil
}

func (s *MemoryStore) HasTransaction(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[id], nil
}

func (s *MemoryStore) Transactions(_ context.Context, f Filter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, tx := range s.txs {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	SortTransactions(out)
	return out, nil
}

func (s *MemoryStore) LastSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last int64
	for _, tx := range s.txs {
		last = max(last, tx.Seq)
	}
	return last, nil
}

func (s *MemoryStore) SaveLots(_ context.Context, lots []Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lots {
		s.lots[lotKey{l.Asset, l.Seq}] = l
	}
	return nil
}

func (s *MemoryStore) ReplaceLots(_ context.Context, lots []Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.lots)
	for _, l := range lots {
		s.lots[lotKey{l.Asset, l.Seq}] = l
	}
	return nil
}

func (s *MemoryStore) Lots(_ context.Context, f LotFilter) ([]Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Lot
	for _, l := range s.lots {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b Lot) int {
		return cmp.Or(cmp.Compare(a.Asset, b.Asset), cmp.Compare(a.Seq, b.Seq))
	})
	return out, nil
}

func (s *MemoryStore) PutQuote(_ context.Context, q PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.quotes[q.Asset]
	if !ok {
		h = new(date.History[PriceQuote])
		s.quotes[q.Asset] = h
	}
	h.Append(q.Day, q)
	return nil
}

func (s *MemoryStore) Quote(_ context.Context, asset string, day date.Date) (PriceQuote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.quotes[asset]
	if !ok {
		return PriceQuote{}, false, nil
	}
	q, ok := h.Get(day)
	return q, ok, nil
}

func (s *MemoryStore) LatestQuote(_ context.Context, asset string, day date.Date) (PriceQuote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.quotes[asset]
	if !ok {
		return PriceQuote{}, false, nil
	}
	_, q, ok := h.ValueAsOf(day)
	return q, ok, nil
}

func (s *MemoryStore) Quotes(_ context.Context, asset string, r date.Range) ([]PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.quotes[asset]
	if !ok {
		return nil, nil
	}
	var out []PriceQuote
	for day, q := range h.Values() {
		if r.Contains(day) {
			out = append(out, q)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
