package taxlot

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Ledger is the FIFO inventory of every asset.
//
// A Ledger is an explicit context: callers create, load, persist and discard it.
// Each asset queue is an independent unit of mutation guarded by its own lock, so
// operations on different assets may run concurrently.
type Ledger struct {
	mu     sync.Mutex // guards queues
	queues map[string]*queue
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{queues: make(map[string]*queue)}
}

// LoadLedger restores a ledger from persisted lots, active and retired.
func LoadLedger(lots []Lot) (*Ledger, error) {
	l := NewLedger()
	sorted := slices.Clone(lots)
	slices.SortFunc(sorted, func(a, b Lot) int {
		return cmp.Or(cmp.Compare(a.Asset, b.Asset), cmp.Compare(a.Seq, b.Seq))
	})
	for i, lot := range sorted {
		if i > 0 && sorted[i-1].Asset == lot.Asset && sorted[i-1].Seq == lot.Seq {
			return nil, fmt.Errorf("%w: duplicate lot %s#%d", ErrPersistence, lot.Asset, lot.Seq)
		}
		if lot.Remaining.IsNegative() || lot.Remaining.GreaterThan(lot.Original) {
			return nil, fmt.Errorf("%w: lot %s#%d remaining %v out of [0, %v]", ErrPersistence, lot.Asset, lot.Seq, lot.Remaining, lot.Original)
		}
		q := l.queue(lot.Asset)
		if lot.Retired() {
			q.retired = append(q.retired, lot)
		} else {
			q.active = append(q.active, lot)
		}
		q.next = max(q.next, lot.Seq+1)
	}
	return l, nil
}

// queue returns the queue of asset, creating it if needed.
func (l *Ledger) queue(asset string) *queue {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.queues[asset]
	if !ok {
		q = newQueue(asset)
		l.queues[asset] = q
	}
	return q
}

// find returns the queue of asset or nil.
func (l *Ledger) find(asset string) *queue {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queues[asset]
}

func validLot(asset string, amount Quantity, unitCost Money) error {
	if asset == "" {
		return fmt.Errorf("%w: lot without asset", ErrValidation)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: lot amount must be positive, got %v", ErrValidation, amount)
	}
	if unitCost.IsNegative() {
		return fmt.Errorf("%w: negative unit cost %v", ErrValidation, unitCost.Decimal())
	}
	return nil
}

// AddLot appends a lot at the tail of the asset queue.
func (l *Ledger) AddLot(asset string, amount Quantity, unitCost Money, at time.Time, source string) (Lot, error) {
	return l.addLot(asset, amount, unitCost, false, at, source)
}

// AddUnpricedLot appends a lot whose cost is unknown. It holds inventory like any
// other lot, but consuming it yields no usable cost basis.
func (l *Ledger) AddUnpricedLot(asset string, amount Quantity, at time.Time, source string) (Lot, error) {
	return l.addLot(asset, amount, Money{}, true, at, source)
}

func (l *Ledger) addLot(asset string, amount Quantity, unitCost Money, unknown bool, at time.Time, source string) (Lot, error) {
	if err := validLot(asset, amount, unitCost); err != nil {
		return Lot{}, err
	}
	q := l.queue(asset)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.push(amount, unitCost, unknown, at, source), nil
}

func insufficient(c Consumption) error {
	return fmt.Errorf("%w: %s: cannot supply %v of %v requested", ErrInsufficientInventory, c.Asset, c.Shortfall, c.Amount)
}

// Consume takes amount of asset from the head of its queue and returns the cost basis
// with the ordered trace of consumed lots.
//
// It is atomic: when the queue cannot supply the amount it fails with
// ErrInsufficientInventory and the ledger is left untouched.
func (l *Ledger) Consume(asset string, amount Quantity) (Consumption, error) {
	if !amount.IsPositive() {
		return Consumption{}, fmt.Errorf("%w: consume amount must be positive, got %v", ErrValidation, amount)
	}
	q := l.find(asset)
	if q == nil {
		c := Consumption{Asset: asset, Amount: amount, Shortfall: amount}
		return c, insufficient(c)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.plan(amount)
	if c.Shortfall.IsPositive() {
		return c, insufficient(c)
	}
	q.apply(c)
	return c, nil
}

// ConsumeAvailable is like Consume but takes whatever the queue holds and reports
// the missing amount in Shortfall. It is meant for setups that explicitly treat
// missing basis as zero.
func (l *Ledger) ConsumeAvailable(asset string, amount Quantity) (Consumption, error) {
	if !amount.IsPositive() {
		return Consumption{}, fmt.Errorf("%w: consume amount must be positive, got %v", ErrValidation, amount)
	}
	q := l.find(asset)
	if q == nil {
		return Consumption{Asset: asset, Amount: amount, Shortfall: amount}, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.plan(amount)
	q.apply(c)
	return c, nil
}

// Swap consumes the given asset and adds a lot of the received asset, as a single
// operation on both queues. Either both happen or none does.
func (l *Ledger) Swap(given string, givenAmount Quantity, received string, receivedAmount Quantity, unitCost Money, at time.Time, source string) (Consumption, Lot, error) {
	return l.swap(true, given, givenAmount, received, receivedAmount, unitCost, false, at, source)
}

// SwapAvailable is like Swap but, like ConsumeAvailable, tolerates a shortfall on the given asset.
func (l *Ledger) SwapAvailable(given string, givenAmount Quantity, received string, receivedAmount Quantity, unitCost Money, at time.Time, source string) (Consumption, Lot, error) {
	return l.swap(false, given, givenAmount, received, receivedAmount, unitCost, false, at, source)
}

// SwapUnpriced is like Swap when the received asset has no price: the given asset
// is consumed and the received lot is added with an unknown cost. With strict unset
// it tolerates a shortfall like SwapAvailable.
func (l *Ledger) SwapUnpriced(strict bool, given string, givenAmount Quantity, received string, receivedAmount Quantity, at time.Time, source string) (Consumption, Lot, error) {
	return l.swap(strict, given, givenAmount, received, receivedAmount, Money{}, true, at, source)
}

func (l *Ledger) swap(strict bool, given string, givenAmount Quantity, received string, receivedAmount Quantity, unitCost Money, unknown bool, at time.Time, source string) (Consumption, Lot, error) {
	if given == received {
		return Consumption{}, Lot{}, fmt.Errorf("%w: swap of %s for itself", ErrValidation, given)
	}
	if !givenAmount.IsPositive() {
		return Consumption{}, Lot{}, fmt.Errorf("%w: swap amount must be positive, got %v", ErrValidation, givenAmount)
	}
	if err := validLot(received, receivedAmount, unitCost); err != nil {
		return Consumption{}, Lot{}, err
	}
	if strict && l.find(given) == nil {
		c := Consumption{Asset: given, Amount: givenAmount, Shortfall: givenAmount}
		return c, Lot{}, insufficient(c)
	}
	gq, rq := l.queue(given), l.queue(received)
	// Lock in asset order so that two opposite swaps cannot deadlock.
	first, second := gq, rq
	if received < given {
		first, second = rq, gq
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	c := gq.plan(givenAmount)
	if strict && c.Shortfall.IsPositive() {
		return c, Lot{}, insufficient(c)
	}
	gq.apply(c)
	return c, rq.push(receivedAmount, unitCost, unknown, at, source), nil
}

// Assets returns the assets known to the ledger, sorted.
func (l *Ledger) Assets() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Sorted(maps.Keys(l.queues))
}

// Holding returns the active quantity of asset.
func (l *Ledger) Holding(asset string) Quantity {
	q := l.find(asset)
	if q == nil {
		return Quantity{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.holding()
}

// Holdings returns the active quantity of every asset with inventory.
func (l *Ledger) Holdings() map[string]Quantity {
	h := make(map[string]Quantity)
	for _, asset := range l.Assets() {
		if q := l.Holding(asset); q.IsPositive() {
			h[asset] = q
		}
	}
	return h
}

// Lots returns a copy of the active lots of asset, head first.
func (l *Ledger) Lots(asset string) []Lot {
	q := l.find(asset)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.active)
}

// History returns a copy of the retired lots of asset, in retirement order.
func (l *Ledger) History(asset string) []Lot {
	q := l.find(asset)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.retired)
}

// Snapshot returns every lot, active and retired, sorted by asset and sequence.
func (l *Ledger) Snapshot() []Lot {
	var all []Lot
	for _, asset := range l.Assets() {
		all = append(all, l.History(asset)...)
		all = append(all, l.Lots(asset)...)
	}
	slices.SortFunc(all, func(a, b Lot) int {
		return cmp.Or(cmp.Compare(a.Asset, b.Asset), cmp.Compare(a.Seq, b.Seq))
	})
	return all
}
