package taxlot

import (
	"sync"
	"time"
)

// Lot is a discrete acquisition of an asset, consumed first-in first-out.
type Lot struct {
	Asset     string    `json:"asset"`
	Seq       int64     `json:"seq"` // insertion sequence, the FIFO key
	Original  Quantity  `json:"original"`
	Remaining Quantity  `json:"remaining"`
	UnitCost  Money     `json:"unitCost"` // in the accounting (national) currency
	Acquired  time.Time `json:"acquired"`
	Source    string    `json:"source"` // originating transaction ID
	// UnknownCost marks a lot acquired without a price: UnitCost is zero and
	// any consumption of it cannot be valued.
	UnknownCost bool `json:"unknownCost,omitempty"`
}

// Retired reports whether the lot has been fully consumed.
func (l Lot) Retired() bool { return l.Remaining.IsZero() }

// ConsumedLot is one step of a consumption trace.
type ConsumedLot struct {
	Seq         int64     `json:"seq"`
	Source      string    `json:"source"`
	Acquired    time.Time `json:"acquired"`
	Quantity    Quantity  `json:"quantity"`
	UnitCost    Money     `json:"unitCost"`
	Cost        Money     `json:"cost"`
	UnknownCost bool      `json:"unknownCost,omitempty"`
}

// Consumption is the outcome of consuming an amount of an asset.
type Consumption struct {
	Asset     string        `json:"asset"`
	Amount    Quantity      `json:"amount"`
	CostBasis Money         `json:"costBasis"`
	Trace     []ConsumedLot `json:"trace"`
	Shortfall Quantity      `json:"shortfall,omitzero"` // amount no lot could supply
}

// Unpriced returns the quantity taken from lots of unknown cost.
func (c Consumption) Unpriced() Quantity {
	var q Quantity
	for _, step := range c.Trace {
		if step.UnknownCost {
			q = q.Add(step.Quantity)
		}
	}
	return q
}

// queue is the FIFO inventory of a single asset.
//
// Lots are appended at the tail and consumed from the head. Consumption follows
// insertion order (Seq), never timestamps, so lots sharing a timestamp are
// consumed deterministically.
type queue struct {
	mu      sync.Mutex
	asset   string
	next    int64
	active  []Lot // head first
	retired []Lot
}

func newQueue(asset string) *queue { return &queue{asset: asset, next: 1} }

func (q *queue) push(amount Quantity, unitCost Money, unknown bool, at time.Time, source string) Lot {
	l := Lot{
		Asset:       q.asset,
		Seq:         q.next,
		Original:    amount,
		Remaining:   amount,
		UnitCost:    unitCost,
		Acquired:    at,
		Source:      source,
		UnknownCost: unknown,
	}
	q.next++
	q.active = append(q.active, l)
	return l
}

// plan computes what consuming amount would take from the queue, without mutating it.
func (q *queue) plan(amount Quantity) Consumption {
	c := Consumption{Asset: q.asset, Amount: amount}
	left := amount
	for _, l := range q.active {
		if !left.IsPositive() {
			break
		}
		take := l.Remaining.Min(left)
		cost := l.UnitCost.Mul(take)
		c.Trace = append(c.Trace, ConsumedLot{
			Seq:         l.Seq,
			Source:      l.Source,
			Acquired:    l.Acquired,
			Quantity:    take,
			UnitCost:    l.UnitCost,
			Cost:        cost,
			UnknownCost: l.UnknownCost,
		})
		c.CostBasis = c.CostBasis.Add(cost)
		left = left.Sub(take)
	}
	if left.IsPositive() {
		c.Shortfall = left
	}
	return c
}

// apply decrements the head lots as described by a plan made under the same lock.
func (q *queue) apply(c Consumption) {
	done := 0
	for i, step := range c.Trace {
		l := &q.active[i]
		l.Remaining = l.Remaining.Sub(step.Quantity)
		if l.Retired() {
			q.retired = append(q.retired, *l)
			done++
		}
	}
	q.active = q.active[done:]
}

func (q *queue) holding() Quantity {
	var total Quantity
	for _, l := range q.active {
		total = total.Add(l.Remaining)
	}
	return total
}
