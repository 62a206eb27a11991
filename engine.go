package taxlot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/logger"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// Options configures an Engine.
type Options struct {
	Rates              RateTable
	MissingBasisAsZero bool           // consume what exists and treat the rest as zero cost
	Location           *time.Location // where calendar days and buckets are observed
	WarmConcurrency    int            // parallel price lookups before a replay, default 8
}

// Engine is the entry point of the tax-lot accounting.
//
// Transactions are the only source of truth: the ledger, the tax events and the
// summaries are derived by replaying the transaction log in time order, so a
// correction is always a new import followed by a replay.
type Engine struct {
	store      Store
	resolver   *Resolver
	normalizer *Normalizer
	opts       Options

	mu    sync.Mutex   // serialises imports and replays
	state *cache.Cache // last replay
}

// replay is the derived state of a replay.
type replay struct {
	ledger *Ledger
	txs    []Transaction
	events []TaxEvent
}

// NewEngine returns an Engine, or a configuration error.
func NewEngine(store Store, resolver *Resolver, normalizer *Normalizer, opts Options) (*Engine, error) {
	if err := opts.Rates.Validate(); err != nil {
		return nil, err
	}
	if store == nil || resolver == nil || normalizer == nil {
		return nil, fmt.Errorf("%w: engine needs a store, a resolver and a normalizer", ErrConfiguration)
	}
	if resolver.National() == "" || resolver.Base() == "" {
		return nil, fmt.Errorf("%w: missing base or national currency", ErrConfiguration)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.WarmConcurrency <= 0 {
		opts.WarmConcurrency = 8
	}
	return &Engine{
		store:      store,
		resolver:   resolver,
		normalizer: normalizer,
		opts:       opts,
		state:      cache.New(cache.NoExpiration, 0),
	}, nil
}

// ImportReport is the outcome of an import batch.
type ImportReport struct {
	BatchID    string        `json:"batchId"`
	Provenance string        `json:"provenance"`
	Accepted   []Transaction `json:"accepted"`
	Rejected   []Rejection   `json:"rejected"`
	Duplicates []string      `json:"duplicates"`
	Flagged    []Transaction `json:"flagged"`
	NewLots    int           `json:"newLots"`
	Events     []TaxEvent    `json:"events"`
}

// Import normalizes records, appends the new transactions to the log and replays the ledger.
//
// Importing the same batch twice is a no-op: known records are reported as duplicates.
// Rejected records and unresolved events make the result partial, only persistence
// failures make it fail.
func (e *Engine) Import(ctx context.Context, records []Record, provenance string) Result[ImportReport] {
	report := ImportReport{BatchID: uuid.NewString(), Provenance: provenance}
	log := logger.FromContext(ctx).With("batchID", report.BatchID, "provenance", provenance)
	ctx = logger.ToContext(ctx, log)

	e.mu.Lock()
	defer e.mu.Unlock()

	var seenErr error
	seen := func(id string) bool {
		ok, err := e.store.HasTransaction(ctx, id)
		if err != nil && seenErr == nil {
			seenErr = err
		}
		return ok
	}
	res := e.normalizer.Normalize(records, provenance, seen)
	if seenErr != nil {
		return Fail[ImportReport](fmt.Errorf("%w: checking known transactions: %w", ErrPersistence, seenErr))
	}

	last, err := e.store.LastSeq(ctx)
	if err != nil {
		return Fail[ImportReport](fmt.Errorf("%w: reading last sequence: %w", ErrPersistence, err))
	}
	accepted := make(map[string]bool, len(res.Accepted))
	for i := range res.Accepted {
		res.Accepted[i].Seq = last + int64(i) + 1
		accepted[res.Accepted[i].ID] = true
		if res.Accepted[i].Review {
			report.Flagged = append(report.Flagged, res.Accepted[i])
		}
	}
	report.Accepted, report.Rejected, report.Duplicates = res.Accepted, res.Rejected, res.Duplicates

	if len(res.Accepted) > 0 {
		if _, err := e.store.AppendTransactions(ctx, res.Accepted); err != nil {
			return Fail[ImportReport](fmt.Errorf("%w: appending transactions: %w", ErrPersistence, err))
		}
	}

	var problems []Problem
	for _, r := range res.Rejected {
		problems = append(problems, Problem{Kind: KindValidation, Ref: fmt.Sprintf("record %d", r.Index), Message: r.Reason})
	}

	if len(res.Accepted) > 0 {
		st, err := e.replay(ctx)
		if err != nil {
			return Fail[ImportReport](err)
		}
		for _, ev := range st.events {
			if !accepted[ev.TxID] {
				continue
			}
			report.Events = append(report.Events, ev)
			if ev.Unresolved() {
				problems = append(problems, Problem{Kind: ev.Status.Kind(), Ref: ev.TxID, Message: ev.Message})
			}
		}
		for _, asset := range st.ledger.Assets() {
			for _, l := range append(st.ledger.History(asset), st.ledger.Lots(asset)...) {
				if accepted[l.Source] {
					report.NewLots++
				}
			}
		}
	}

	log.Info("import done", "records", len(records), "accepted", len(res.Accepted), "rejected", len(res.Rejected), "duplicates", len(res.Duplicates), "flagged", len(report.Flagged))
	return Succeed(report, problems, "imported %d of %d records: %d duplicates, %d rejected, %d flagged for review",
		len(res.Accepted), len(records), len(res.Duplicates), len(res.Rejected), len(report.Flagged))
}

// Recompute replays the whole transaction log and persists the resulting lots.
func (e *Engine) Recompute(ctx context.Context) Result[[]TaxEvent] {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.replay(ctx)
	if err != nil {
		return Fail[[]TaxEvent](err)
	}
	return Succeed(st.events, unresolved(st.events), "replayed %d transactions into %d tax events", len(st.txs), len(st.events))
}

// current returns the last replay, replaying if there is none.
func (e *Engine) current(ctx context.Context) (*replay, error) {
	if v, ok := e.state.Get("replay"); ok {
		return v.(*replay), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.state.Get("replay"); ok {
		return v.(*replay), nil
	}
	return e.replay(ctx)
}

// replay rebuilds a fresh ledger from the log. e.mu must be held.
func (e *Engine) replay(ctx context.Context) (*replay, error) {
	txs, err := e.store.Transactions(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("%w: reading transactions: %w", ErrPersistence, err)
	}
	if err := e.warm(ctx, txs); err != nil {
		return nil, err
	}

	st := &replay{ledger: NewLedger(), txs: txs}
	for _, tx := range txs {
		if ev, ok := e.apply(ctx, st.ledger, tx); ok {
			st.events = append(st.events, ev)
		}
	}
	if err := e.store.ReplaceLots(ctx, st.ledger.Snapshot()); err != nil {
		return nil, fmt.Errorf("%w: saving lots: %w", ErrPersistence, err)
	}
	e.state.Set("replay", st, cache.NoExpiration)
	return st, nil
}

// warm resolves, concurrently, every price and rate the replay will need.
func (e *Engine) warm(ctx context.Context, txs []Transaction) error {
	type key struct {
		asset string
		day   date.Date
	}
	prices := make(map[key]bool)
	days := make(map[date.Date]bool)
	for _, tx := range txs {
		if Classify(tx) == NonTaxable {
			continue
		}
		day := e.resolver.Day(tx.Time)
		days[day] = true
		if tx.Class != Exchange && tx.HasPrice() {
			continue
		}
		asset, _ := ValuedLeg(tx)
		prices[key{asset, day}] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.WarmConcurrency)
	for k := range prices {
		g.Go(func() error {
			e.resolver.ResolveDay(gctx, k.asset, k.day)
			return nil
		})
	}
	for day := range days {
		g.Go(func() error {
			_, _ = e.resolver.Convert(gctx, day)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// price returns the price of the valued leg of tx, preferring the price carried by the record.
func (e *Engine) price(ctx context.Context, tx Transaction) PriceResult {
	asset, _ := ValuedLeg(tx)
	if tx.Class != Exchange && tx.HasPrice() && tx.UnitPrice.Currency() == e.resolver.Base() {
		q := PriceQuote{Asset: asset, Day: e.resolver.Day(tx.Time), Price: tx.UnitPrice.Decimal(), Source: "record"}
		return PriceResult{Quote: q, Available: true}
	}
	return e.resolver.Resolve(ctx, asset, tx.Time)
}

// valuation returns the price of the valued leg and the conversion of its day.
func (e *Engine) valuation(ctx context.Context, tx Transaction) (PriceResult, Conversion) {
	pr := e.price(ctx, tx)
	conv, err := e.resolver.Convert(ctx, e.resolver.Day(tx.Time))
	if err != nil && pr.Available {
		pr.Available, pr.Reason = false, err.Error()
	}
	return pr, conv
}

// apply performs the ledger operation of tx, then computes its tax event.
func (e *Engine) apply(ctx context.Context, ledger *Ledger, tx Transaction) (TaxEvent, bool) {
	log := logger.FromContext(ctx)
	var lr LedgerResult

	switch tx.Class {
	case Acquisition, RewardIncome:
		pr, conv := e.valuation(ctx, tx)
		var lot Lot
		var err error
		if pr.Available {
			unit := conv.Apply(M(pr.Quote.Price, conv.From))
			lot, err = ledger.AddLot(tx.Asset, tx.Amount, unit, tx.Time, tx.ID)
		} else {
			// The asset is held whatever its price.
			lot, err = ledger.AddUnpricedLot(tx.Asset, tx.Amount, tx.Time, tx.ID)
		}
		lr = LedgerResult{Lot: &lot, Err: err}
		return e.event(ctx, tx, lr, pr, conv)

	case Disposal:
		c, err := e.consume(ledger, tx.Asset, tx.Amount)
		lr = LedgerResult{Consumption: &c, Err: err}
		pr, conv := e.valuation(ctx, tx)
		return e.event(ctx, tx, lr, pr, conv)

	case Exchange:
		pr, conv := e.valuation(ctx, tx)
		var c Consumption
		var lot Lot
		var err error
		if pr.Available {
			unit := conv.Apply(M(pr.Quote.Price, conv.From))
			swap := ledger.Swap
			if e.opts.MissingBasisAsZero {
				swap = ledger.SwapAvailable
			}
			c, lot, err = swap(tx.Asset, tx.Amount, tx.Received, tx.ReceivedQ, unit, tx.Time, tx.ID)
		} else {
			c, lot, err = ledger.SwapUnpriced(!e.opts.MissingBasisAsZero, tx.Asset, tx.Amount, tx.Received, tx.ReceivedQ, tx.Time, tx.ID)
		}
		lr = LedgerResult{Consumption: &c, Err: err}
		if err == nil {
			lr.Lot = &lot
		}
		return e.event(ctx, tx, lr, pr, conv)

	case Fee:
		if e.opts.Rates.Fee != FeeConsumesInventory {
			break
		}
		if _, err := e.consume(ledger, tx.Asset, tx.Amount); err != nil {
			log.Warn("fee exceeds inventory", "tx", tx.ID, "asset", tx.Asset, "error", err)
			return feeShortfall(tx, err, e.resolver.National()), true
		}
	}
	return TaxEvent{}, false
}

// feeShortfall is the event of a fee that could not consume its inventory. The fee is
// not taxed, but the ledger no longer matches the log and the period must be flagged.
func feeShortfall(tx Transaction, err error, national string) TaxEvent {
	zero := M(0, national)
	return TaxEvent{
		TxID:         tx.ID,
		Time:         tx.Time,
		Class:        tx.Class,
		Asset:        tx.Asset,
		Amount:       tx.Amount,
		Treatment:    NonTaxable,
		NationalBase: zero,
		Tax:          zero,
		Proceeds:     zero,
		CostBasis:    zero,
		Gain:         zero,
		Status:       InsufficientInventory,
		Message:      err.Error(),
	}
}

func (e *Engine) consume(ledger *Ledger, asset string, amount Quantity) (Consumption, error) {
	if e.opts.MissingBasisAsZero {
		return ledger.ConsumeAvailable(asset, amount)
	}
	return ledger.Consume(asset, amount)
}

func (e *Engine) event(ctx context.Context, tx Transaction, lr LedgerResult, pr PriceResult, conv Conversion) (TaxEvent, bool) {
	ev, ok := e.opts.Rates.ComputeEvent(tx, lr, pr, conv)
	if ok && ev.Unresolved() {
		logger.FromContext(ctx).Warn("unresolved tax event", "tx", tx.ID, "asset", ev.Asset, "status", ev.Status, "message", ev.Message)
	}
	return ev, ok
}

func unresolved(events []TaxEvent) []Problem {
	var problems []Problem
	for _, ev := range events {
		if ev.Unresolved() {
			problems = append(problems, Problem{Kind: ev.Status.Kind(), Ref: ev.TxID, Message: ev.Message})
		}
	}
	return problems
}

// Transactions lists the logged transactions matching f, in replay order.
func (e *Engine) Transactions(ctx context.Context, f Filter) Result[[]Transaction] {
	txs, err := e.store.Transactions(ctx, f)
	if err != nil {
		return Fail[[]Transaction](fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	return Succeed(txs, nil, "%d transactions", len(txs))
}

// Summary aggregates the current tax events and transactions by bucketing.
func (e *Engine) Summary(ctx context.Context, b Bucketing) Result[Summary] {
	st, err := e.current(ctx)
	if err != nil {
		return Fail[Summary](err)
	}
	agg := Aggregator{Location: e.opts.Location, Currency: e.resolver.National()}
	s := agg.Aggregate(st.events, st.txs, b)
	flagged := 0
	for _, bk := range s.Buckets {
		if bk.Flagged {
			flagged++
		}
	}
	return Succeed(s, unresolved(st.events), "%d %s buckets, %d flagged", len(s.Buckets), b, flagged)
}

// TaxEvents returns the tax events in [from, to). Zero bounds are open.
func (e *Engine) TaxEvents(ctx context.Context, from, to time.Time) Result[[]TaxEvent] {
	st, err := e.current(ctx)
	if err != nil {
		return Fail[[]TaxEvent](err)
	}
	var events []TaxEvent
	for _, ev := range st.events {
		if !from.IsZero() && ev.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !ev.Time.Before(to) {
			continue
		}
		events = append(events, ev)
	}
	return Succeed(events, unresolved(events), "%d tax events", len(events))
}

// Lots returns the persisted lots, active and retired, matching f.
func (e *Engine) Lots(ctx context.Context, f LotFilter) Result[[]Lot] {
	if _, err := e.current(ctx); err != nil {
		return Fail[[]Lot](err)
	}
	lots, err := e.store.Lots(ctx, f)
	if err != nil {
		return Fail[[]Lot](fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	return Succeed(lots, nil, "%d lots", len(lots))
}

// Holdings loads the persisted ledger and returns the quantity held per asset.
func (e *Engine) Holdings(ctx context.Context) Result[map[string]Quantity] {
	if _, err := e.current(ctx); err != nil {
		return Fail[map[string]Quantity](err)
	}
	lots, err := e.store.Lots(ctx, LotFilter{})
	if err != nil {
		return Fail[map[string]Quantity](fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	ledger, err := LoadLedger(lots)
	if err != nil {
		return Fail[map[string]Quantity](err)
	}
	h := ledger.Holdings()
	return Succeed(h, nil, "%d assets held", len(h))
}

// Rate returns the conversion used for day, and which source provided it.
func (e *Engine) Rate(ctx context.Context, day date.Date) Result[Conversion] {
	conv, err := e.resolver.Convert(ctx, day)
	if err != nil {
		return Fail[Conversion](err)
	}
	return Succeed(conv, nil, "1 %s = %s %s (%s)", conv.From, conv.Rate, conv.To, conv.Source)
}
