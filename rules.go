package taxlot

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxTreatment is how a transaction is taxed.
type TaxTreatment int

const (
	NonTaxable TaxTreatment = iota
	// TransferTax is a flat rate on the disposal side value of a transfer of digital assets.
	TransferTax
	// OtherIncomeTax is a flat rate on the value of income received in digital assets.
	OtherIncomeTax
)

func (t TaxTreatment) String() string {
	switch t {
	case TransferTax:
		return "transfer-tax"
	case OtherIncomeTax:
		return "other-income-tax"
	default:
		return "non-taxable"
	}
}

func (t TaxTreatment) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TaxTreatment) UnmarshalText(text []byte) error {
	switch string(text) {
	case "transfer-tax":
		*t = TransferTax
	case "other-income-tax":
		*t = OtherIncomeTax
	case "non-taxable":
		*t = NonTaxable
	default:
		return fmt.Errorf("unknown tax treatment: %q", text)
	}
	return nil
}

// FeeTreatment decides how fee transactions affect the books.
type FeeTreatment int

const (
	// FeeNonTaxable ignores fees: no tax event, no inventory change.
	FeeNonTaxable FeeTreatment = iota
	// FeeConsumesInventory removes the fee amount from the FIFO inventory, still without tax event.
	FeeConsumesInventory
)

func (f FeeTreatment) String() string {
	switch f {
	case FeeConsumesInventory:
		return "consume-inventory"
	default:
		return "non-taxable"
	}
}

// ParseFeeTreatment parses "non-taxable" or "consume-inventory".
func ParseFeeTreatment(s string) (FeeTreatment, error) {
	switch s {
	case "non-taxable", "":
		return FeeNonTaxable, nil
	case "consume-inventory":
		return FeeConsumesInventory, nil
	default:
		return 0, fmt.Errorf("%w: unknown fee treatment: %q", ErrConfiguration, s)
	}
}

// RateTable is the injected tax policy.
type RateTable struct {
	Transfer    decimal.Decimal `json:"transfer"`
	OtherIncome decimal.Decimal `json:"otherIncome"`
	Fee         FeeTreatment    `json:"-"`
}

// DefaultRates returns 0.1% on transfers and 10% on other income.
func DefaultRates() RateTable {
	return RateTable{
		Transfer:    decimal.RequireFromString("0.001"),
		OtherIncome: decimal.RequireFromString("0.10"),
	}
}

// Validate checks that every rate is a fraction in [0, 1].
func (t RateTable) Validate() error {
	var errs []error
	one := decimal.NewFromInt(1)
	for name, r := range map[string]decimal.Decimal{"transfer": t.Transfer, "other income": t.OtherIncome} {
		if r.IsNegative() || r.GreaterThan(one) {
			errs = append(errs, fmt.Errorf("%s rate %v out of [0, 1]", name, r))
		}
	}
	if t.Fee != FeeNonTaxable && t.Fee != FeeConsumesInventory {
		errs = append(errs, fmt.Errorf("unknown fee treatment %d", t.Fee))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

// Rate returns the rate of a treatment.
func (t RateTable) Rate(tr TaxTreatment) decimal.Decimal {
	switch tr {
	case TransferTax:
		return t.Transfer
	case OtherIncomeTax:
		return t.OtherIncome
	default:
		return decimal.Zero
	}
}

// Classify returns the tax treatment of tx.
func Classify(tx Transaction) TaxTreatment {
	switch tx.Class {
	case Acquisition, Disposal, Exchange:
		return TransferTax
	case RewardIncome:
		return OtherIncomeTax
	default:
		return NonTaxable
	}
}

// ValuedLeg returns the asset and amount whose value is the taxable base of tx:
// the received leg for an exchange, the primary leg otherwise.
func ValuedLeg(tx Transaction) (string, Quantity) {
	if tx.Class == Exchange {
		return tx.Received, tx.ReceivedQ
	}
	return tx.Asset, tx.Amount
}

// LedgerResult is what the ledger did for a transaction.
type LedgerResult struct {
	Consumption *Consumption // consumed inventory of a disposal or exchange
	Lot         *Lot         // lot created by an acquisition, reward or exchange
	Err         error        // ledger failure, typically ErrInsufficientInventory
}

// ComputeEvent returns the TaxEvent of tx, and false for a non-taxable transaction.
//
// It is deterministic and never touches the ledger: lr must describe a ledger
// operation the caller already performed, pr the price of the valued leg in base
// fiat, and conv the conversion of that day.
func (t RateTable) ComputeEvent(tx Transaction, lr LedgerResult, pr PriceResult, conv Conversion) (TaxEvent, bool) {
	treatment := Classify(tx)
	if treatment == NonTaxable {
		return TaxEvent{}, false
	}
	asset, amount := ValuedLeg(tx)
	zero := M(0, conv.To)
	ev := TaxEvent{
		TxID:         tx.ID,
		Time:         tx.Time,
		Class:        tx.Class,
		Reward:       tx.Reward,
		Asset:        asset,
		Amount:       amount,
		Treatment:    treatment,
		Rate:         t.Rate(treatment),
		Base:         M(0, conv.From),
		NationalBase: zero,
		Tax:          zero,
		Proceeds:     zero,
		CostBasis:    zero,
		Gain:         zero,
		Conversion:   conv,
		Status:       Resolved,
	}
	if tx.Class == Exchange {
		ev.Given = tx.Asset
	}
	if lr.Err != nil {
		ev.Status = StatusFailed
		if errors.Is(lr.Err, ErrInsufficientInventory) {
			ev.Status = InsufficientInventory
		}
		ev.Message = lr.Err.Error()
		return ev, true
	}
	if !pr.Available {
		ev.Status = PriceUnavailable
		ev.Message = pr.Reason
		return ev, true
	}
	if lr.Consumption != nil {
		if q := lr.Consumption.Unpriced(); q.IsPositive() {
			ev.Status = PriceUnavailable
			ev.Message = fmt.Sprintf("cost basis of %v %s unknown: acquired without a price", q, lr.Consumption.Asset)
			ev.Trace = lr.Consumption.Trace
			return ev, true
		}
	}

	if lr.Consumption != nil {
		ev.CostBasis = zero.Add(lr.Consumption.CostBasis)
		ev.Trace = lr.Consumption.Trace
	}
	ev.UnitPrice = M(pr.Quote.Price, conv.From)
	ev.StalePrice = pr.Stale
	value := ev.UnitPrice.Mul(amount)
	national := conv.Apply(value)

	switch tx.Class {
	case Acquisition:
		// The buyer gives away fiat, not a digital asset: nothing is transferred
		// on the disposal side. The purchase value becomes the cost basis.
		ev.CostBasis = national
	case Disposal, Exchange:
		ev.Base, ev.NationalBase = value, national
		ev.Proceeds = national
		ev.Gain = national.Sub(ev.CostBasis)
	case RewardIncome:
		ev.Base, ev.NationalBase = value, national
	}
	ev.Tax = ev.NationalBase.MulRate(ev.Rate)

	if lr.Consumption != nil && lr.Consumption.Shortfall.IsPositive() {
		ev.Message = fmt.Sprintf("missing basis for %v %s treated as zero", lr.Consumption.Shortfall, lr.Consumption.Asset)
	}
	if pr.Stale {
		ev.Message = fmt.Sprintf("last known price of %s used", pr.Quote.Day)
	}
	return ev, true
}
