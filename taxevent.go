package taxlot

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus tells whether a TaxEvent could be fully computed.
type EventStatus int

const (
	Resolved EventStatus = iota
	PriceUnavailable
	InsufficientInventory
	StatusFailed
)

func (s EventStatus) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case PriceUnavailable:
		return "price-unavailable"
	case InsufficientInventory:
		return "insufficient-inventory"
	default:
		return "failed"
	}
}

func (s EventStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *EventStatus) UnmarshalText(text []byte) error {
	for _, v := range []EventStatus{Resolved, PriceUnavailable, InsufficientInventory, StatusFailed} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown event status: %q", text)
}

// Kind returns the error kind of an unresolved status.
func (s EventStatus) Kind() ErrorKind {
	switch s {
	case PriceUnavailable:
		return KindPriceUnavailable
	case InsufficientInventory:
		return KindInsufficientInventory
	case StatusFailed:
		return KindValidation
	default:
		return KindNone
	}
}

// TaxEvent is the taxable consequence of one transaction.
//
// There is exactly one per taxable transaction. When it cannot be computed its
// Status says why and its amounts are zero: it must be reported, never trusted.
type TaxEvent struct {
	TxID       string         `json:"txId"`
	Time       time.Time      `json:"time"`
	Class      Classification `json:"class"`
	Reward     RewardKind     `json:"reward,omitempty"`
	Asset      string         `json:"asset"` // the valued leg
	Given      string         `json:"given,omitempty"` // the asset given away in an exchange
	Amount     Quantity       `json:"amount"`
	Treatment  TaxTreatment   `json:"treatment"`
	UnitPrice  Money          `json:"unitPrice,omitzero"` // base fiat
	StalePrice bool           `json:"stalePrice,omitempty"`

	Base         Money           `json:"base"`         // taxable base in base fiat
	NationalBase Money           `json:"nationalBase"` // taxable base in national currency
	Rate         decimal.Decimal `json:"rate"`
	Tax          Money           `json:"tax"`

	Proceeds  Money         `json:"proceeds"`
	CostBasis Money         `json:"costBasis"`
	Gain      Money         `json:"gain"`
	Trace     []ConsumedLot `json:"trace,omitempty"`

	Conversion Conversion  `json:"conversion"`
	Status     EventStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
}

// Unresolved reports whether the event could not be computed.
func (e TaxEvent) Unresolved() bool { return e.Status != Resolved }
