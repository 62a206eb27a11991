package taxlot

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine readable category of a failure.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindDuplicate
	KindPriceUnavailable
	KindInsufficientInventory
	KindExternalSource
	KindConfiguration
	KindPersistence
)

var kindNames = map[ErrorKind]string{
	KindNone:                  "",
	KindValidation:            "validation",
	KindDuplicate:             "duplicate",
	KindPriceUnavailable:      "price-unavailable",
	KindInsufficientInventory: "insufficient-inventory",
	KindExternalSource:        "external-source",
	KindConfiguration:         "configuration",
	KindPersistence:           "persistence",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind: %q", text)
}

var (
	// ErrValidation marks a malformed or incomplete input record.
	ErrValidation = errors.New("validation error")
	// ErrDuplicate marks a transaction already in the log. It is not a failure.
	ErrDuplicate = errors.New("duplicate transaction")
	// ErrPriceUnavailable marks a price or rate that could not be resolved.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrInsufficientInventory marks a disposal exceeding recorded acquisitions.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrExternalSource marks a collaborator failure after retries.
	ErrExternalSource = errors.New("external source failure")
	// ErrConfiguration marks an invalid rate table, bucketing or setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrPersistence marks a storage failure.
	ErrPersistence = errors.New("persistence error")
)

var kindErrors = []struct {
	kind ErrorKind
	err  error
}{
	{KindValidation, ErrValidation},
	{KindDuplicate, ErrDuplicate},
	{KindPriceUnavailable, ErrPriceUnavailable},
	{KindInsufficientInventory, ErrInsufficientInventory},
	{KindExternalSource, ErrExternalSource},
	{KindConfiguration, ErrConfiguration},
	{KindPersistence, ErrPersistence},
}

// KindOf returns the kind of the first sentinel err wraps, or KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindNone
}
