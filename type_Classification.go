package taxlot

import "fmt"

// Classification is the canonical, source independent type of a Transaction.
// The set is closed: only the Normalizer produces classifications from source vocabularies.
type Classification int

const (
	// Other is a movement the engine does not understand. It is non-taxable and flagged for review.
	Other Classification = iota
	// Acquisition buys an asset with fiat.
	Acquisition
	// Disposal sells an asset for fiat.
	Disposal
	// Exchange swaps one asset for another (the received leg is secondary).
	Exchange
	// RewardIncome receives an asset as income: staking, airdrop, farming.
	RewardIncome
	// TransferIn moves an asset from another own account.
	TransferIn
	// TransferOut moves an asset to another own account.
	TransferOut
	// Fee pays a network or platform fee in an asset.
	Fee
	// Deposit funds an exchange account.
	Deposit
	// Withdraw takes funds out of an exchange account.
	Withdraw
)

var classificationNames = [...]string{
	Other:        "other",
	Acquisition:  "acquisition",
	Disposal:     "disposal",
	Exchange:     "exchange",
	RewardIncome: "reward-income",
	TransferIn:   "transfer-in",
	TransferOut:  "transfer-out",
	Fee:          "fee",
	Deposit:      "deposit",
	Withdraw:     "withdraw",
}

// Classifications lists every classification, in declaration order.
func Classifications() []Classification {
	all := make([]Classification, len(classificationNames))
	for i := range classificationNames {
		all[i] = Classification(i)
	}
	return all
}

func (c Classification) String() string {
	if c < 0 || int(c) >= len(classificationNames) {
		return "unknown"
	}
	return classificationNames[c]
}

// ParseClassification parses the canonical name of a classification.
func ParseClassification(s string) (Classification, error) {
	for i, name := range classificationNames {
		if name == s {
			return Classification(i), nil
		}
	}
	return Other, fmt.Errorf("unknown classification: %q", s)
}

func (c Classification) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Classification) UnmarshalText(text []byte) error {
	v, err := ParseClassification(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// RewardKind details a RewardIncome classification.
type RewardKind int

const (
	NoReward RewardKind = iota
	GenericReward
	Staking
	Airdrop
	Farming
)

func (k RewardKind) String() string {
	switch k {
	case GenericReward:
		return "reward"
	case Staking:
		return "staking"
	case Airdrop:
		return "airdrop"
	case Farming:
		return "farming"
	default:
		return ""
	}
}

// ParseRewardKind parses a reward kind, the empty string is NoReward.
func ParseRewardKind(s string) (RewardKind, error) {
	switch s {
	case "":
		return NoReward, nil
	case "reward":
		return GenericReward, nil
	case "staking":
		return Staking, nil
	case "airdrop":
		return Airdrop, nil
	case "farming":
		return Farming, nil
	default:
		return NoReward, fmt.Errorf("unknown reward kind: %q", s)
	}
}

func (k RewardKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *RewardKind) UnmarshalText(text []byte) error {
	v, err := ParseRewardKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
