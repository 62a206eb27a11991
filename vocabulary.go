package taxlot

import "strings"

// Mapping is the canonical meaning of a native transaction type.
type Mapping struct {
	Class  Classification
	Reward RewardKind
}

// Vocabulary maps source specific transaction types onto canonical classifications.
// Lookups are case insensitive. Source specific entries take precedence over common ones.
type Vocabulary struct {
	common   map[string]Mapping
	bySource map[string]map[string]Mapping
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		common:   make(map[string]Mapping),
		bySource: make(map[string]map[string]Mapping),
	}
}

func normalizeNative(native string) string {
	return strings.Join(strings.Fields(strings.ToLower(native)), " ")
}

// Add maps native to m for provenance, an empty provenance applies to every source.
func (v *Vocabulary) Add(provenance, native string, m Mapping) *Vocabulary {
	native = normalizeNative(native)
	if provenance == "" {
		v.common[native] = m
		return v
	}
	src, ok := v.bySource[provenance]
	if !ok {
		src = make(map[string]Mapping)
		v.bySource[provenance] = src
	}
	src[native] = m
	return v
}

// Lookup returns the mapping of native for provenance, and false when the type is unknown.
func (v *Vocabulary) Lookup(provenance, native string) (Mapping, bool) {
	native = normalizeNative(native)
	if m, ok := v.bySource[provenance][native]; ok {
		return m, true
	}
	m, ok := v.common[native]
	return m, ok
}

// DefaultVocabulary knows the wallet and exchange vocabularies handled out of the box:
// the generic types, and the Binance trade history and account statement operations.
func DefaultVocabulary() *Vocabulary {
	v := NewVocabulary()
	for native, m := range map[string]Mapping{
		"buy":            {Class: Acquisition},
		"sell":           {Class: Disposal},
		"swap":           {Class: Exchange},
		"trade":          {Class: Exchange},
		"convert":        {Class: Exchange},
		"transfer_in":    {Class: TransferIn},
		"receive":        {Class: TransferIn},
		"transfer_out":   {Class: TransferOut},
		"send":           {Class: TransferOut},
		"staking_reward": {Class: RewardIncome, Reward: Staking},
		"staking":        {Class: RewardIncome, Reward: Staking},
		"airdrop":        {Class: RewardIncome, Reward: Airdrop},
		"farming":        {Class: RewardIncome, Reward: Farming},
		"reward":         {Class: RewardIncome, Reward: GenericReward},
		"interest":       {Class: RewardIncome, Reward: GenericReward},
		"fee":            {Class: Fee},
		"gas":            {Class: Fee},
		"deposit":        {Class: Deposit},
		"withdrawal":     {Class: Withdraw},
		"withdraw":       {Class: Withdraw},
	} {
		v.Add("", native, m)
	}
	for native, m := range map[string]Mapping{
		"transaction fee":               {Class: Fee},
		"staking rewards":               {Class: RewardIncome, Reward: Staking},
		"simple earn flexible interest": {Class: RewardIncome, Reward: GenericReward},
		"simple earn locked rewards":    {Class: RewardIncome, Reward: Staking},
		"launchpool interest":           {Class: RewardIncome, Reward: Farming},
		"airdrop assets":                {Class: RewardIncome, Reward: Airdrop},
		"distribution":                  {Class: RewardIncome, Reward: Airdrop},
		"binance convert":               {Class: Exchange},
	} {
		v.Add(ProvenanceBinance, native, m)
	}
	return v
}
