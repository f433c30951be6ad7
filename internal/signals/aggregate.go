package signals

import "strings"

// Aggregate groups netted signals from every wallet into one consensus record
// per (market, outcome, direction).
//
// A wallet is counted once per group no matter how many signals it
// contributes. The current price of a group is whichever contributor was
// written last.
func Aggregate(sigs []NettedSignal) Consensus {
	groups := make(Consensus)

	for _, sig := range sigs {
		key := sig.Key()
		agg, ok := groups[key]
		if !ok {
			agg = &AggregatedSignal{
				Key:        key,
				MarketName: sig.MarketName,
				MarketSlug: sig.MarketSlug,
				Category:   sig.Category,
				TokenID:    sig.TokenID,
				wallets:    make(map[string]struct{}),
			}
			groups[key] = agg
		}
		agg.Add(sig)
	}

	return groups
}

// Add folds one netted signal into the aggregate
func (a *AggregatedSignal) Add(sig NettedSignal) {
	if a.wallets == nil {
		a.wallets = make(map[string]struct{})
	}
	a.wallets[strings.ToLower(sig.WalletAddress)] = struct{}{}
	a.TotalConviction += sig.SizeUSDC
	a.WeightedEntrySum += sig.EntryPrice * sig.SizeUSDC
	a.CurrentPrice = sig.CurrentPrice

	if a.TokenID == "" && sig.TokenID != "" {
		a.TokenID = sig.TokenID
	}
	if !sig.EarliestTimestamp.IsZero() {
		if a.EarliestTimestamp.IsZero() || sig.EarliestTimestamp.Before(a.EarliestTimestamp) {
			a.EarliestTimestamp = sig.EarliestTimestamp
		}
	}
}
