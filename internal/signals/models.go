package signals

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Direction is the side of a binary market a position is exposed to
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// ParseDirection maps an outcome string ("Yes", "no", ...) to a Direction
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES":
		return DirectionYes, true
	case "NO":
		return DirectionNo, true
	}
	return "", false
}

// Opposite returns the other side of the market
func (d Direction) Opposite() Direction {
	if d == DirectionYes {
		return DirectionNo
	}
	return DirectionYes
}

const (
	// DefaultCategory is used when a market cannot be categorized
	DefaultCategory = "Other"
	// DefaultPrice is used when the provider returns no price
	DefaultPrice = 0.5
)

// RawPosition is one wallet's exposure to one market outcome as reported by
// the data provider, after field-name normalization
type RawPosition struct {
	WalletAddress string
	MarketID      string
	OutcomeLabel  string
	Direction     Direction
	EntryPrice    float64
	CurrentPrice  float64
	Size          float64 // shares
	Category      string
	MarketName    string
	MarketSlug    string
	TokenID       string
}

// NettedSignal is a RawPosition after same-market YES/NO netting
type NettedSignal struct {
	WalletAddress     string
	MarketID          string
	OutcomeLabel      string
	Direction         Direction
	EntryPrice        float64
	CurrentPrice      float64
	Size              float64 // net shares
	SizeUSDC          float64 // net shares at entry price
	Category          string
	MarketName        string
	MarketSlug        string
	TokenID           string
	EarliestTimestamp time.Time // zero when unknown
}

// Key returns the consensus group this signal belongs to
func (s NettedSignal) Key() GroupKey {
	return GroupKey{MarketID: s.MarketID, OutcomeLabel: s.OutcomeLabel, Direction: s.Direction}
}

// GroupKey identifies one consensus signal
type GroupKey struct {
	MarketID     string
	OutcomeLabel string
	Direction    Direction
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.MarketID, k.OutcomeLabel, k.Direction)
}

// Opposite returns the key for the other side of the same market outcome
func (k GroupKey) Opposite() GroupKey {
	return GroupKey{MarketID: k.MarketID, OutcomeLabel: k.OutcomeLabel, Direction: k.Direction.Opposite()}
}

// AggregatedSignal is the consensus of every tracked wallet on one GroupKey
type AggregatedSignal struct {
	Key               GroupKey
	MarketName        string
	MarketSlug        string
	Category          string
	TokenID           string
	TotalConviction   float64
	WeightedEntrySum  float64
	CurrentPrice      float64
	EarliestTimestamp time.Time // zero when no contributor had a timestamp

	wallets map[string]struct{}
}

// WalletCount is the number of distinct contributing wallets
func (a *AggregatedSignal) WalletCount() int {
	return len(a.wallets)
}

// AvgEntryPrice is the conviction-weighted average entry price
func (a *AggregatedSignal) AvgEntryPrice() float64 {
	if a.TotalConviction > 0 {
		return a.WeightedEntrySum / a.TotalConviction
	}
	return 0
}

// HasWallet reports whether the (lower-cased) wallet contributed
func (a *AggregatedSignal) HasWallet(address string) bool {
	_, ok := a.wallets[strings.ToLower(address)]
	return ok
}

// Wallets returns the contributing addresses in sorted order
func (a *AggregatedSignal) Wallets() []string {
	out := make([]string, 0, len(a.wallets))
	for w := range a.wallets {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Consensus maps each group key to its aggregate
type Consensus map[GroupKey]*AggregatedSignal

// Wallets returns every distinct wallet contributing to any signal, sorted
func (c Consensus) Wallets() []string {
	seen := make(map[string]struct{})
	for _, agg := range c {
		for w := range agg.wallets {
			seen[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// TokenIDs returns the distinct non-empty token ids, sorted
func (c Consensus) TokenIDs() []string {
	seen := make(map[string]struct{})
	for _, agg := range c {
		if agg.TokenID != "" {
			seen[agg.TokenID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
