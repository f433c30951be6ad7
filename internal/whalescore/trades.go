package whalescore

import (
	"sort"
	"strings"
	"time"
)

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a provider side string
func ParseSide(s string) Side {
	return Side(strings.ToUpper(strings.TrimSpace(s)))
}

// Trade is a single fill from a wallet's activity feed
type Trade struct {
	Asset       string // token id
	ConditionID string
	Side        Side
	Price       float64
	Size        float64
	Timestamp   int64 // unix seconds
	MarketSlug  string
}

// MatchedTrade is a buy quantity closed by a later sell
type MatchedTrade struct {
	Asset      string
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	EntryTime  int64
	ExitTime   int64
	PnL        float64
}

// DurationHours is how long the quantity was held
func (m MatchedTrade) DurationHours() float64 {
	return float64(max(0, m.ExitTime-m.EntryTime)) / 3600.0
}

// IsWinner reports whether the round trip made money
func (m MatchedTrade) IsWinner() bool {
	return m.PnL > 0
}

type openLot struct {
	price float64
	size  float64
	ts    int64
}

// MatchTrades pairs BUYs with later SELLs on the same asset, first in first
// out. A BUY may be split across several SELLs. BUYs never closed are dropped.
func MatchTrades(trades []Trade) []MatchedTrade {
	byAsset := make(map[string][]Trade)
	for _, t := range trades {
		byAsset[t.Asset] = append(byAsset[t.Asset], t)
	}

	assets := make([]string, 0, len(byAsset))
	for a := range byAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	var matched []MatchedTrade
	for _, asset := range assets {
		assetTrades := byAsset[asset]
		sort.SliceStable(assetTrades, func(i, j int) bool {
			return assetTrades[i].Timestamp < assetTrades[j].Timestamp
		})

		var queue []openLot
		for _, t := range assetTrades {
			switch ParseSide(string(t.Side)) {
			case SideBuy:
				queue = append(queue, openLot{price: t.Price, size: t.Size, ts: t.Timestamp})
			case SideSell:
				remaining := t.Size
				for remaining > 0 && len(queue) > 0 {
					lot := &queue[0]
					if lot.size <= 0 {
						queue = queue[1:]
						continue
					}
					fill := min(remaining, lot.size)

					matched = append(matched, MatchedTrade{
						Asset:      asset,
						EntryPrice: lot.price,
						ExitPrice:  t.Price,
						Size:       fill,
						EntryTime:  lot.ts,
						ExitTime:   t.Timestamp,
						PnL:        (t.Price - lot.price) * fill,
					})

					remaining -= fill
					lot.size -= fill
					if lot.size <= 0 {
						queue = queue[1:]
					}
				}
			}
		}
	}

	return matched
}

// EarliestByAsset returns the first trade time seen for each asset
func EarliestByAsset(trades []Trade) map[string]time.Time {
	earliest := make(map[string]time.Time)
	for _, t := range trades {
		if t.Asset == "" || t.Timestamp <= 0 {
			continue
		}
		ts := time.Unix(t.Timestamp, 0).UTC()
		if cur, ok := earliest[t.Asset]; !ok || ts.Before(cur) {
			earliest[t.Asset] = ts
		}
	}
	return earliest
}
