package alpha

import (
	"fmt"
	"math"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/signals"
)

const (
	// Base is the neutral starting score
	Base = 50
	// LotteryThreshold is the score below which a signal is treated as a lottery ticket
	LotteryThreshold = 30

	minTolerance = 0.5
	maxTolerance = 1.5
)

// Config holds the user-tunable scoring parameters
type Config struct {
	LongshotTolerance float64 // scales longshot penalties, 0.5-1.5
	TrendMode         bool    // enables momentum scoring
}

// DefaultConfig returns the default scoring parameters
func DefaultConfig() Config {
	return Config{LongshotTolerance: 1.0, TrendMode: true}
}

func (c Config) tolerance() float64 {
	return math.Max(minTolerance, math.Min(maxTolerance, c.LongshotTolerance))
}

// ScoreBreakdown is the result of scoring one signal
type ScoreBreakdown struct {
	Base       int      `json:"base"`
	FLB        int      `json:"flb"`
	Momentum   int      `json:"momentum"`
	SmartShort int      `json:"smart_short"`
	Freshness  int      `json:"freshness"`
	Total      int      `json:"total"`
	Details    []string `json:"details"`
}

// Score rates an aggregated signal.
//
// avg7d is the token's average price over the last week, or 0 when no
// history is available. now is the reference time for freshness.
func Score(sig *signals.AggregatedSignal, avg7d float64, cfg Config, now time.Time) ScoreBreakdown {
	b := ScoreBreakdown{Base: Base, Details: []string{fmt.Sprintf("Base: %d", Base)}}

	p := sig.CurrentPrice
	b.FLB, b.Details = flb(p, cfg.tolerance(), b.Details)
	b.Momentum, b.Details = momentum(p, avg7d, cfg.TrendMode, b.Details)
	b.SmartShort, b.Details = smartShort(sig.Key.Direction, sig.Category, b.Details)
	b.Freshness, b.Details = freshness(sig.EarliestTimestamp, now, b.Details)

	total := b.Base + b.FLB + b.Momentum + b.SmartShort + b.Freshness
	b.Total = max(0, min(100, total))

	return b
}

func flb(p, tolerance float64, details []string) (int, []string) {
	switch {
	case p < 0.05:
		delta := int(-40 * tolerance)
		return delta, append(details, fmt.Sprintf("Lottery Zone (%+d): price $%.2f < $0.05, retail overpricing", delta, p))
	case p < 0.15:
		delta := int(-20 * tolerance)
		return delta, append(details, fmt.Sprintf("Hope Zone (%+d): price $%.2f, moderate overpricing", delta, p))
	case p > 0.85:
		return 15, append(details, fmt.Sprintf("Favorite Value (+15): price $%.2f > $0.85, risk-aversion discount", p))
	default:
		return 0, append(details, fmt.Sprintf("Neutral Price (0): no FLB edge at $%.2f", p))
	}
}

func momentum(p, avg7d float64, trendMode bool, details []string) (int, []string) {
	if !trendMode {
		return 0, append(details, "Momentum (0): trend mode disabled")
	}
	if avg7d <= 0 {
		return 0, append(details, "Momentum (0): insufficient price history")
	}

	ratio := p / avg7d
	pct := (ratio - 1.0) * 100

	switch {
	case ratio > 1.05:
		return 10, append(details, fmt.Sprintf("Breakout (+10): price %+.1f%% above weekly average", pct))
	case ratio < 0.95:
		return -10, append(details, fmt.Sprintf("Falling Knife (-10): price %+.1f%% below weekly average", pct))
	default:
		return 0, append(details, fmt.Sprintf("No Momentum (0): price near weekly average (%+.1f%%)", pct))
	}
}

func smartShort(dir signals.Direction, category string, details []string) (int, []string) {
	if dir != signals.DirectionNo {
		return 0, details
	}

	switch category {
	case "Sports", "Politics":
		return 20, append(details, fmt.Sprintf("Smart Short (+20): against public sentiment in %s", category))
	case "Entertainment":
		return 15, append(details, fmt.Sprintf("Smart Short (+15): against sentiment in %s", category))
	default:
		return 10, append(details, fmt.Sprintf("Smart Short (+10): NO bet in %s", category))
	}
}

func freshness(earliest, now time.Time, details []string) (int, []string) {
	if earliest.IsZero() {
		return 0, append(details, "Freshness (0): no timestamp data")
	}

	days := now.Sub(earliest).Hours() / 24
	if days < 0 {
		days = 0
	}
	delta := max(0, int(math.Floor(10-2*days)))

	switch {
	case days < 1:
		return delta, append(details, fmt.Sprintf("Fresh Signal (+%d): opened < 24h ago", delta))
	case delta > 0:
		return delta, append(details, fmt.Sprintf("Recent Signal (+%d): %.0f days old", delta, days))
	default:
		return 0, append(details, "Stale Signal (0): > 5 days old")
	}
}
