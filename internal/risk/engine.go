package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPrice is returned for prices outside the open interval (0, 1)
var ErrInvalidPrice = errors.New("price must be between 0 and 1 exclusive")

// Strategy is the sizing branch taken for a signal
type Strategy string

const (
	StrategyYield       Strategy = "yield"
	StrategySpeculation Strategy = "speculation"
)

// Reason strings recorded on the breakdown
const (
	ReasonNegativeEV = "Negative EV"
)

const (
	minProbability   = 0.001
	maxProbability   = 0.99
	maxBoostedProb   = 0.85
	alphaBoost       = 0.05
	alphaBoostScore  = 70
	noScoreDampener  = 0.5
	minimumDampener  = 0.25
	eliteDampenerAvg = 80
)

// Settings holds the user-tunable sizing parameters
type Settings struct {
	KellyMultiplier   float64 `json:"kelly_multiplier"`
	MaxRiskCap        float64 `json:"max_risk_cap"`
	YieldTriggerPrice float64 `json:"yield_trigger_price"`
	YieldFixedPct     float64 `json:"yield_fixed_pct"`
	YieldMinWhales    int     `json:"yield_min_whales"`
	MaxConcentration  float64 `json:"max_concentration"`
}

// DefaultSettings returns quarter-Kelly with a 5% cap
func DefaultSettings() Settings {
	return Settings{
		KellyMultiplier:   0.25,
		MaxRiskCap:        0.05,
		YieldTriggerPrice: 0.85,
		YieldFixedPct:     0.10,
		YieldMinWhales:    3,
		MaxConcentration:  0.20,
	}
}

// Input describes one signal to size
type Input struct {
	CurrentPrice float64
	AlphaScore   int
	WalletCount  int
	Category     string
	WhaleScores  []int // quality totals of contributing wallets
	Balance      float64
}

// Breakdown records every intermediate value of a sizing decision
type Breakdown struct {
	Strategy        Strategy `json:"strategy"`
	Category        string   `json:"category,omitempty"`
	MarketPrice     float64  `json:"market_price"`
	CalibratedProb  float64  `json:"p_calibrated"`
	RealProb        float64  `json:"real_prob"`
	NetOdds         float64  `json:"net_odds"`
	KellyRaw        float64  `json:"kelly_raw"`
	KellyMultiplier float64  `json:"kelly_multiplier"`
	Dampener        float64  `json:"dampener"`
	DampenerDetail  string   `json:"dampener_detail,omitempty"`
	StakePct        float64  `json:"stake_percent"`
	CappedPct       float64  `json:"capped_percent"`
	MaxRiskCap      float64  `json:"max_risk_cap"`
	Adjustments     []string `json:"adjustments"`
	Boosts          []string `json:"prob_boosts"`
	Reason          string   `json:"reason,omitempty"`
}

// Size computes the recommended notional for a signal. An invalid price
// returns ErrInvalidPrice with a zero size.
func Size(in Input, s Settings) (float64, Breakdown, error) {
	p := in.CurrentPrice
	if p <= 0 || p >= 1 || math.IsNaN(p) {
		return 0, Breakdown{Category: in.Category, MarketPrice: p, Reason: "Invalid price"}, fmt.Errorf("%w: %v", ErrInvalidPrice, p)
	}

	if p >= s.YieldTriggerPrice && in.WalletCount >= s.YieldMinWhales {
		pct := math.Min(s.YieldFixedPct, s.MaxConcentration)
		return roundCents(in.Balance * pct), Breakdown{
			Strategy:    StrategyYield,
			Category:    in.Category,
			MarketPrice: p,
			StakePct:    s.YieldFixedPct,
			CappedPct:   pct,
			MaxRiskCap:  s.MaxConcentration,
			Adjustments: []string{},
			Boosts:      []string{},
			Reason:      fmt.Sprintf("Price %.2f >= Trigger %.2f with %d whales", p, s.YieldTriggerPrice, in.WalletCount),
		}, nil
	}

	b := Breakdown{
		Strategy:        StrategySpeculation,
		Category:        in.Category,
		MarketPrice:     p,
		KellyMultiplier: s.KellyMultiplier,
		MaxRiskCap:      s.MaxRiskCap,
		Boosts:          []string{},
	}

	b.CalibratedProb, b.Adjustments = Calibrate(p)

	b.RealProb = b.CalibratedProb
	if in.AlphaScore >= alphaBoostScore {
		b.RealProb += alphaBoost
		b.Boosts = append(b.Boosts, fmt.Sprintf("+5%% Alpha (>=%d)", alphaBoostScore))
	}
	b.RealProb = math.Min(b.RealProb, maxBoostedProb)

	b.NetOdds = (1 - p) / p
	q := 1 - b.RealProb
	b.KellyRaw = (b.RealProb*b.NetOdds - q) / b.NetOdds

	if b.KellyRaw <= 0 {
		b.Reason = ReasonNegativeEV
		return 0, b, nil
	}

	b.Dampener, b.DampenerDetail = Dampener(in.WhaleScores)
	b.StakePct = b.KellyRaw * s.KellyMultiplier * b.Dampener
	b.CappedPct = math.Min(b.StakePct, s.MaxRiskCap)

	return roundCents(in.Balance * b.CappedPct), b, nil
}

// Calibrate corrects a market price for the favorite-longshot bias and
// returns the estimated true probability with the adjustments applied
func Calibrate(p float64) (float64, []string) {
	adjustments := []string{}
	prob := p

	switch {
	case p < 0.05:
		prob = p * 0.7
		adjustments = append(adjustments, fmt.Sprintf("FLB_LOTTERY -30%% (%.3f->%.3f)", p, prob))
	case p < 0.15:
		prob = p * 0.9
		adjustments = append(adjustments, fmt.Sprintf("FLB_HOPE -10%% (%.3f->%.3f)", p, prob))
	case p > 0.90:
		prob = math.Min(maxProbability, p+0.01)
		adjustments = append(adjustments, fmt.Sprintf("FLB_FAVORITE +1pp (%.3f->%.3f)", p, prob))
	}

	return math.Max(minProbability, math.Min(maxProbability, prob)), adjustments
}

// Dampener scales stake size by the average quality of the contributing
// wallets, from 0.25 for weak consensus to 1.0 for elite consensus
func Dampener(scores []int) (float64, string) {
	if len(scores) == 0 {
		return noScoreDampener, "NO_SCORES"
	}

	var sum int
	for _, s := range scores {
		sum += s
	}
	avg := float64(sum) / float64(len(scores))

	var d float64
	var label string
	switch {
	case avg >= eliteDampenerAvg:
		d, label = 1.0, "ELITE_CONSENSUS"
	case avg >= 60:
		d, label = 0.5+(avg-60)/20*0.5, "PRO_CONSENSUS"
	case avg >= 50:
		d, label = 0.25+(avg-50)/10*0.25, "MIXED_CONSENSUS"
	default:
		d, label = minimumDampener, "WEAK_CONSENSUS"
	}

	return math.Round(d*1000) / 1000, fmt.Sprintf("%s (avg=%.0f)", label, avg)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
