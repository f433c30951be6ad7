package whalescore

import (
	"fmt"
	"math"
)

// Tier is a categorical label derived from the total score
type Tier string

const (
	TierElite    Tier = "ELITE"
	TierPro      Tier = "PRO"
	TierStandard Tier = "STD"
	TierWeak     Tier = "WEAK"
	TierUnrated  Tier = "UNRATED"
)

// Diagnostic tags
const (
	TagDiamondHands = "diamond-hands"
	TagPaperHands   = "paper-hands"
	TagSniper       = "sniper"
	TagChurner      = "churner"
	TagPioneer      = "pioneer"
	TagProfitable   = "profitable"
)

// NeutralScore is the pillar and total value used when data is insufficient
const NeutralScore = 50

// Config holds pillar weights and thresholds
type Config struct {
	WeightROI        float64
	WeightDiscipline float64
	WeightPrecision  float64
	WeightTiming     float64

	MinTrades            int
	WhaleProfitThreshold float64 // total realized profit earning the ROI bonus
	PrecisionROIBypass   int     // ROI score above which churn is not penalized
}

// DefaultConfig returns the standard weights (0.35/0.25/0.20/0.20)
func DefaultConfig() Config {
	return Config{
		WeightROI:            0.35,
		WeightDiscipline:     0.25,
		WeightPrecision:      0.20,
		WeightTiming:         0.20,
		MinTrades:            5,
		WhaleProfitThreshold: 50_000,
		PrecisionROIBypass:   80,
	}
}

// Breakdown is one wallet's quality record
type Breakdown struct {
	ROI        int               `json:"roi_score"`
	Discipline int               `json:"discipline_score"`
	Precision  int               `json:"precision_score"`
	Timing     int               `json:"timing_score"`
	Total      int               `json:"total_score"`
	Tags       []string          `json:"tags"`
	Tier       Tier              `json:"tier"`
	TradeCount int               `json:"trade_count"`
	Details    map[string]string `json:"details"`
}

// Unrated returns the neutral record for a wallet without enough history
func Unrated(tradeCount, minTrades int) Breakdown {
	return Breakdown{
		ROI:        NeutralScore,
		Discipline: NeutralScore,
		Precision:  NeutralScore,
		Timing:     NeutralScore,
		Total:      NeutralScore,
		Tags:       []string{},
		Tier:       TierUnrated,
		TradeCount: tradeCount,
		Details: map[string]string{
			"status": fmt.Sprintf("UNRATED (%d trades < %d min)", tradeCount, minTrades),
		},
	}
}

// Evaluator computes wallet quality scores
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator with the given configuration
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate scores a wallet from its trade activity and its number of
// currently open positions
func (e *Evaluator) Evaluate(trades []Trade, activePositions int) Breakdown {
	if len(trades) < e.cfg.MinTrades {
		return Unrated(len(trades), e.cfg.MinTrades)
	}

	matched := MatchTrades(trades)

	roi, roiDetail := e.roiScore(matched)
	discipline, disciplineDetail := disciplineScore(matched)
	precision, precisionDetail := e.precisionScore(len(trades), activePositions, roi)
	timing, timingDetail := timingScore(trades)

	raw := e.cfg.WeightROI*float64(roi) +
		e.cfg.WeightDiscipline*float64(discipline) +
		e.cfg.WeightPrecision*float64(precision) +
		e.cfg.WeightTiming*float64(timing)
	total := clampScore(int(math.Floor(raw)))

	return Breakdown{
		ROI:        roi,
		Discipline: discipline,
		Precision:  precision,
		Timing:     timing,
		Total:      total,
		Tags:       tags(roi, discipline, precision, timing),
		Tier:       TierFor(total),
		TradeCount: len(trades),
		Details: map[string]string{
			"roi":        roiDetail,
			"discipline": disciplineDetail,
			"precision":  precisionDetail,
			"timing":     timingDetail,
		},
	}
}

// TierFor maps a total score to its tier
func TierFor(total int) Tier {
	switch {
	case total >= 80:
		return TierElite
	case total >= 60:
		return TierPro
	case total >= 40:
		return TierStandard
	default:
		return TierWeak
	}
}

func (e *Evaluator) roiScore(matched []MatchedTrade) (int, string) {
	if len(matched) == 0 {
		return NeutralScore, "NO_DATA"
	}

	var entryCost, profit float64
	winners := 0
	for _, m := range matched {
		entryCost += m.EntryPrice * m.Size
		profit += m.PnL
		if m.IsWinner() {
			winners++
		}
	}
	winRate := float64(winners) / float64(len(matched))

	var rawROI float64
	if entryCost > 0 {
		rawROI = profit / entryCost
	}

	var score int
	var detail string
	if rawROI < 0 {
		score = max(0, int(50+rawROI*100))
		detail = fmt.Sprintf("NEGATIVE (ROI %.1f%%)", rawROI*100)
	} else {
		score = min(100, int(winRate*100+rawROI*50))
		detail = fmt.Sprintf("WR %.0f%% / ROI %.1f%%", winRate*100, rawROI*100)
	}

	if profit > e.cfg.WhaleProfitThreshold {
		score = min(100, score+10)
		detail += " +WHALE"
	}

	return clampScore(score), detail
}

// disciplineScore rewards cutting losers faster than winners. A hold-time
// ratio of 0.5 or less scores 100, 2.0 or more scores 0.
func disciplineScore(matched []MatchedTrade) (int, string) {
	var winHours, loseHours float64
	var winners, losers int
	for _, m := range matched {
		if m.IsWinner() {
			winHours += m.DurationHours()
			winners++
		} else {
			loseHours += m.DurationHours()
			losers++
		}
	}

	if winners == 0 || losers == 0 {
		return NeutralScore, "INSUFFICIENT"
	}

	avgWin := winHours / float64(winners)
	avgLose := loseHours / float64(losers)
	if avgWin == 0 {
		return NeutralScore, "NEUTRAL"
	}

	ratio := avgLose / avgWin
	score := clampScore(int(100 - (ratio-0.5)*66))

	var label string
	switch {
	case ratio <= 0.5:
		label = "EXCEPTIONAL"
	case ratio <= 1.0:
		label = "GOOD"
	case ratio <= 1.5:
		label = "MODERATE"
	default:
		label = "POOR"
	}
	return score, fmt.Sprintf("%s (R=%.2f)", label, ratio)
}

func (e *Evaluator) precisionScore(tradeCount, activePositions, roi int) (int, string) {
	if roi > e.cfg.PrecisionROIBypass {
		return 100, "BYPASS (HIGH_ROI)"
	}

	turnover := float64(tradeCount) / float64(max(0, activePositions)+1)

	switch {
	case turnover < 2.0:
		return 100, fmt.Sprintf("PRECISE (T=%.1f)", turnover)
	case turnover > 10.0:
		return max(0, int(10-(turnover-10)*0.5)), fmt.Sprintf("CHURNING (T=%.1f)", turnover)
	default:
		score := int(100 - 90*math.Log(turnover/2)/math.Log(5))
		return clampScore(score), fmt.Sprintf("ACTIVE (T=%.1f)", turnover)
	}
}

// timingScore uses price as a proxy for how early a wallet moves: cheap buys
// and expensive sells score well
func timingScore(trades []Trade) (int, string) {
	var sum float64
	var n int
	for _, t := range trades {
		switch ParseSide(string(t.Side)) {
		case SideBuy:
			sum += t.Price
			n++
		case SideSell:
			sum += 1.0 - t.Price
			n++
		}
	}
	if n == 0 {
		return NeutralScore, "NO_DATA"
	}

	avg := sum / float64(n)

	var score int
	var label string
	switch {
	case avg < 0.2:
		score, label = 100, "PIONEER"
	case avg < 0.3:
		score, label = floorScore(100-(avg-0.2)*250), "EARLY"
	case avg <= 0.7:
		score, label = floorScore(75-(avg-0.3)*62.5), "CROWD"
	case avg <= 0.8:
		score, label = floorScore(50-(avg-0.7)*400), "LATE"
	default:
		score, label = max(0, floorScore(10-(avg-0.8)*50)), "FOMO"
	}
	return clampScore(score), fmt.Sprintf("%s (P=%.2f)", label, avg)
}

// floorScore truncates a linear score, absorbing float error so that the
// segment endpoints land on their exact values
func floorScore(v float64) int {
	return int(math.Floor(v + 1e-9))
}

func tags(roi, discipline, precision, timing int) []string {
	out := []string{}
	if discipline > 90 {
		out = append(out, TagDiamondHands)
	} else if discipline < 20 {
		out = append(out, TagPaperHands)
	}
	if precision > 90 {
		out = append(out, TagSniper)
	} else if precision < 20 {
		out = append(out, TagChurner)
	}
	if timing > 80 {
		out = append(out, TagPioneer)
	}
	if roi > 80 {
		out = append(out, TagProfitable)
	}
	return out
}

func clampScore(s int) int {
	return max(0, min(100, s))
}
