package processor

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/alpha"
	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/metrics"
	"github.com/liamashdown/whaleconsensus/internal/risk"
	"github.com/liamashdown/whaleconsensus/internal/signals"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"github.com/sirupsen/logrus"
)

// Request carries the per-request ranking parameters
type Request struct {
	MinWallets  int
	HideLottery bool
	Balance     float64
	Scoring     alpha.Config
	Risk        risk.Settings
}

// RequestFor builds a ranking request from stored user settings
func RequestFor(s config.UserSettings) Request {
	return Request{
		MinWallets:  s.MinWallets,
		HideLottery: s.HideLottery,
		Balance:     s.UserBalance,
		Scoring:     s.AlphaConfig(),
		Risk:        s.RiskSettings(),
	}
}

// Contributor is one wallet backing a signal
type Contributor struct {
	Address string          `json:"address"`
	Score   int             `json:"score"`
	Tier    whalescore.Tier `json:"tier"`
}

// ConsensusInfo summarizes the wallets behind a signal
type ConsensusInfo struct {
	Count         int           `json:"count"`
	HasElite      bool          `json:"has_elite"`
	WeightedScore int           `json:"weighted_score"`
	Contributors  []Contributor `json:"contributors"`
}

// RankedSignal is a scored and sized consensus signal
type RankedSignal struct {
	GroupKey        string               `json:"group_key"`
	MarketID        string               `json:"market_id"`
	MarketName      string               `json:"market_name"`
	MarketSlug      string               `json:"market_slug"`
	OutcomeLabel    string               `json:"outcome_label"`
	Direction       signals.Direction    `json:"direction"`
	Category        string               `json:"category"`
	TokenID         string               `json:"token_id,omitempty"`
	WalletCount     int                  `json:"wallet_count"`
	TotalConviction float64              `json:"total_conviction"`
	AvgEntryPrice   float64              `json:"avg_entry_price"`
	CurrentPrice    float64              `json:"current_price"`
	AlphaScore      int                  `json:"alpha_score"`
	AlphaBreakdown  alpha.ScoreBreakdown `json:"alpha_breakdown"`
	RecommendedSize float64              `json:"recommended_size"`
	RiskBreakdown   risk.Breakdown       `json:"kelly_breakdown"`
	Consensus       ConsensusInfo        `json:"consensus"`
}

// RankSignals runs the full pipeline: fetch every tracked wallet, aggregate,
// score, size and sort.
func (p *Processor) RankSignals(ctx context.Context, req Request) (ranked []RankedSignal, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRanking(time.Since(start), len(ranked), err)
	}()

	consensus, fetched, err := p.buildConsensus(ctx)
	if err != nil {
		return nil, err
	}

	candidates := FilterByWallets(consensus, req.MinWallets)
	if len(candidates) == 0 {
		return []RankedSignal{}, nil
	}

	walletSet := make(map[string]struct{})
	tokenSet := make(map[string]struct{})
	for _, agg := range candidates {
		for _, w := range agg.Wallets() {
			walletSet[w] = struct{}{}
		}
		if agg.TokenID != "" {
			tokenSet[agg.TokenID] = struct{}{}
		}
	}

	scores := p.whaleScores(ctx, sortedKeys(walletSet), fetched)

	averages := map[string]float64{}
	if req.Scoring.TrendMode && len(tokenSet) > 0 {
		avgs, err := p.market.SevenDayAverages(ctx, sortedKeys(tokenSet))
		if err != nil {
			p.log.WithError(err).Warn("Failed to fetch price history, momentum disabled")
		} else {
			averages = avgs
		}
	}

	now := p.now()
	ranked = make([]RankedSignal, 0, len(candidates))
	for _, agg := range candidates {
		sig, ok := p.rankOne(agg, scores, averages, req, now)
		if !ok {
			continue
		}
		ranked = append(ranked, sig)
	}

	SortRanked(ranked)

	p.log.WithFields(logrus.Fields{
		"consensus_groups": len(consensus),
		"candidates":       len(candidates),
		"ranked":           len(ranked),
		"duration_ms":      time.Since(start).Milliseconds(),
	}).Info("Ranked consensus signals")

	return ranked, nil
}

func (p *Processor) rankOne(agg *signals.AggregatedSignal, scores map[string]whalescore.Breakdown, averages map[string]float64, req Request, now time.Time) (RankedSignal, bool) {
	breakdown := alpha.Score(agg, averages[agg.TokenID], req.Scoring, now)
	metrics.AlphaScores.Observe(float64(breakdown.Total))

	if req.HideLottery && breakdown.Total < alpha.LotteryThreshold {
		return RankedSignal{}, false
	}

	info := BuildConsensusInfo(agg, scores)
	whaleTotals := make([]int, len(info.Contributors))
	for i, c := range info.Contributors {
		whaleTotals[i] = c.Score
	}

	size, riskBreakdown, err := risk.Size(risk.Input{
		CurrentPrice: agg.CurrentPrice,
		AlphaScore:   breakdown.Total,
		WalletCount:  agg.WalletCount(),
		Category:     agg.Category,
		WhaleScores:  whaleTotals,
		Balance:      req.Balance,
	}, req.Risk)
	switch {
	case errors.Is(err, risk.ErrInvalidPrice):
		metrics.RecommendedSizes.WithLabelValues("invalid").Inc()
		p.log.WithFields(logrus.Fields{
			"group_key": agg.Key.String(),
			"price":     agg.CurrentPrice,
		}).Debug("Invalid price, recommending zero size")
	default:
		metrics.RecommendedSizes.WithLabelValues(string(riskBreakdown.Strategy)).Inc()
	}

	return RankedSignal{
		GroupKey:        agg.Key.String(),
		MarketID:        agg.Key.MarketID,
		MarketName:      agg.MarketName,
		MarketSlug:      agg.MarketSlug,
		OutcomeLabel:    agg.Key.OutcomeLabel,
		Direction:       agg.Key.Direction,
		Category:        agg.Category,
		TokenID:         agg.TokenID,
		WalletCount:     agg.WalletCount(),
		TotalConviction: roundCents(agg.TotalConviction),
		AvgEntryPrice:   roundPrice(agg.AvgEntryPrice()),
		CurrentPrice:    roundPrice(agg.CurrentPrice),
		AlphaScore:      breakdown.Total,
		AlphaBreakdown:  breakdown,
		RecommendedSize: size,
		RiskBreakdown:   riskBreakdown,
		Consensus:       info,
	}, true
}

// FilterByWallets returns the aggregates with at least minWallets distinct
// wallets, ordered by group key
func FilterByWallets(consensus signals.Consensus, minWallets int) []*signals.AggregatedSignal {
	out := make([]*signals.AggregatedSignal, 0, len(consensus))
	for _, agg := range consensus {
		if agg.WalletCount() >= minWallets {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// BuildConsensusInfo lists the contributors of a signal with their whale
// scores, best first. Wallets without a score count as unrated 50.
func BuildConsensusInfo(agg *signals.AggregatedSignal, scores map[string]whalescore.Breakdown) ConsensusInfo {
	info := ConsensusInfo{
		Count:         agg.WalletCount(),
		WeightedScore: whalescore.NeutralScore,
		Contributors:  make([]Contributor, 0, agg.WalletCount()),
	}

	sum := 0
	for _, w := range agg.Wallets() {
		c := Contributor{Address: w, Score: whalescore.NeutralScore, Tier: whalescore.TierUnrated}
		if s, ok := scores[w]; ok {
			c.Score = s.Total
			c.Tier = s.Tier
		}
		if c.Tier == whalescore.TierElite {
			info.HasElite = true
		}
		sum += c.Score
		info.Contributors = append(info.Contributors, c)
	}

	if n := len(info.Contributors); n > 0 {
		info.WeightedScore = sum / n
	}

	sort.SliceStable(info.Contributors, func(i, j int) bool {
		return info.Contributors[i].Score > info.Contributors[j].Score
	})

	return info
}

// SortRanked orders signals by wallet count, then alpha score, then total
// conviction, all descending
func SortRanked(ranked []RankedSignal) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.WalletCount != b.WalletCount {
			return a.WalletCount > b.WalletCount
		}
		if a.AlphaScore != b.AlphaScore {
			return a.AlphaScore > b.AlphaScore
		}
		return a.TotalConviction > b.TotalConviction
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
