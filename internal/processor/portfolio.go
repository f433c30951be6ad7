package processor

import (
	"context"
	"fmt"
	"math"

	"github.com/liamashdown/whaleconsensus/internal/signals"
	"github.com/sirupsen/logrus"
)

// Status is a user position's standing against the whale consensus
type Status string

const (
	StatusValidated  Status = "VALIDATED"
	StatusDivergence Status = "DIVERGENCE"
	StatusTrim       Status = "TRIM"
)

const (
	// divergenceMinWallets is the opposing consensus needed to flag a position
	divergenceMinWallets = 2
	// trimPnLPercent is the unrealized gain above which an unbacked position should be trimmed
	trimPnLPercent = 20.0
)

// PortfolioPosition is one of the user's positions with its status
type PortfolioPosition struct {
	MarketID       string            `json:"market_id"`
	MarketName     string            `json:"market_name"`
	OutcomeLabel   string            `json:"outcome_label"`
	Direction      signals.Direction `json:"direction"`
	SizeUSDC       float64           `json:"size_usdc"`
	EntryPrice     float64           `json:"entry_price"`
	CurrentPrice   float64           `json:"current_price"`
	PnLPercent     float64           `json:"pnl_percent"`
	Status         Status            `json:"status"`
	WhaleConsensus bool              `json:"whale_consensus"`
	WhaleCount     int               `json:"whale_count"`
}

// Portfolio is a user's holdings reconciled against the whale consensus
type Portfolio struct {
	WalletAddress   string              `json:"wallet_address"`
	USDCBalance     float64             `json:"usdc_balance"`
	TotalInvested   float64             `json:"total_invested"`
	TotalPnL        float64             `json:"total_pnl"`
	Positions       []PortfolioPosition `json:"positions"`
	ValidatedCount  int                 `json:"validated_count"`
	DivergenceCount int                 `json:"divergence_count"`
}

// Classification is the result of comparing one position with the consensus
type Classification struct {
	Status         Status
	WhaleConsensus bool // the same group exists in consensus
	WhaleCount     int
	PnLPercent     float64
}

// Classify compares a user's netted position with the whale consensus
func Classify(sig signals.NettedSignal, consensus signals.Consensus) Classification {
	c := Classification{PnLPercent: PnLPercent(sig.EntryPrice, sig.CurrentPrice)}

	if agg, ok := consensus[sig.Key()]; ok {
		c.Status = StatusValidated
		c.WhaleConsensus = true
		c.WhaleCount = agg.WalletCount()
		return c
	}

	switch opposite, ok := consensus[sig.Key().Opposite()]; {
	case ok && opposite.WalletCount() >= divergenceMinWallets:
		c.Status = StatusDivergence
	case c.PnLPercent > trimPnLPercent:
		c.Status = StatusTrim
	default:
		c.Status = StatusValidated
	}
	return c
}

// PnLPercent is the unrealized gain in percent, 0 when entry is unknown
func PnLPercent(entry, current float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (current - entry) / entry * 100
}

// Reported amounts and percentages carry 2 decimals, prices 4
func roundCents(v float64) float64 { return math.Round(v*100) / 100 }

func roundPrice(v float64) float64 { return math.Round(v*10000) / 10000 }

// Portfolio reconciles a user's positions against the consensus of the
// tracked wallets. A failed balance read reports a zero balance.
func (p *Processor) Portfolio(ctx context.Context, wallet string) (*Portfolio, error) {
	balance, err := p.balances.USDCBalance(ctx, wallet)
	if err != nil {
		p.log.WithError(err).WithField("wallet", wallet).Warn("Failed to read USDC balance")
		balance = 0
	}

	raw, err := p.market.FetchPositions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch user positions: %w", err)
	}
	own := signals.Normalize(wallet, raw, nil)

	consensus, _, err := p.buildConsensus(ctx)
	if err != nil {
		return nil, err
	}

	portfolio := &Portfolio{
		WalletAddress: wallet,
		USDCBalance:   balance,
		Positions:     make([]PortfolioPosition, 0, len(own)),
	}

	for _, sig := range own {
		c := Classify(sig, consensus)

		if c.WhaleConsensus {
			portfolio.ValidatedCount++
		}
		if c.Status == StatusDivergence {
			portfolio.DivergenceCount++
		}
		portfolio.TotalInvested += sig.SizeUSDC
		portfolio.TotalPnL += sig.SizeUSDC * c.PnLPercent / 100

		portfolio.Positions = append(portfolio.Positions, PortfolioPosition{
			MarketID:       sig.MarketID,
			MarketName:     sig.MarketName,
			OutcomeLabel:   sig.OutcomeLabel,
			Direction:      sig.Direction,
			SizeUSDC:       roundCents(sig.SizeUSDC),
			EntryPrice:     roundPrice(sig.EntryPrice),
			CurrentPrice:   roundPrice(sig.CurrentPrice),
			PnLPercent:     roundCents(c.PnLPercent),
			Status:         c.Status,
			WhaleConsensus: c.WhaleConsensus,
			WhaleCount:     c.WhaleCount,
		})
	}

	portfolio.TotalInvested = roundCents(portfolio.TotalInvested)
	portfolio.TotalPnL = roundCents(portfolio.TotalPnL)

	p.log.WithFields(logrus.Fields{
		"wallet":      wallet,
		"positions":   len(portfolio.Positions),
		"validated":   portfolio.ValidatedCount,
		"divergences": portfolio.DivergenceCount,
	}).Info("Reconciled portfolio")

	return portfolio, nil
}
