package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/metrics"
	"github.com/liamashdown/whaleconsensus/internal/signals"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNoData is returned when no tracked wallet could be fetched at all
var ErrNoData = errors.New("no wallet data available")

// MarketData is the market and position data provider
type MarketData interface {
	FetchPositions(ctx context.Context, wallet string) ([]signals.RawPosition, error)
	FetchActivity(ctx context.Context, wallet string, limit int) ([]whalescore.Trade, error)
	SevenDayAverages(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// BalanceReader reads a wallet's spendable balance
type BalanceReader interface {
	USDCBalance(ctx context.Context, wallet string) (float64, error)
}

// Store holds the tracked wallet list and cached whale scores
type Store interface {
	ListWallets(ctx context.Context) ([]string, error)
	// GetWhaleScore returns nil when no score newer than maxAge exists
	GetWhaleScore(ctx context.Context, wallet string, maxAge time.Duration) (*whalescore.Breakdown, error)
	SaveWhaleScore(ctx context.Context, wallet string, score whalescore.Breakdown) error
}

// Options tunes the processor's I/O behaviour
type Options struct {
	FetchWorkers  int
	ActivityLimit int
	WhaleScoreTTL time.Duration
	Scoring       whalescore.Config
}

// Processor drives the ranking and portfolio pipelines
type Processor struct {
	market    MarketData
	balances  BalanceReader
	store     Store
	evaluator *whalescore.Evaluator
	opts      Options
	log       *logrus.Logger
	now       func() time.Time
}

// New creates a new processor
func New(market MarketData, balances BalanceReader, store Store, opts Options, log *logrus.Logger) *Processor {
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = 1
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 500
	}

	return &Processor{
		market:    market,
		balances:  balances,
		store:     store,
		evaluator: whalescore.NewEvaluator(opts.Scoring),
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// WalletResult is the outcome of fetching one wallet. A wallet with Err set
// contributes no signals.
type WalletResult struct {
	Wallet    string
	Positions []signals.RawPosition
	Signals   []signals.NettedSignal
	Trades    []whalescore.Trade
	// ActivityErr is set when the activity feed could not be read
	ActivityErr error
	Err         error
}

// fetchWallets loads positions and activity for every wallet concurrently.
// Results are returned in input order once all fetches have finished.
func (p *Processor) fetchWallets(ctx context.Context, wallets []string) []WalletResult {
	results := make([]WalletResult, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FetchWorkers)

	for i, wallet := range wallets {
		g.Go(func() error {
			results[i] = p.fetchWallet(gctx, wallet)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Processor) fetchWallet(ctx context.Context, wallet string) WalletResult {
	res := WalletResult{Wallet: wallet}

	positions, err := p.market.FetchPositions(ctx, wallet)
	metrics.RecordWalletFetch(err)
	if err != nil {
		res.Err = fmt.Errorf("fetch positions for %s: %w", wallet, err)
		p.log.WithError(err).WithField("wallet", wallet).Warn("Failed to fetch wallet positions")
		return res
	}
	res.Positions = positions

	trades, err := p.market.FetchActivity(ctx, wallet, p.opts.ActivityLimit)
	if err != nil {
		res.ActivityErr = err
		p.log.WithError(err).WithField("wallet", wallet).Debug("Activity unavailable, freshness disabled for wallet")
	}
	res.Trades = trades

	res.Signals = signals.Normalize(wallet, positions, whalescore.EarliestByAsset(trades))
	return res
}

// buildConsensus fetches every tracked wallet and aggregates their signals
func (p *Processor) buildConsensus(ctx context.Context) (signals.Consensus, map[string]WalletResult, error) {
	wallets, err := p.store.ListWallets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tracked wallets: %w", err)
	}
	if len(wallets) == 0 {
		return signals.Consensus{}, map[string]WalletResult{}, nil
	}

	results := p.fetchWallets(ctx, wallets)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	byWallet := make(map[string]WalletResult, len(results))
	var all []signals.NettedSignal
	failed := 0
	for _, res := range results {
		byWallet[strings.ToLower(res.Wallet)] = res
		if res.Err != nil {
			failed++
			continue
		}
		all = append(all, res.Signals...)
	}

	if failed == len(results) {
		return nil, nil, fmt.Errorf("%w: all %d wallet fetches failed", ErrNoData, failed)
	}

	p.log.WithFields(logrus.Fields{
		"wallets": len(wallets),
		"failed":  failed,
		"signals": len(all),
	}).Debug("Built whale consensus")

	return signals.Aggregate(all), byWallet, nil
}

// whaleScores returns the quality score of each wallet. wallets and the keys
// of fetched are lower-cased addresses. Cached scores are used when fresh,
// otherwise the score is computed from the wallet's activity and saved.
// Wallets without usable data get the neutral unrated record.
func (p *Processor) whaleScores(ctx context.Context, wallets []string, fetched map[string]WalletResult) map[string]whalescore.Breakdown {
	scores := make([]whalescore.Breakdown, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FetchWorkers)

	for i, wallet := range wallets {
		g.Go(func() error {
			var res *WalletResult
			if r, ok := fetched[wallet]; ok {
				res = &r
			}
			scores[i] = p.whaleScore(gctx, wallet, res)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]whalescore.Breakdown, len(wallets))
	for i, wallet := range wallets {
		out[wallet] = scores[i]
	}
	return out
}

func (p *Processor) whaleScore(ctx context.Context, wallet string, res *WalletResult) whalescore.Breakdown {
	cached, err := p.store.GetWhaleScore(ctx, wallet, p.opts.WhaleScoreTTL)
	if err != nil {
		p.log.WithError(err).WithField("wallet", wallet).Warn("Failed to read cached whale score")
	}
	if cached != nil {
		metrics.RecordWhaleScore("cache", string(cached.Tier), cached.Total)
		return *cached
	}

	if res == nil || res.Err != nil || res.ActivityErr != nil {
		b := whalescore.Unrated(0, p.opts.Scoring.MinTrades)
		metrics.RecordWhaleScore("fallback", string(b.Tier), b.Total)
		return b
	}

	b := p.evaluator.Evaluate(res.Trades, len(res.Positions))
	if err := p.store.SaveWhaleScore(ctx, wallet, b); err != nil {
		p.log.WithError(err).WithField("wallet", wallet).Warn("Failed to save whale score")
	}
	metrics.RecordWhaleScore("computed", string(b.Tier), b.Total)
	return b
}

// RefreshWhaleScores recomputes and stores the score of every tracked wallet.
// It returns the number of wallets refreshed.
func (p *Processor) RefreshWhaleScores(ctx context.Context) (int, error) {
	wallets, err := p.store.ListWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tracked wallets: %w", err)
	}

	refreshed := make([]bool, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FetchWorkers)

	for i, wallet := range wallets {
		g.Go(func() error {
			trades, err := p.market.FetchActivity(gctx, wallet, p.opts.ActivityLimit)
			if err != nil {
				p.log.WithError(err).WithField("wallet", wallet).Warn("Failed to fetch activity for whale score")
				return nil
			}
			positions, err := p.market.FetchPositions(gctx, wallet)
			if err != nil {
				p.log.WithError(err).WithField("wallet", wallet).Warn("Failed to fetch positions for whale score")
				return nil
			}

			b := p.evaluator.Evaluate(trades, len(positions))
			if err := p.store.SaveWhaleScore(gctx, wallet, b); err != nil {
				p.log.WithError(err).WithField("wallet", wallet).Error("Failed to save whale score")
				return nil
			}
			metrics.RecordWhaleScore("computed", string(b.Tier), b.Total)
			refreshed[i] = true
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range refreshed {
		if ok {
			count++
		}
	}

	p.log.WithFields(logrus.Fields{
		"wallets":   len(wallets),
		"refreshed": count,
	}).Info("Refreshed whale scores")

	return count, nil
}
