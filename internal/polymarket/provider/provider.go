package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/polymarket/clobapi"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/dataapi"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/gammaapi"
	"github.com/liamashdown/whaleconsensus/internal/signals"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// lookupWorkers bounds concurrent Gamma and CLOB lookups per call
const lookupWorkers = 4

// averageInterval is the price-history window used for momentum
const averageInterval = "1w"

// PositionSource fetches wallet positions and activity
type PositionSource interface {
	GetPositions(ctx context.Context, wallet string) ([]dataapi.Position, error)
	GetActivity(ctx context.Context, wallet string, limit int) ([]dataapi.Activity, error)
}

// MarketSource fetches market metadata
type MarketSource interface {
	GetMarketByConditionID(ctx context.Context, conditionID string) (*gammaapi.Market, error)
}

// PriceSource fetches token price history
type PriceSource interface {
	PriceHistory(ctx context.Context, tokenID, interval string) ([]clobapi.PricePoint, error)
}

// marketMeta is the market metadata attached to every position
type marketMeta struct {
	name     string
	slug     string
	category string
}

// Provider combines the Data, Gamma and CLOB APIs into normalized positions,
// trades and price averages, caching what does not change between requests
type Provider struct {
	positions PositionSource
	markets   MarketSource
	prices    PriceSource
	log       *logrus.Logger

	marketCache   *cache.Cache
	activityCache *cache.Cache
	averageCache  *cache.Cache
}

// New creates a provider. Market metadata lives for marketTTL, activity and
// price averages for priceTTL.
func New(positions PositionSource, markets MarketSource, prices PriceSource, marketTTL, priceTTL time.Duration, log *logrus.Logger) *Provider {
	return &Provider{
		positions:     positions,
		markets:       markets,
		prices:        prices,
		log:           log,
		marketCache:   cache.New(marketTTL, 2*marketTTL),
		activityCache: cache.New(priceTTL, 2*priceTTL),
		averageCache:  cache.New(priceTTL, 2*priceTTL),
	}
}

// FetchPositions returns a wallet's positions enriched with market metadata.
// Missing metadata degrades to defaults instead of failing the wallet.
func (p *Provider) FetchPositions(ctx context.Context, wallet string) ([]signals.RawPosition, error) {
	positions, err := p.positions.GetPositions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	conditionIDs := make([]string, 0, len(positions))
	seen := make(map[string]struct{})
	for _, pos := range positions {
		if pos.ConditionID == "" {
			continue
		}
		if _, ok := seen[pos.ConditionID]; !ok {
			seen[pos.ConditionID] = struct{}{}
			conditionIDs = append(conditionIDs, pos.ConditionID)
		}
	}
	metas := p.marketMetas(ctx, conditionIDs)

	out := make([]signals.RawPosition, 0, len(positions))
	for _, pos := range positions {
		if pos.ConditionID == "" {
			continue
		}
		out = append(out, toRawPosition(wallet, pos, metas[pos.ConditionID]))
	}
	return out, nil
}

// toRawPosition converts a Data API position. Outcomes other than "Yes" are
// the NO side of a binary market.
func toRawPosition(wallet string, pos dataapi.Position, meta *marketMeta) signals.RawPosition {
	direction, ok := signals.ParseDirection(pos.Outcome)
	if !ok {
		direction = signals.DirectionNo
	}

	raw := signals.RawPosition{
		WalletAddress: strings.ToLower(wallet),
		MarketID:      pos.ConditionID,
		OutcomeLabel:  pos.Title,
		Direction:     direction,
		EntryPrice:    priceOrDefault(pos.AvgPrice, pos.AvgPriceSet),
		CurrentPrice:  priceOrDefault(pos.CurPrice, pos.CurPriceSet),
		Size:          pos.Size,
		Category:      signals.DefaultCategory,
		MarketName:    pos.Title,
		MarketSlug:    pos.Slug,
		TokenID:       pos.Asset,
	}
	if raw.OutcomeLabel == "" {
		raw.OutcomeLabel = pos.Outcome
	}

	if meta != nil {
		raw.Category = meta.category
		if meta.slug != "" {
			raw.MarketSlug = meta.slug
		}
		if raw.MarketName == "" {
			raw.MarketName = meta.name
		}
	}
	if raw.MarketName == "" {
		raw.MarketName = FallbackName(pos.ConditionID)
	}
	return raw
}

// FallbackName is the display name for a market without metadata
func FallbackName(conditionID string) string {
	short := conditionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Market " + short + "..."
}

// priceOrDefault substitutes the default only for a price the API did not
// send. A reported 0 (a resolved, losing outcome) is kept.
func priceOrDefault(p float64, set bool) float64 {
	if !set {
		return signals.DefaultPrice
	}
	return p
}

func (p *Provider) marketMetas(ctx context.Context, conditionIDs []string) map[string]*marketMeta {
	var mu sync.Mutex
	out := make(map[string]*marketMeta, len(conditionIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupWorkers)
	for _, id := range conditionIDs {
		g.Go(func() error {
			meta := p.marketMeta(gctx, id)
			mu.Lock()
			out[id] = meta
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (p *Provider) marketMeta(ctx context.Context, conditionID string) *marketMeta {
	if v, ok := p.marketCache.Get(conditionID); ok {
		return v.(*marketMeta)
	}

	market, err := p.markets.GetMarketByConditionID(ctx, conditionID)
	if err != nil {
		if !errors.Is(err, gammaapi.ErrMarketNotFound) {
			p.log.WithError(err).WithField("condition_id", conditionID).Debug("Market lookup failed")
		}
		return nil
	}

	meta := &marketMeta{
		name:     market.Question,
		slug:     market.EventSlug(),
		category: market.Categorize(),
	}
	p.marketCache.SetDefault(conditionID, meta)
	return meta
}

// FetchActivity returns the trades in a wallet's recent activity
func (p *Provider) FetchActivity(ctx context.Context, wallet string, limit int) ([]whalescore.Trade, error) {
	key := fmt.Sprintf("%s:%d", strings.ToLower(wallet), limit)
	if v, ok := p.activityCache.Get(key); ok {
		return v.([]whalescore.Trade), nil
	}

	activity, err := p.positions.GetActivity(ctx, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}

	trades := ToTrades(activity)
	p.activityCache.SetDefault(key, trades)
	return trades, nil
}

// ToTrades keeps the fills of an activity feed
func ToTrades(activity []dataapi.Activity) []whalescore.Trade {
	trades := make([]whalescore.Trade, 0, len(activity))
	for _, a := range activity {
		if !a.IsTrade() || a.Asset == "" {
			continue
		}
		trades = append(trades, whalescore.Trade{
			Asset:       a.Asset,
			ConditionID: a.ConditionID,
			Side:        whalescore.ParseSide(a.Side),
			Price:       a.Price,
			Size:        a.Size,
			Timestamp:   a.Timestamp,
			MarketSlug:  a.Slug,
		})
	}
	return trades
}

// SevenDayAverages returns the one-week average price of each token. Tokens
// whose history cannot be fetched or averages to zero are left out.
func (p *Provider) SevenDayAverages(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	var mu sync.Mutex
	out := make(map[string]float64, len(tokenIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupWorkers)
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		g.Go(func() error {
			avg, ok := p.sevenDayAverage(gctx, id)
			if ok {
				mu.Lock()
				out[id] = avg
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) sevenDayAverage(ctx context.Context, tokenID string) (float64, bool) {
	if v, ok := p.averageCache.Get(tokenID); ok {
		avg := v.(float64)
		return avg, avg > 0
	}

	history, err := p.prices.PriceHistory(ctx, tokenID, averageInterval)
	if err != nil {
		p.log.WithError(err).WithField("token_id", tokenID).Debug("Price history unavailable")
		return 0, false
	}

	avg, _ := clobapi.Average(history)
	p.averageCache.SetDefault(tokenID, avg)
	return avg, avg > 0
}
