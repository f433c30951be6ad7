package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/polymarket/clobapi"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/dataapi"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/gammaapi"
	"github.com/liamashdown/whaleconsensus/internal/risk"
	"github.com/liamashdown/whaleconsensus/internal/signals"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePositions struct {
	positions     []dataapi.Position
	activity      []dataapi.Activity
	err           error
	activityCalls atomic.Int32
}

func (f *fakePositions) GetPositions(ctx context.Context, wallet string) ([]dataapi.Position, error) {
	return f.positions, f.err
}

func (f *fakePositions) GetActivity(ctx context.Context, wallet string, limit int) ([]dataapi.Activity, error) {
	f.activityCalls.Add(1)
	return f.activity, f.err
}

type fakeMarkets struct {
	markets map[string]*gammaapi.Market
	calls   atomic.Int32
}

func (f *fakeMarkets) GetMarketByConditionID(ctx context.Context, id string) (*gammaapi.Market, error) {
	f.calls.Add(1)
	if m, ok := f.markets[id]; ok {
		return m, nil
	}
	return nil, gammaapi.ErrMarketNotFound
}

type fakePrices struct {
	history map[string][]clobapi.PricePoint
	calls   atomic.Int32
}

func (f *fakePrices) PriceHistory(ctx context.Context, tokenID, interval string) ([]clobapi.PricePoint, error) {
	f.calls.Add(1)
	if h, ok := f.history[tokenID]; ok {
		return h, nil
	}
	return nil, errors.New("no history")
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestProvider(pos *fakePositions, markets *fakeMarkets, prices *fakePrices) *Provider {
	return New(pos, markets, prices, time.Minute, time.Minute, quietLogger())
}

func TestFetchPositionsEnrichesAndDefaults(t *testing.T) {
	pos := &fakePositions{positions: []dataapi.Position{
		{ConditionID: "0xmarket1abc", Outcome: "Yes", Size: 100, AvgPrice: 0.4, AvgPriceSet: true, CurPrice: 0.6, CurPriceSet: true, Title: "Rain?", Slug: "rain-mkt", Asset: "t1"},
		{ConditionID: "0xmarket1abc", Outcome: "No", Size: 30, AvgPrice: 0.5, AvgPriceSet: true, CurPrice: 0.4, CurPriceSet: true, Title: "Rain?", Asset: "t2"},
		{ConditionID: "0xunknown99", Outcome: "No", Size: 10},
		{ConditionID: "", Outcome: "Yes", Size: 5},
	}}
	markets := &fakeMarkets{markets: map[string]*gammaapi.Market{
		"0xmarket1abc": {Question: "Will it rain?", Tags: []gammaapi.Tag{{Label: "Weather"}, {Label: "Politics"}}, Events: []gammaapi.Event{{Slug: "rain-event"}}},
	}}
	p := newTestProvider(pos, markets, &fakePrices{})

	got, err := p.FetchPositions(context.Background(), "0xABC")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, signals.RawPosition{
		WalletAddress: "0xabc",
		MarketID:      "0xmarket1abc",
		OutcomeLabel:  "Rain?",
		Direction:     signals.DirectionYes,
		EntryPrice:    0.4,
		CurrentPrice:  0.6,
		Size:          100,
		Category:      gammaapi.CategoryPolitics,
		MarketName:    "Rain?",
		MarketSlug:    "rain-event",
		TokenID:       "t1",
	}, got[0])
	assert.Equal(t, signals.DirectionNo, got[1].Direction)

	unknown := got[2]
	assert.Equal(t, signals.DefaultPrice, unknown.EntryPrice)
	assert.Equal(t, signals.DefaultPrice, unknown.CurrentPrice)
	assert.Equal(t, signals.DefaultCategory, unknown.Category)
	assert.Equal(t, "Market 0xunknow...", unknown.MarketName)
	assert.Equal(t, "No", unknown.OutcomeLabel)

	// one lookup per distinct market, the second call is served from cache
	assert.Equal(t, int32(2), markets.calls.Load())
	_, err = p.FetchPositions(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int32(3), markets.calls.Load(), "only the unknown market is looked up again")
}

func TestReportedZeroPriceIsKept(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEntry float64
		wantPrice float64
		wantSized bool
	}{
		{"resolved against", `{"conditionId":"0xres","outcome":"Yes","size":100,"avgPrice":0.4,"curPrice":0,"title":"Resolved"}`, 0.4, 0, false},
		{"price as string zero", `{"conditionId":"0xres","outcome":"Yes","size":100,"avgPrice":"0.4","curPrice":"0"}`, 0.4, 0, false},
		{"price missing", `{"conditionId":"0xres","outcome":"Yes","size":100,"avgPrice":0.4}`, 0.4, signals.DefaultPrice, true},
		{"price null", `{"conditionId":"0xres","outcome":"Yes","size":100,"avgPrice":0.4,"curPrice":null}`, 0.4, signals.DefaultPrice, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var position dataapi.Position
			require.NoError(t, json.Unmarshal([]byte(tt.body), &position))

			p := newTestProvider(&fakePositions{positions: []dataapi.Position{position}}, &fakeMarkets{}, &fakePrices{})
			got, err := p.FetchPositions(context.Background(), "0xabc")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantEntry, got[0].EntryPrice)
			assert.Equal(t, tt.wantPrice, got[0].CurrentPrice)

			size, breakdown, err := risk.Size(risk.Input{
				CurrentPrice: got[0].CurrentPrice,
				AlphaScore:   75,
				WalletCount:  2,
				WhaleScores:  []int{85, 90},
				Balance:      1000,
			}, risk.DefaultSettings())
			if tt.wantSized {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, risk.ErrInvalidPrice)
			assert.Zero(t, size)
			assert.Equal(t, "Invalid price", breakdown.Reason)
		})
	}
}

func TestFetchPositionsError(t *testing.T) {
	p := newTestProvider(&fakePositions{err: errors.New("down")}, &fakeMarkets{}, &fakePrices{})
	_, err := p.FetchPositions(context.Background(), "0xabc")
	assert.Error(t, err)
}

func TestNonBinaryOutcomeIsNoSide(t *testing.T) {
	raw := toRawPosition("0xA", dataapi.Position{ConditionID: "m", Outcome: "Lakers", Title: "Finals"}, nil)
	assert.Equal(t, signals.DirectionNo, raw.Direction)
	assert.Equal(t, "Finals", raw.MarketName)
}

func TestFetchActivityFiltersAndCaches(t *testing.T) {
	pos := &fakePositions{activity: []dataapi.Activity{
		{Type: "TRADE", Asset: "t1", Side: "buy", Price: 0.25, Size: 10, Timestamp: 100},
		{Type: "REDEEM", Asset: "t1", Timestamp: 200},
		{Type: "TRADE", Asset: "", Side: "SELL", Timestamp: 300},
		{Asset: "t1", Side: "SELL", Price: 0.75, Size: 10, Timestamp: 400},
	}}
	p := newTestProvider(pos, &fakeMarkets{}, &fakePrices{})

	trades, err := p.FetchActivity(context.Background(), "0xabc", 500)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, whalescore.SideBuy, trades[0].Side)
	assert.Equal(t, whalescore.SideSell, trades[1].Side)

	_, err = p.FetchActivity(context.Background(), "0xABC", 500)
	require.NoError(t, err)
	assert.Equal(t, int32(1), pos.activityCalls.Load())
}

func TestSevenDayAverages(t *testing.T) {
	prices := &fakePrices{history: map[string][]clobapi.PricePoint{
		"t1": {{P: 0.2}, {P: 0.4}},
		"t2": {{P: 0}, {P: 0}},
		"t3": {},
	}}
	p := newTestProvider(&fakePositions{}, &fakeMarkets{}, prices)

	got, err := p.SevenDayAverages(context.Background(), []string{"t1", "t2", "t3", "t4", ""})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.3, got["t1"], 1e-9)

	calls := prices.calls.Load()
	_, err = p.SevenDayAverages(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, calls, prices.calls.Load(), "cached averages are reused")
}

func TestSevenDayAveragesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProvider(&fakePositions{}, &fakeMarkets{}, &fakePrices{})
	_, err := p.SevenDayAverages(ctx, []string{"t1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallbackName(t *testing.T) {
	assert.Equal(t, "Market 0x123456...", FallbackName("0x1234567890"))
	assert.Equal(t, "Market 0x12...", FallbackName("0x12"))
}
