package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/alpha"
	"github.com/liamashdown/whaleconsensus/internal/risk"
	"github.com/liamashdown/whaleconsensus/internal/signals"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"github.com/sirupsen/logrus"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeMarket struct {
	mu            sync.Mutex
	positions     map[string][]signals.RawPosition
	activity      map[string][]whalescore.Trade
	failPositions map[string]bool
	failActivity  map[string]bool
	averages      map[string]float64
	averageCalls  int
}

func (f *fakeMarket) FetchPositions(_ context.Context, wallet string) ([]signals.RawPosition, error) {
	if f.failPositions[wallet] {
		return nil, fmt.Errorf("positions unavailable for %s", wallet)
	}
	return f.positions[wallet], nil
}

func (f *fakeMarket) FetchActivity(_ context.Context, wallet string, _ int) ([]whalescore.Trade, error) {
	if f.failActivity[wallet] {
		return nil, errors.New("activity unavailable")
	}
	return f.activity[wallet], nil
}

func (f *fakeMarket) SevenDayAverages(_ context.Context, _ []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.averageCalls++
	return f.averages, nil
}

type fakeStore struct {
	mu      sync.Mutex
	wallets []string
	scores  map[string]whalescore.Breakdown
	saved   []string
	listErr error
}

func (s *fakeStore) ListWallets(context.Context) ([]string, error) {
	return s.wallets, s.listErr
}

func (s *fakeStore) GetWhaleScore(_ context.Context, wallet string, _ time.Duration) (*whalescore.Breakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.scores[wallet]; ok {
		return &b, nil
	}
	return nil, nil
}

func (s *fakeStore) SaveWhaleScore(_ context.Context, wallet string, b whalescore.Breakdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores == nil {
		s.scores = make(map[string]whalescore.Breakdown)
	}
	s.scores[wallet] = b
	s.saved = append(s.saved, wallet)
	return nil
}

type fakeBalances struct {
	balance float64
	err     error
}

func (b fakeBalances) USDCBalance(context.Context, string) (float64, error) {
	return b.balance, b.err
}

func pos(market string, dir signals.Direction, size, price float64, category string) signals.RawPosition {
	return signals.RawPosition{
		MarketID:     market,
		OutcomeLabel: market + " outcome",
		Direction:    dir,
		EntryPrice:   price,
		CurrentPrice: price,
		Size:         size,
		Category:     category,
		MarketName:   "Market " + market,
		TokenID:      market + "-" + string(dir),
	}
}

func newTestProcessor(market *fakeMarket, store *fakeStore, balances BalanceReader) *Processor {
	log := logrus.New()
	log.SetOutput(io.Discard)

	p := New(market, balances, store, Options{
		FetchWorkers:  4,
		ActivityLimit: 100,
		WhaleScoreTTL: time.Hour,
		Scoring:       whalescore.DefaultConfig(),
	}, log)
	p.now = func() time.Time { return testNow }
	return p
}

func defaultRequest() Request {
	return Request{
		MinWallets: 2,
		Balance:    1000,
		Scoring:    alpha.Config{LongshotTolerance: 1.0, TrendMode: false},
		Risk:       risk.DefaultSettings(),
	}
}

func threeWalletMarket() *fakeMarket {
	return &fakeMarket{
		positions: map[string][]signals.RawPosition{
			"0x1": {
				pos("mA", signals.DirectionYes, 100, 0.5, "Other"),
				pos("mB", signals.DirectionNo, 100, 0.5, "Politics"),
				pos("mC", signals.DirectionYes, 100, 0.5, "Other"),
			},
			"0x2": {
				pos("mA", signals.DirectionYes, 50, 0.5, "Other"),
				pos("mB", signals.DirectionNo, 50, 0.5, "Politics"),
				pos("mC", signals.DirectionYes, 500, 0.5, "Other"),
			},
			"0x3": {
				pos("mA", signals.DirectionYes, 10, 0.5, "Other"),
				pos("mD", signals.DirectionYes, 10, 0.5, "Other"),
			},
		},
	}
}

func TestRankSignalsOrdering(t *testing.T) {
	store := &fakeStore{wallets: []string{"0x1", "0x2", "0x3"}}
	p := newTestProcessor(threeWalletMarket(), store, fakeBalances{})

	ranked, err := p.RankSignals(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("RankSignals: %v", err)
	}

	want := []struct {
		market  string
		wallets int
		alpha   int
	}{
		{"mA", 3, 50},
		{"mB", 2, 70}, // smart short in politics
		{"mC", 2, 50},
	}

	if len(ranked) != len(want) {
		t.Fatalf("got %d signals, want %d", len(ranked), len(want))
	}
	for i, w := range want {
		got := ranked[i]
		if got.MarketID != w.market || got.WalletCount != w.wallets || got.AlphaScore != w.alpha {
			t.Errorf("position %d: got %s wallets=%d alpha=%d, want %s wallets=%d alpha=%d",
				i, got.MarketID, got.WalletCount, got.AlphaScore, w.market, w.wallets, w.alpha)
		}
	}

	if ranked[0].RiskBreakdown.Reason != risk.ReasonNegativeEV || ranked[0].RecommendedSize != 0 {
		t.Errorf("even-odds signal should size to zero, got %.2f (%s)", ranked[0].RecommendedSize, ranked[0].RiskBreakdown.Reason)
	}
}

func TestRankSignalsHideLottery(t *testing.T) {
	market := &fakeMarket{
		positions: map[string][]signals.RawPosition{
			"0x1": {pos("lotto", signals.DirectionYes, 1000, 0.03, "Other"), pos("safe", signals.DirectionYes, 10, 0.5, "Other")},
			"0x2": {pos("lotto", signals.DirectionYes, 1000, 0.03, "Other"), pos("safe", signals.DirectionYes, 10, 0.5, "Other")},
		},
	}
	store := &fakeStore{wallets: []string{"0x1", "0x2"}}
	p := newTestProcessor(market, store, fakeBalances{})

	req := defaultRequest()
	ranked, err := p.RankSignals(context.Background(), req)
	if err != nil {
		t.Fatalf("RankSignals: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d signals without filter, want 2", len(ranked))
	}

	req.HideLottery = true
	ranked, err = p.RankSignals(context.Background(), req)
	if err != nil {
		t.Fatalf("RankSignals: %v", err)
	}
	if len(ranked) != 1 || ranked[0].MarketID != "safe" {
		t.Errorf("lottery signal should be hidden, got %+v", ranked)
	}
}

func TestRankSignalsFailsOpenPerWallet(t *testing.T) {
	market := threeWalletMarket()
	market.failPositions = map[string]bool{"0x2": true}
	store := &fakeStore{wallets: []string{"0x1", "0x2", "0x3"}}
	p := newTestProcessor(market, store, fakeBalances{})

	ranked, err := p.RankSignals(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("one failing wallet must not fail the run: %v", err)
	}
	if len(ranked) != 1 || ranked[0].MarketID != "mA" || ranked[0].WalletCount != 2 {
		t.Errorf("expected only mA backed by two wallets, got %+v", ranked)
	}
}

func TestRankSignalsAllWalletsFail(t *testing.T) {
	market := threeWalletMarket()
	market.failPositions = map[string]bool{"0x1": true, "0x2": true, "0x3": true}
	store := &fakeStore{wallets: []string{"0x1", "0x2", "0x3"}}
	p := newTestProcessor(market, store, fakeBalances{})

	_, err := p.RankSignals(context.Background(), defaultRequest())
	if !errors.Is(err, ErrNoData) {
		t.Errorf("got %v, want ErrNoData", err)
	}
}

func TestRankSignalsStoreFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	p := newTestProcessor(threeWalletMarket(), store, fakeBalances{})

	if _, err := p.RankSignals(context.Background(), defaultRequest()); err == nil {
		t.Error("expected error when wallet list is unavailable")
	}
}

func TestRankSignalsNoTrackedWallets(t *testing.T) {
	p := newTestProcessor(&fakeMarket{}, &fakeStore{}, fakeBalances{})

	ranked, err := p.RankSignals(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("RankSignals: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("got %d signals, want none", len(ranked))
	}
}

func TestRankSignalsConsensusBlock(t *testing.T) {
	market := threeWalletMarket()
	store := &fakeStore{
		wallets: []string{"0x1", "0x2", "0x3"},
		scores: map[string]whalescore.Breakdown{
			"0x1": {Total: 90, Tier: whalescore.TierElite},
		},
	}
	p := newTestProcessor(market, store, fakeBalances{})

	ranked, err := p.RankSignals(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("RankSignals: %v", err)
	}

	info := ranked[0].Consensus
	if info.Count != 3 || !info.HasElite {
		t.Errorf("got count=%d has_elite=%v, want 3 true", info.Count, info.HasElite)
	}
	// (90 + 50 + 50) / 3
	if info.WeightedScore != 63 {
		t.Errorf("got weighted score %d, want 63", info.WeightedScore)
	}
	if info.Contributors[0].Address != "0x1" || info.Contributors[0].Score != 90 {
		t.Errorf("best contributor should come first, got %+v", info.Contributors)
	}

	// wallets without enough history are scored unrated and cached
	if len(store.saved) != 2 {
		t.Errorf("got %d saved scores, want 2", len(store.saved))
	}
	if store.scores["0x2"].Tier != whalescore.TierUnrated {
		t.Errorf("got tier %s for sparse wallet, want UNRATED", store.scores["0x2"].Tier)
	}
}

func TestRankSignalsMomentumUsesAverages(t *testing.T) {
	market := threeWalletMarket()
	market.averages = map[string]float64{"mA-YES": 0.40}
	store := &fakeStore{wallets: []string{"0x1", "0x2", "0x3"}}
	p := newTestProcessor(market, store, fakeBalances{})

	req := defaultRequest()
	req.Scoring.TrendMode = true
	ranked, err := p.RankSignals(context.Background(), req)
	if err != nil {
		t.Fatalf("RankSignals: %v", err)
	}
	if market.averageCalls != 1 {
		t.Errorf("got %d average lookups, want 1", market.averageCalls)
	}
	if ranked[0].AlphaBreakdown.Momentum != 10 {
		t.Errorf("got momentum %d, want 10", ranked[0].AlphaBreakdown.Momentum)
	}
}

func TestRankSignalsIsIdempotent(t *testing.T) {
	market := threeWalletMarket()
	market.activity = map[string][]whalescore.Trade{
		"0x1": {
			{Asset: "mA-YES", Side: whalescore.SideBuy, Price: 0.3, Size: 100, Timestamp: testNow.Add(-30 * time.Hour).Unix()},
			{Asset: "x", Side: whalescore.SideBuy, Price: 0.2, Size: 10, Timestamp: 1},
			{Asset: "x", Side: whalescore.SideSell, Price: 0.6, Size: 10, Timestamp: 7200},
			{Asset: "y", Side: whalescore.SideBuy, Price: 0.7, Size: 10, Timestamp: 1},
			{Asset: "y", Side: whalescore.SideSell, Price: 0.4, Size: 10, Timestamp: 3600},
		},
	}
	store := &fakeStore{wallets: []string{"0x1", "0x2", "0x3"}}
	p := newTestProcessor(market, store, fakeBalances{})

	first, err := p.RankSignals(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.RankSignals(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("runs differ:\n%s\n%s", a, b)
	}
	if first[0].AlphaBreakdown.Freshness != 7 {
		t.Errorf("got freshness %d, want 7", first[0].AlphaBreakdown.Freshness)
	}
}

func TestClassify(t *testing.T) {
	consensus := signals.Aggregate([]signals.NettedSignal{
		{WalletAddress: "0x1", MarketID: "agree", OutcomeLabel: "o", Direction: signals.DirectionYes},
		{WalletAddress: "0x2", MarketID: "agree", OutcomeLabel: "o", Direction: signals.DirectionYes},
		{WalletAddress: "0x1", MarketID: "against", OutcomeLabel: "o", Direction: signals.DirectionNo},
		{WalletAddress: "0x2", MarketID: "against", OutcomeLabel: "o", Direction: signals.DirectionNo},
		{WalletAddress: "0x1", MarketID: "lonely", OutcomeLabel: "o", Direction: signals.DirectionNo},
	})

	tests := []struct {
		name      string
		market    string
		entry     float64
		current   float64
		want      Status
		consensus bool
	}{
		{"same side in consensus", "agree", 0.5, 0.9, StatusValidated, true},
		{"two whales on the other side", "against", 0.5, 0.5, StatusDivergence, false},
		{"one whale opposing with profit", "lonely", 0.5, 0.7, StatusTrim, false},
		{"no signal and small profit", "unknown", 0.5, 0.55, StatusValidated, false},
		{"no signal and exactly twenty percent", "unknown", 0.5, 0.6, StatusValidated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := signals.NettedSignal{MarketID: tt.market, OutcomeLabel: "o", Direction: signals.DirectionYes, EntryPrice: tt.entry, CurrentPrice: tt.current}
			got := Classify(sig, consensus)
			if got.Status != tt.want {
				t.Errorf("got %s, want %s", got.Status, tt.want)
			}
			if got.WhaleConsensus != tt.consensus {
				t.Errorf("got whale consensus %v, want %v", got.WhaleConsensus, tt.consensus)
			}
		})
	}
}

func TestPnLPercent(t *testing.T) {
	tests := []struct {
		entry, current, want float64
	}{
		{0.5, 0.75, 50},
		{0.5, 0.25, -50},
		{0, 0.5, 0},
	}
	for _, tt := range tests {
		if got := PnLPercent(tt.entry, tt.current); got != tt.want {
			t.Errorf("PnLPercent(%v, %v) = %v, want %v", tt.entry, tt.current, got, tt.want)
		}
	}
}

func TestPortfolio(t *testing.T) {
	market := threeWalletMarket()
	market.positions["0xuser"] = []signals.RawPosition{
		pos("mA", signals.DirectionYes, 20, 0.5, "Other"),
		pos("mB", signals.DirectionYes, 10, 0.5, "Politics"),
	}
	store := &fakeStore{wallets: []string{"0x1", "0x2", "0x3"}}
	p := newTestProcessor(market, store, fakeBalances{balance: 250})

	portfolio, err := p.Portfolio(context.Background(), "0xuser")
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}

	if portfolio.USDCBalance != 250 {
		t.Errorf("got balance %v, want 250", portfolio.USDCBalance)
	}
	if len(portfolio.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(portfolio.Positions))
	}
	if got := portfolio.Positions[0]; got.Status != StatusValidated || got.WhaleCount != 3 {
		t.Errorf("mA: got %s with %d whales, want VALIDATED with 3", got.Status, got.WhaleCount)
	}
	if got := portfolio.Positions[1]; got.Status != StatusDivergence {
		t.Errorf("mB: got %s, want DIVERGENCE", got.Status)
	}
	if portfolio.ValidatedCount != 1 || portfolio.DivergenceCount != 1 {
		t.Errorf("got validated=%d divergence=%d, want 1 1", portfolio.ValidatedCount, portfolio.DivergenceCount)
	}
	if portfolio.TotalInvested != 15 {
		t.Errorf("got invested %v, want 15", portfolio.TotalInvested)
	}
}

func TestReportedValuesAreRounded(t *testing.T) {
	third := func(wallet string, size, current float64) signals.RawPosition {
		return signals.RawPosition{
			MarketID:     "mR",
			OutcomeLabel: "mR outcome",
			Direction:    signals.DirectionYes,
			EntryPrice:   1.0 / 3,
			CurrentPrice: current,
			Size:         size,
			Category:     "Other",
		}
	}
	market := &fakeMarket{
		positions: map[string][]signals.RawPosition{
			"0x1":    {third("0x1", 100, 1.0/3)},
			"0x2":    {third("0x2", 60, 1.0/3)},
			"0xuser": {third("0xuser", 10, 0.4567891)},
		},
	}
	store := &fakeStore{wallets: []string{"0x1", "0x2"}}
	p := newTestProcessor(market, store, fakeBalances{balance: 10})

	ranked, err := p.RankSignals(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("RankSignals: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d signals, want 1", len(ranked))
	}
	if got := ranked[0]; got.TotalConviction != 53.33 || got.AvgEntryPrice != 0.3333 || got.CurrentPrice != 0.3333 {
		t.Errorf("got conviction=%v entry=%v price=%v, want 53.33 0.3333 0.3333",
			got.TotalConviction, got.AvgEntryPrice, got.CurrentPrice)
	}

	portfolio, err := p.Portfolio(context.Background(), "0xuser")
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	got := portfolio.Positions[0]
	if got.SizeUSDC != 3.33 || got.EntryPrice != 0.3333 || got.CurrentPrice != 0.4568 || got.PnLPercent != 37.04 {
		t.Errorf("got size=%v entry=%v price=%v pnl=%v, want 3.33 0.3333 0.4568 37.04",
			got.SizeUSDC, got.EntryPrice, got.CurrentPrice, got.PnLPercent)
	}
	if portfolio.TotalInvested != 3.33 || portfolio.TotalPnL != 1.23 {
		t.Errorf("got invested=%v pnl=%v, want 3.33 1.23", portfolio.TotalInvested, portfolio.TotalPnL)
	}
}

func TestPortfolioBalanceFailureReportsZero(t *testing.T) {
	market := threeWalletMarket()
	store := &fakeStore{wallets: []string{"0x1", "0x2"}}
	p := newTestProcessor(market, store, fakeBalances{balance: 99, err: errors.New("rpc down")})

	portfolio, err := p.Portfolio(context.Background(), "0x3")
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if portfolio.USDCBalance != 0 {
		t.Errorf("got balance %v, want 0", portfolio.USDCBalance)
	}
}

func TestPortfolioOwnPositionsFailure(t *testing.T) {
	market := threeWalletMarket()
	market.failPositions = map[string]bool{"0xuser": true}
	p := newTestProcessor(market, &fakeStore{wallets: []string{"0x1"}}, fakeBalances{})

	if _, err := p.Portfolio(context.Background(), "0xuser"); err == nil {
		t.Error("expected error when the user's positions cannot be read")
	}
}

func TestSortRanked(t *testing.T) {
	ranked := []RankedSignal{
		{GroupKey: "c", WalletCount: 2, AlphaScore: 60, TotalConviction: 100},
		{GroupKey: "a", WalletCount: 3, AlphaScore: 10, TotalConviction: 1},
		{GroupKey: "d", WalletCount: 2, AlphaScore: 60, TotalConviction: 500},
		{GroupKey: "b", WalletCount: 2, AlphaScore: 80, TotalConviction: 1},
	}

	SortRanked(ranked)

	want := []string{"a", "b", "d", "c"}
	for i, key := range want {
		if ranked[i].GroupKey != key {
			t.Errorf("position %d: got %s, want %s", i, ranked[i].GroupKey, key)
		}
	}
}

func TestRefreshWhaleScores(t *testing.T) {
	market := threeWalletMarket()
	market.failActivity = map[string]bool{"0x3": true}
	store := &fakeStore{wallets: []string{"0x1", "0x2", "0x3"}}
	p := newTestProcessor(market, store, fakeBalances{})

	n, err := p.RefreshWhaleScores(context.Background())
	if err != nil {
		t.Fatalf("RefreshWhaleScores: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d refreshed, want 2", n)
	}
	if _, ok := store.scores["0x3"]; ok {
		t.Error("wallet with failing activity must not be saved")
	}
}
