package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeInvalidPrice(t *testing.T) {
	for _, p := range []float64{0, 1, -0.2, 1.5} {
		size, _, err := Size(Input{CurrentPrice: p, Balance: 1000}, DefaultSettings())
		assert.ErrorIs(t, err, ErrInvalidPrice, "price %v", p)
		assert.Zero(t, size)
	}
}

func TestSizeRecordsCategory(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  Strategy
	}{
		{"invalid", 0, ""},
		{"yield", 0.9, StrategyYield},
		{"speculation", 0.4, StrategySpeculation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, b, _ := Size(Input{CurrentPrice: tt.price, AlphaScore: 80, WalletCount: 5, Category: "Sports", Balance: 1000}, DefaultSettings())
			assert.Equal(t, "Sports", b.Category)
			assert.Equal(t, tt.want, b.Strategy)
		})
	}
}

func TestSizeNegativeEVAtEvenOdds(t *testing.T) {
	size, b, err := Size(Input{CurrentPrice: 0.50, AlphaScore: 60, WalletCount: 2, Balance: 1000}, DefaultSettings())

	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Equal(t, StrategySpeculation, b.Strategy)
	assert.Equal(t, ReasonNegativeEV, b.Reason)
	assert.InDelta(t, 0.5, b.CalibratedProb, 1e-12)
	assert.InDelta(t, 0.0, b.KellyRaw, 1e-12)
	assert.Empty(t, b.Adjustments)
}

func TestSizeYieldTakesPrecedence(t *testing.T) {
	in := Input{CurrentPrice: 0.90, AlphaScore: 95, WalletCount: 5, Balance: 1000}

	size, b, err := Size(in, DefaultSettings())

	require.NoError(t, err)
	assert.Equal(t, StrategyYield, b.Strategy)
	assert.Equal(t, 100.0, size)
	assert.Zero(t, b.KellyRaw)
	assert.Zero(t, b.NetOdds)

	s := DefaultSettings()
	s.YieldFixedPct = 0.5
	size, _, err = Size(in, s)
	require.NoError(t, err)
	assert.Equal(t, 200.0, size, "limited by max concentration")
}

func TestSizeYieldNeedsEnoughWhales(t *testing.T) {
	size, b, err := Size(Input{CurrentPrice: 0.90, AlphaScore: 80, WalletCount: 2, Balance: 1000}, DefaultSettings())

	require.NoError(t, err)
	assert.Equal(t, StrategySpeculation, b.Strategy)
	// boosted probability is capped at 0.85, below the price
	assert.InDelta(t, 0.85, b.RealProb, 1e-12)
	assert.Equal(t, ReasonNegativeEV, b.Reason)
	assert.Zero(t, size)
}

func TestSizeSpeculation(t *testing.T) {
	in := Input{CurrentPrice: 0.40, AlphaScore: 75, WalletCount: 2, WhaleScores: []int{90, 80}, Balance: 1000}

	size, b, err := Size(in, DefaultSettings())

	require.NoError(t, err)
	assert.Equal(t, StrategySpeculation, b.Strategy)
	assert.InDelta(t, 0.45, b.RealProb, 1e-12)
	assert.InDelta(t, 1.5, b.NetOdds, 1e-12)
	assert.InDelta(t, 0.125/1.5, b.KellyRaw, 1e-12)
	assert.Equal(t, 1.0, b.Dampener)
	assert.InDelta(t, 0.125/1.5*0.25, b.CappedPct, 1e-12)
	assert.Equal(t, 20.83, size)
	assert.Len(t, b.Boosts, 1)
}

func TestSizeCapped(t *testing.T) {
	s := DefaultSettings()
	s.KellyMultiplier = 1.0
	in := Input{CurrentPrice: 0.40, AlphaScore: 75, WalletCount: 2, WhaleScores: []int{90}, Balance: 1000}

	size, b, err := Size(in, s)

	require.NoError(t, err)
	assert.Greater(t, b.StakePct, s.MaxRiskCap)
	assert.Equal(t, s.MaxRiskCap, b.CappedPct)
	assert.Equal(t, 50.0, size)
}

func TestCalibrate(t *testing.T) {
	tests := []struct {
		price float64
		want  float64
		adj   int
	}{
		{0.03, 0.021, 1},
		{0.10, 0.09, 1},
		{0.50, 0.50, 0},
		{0.90, 0.90, 0},
		{0.95, 0.96, 1},
		{0.995, 0.99, 1},
		{0.0001, 0.001, 1},
	}
	for _, tt := range tests {
		got, adj := Calibrate(tt.price)
		assert.InDelta(t, tt.want, got, 1e-9, "price %v", tt.price)
		assert.Len(t, adj, tt.adj, "price %v", tt.price)
	}
}

func TestDampener(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   float64
	}{
		{"no scores", nil, 0.5},
		{"elite", []int{80}, 1.0},
		{"pro midpoint", []int{70}, 0.75},
		{"pro rounded", []int{62, 63}, 0.563},
		{"pro floor", []int{60}, 0.5},
		{"mixed", []int{55}, 0.375},
		{"mixed floor", []int{50}, 0.25},
		{"weak", []int{10, 40}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Dampener(tt.scores)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSizeIsReproducible(t *testing.T) {
	in := Input{CurrentPrice: 0.12, AlphaScore: 72, WalletCount: 3, WhaleScores: []int{66, 71, 58}, Balance: 2500}

	s1, b1, err1 := Size(in, DefaultSettings())
	s2, b2, err2 := Size(in, DefaultSettings())

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, s1, s2)
	assert.Equal(t, b1, b2)
}
