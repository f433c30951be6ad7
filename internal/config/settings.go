package config

import (
	"fmt"
	"regexp"

	"github.com/liamashdown/whaleconsensus/internal/alpha"
	"github.com/liamashdown/whaleconsensus/internal/risk"
)

var walletAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsWalletAddress reports whether s is a 0x-prefixed 20-byte hex address
func IsWalletAddress(s string) bool {
	return walletAddressRe.MatchString(s)
}

// UserSettings are the user-tunable ranking and sizing parameters
type UserSettings struct {
	KellyMultiplier   float64 `json:"kelly_multiplier"`
	MaxRiskCap        float64 `json:"max_risk_cap"`
	MinWallets        int     `json:"min_wallets"`
	HideLottery       bool    `json:"hide_lottery"`
	LongshotTolerance float64 `json:"longshot_tolerance"`
	TrendMode         bool    `json:"trend_mode"`
	YieldTriggerPrice float64 `json:"yield_trigger_price"`
	YieldFixedPct     float64 `json:"yield_fixed_pct"`
	YieldMinWhales    int     `json:"yield_min_whales"`
	UserBalance       float64 `json:"user_balance"`
}

// Validate checks every field against its allowed range
func (s UserSettings) Validate() error {
	switch {
	case s.KellyMultiplier < 0.1 || s.KellyMultiplier > 1.0:
		return fmt.Errorf("kelly_multiplier must be between 0.1 and 1.0, got %v", s.KellyMultiplier)
	case s.MaxRiskCap < 0.01 || s.MaxRiskCap > 0.20:
		return fmt.Errorf("max_risk_cap must be between 0.01 and 0.20, got %v", s.MaxRiskCap)
	case s.MinWallets < 1:
		return fmt.Errorf("min_wallets must be at least 1, got %d", s.MinWallets)
	case s.LongshotTolerance < 0.5 || s.LongshotTolerance > 1.5:
		return fmt.Errorf("longshot_tolerance must be between 0.5 and 1.5, got %v", s.LongshotTolerance)
	case s.YieldTriggerPrice <= 0 || s.YieldTriggerPrice >= 1:
		return fmt.Errorf("yield_trigger_price must be between 0 and 1, got %v", s.YieldTriggerPrice)
	case s.YieldFixedPct < 0.01 || s.YieldFixedPct > 1.0:
		return fmt.Errorf("yield_fixed_pct must be between 0.01 and 1.0, got %v", s.YieldFixedPct)
	case s.YieldMinWhales < 1:
		return fmt.Errorf("yield_min_whales must be at least 1, got %d", s.YieldMinWhales)
	case s.UserBalance < 0:
		return fmt.Errorf("user_balance must not be negative, got %v", s.UserBalance)
	}
	return nil
}

// AlphaConfig returns the scoring configuration
func (s UserSettings) AlphaConfig() alpha.Config {
	return alpha.Config{
		LongshotTolerance: s.LongshotTolerance,
		TrendMode:         s.TrendMode,
	}
}

// RiskSettings returns the sizing configuration
func (s UserSettings) RiskSettings() risk.Settings {
	r := risk.DefaultSettings()
	r.KellyMultiplier = s.KellyMultiplier
	r.MaxRiskCap = s.MaxRiskCap
	r.YieldTriggerPrice = s.YieldTriggerPrice
	r.YieldFixedPct = s.YieldFixedPct
	r.YieldMinWhales = s.YieldMinWhales
	return r
}
