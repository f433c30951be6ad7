package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/processor"
	"github.com/liamashdown/whaleconsensus/internal/risk"
)

// Severity represents alert severity
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityAlert Severity = "ALERT"
)

// AlertPayload describes a consensus signal that just crossed the alert bar
type AlertPayload struct {
	Severity        Severity
	GroupKey        string
	MarketName      string
	MarketURL       string
	OutcomeLabel    string
	Direction       string
	Category        string
	WalletCount     int
	HasElite        bool
	WeightedScore   int
	AlphaScore      int
	CurrentPrice    float64
	AvgEntryPrice   float64
	RecommendedSize float64
	Strategy        risk.Strategy
	Contributors    []string // shortened addresses with tier
	Timestamp       time.Time
	Environment     string
}

// Sender defines the interface for alert senders
type Sender interface {
	Send(ctx context.Context, payload *AlertPayload) error
}

// maxContributors caps the wallets listed in one alert
const maxContributors = 5

// NewPayload builds the alert for a ranked signal. Signals backed by an
// ELITE wallet are raised as ALERT, others as INFO.
func NewPayload(sig processor.RankedSignal, environment string, now time.Time) *AlertPayload {
	p := &AlertPayload{
		Severity:        SeverityInfo,
		GroupKey:        sig.GroupKey,
		MarketName:      sig.MarketName,
		MarketURL:       MarketURL(sig.MarketSlug),
		OutcomeLabel:    sig.OutcomeLabel,
		Direction:       string(sig.Direction),
		Category:        sig.Category,
		WalletCount:     sig.WalletCount,
		HasElite:        sig.Consensus.HasElite,
		WeightedScore:   sig.Consensus.WeightedScore,
		AlphaScore:      sig.AlphaScore,
		CurrentPrice:    sig.CurrentPrice,
		AvgEntryPrice:   sig.AvgEntryPrice,
		RecommendedSize: sig.RecommendedSize,
		Strategy:        sig.RiskBreakdown.Strategy,
		Timestamp:       now,
		Environment:     environment,
	}
	if p.HasElite {
		p.Severity = SeverityAlert
	}
	for i, c := range sig.Consensus.Contributors {
		if i == maxContributors {
			p.Contributors = append(p.Contributors, fmt.Sprintf("+%d more", len(sig.Consensus.Contributors)-maxContributors))
			break
		}
		p.Contributors = append(p.Contributors, fmt.Sprintf("%s (%s %d)", ShortAddress(c.Address), c.Tier, c.Score))
	}
	return p
}

// MarketURL links to the market's event page
func MarketURL(slug string) string {
	if slug == "" {
		return ""
	}
	return "https://polymarket.com/event/" + slug
}

// ShortAddress abbreviates a wallet address for display
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func contributorsText(p *AlertPayload, sep string) string {
	if len(p.Contributors) == 0 {
		return "-"
	}
	return strings.Join(p.Contributors, sep)
}
