package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"gorm.io/gorm"
)

// AppState stores small pieces of application state, such as the time of
// the last whale score refresh
type AppState struct {
	StateKey   string `gorm:"primaryKey;size:64"`
	StateValue string `gorm:"type:text;not null"`
	UpdatedTS  int64  `gorm:"not null;index"`
}

func (AppState) TableName() string {
	return "app_state"
}

// TrackedWallet is a wallet whose positions feed the consensus. Removed
// wallets are kept with IsActive false so their labels survive re-adding.
type TrackedWallet struct {
	Address   string `gorm:"primaryKey;size:42"`
	Name      string `gorm:"size:255"`
	IsActive  bool   `gorm:"not null;default:true;index"`
	CreatedTS int64  `gorm:"not null"`
	UpdatedTS int64  `gorm:"not null"`
}

func (TrackedWallet) TableName() string {
	return "tracked_wallets"
}

// UserSettingsRecord persists the tunable ranking parameters per user
type UserSettingsRecord struct {
	UserID            string  `gorm:"primaryKey;size:64"`
	KellyMultiplier   float64 `gorm:"type:decimal(6,4);not null"`
	MaxRiskCap        float64 `gorm:"type:decimal(6,4);not null"`
	MinWallets        int     `gorm:"not null"`
	HideLottery       bool    `gorm:"not null"`
	LongshotTolerance float64 `gorm:"type:decimal(6,4);not null"`
	TrendMode         bool    `gorm:"not null"`
	YieldTriggerPrice float64 `gorm:"type:decimal(6,4);not null"`
	YieldFixedPct     float64 `gorm:"type:decimal(6,4);not null"`
	YieldMinWhales    int     `gorm:"not null"`
	UserBalance       float64 `gorm:"type:decimal(20,6);not null"`
	UpdatedTS         int64   `gorm:"not null"`
}

func (UserSettingsRecord) TableName() string {
	return "user_settings"
}

// WhaleScoreRecord caches a wallet's quality evaluation
type WhaleScoreRecord struct {
	WalletAddress   string `gorm:"primaryKey;size:42"`
	ROIScore        int    `gorm:"not null"`
	DisciplineScore int    `gorm:"not null"`
	PrecisionScore  int    `gorm:"not null"`
	TimingScore     int    `gorm:"not null"`
	TotalScore      int    `gorm:"not null;index"`
	Tier            string `gorm:"size:16;not null;index"`
	TradeCount      int    `gorm:"not null"`
	TagsJSON        string `gorm:"column:tags;type:text"`
	DetailsJSON     string `gorm:"column:details;type:text"`
	UpdatedTS       int64  `gorm:"not null;index"`
}

func (WhaleScoreRecord) TableName() string {
	return "whale_scores"
}

// BeforeCreate hook for timestamps
func (a *AppState) BeforeCreate(tx *gorm.DB) error {
	if a.UpdatedTS == 0 {
		a.UpdatedTS = time.Now().Unix()
	}
	return nil
}

func (w *TrackedWallet) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().Unix()
	if w.CreatedTS == 0 {
		w.CreatedTS = now
	}
	if w.UpdatedTS == 0 {
		w.UpdatedTS = now
	}
	return nil
}

func (s *UserSettingsRecord) BeforeCreate(tx *gorm.DB) error {
	if s.UpdatedTS == 0 {
		s.UpdatedTS = time.Now().Unix()
	}
	return nil
}

func (w *WhaleScoreRecord) BeforeCreate(tx *gorm.DB) error {
	if w.UpdatedTS == 0 {
		w.UpdatedTS = time.Now().Unix()
	}
	return nil
}

// NormalizeAddress lower-cases an address for use as a key
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func settingsRecord(userID string, s config.UserSettings) UserSettingsRecord {
	return UserSettingsRecord{
		UserID:            userID,
		KellyMultiplier:   s.KellyMultiplier,
		MaxRiskCap:        s.MaxRiskCap,
		MinWallets:        s.MinWallets,
		HideLottery:       s.HideLottery,
		LongshotTolerance: s.LongshotTolerance,
		TrendMode:         s.TrendMode,
		YieldTriggerPrice: s.YieldTriggerPrice,
		YieldFixedPct:     s.YieldFixedPct,
		YieldMinWhales:    s.YieldMinWhales,
		UserBalance:       s.UserBalance,
	}
}

func (r UserSettingsRecord) settings() config.UserSettings {
	return config.UserSettings{
		KellyMultiplier:   r.KellyMultiplier,
		MaxRiskCap:        r.MaxRiskCap,
		MinWallets:        r.MinWallets,
		HideLottery:       r.HideLottery,
		LongshotTolerance: r.LongshotTolerance,
		TrendMode:         r.TrendMode,
		YieldTriggerPrice: r.YieldTriggerPrice,
		YieldFixedPct:     r.YieldFixedPct,
		YieldMinWhales:    r.YieldMinWhales,
		UserBalance:       r.UserBalance,
	}
}

func whaleScoreRecord(wallet string, b whalescore.Breakdown, now time.Time) (WhaleScoreRecord, error) {
	tags, err := json.Marshal(b.Tags)
	if err != nil {
		return WhaleScoreRecord{}, err
	}
	details, err := json.Marshal(b.Details)
	if err != nil {
		return WhaleScoreRecord{}, err
	}
	return WhaleScoreRecord{
		WalletAddress:   NormalizeAddress(wallet),
		ROIScore:        b.ROI,
		DisciplineScore: b.Discipline,
		PrecisionScore:  b.Precision,
		TimingScore:     b.Timing,
		TotalScore:      b.Total,
		Tier:            string(b.Tier),
		TradeCount:      b.TradeCount,
		TagsJSON:        string(tags),
		DetailsJSON:     string(details),
		UpdatedTS:       now.Unix(),
	}, nil
}

// Breakdown decodes the stored evaluation. Malformed JSON columns decode as
// empty rather than failing the lookup.
func (r WhaleScoreRecord) Breakdown() whalescore.Breakdown {
	b := whalescore.Breakdown{
		ROI:        r.ROIScore,
		Discipline: r.DisciplineScore,
		Precision:  r.PrecisionScore,
		Timing:     r.TimingScore,
		Total:      r.TotalScore,
		Tier:       whalescore.Tier(r.Tier),
		TradeCount: r.TradeCount,
	}
	if r.TagsJSON != "" {
		_ = json.Unmarshal([]byte(r.TagsJSON), &b.Tags)
	}
	if r.DetailsJSON != "" {
		_ = json.Unmarshal([]byte(r.DetailsJSON), &b.Details)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b
}
