package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/metrics"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DefaultUserID keys the single-user settings row
const DefaultUserID = "default"

// StateWhaleScoresRefreshed holds the unix time of the last full refresh
const StateWhaleScoresRefreshed = "whale_scores_refreshed_at"

// ErrWalletNotFound is returned when a wallet is not tracked
var ErrWalletNotFound = errors.New("wallet not tracked")

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
	now  func() time.Time
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	// Configure GORM logger
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log, now: time.Now}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate creates or updates the schema
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&AppState{},
		&TrackedWallet{},
		&UserSettingsRecord{},
		&WhaleScoreRecord{},
	)
}

// observe times a query; defer the returned func with the named error
func observe(operation string, err *error) func() {
	start := time.Now()
	return func() {
		metrics.RecordDatabaseQuery(operation, time.Since(start), *err)
	}
}

// GetState retrieves a state value by key
func (db *DB) GetState(ctx context.Context, key string) (value string, err error) {
	defer observe("get_state", &err)()

	var state AppState
	result := db.conn.WithContext(ctx).Where("state_key = ?", key).First(&state)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if result.Error != nil {
		return "", result.Error
	}
	return state.StateValue, nil
}

// SetState sets a state value
func (db *DB) SetState(ctx context.Context, key, value string) (err error) {
	defer observe("set_state", &err)()

	state := AppState{
		StateKey:   key,
		StateValue: value,
		UpdatedTS:  db.now().Unix(),
	}
	return db.conn.WithContext(ctx).Save(&state).Error
}

// MarkWhaleScoresRefreshed records that every tracked wallet was just rescored
func (db *DB) MarkWhaleScoresRefreshed(ctx context.Context) error {
	return db.SetState(ctx, StateWhaleScoresRefreshed, strconv.FormatInt(db.now().Unix(), 10))
}

// WhaleScoresRefreshedAt returns the time of the last full refresh, zero if never
func (db *DB) WhaleScoresRefreshedAt(ctx context.Context) (time.Time, error) {
	v, err := db.GetState(ctx, StateWhaleScoresRefreshed)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", StateWhaleScoresRefreshed, err)
	}
	return time.Unix(ts, 0).UTC(), nil
}

// ListWallets returns the addresses of all active tracked wallets
func (db *DB) ListWallets(ctx context.Context) (addresses []string, err error) {
	defer observe("list_wallets", &err)()

	err = db.conn.WithContext(ctx).
		Model(&TrackedWallet{}).
		Where("is_active = ?", true).
		Order("address").
		Pluck("address", &addresses).Error
	return addresses, err
}

// ListTrackedWallets returns the active tracked wallets with their labels
func (db *DB) ListTrackedWallets(ctx context.Context) (wallets []TrackedWallet, err error) {
	defer observe("list_tracked_wallets", &err)()

	err = db.conn.WithContext(ctx).
		Where("is_active = ?", true).
		Order("address").
		Find(&wallets).Error
	return wallets, err
}

// AddWallet tracks a wallet, reactivating it if it was removed. An empty
// name keeps any existing label.
func (db *DB) AddWallet(ctx context.Context, address, name string) (err error) {
	defer observe("add_wallet", &err)()

	now := db.now().Unix()
	wallet := TrackedWallet{
		Address:   NormalizeAddress(address),
		Name:      name,
		IsActive:  true,
		CreatedTS: now,
		UpdatedTS: now,
	}

	updates := []string{"is_active", "updated_ts"}
	if name != "" {
		updates = append(updates, "name")
	}

	return db.conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&wallet).Error
}

// RemoveWallet stops tracking a wallet
func (db *DB) RemoveWallet(ctx context.Context, address string) (err error) {
	defer observe("remove_wallet", &err)()

	result := db.conn.WithContext(ctx).
		Model(&TrackedWallet{}).
		Where("address = ? AND is_active = ?", NormalizeAddress(address), true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_ts": db.now().Unix(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// SetWalletName labels a tracked wallet
func (db *DB) SetWalletName(ctx context.Context, address, name string) (err error) {
	defer observe("set_wallet_name", &err)()

	result := db.conn.WithContext(ctx).
		Model(&TrackedWallet{}).
		Where("address = ?", NormalizeAddress(address)).
		Updates(map[string]interface{}{
			"name":       name,
			"updated_ts": db.now().Unix(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// SeedWallets tracks the given wallets when no wallet has ever been tracked
func (db *DB) SeedWallets(ctx context.Context, addresses []string) (int, error) {
	if len(addresses) == 0 {
		return 0, nil
	}

	var count int64
	if err := db.conn.WithContext(ctx).Model(&TrackedWallet{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	for _, addr := range addresses {
		if err := db.AddWallet(ctx, addr, ""); err != nil {
			return 0, fmt.Errorf("seed wallet %s: %w", addr, err)
		}
	}
	return len(addresses), nil
}

// GetSettings returns the user's settings, or defaults when none are stored
func (db *DB) GetSettings(ctx context.Context, userID string, defaults config.UserSettings) (s config.UserSettings, err error) {
	defer observe("get_settings", &err)()

	var record UserSettingsRecord
	result := db.conn.WithContext(ctx).Where("user_id = ?", userID).First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return defaults, nil
	}
	if result.Error != nil {
		return config.UserSettings{}, result.Error
	}
	return record.settings(), nil
}

// SaveSettings stores the user's settings
func (db *DB) SaveSettings(ctx context.Context, userID string, s config.UserSettings) (err error) {
	defer observe("save_settings", &err)()

	record := settingsRecord(userID, s)
	record.UpdatedTS = db.now().Unix()
	return db.conn.WithContext(ctx).Save(&record).Error
}

// GetWhaleScore returns the wallet's stored score if it is newer than
// maxAge, nil otherwise
func (db *DB) GetWhaleScore(ctx context.Context, wallet string, maxAge time.Duration) (b *whalescore.Breakdown, err error) {
	defer observe("get_whale_score", &err)()

	var record WhaleScoreRecord
	result := db.conn.WithContext(ctx).
		Where("wallet_address = ? AND updated_ts >= ?", NormalizeAddress(wallet), db.now().Add(-maxAge).Unix()).
		First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}

	breakdown := record.Breakdown()
	return &breakdown, nil
}

// SaveWhaleScore inserts or replaces a wallet's score
func (db *DB) SaveWhaleScore(ctx context.Context, wallet string, b whalescore.Breakdown) (err error) {
	defer observe("save_whale_score", &err)()

	record, err := whaleScoreRecord(wallet, b, db.now())
	if err != nil {
		return fmt.Errorf("encode whale score: %w", err)
	}
	return db.conn.WithContext(ctx).Save(&record).Error
}

// ScoredWallet is a tracked wallet with its latest stored score
type ScoredWallet struct {
	Address   string                `json:"address"`
	Name      string                `json:"name"`
	Score     *whalescore.Breakdown `json:"score"`
	UpdatedAt *time.Time            `json:"updated_at"`
}

// ListWhaleScores returns every active wallet with its stored score, best
// first. Wallets never scored have a nil score and sort last.
func (db *DB) ListWhaleScores(ctx context.Context) (out []ScoredWallet, err error) {
	defer observe("list_whale_scores", &err)()

	var wallets []TrackedWallet
	if err = db.conn.WithContext(ctx).Where("is_active = ?", true).Order("address").Find(&wallets).Error; err != nil {
		return nil, err
	}

	var records []WhaleScoreRecord
	if err = db.conn.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	byWallet := make(map[string]WhaleScoreRecord, len(records))
	for _, r := range records {
		byWallet[r.WalletAddress] = r
	}

	return joinScores(wallets, byWallet), nil
}

func joinScores(wallets []TrackedWallet, scores map[string]WhaleScoreRecord) []ScoredWallet {
	out := make([]ScoredWallet, 0, len(wallets))
	for _, w := range wallets {
		sw := ScoredWallet{Address: w.Address, Name: w.Name}
		if r, ok := scores[w.Address]; ok {
			b := r.Breakdown()
			updated := time.Unix(r.UpdatedTS, 0).UTC()
			sw.Score = &b
			sw.UpdatedAt = &updated
		}
		out = append(out, sw)
	}

	sortScored(out)
	return out
}

func sortScored(out []ScoredWallet) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Score == nil:
			return false
		case b.Score == nil:
			return true
		default:
			return a.Score.Total > b.Score.Total
		}
	})
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
