package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/liamashdown/whaleconsensus/internal/secrets"
)

// AuthMode represents the authentication mode for Data API
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeAPIKey AuthMode = "api_key"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string
	LogLevel    string
	LogFormat   string // json, text

	// Database
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Data API
	DataAPIBaseURL      string
	DataAPIAuthMode     AuthMode
	DataAPIBearerToken  string
	DataAPIAPIKey       string
	DataAPIExtraHeaders map[string]string

	// Gamma and CLOB APIs
	GammaAPIBaseURL string
	ClobAPIBaseURL  string

	// Chain
	PolygonRPCURL string
	USDCContract  string

	// Rate limits (requests per second)
	DataAPIPositionsRPS float64
	DataAPIActivityRPS  float64
	GammaAPIMarketsRPS  float64
	ClobAPIPricesRPS    float64

	// Pipeline
	WalletFetchWorkers        int
	ActivityLimit             int
	MarketCacheTTL            time.Duration
	PriceCacheTTL             time.Duration
	WhaleScoreTTL             time.Duration
	WhaleScoreRefreshInterval time.Duration

	// Tracked wallets added on first start
	SeedWallets []string

	// Consensus alerts
	AlertMode          string // comma-separated: none, log, discord, smtp
	AlertMinAlpha      int
	AlertCheckInterval time.Duration
	DiscordWebURL      string
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPFrom           string
	SMTPTo             []string

	// HTTP
	HTTPPort           int
	CORSAllowedOrigins []string

	// Defaults for the stored user settings
	Defaults UserSettings
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Environment:               getEnv("ENVIRONMENT", "production"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		LogFormat:                 getEnv("LOG_FORMAT", "json"),
		DatabaseDSN:               getEnv("DATABASE_DSN", "whaleconsensus:whaleconsensus@tcp(mysql:3306)/whaleconsensus?parseTime=true"),
		DatabaseMaxConns:          getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime:       time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		DataAPIBaseURL:            getEnv("DATA_API_BASE_URL", "https://data-api.polymarket.com"),
		DataAPIAuthMode:           AuthMode(getEnv("DATA_API_AUTH_MODE", "none")),
		DataAPIBearerToken:        secrets.GetOptionalSecret("DATA_API_BEARER_TOKEN", ""),
		DataAPIAPIKey:             secrets.GetOptionalSecret("DATA_API_API_KEY", ""),
		GammaAPIBaseURL:           getEnv("GAMMA_API_BASE_URL", "https://gamma-api.polymarket.com"),
		ClobAPIBaseURL:            getEnv("CLOB_API_BASE_URL", "https://clob.polymarket.com"),
		PolygonRPCURL:             secrets.GetOptionalSecret("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		USDCContract:              getEnv("USDC_CONTRACT_ADDRESS", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		DataAPIPositionsRPS:       getEnvFloat("DATA_API_POSITIONS_RPS", 5.0),
		DataAPIActivityRPS:        getEnvFloat("DATA_API_ACTIVITY_RPS", 5.0),
		GammaAPIMarketsRPS:        getEnvFloat("GAMMA_API_MARKETS_RPS", 10.0),
		ClobAPIPricesRPS:          getEnvFloat("CLOB_API_PRICES_RPS", 10.0),
		WalletFetchWorkers:        getEnvInt("WALLET_FETCH_WORKERS", 5),
		ActivityLimit:             getEnvInt("ACTIVITY_LIMIT", 500),
		MarketCacheTTL:            time.Duration(getEnvInt("MARKET_CACHE_TTL_SEC", 60)) * time.Second,
		PriceCacheTTL:             time.Duration(getEnvInt("PRICE_CACHE_TTL_SEC", 300)) * time.Second,
		WhaleScoreTTL:             time.Duration(getEnvInt("WHALE_SCORE_TTL_MINS", 360)) * time.Minute,
		WhaleScoreRefreshInterval: time.Duration(getEnvInt("WHALE_SCORE_REFRESH_INTERVAL_MINS", 60)) * time.Minute,
		SeedWallets:               parseCSV(getEnv("SEED_WALLETS", "")),
		AlertMode:                 getEnv("ALERT_MODE", "log"),
		AlertMinAlpha:             getEnvInt("ALERT_MIN_ALPHA", 70),
		AlertCheckInterval:        time.Duration(getEnvInt("ALERT_CHECK_INTERVAL_MINS", 5)) * time.Minute,
		DiscordWebURL:             secrets.GetOptionalSecret("DISCORD_WEBHOOK_URL", ""),
		SMTPHost:                  getEnv("SMTP_HOST", ""),
		SMTPPort:                  getEnvInt("SMTP_PORT", 587),
		SMTPUser:                  getEnv("SMTP_USER", ""),
		SMTPPassword:              secrets.GetOptionalSecret("SMTP_PASSWORD", ""),
		SMTPFrom:                  getEnv("SMTP_FROM", "whaleconsensus@example.com"),
		SMTPTo:                    parseCSV(getEnv("SMTP_TO", "")),
		HTTPPort:                  getEnvInt("HTTP_PORT", 8000),
		CORSAllowedOrigins:        parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		Defaults: UserSettings{
			KellyMultiplier:   getEnvFloat("DEFAULT_KELLY_MULTIPLIER", 0.25),
			MaxRiskCap:        getEnvFloat("DEFAULT_MAX_RISK_CAP", 0.05),
			MinWallets:        getEnvInt("DEFAULT_MIN_WALLETS", 2),
			HideLottery:       getEnvBool("DEFAULT_HIDE_LOTTERY", false),
			LongshotTolerance: getEnvFloat("DEFAULT_LONGSHOT_TOLERANCE", 1.0),
			TrendMode:         getEnvBool("DEFAULT_TREND_MODE", true),
			YieldTriggerPrice: getEnvFloat("DEFAULT_YIELD_TRIGGER_PRICE", 0.85),
			YieldFixedPct:     getEnvFloat("DEFAULT_YIELD_FIXED_PCT", 0.10),
			YieldMinWhales:    getEnvInt("DEFAULT_YIELD_MIN_WHALES", 3),
			UserBalance:       getEnvFloat("DEFAULT_USER_BALANCE", 1000.0),
		},
	}

	// Parse extra headers JSON
	extraHeadersJSON := getEnv("DATA_API_EXTRA_HEADERS", "{}")
	if err := json.Unmarshal([]byte(extraHeadersJSON), &cfg.DataAPIExtraHeaders); err != nil {
		return nil, fmt.Errorf("invalid DATA_API_EXTRA_HEADERS JSON: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	// Validate auth mode
	switch c.DataAPIAuthMode {
	case AuthModeNone:
		// No validation needed
	case AuthModeBearer:
		if c.DataAPIBearerToken == "" {
			return fmt.Errorf("DATA_API_BEARER_TOKEN is required when AUTH_MODE is bearer")
		}
	case AuthModeAPIKey:
		if c.DataAPIAPIKey == "" {
			return fmt.Errorf("DATA_API_API_KEY is required when AUTH_MODE is api_key")
		}
	default:
		return fmt.Errorf("invalid DATA_API_AUTH_MODE: %s (must be none, bearer, or api_key)", c.DataAPIAuthMode)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.LogFormat)
	}

	// Validate alert mode (comma-separated list)
	for _, mode := range c.AlertModes() {
		switch mode {
		case "none", "log":
		case "discord":
			if c.DiscordWebURL == "" {
				return fmt.Errorf("DISCORD_WEBHOOK_URL is required when discord is in ALERT_MODE")
			}
		case "smtp":
			if c.SMTPHost == "" || len(c.SMTPTo) == 0 {
				return fmt.Errorf("SMTP_HOST and SMTP_TO are required when smtp is in ALERT_MODE")
			}
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: none, log, discord, smtp)", mode)
		}
	}
	if c.AlertMinAlpha < 0 || c.AlertMinAlpha > 100 {
		return fmt.Errorf("ALERT_MIN_ALPHA must be between 0 and 100")
	}

	if c.WalletFetchWorkers < 1 {
		return fmt.Errorf("WALLET_FETCH_WORKERS must be at least 1")
	}
	if c.WhaleScoreRefreshInterval <= 0 || c.AlertCheckInterval <= 0 {
		return fmt.Errorf("WHALE_SCORE_REFRESH_INTERVAL_MINS and ALERT_CHECK_INTERVAL_MINS must be positive")
	}
	if c.MarketCacheTTL <= 0 || c.PriceCacheTTL <= 0 || c.WhaleScoreTTL <= 0 {
		return fmt.Errorf("MARKET_CACHE_TTL_SEC, PRICE_CACHE_TTL_SEC and WHALE_SCORE_TTL_MINS must be positive")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}

	for _, w := range c.SeedWallets {
		if !IsWalletAddress(w) {
			return fmt.Errorf("invalid address in SEED_WALLETS: %s", w)
		}
	}

	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("default settings: %w", err)
	}

	return nil
}

// AlertModes returns the configured alert destinations, lower-cased
func (c *Config) AlertModes() []string {
	modes := parseCSV(strings.ToLower(c.AlertMode))
	for i, m := range modes {
		modes[i] = strings.TrimSpace(m)
	}
	return modes
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
