package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/alerts"
	"github.com/liamashdown/whaleconsensus/internal/api"
	"github.com/liamashdown/whaleconsensus/internal/chain"
	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/clobapi"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/dataapi"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/gammaapi"
	"github.com/liamashdown/whaleconsensus/internal/polymarket/provider"
	"github.com/liamashdown/whaleconsensus/internal/processor"
	"github.com/liamashdown/whaleconsensus/internal/secrets"
	"github.com/liamashdown/whaleconsensus/internal/storage"
	"github.com/liamashdown/whaleconsensus/internal/whalescore"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting whaleconsensus service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(log, cfg)

	log.WithFields(logrus.Fields{
		"environment":     cfg.Environment,
		"http_port":       cfg.HTTPPort,
		"fetch_workers":   cfg.WalletFetchWorkers,
		"whale_score_ttl": cfg.WhaleScoreTTL.String(),
		"alert_mode":      cfg.AlertMode,
		"polygon_rpc":     secrets.Redact(cfg.PolygonRPCURL),
	}).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}
	log.Info("Database migrations complete")

	if n, err := db.SeedWallets(ctx, cfg.SeedWallets); err != nil {
		log.WithError(err).Error("Failed to seed tracked wallets")
	} else if n > 0 {
		log.WithField("count", n).Info("Seeded tracked wallets")
	}

	// Initialize API clients
	market := provider.New(
		dataapi.NewClient(cfg),
		gammaapi.NewClient(cfg),
		clobapi.NewClient(cfg),
		cfg.MarketCacheTTL,
		cfg.PriceCacheTTL,
		log,
	)

	balances, err := chain.Dial(ctx, cfg.PolygonRPCURL, cfg.USDCContract)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up Polygon client")
	}
	defer balances.Close()

	log.Info("API clients initialized")

	proc := processor.New(market, balances, db, processor.Options{
		FetchWorkers:  cfg.WalletFetchWorkers,
		ActivityLimit: cfg.ActivityLimit,
		WhaleScoreTTL: cfg.WhaleScoreTTL,
		Scoring:       whalescore.DefaultConfig(),
	}, log)

	// Initialize alerts
	alertSender := createAlertSender(cfg, log)
	var watcher *alerts.Watcher
	if alertSender != nil {
		watcher = alerts.NewWatcher(proc, db, alertSender, storage.DefaultUserID, cfg.Defaults, cfg.AlertMinAlpha, cfg.Environment, log)
		log.WithField("alert_mode", cfg.AlertMode).Info("Alert watcher initialized")
	}

	// Start HTTP server
	server := api.New(api.Config{
		Port:           cfg.HTTPPort,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		UserID:         storage.DefaultUserID,
		Defaults:       cfg.Defaults,
		Engine:         proc,
		Store:          db,
		Balances:       balances,
		Log:            log,
	})
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Background loops
	go runWhaleScoreRefresh(ctx, proc, db, cfg.WhaleScoreRefreshInterval, log)
	if watcher != nil {
		go runAlerts(ctx, watcher, cfg.AlertCheckInterval, log)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.WithError(err).Error("HTTP server failed")
		cancel()
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("HTTP server shutdown failed")
		}
		log.Info("Graceful shutdown complete")
	}
}

func configureLogger(log *logrus.Logger, cfg *config.Config) {
	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		return
	}
	log.SetLevel(level)
}

// runWhaleScoreRefresh refreshes whale scores on startup when the stored ones
// are older than interval, then every interval until ctx is done
func runWhaleScoreRefresh(ctx context.Context, proc *processor.Processor, db *storage.DB, interval time.Duration, log *logrus.Logger) {
	last, err := db.WhaleScoresRefreshedAt(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to read last whale score refresh")
	}
	if last.IsZero() || time.Since(last) >= interval {
		refreshWhaleScores(ctx, proc, db, log)
	} else {
		log.WithField("last_refresh", last).Info("Whale scores are fresh, skipping startup refresh")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refreshWhaleScores(ctx, proc, db, log)
		case <-ctx.Done():
			return
		}
	}
}

func refreshWhaleScores(ctx context.Context, proc *processor.Processor, db *storage.DB, log *logrus.Logger) {
	n, err := proc.RefreshWhaleScores(ctx)
	if err != nil {
		log.WithError(err).Error("Error refreshing whale scores")
		return
	}
	if err := db.MarkWhaleScoresRefreshed(ctx); err != nil {
		log.WithError(err).Warn("Failed to record whale score refresh")
	}
	log.WithField("wallets", n).Info("Whale scores refreshed")
}

// runAlerts checks for new qualifying signals immediately and then every
// interval until ctx is done
func runAlerts(ctx context.Context, watcher *alerts.Watcher, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sent, err := watcher.Check(ctx)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Error checking consensus alerts")
		} else if sent > 0 {
			log.WithField("alerts", sent).Info("Consensus alerts sent")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// createAlertSender builds the sender for the configured alert modes. It
// returns nil when alerts are disabled.
func createAlertSender(cfg *config.Config, log *logrus.Logger) alerts.Sender {
	var senders []alerts.Sender

	for _, mode := range cfg.AlertModes() {
		switch mode {
		case "none":
		case "log":
			senders = append(senders, alerts.NewLogSender(log))
		case "discord":
			senders = append(senders, alerts.NewDiscordSender(cfg.DiscordWebURL))
		case "smtp":
			senders = append(senders, alerts.NewSMTPSender(
				cfg.SMTPHost,
				cfg.SMTPPort,
				cfg.SMTPUser,
				cfg.SMTPPassword,
				cfg.SMTPFrom,
				cfg.SMTPTo,
			))
		default:
			log.WithField("mode", mode).Warn("Unknown alert mode, skipping")
		}
	}

	switch len(senders) {
	case 0:
		return nil
	case 1:
		return senders[0]
	default:
		return alerts.NewMultiSender(senders...)
	}
}
