package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/metrics"
	"github.com/liamashdown/whaleconsensus/internal/processor"
	"github.com/liamashdown/whaleconsensus/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Engine runs the consensus pipelines
type Engine interface {
	RankSignals(ctx context.Context, req processor.Request) ([]processor.RankedSignal, error)
	Portfolio(ctx context.Context, wallet string) (*processor.Portfolio, error)
	RefreshWhaleScores(ctx context.Context) (int, error)
}

// Store is the persistence the API reads and writes
type Store interface {
	Ping(ctx context.Context) error
	ListTrackedWallets(ctx context.Context) ([]storage.TrackedWallet, error)
	AddWallet(ctx context.Context, address, name string) error
	RemoveWallet(ctx context.Context, address string) error
	SetWalletName(ctx context.Context, address, name string) error
	GetSettings(ctx context.Context, userID string, defaults config.UserSettings) (config.UserSettings, error)
	SaveSettings(ctx context.Context, userID string, s config.UserSettings) error
	ListWhaleScores(ctx context.Context) ([]storage.ScoredWallet, error)
	MarkWhaleScoresRefreshed(ctx context.Context) error
}

// BalanceReader reads on-chain USDC balances
type BalanceReader interface {
	USDCBalance(ctx context.Context, wallet string) (float64, error)
}

// Config holds server configuration
type Config struct {
	Port           int
	AllowedOrigins []string
	UserID         string
	Defaults       config.UserSettings
	Engine         Engine
	Store          Store
	Balances       BalanceReader
	Log            *logrus.Logger
}

// Server serves the consensus HTTP API
type Server struct {
	router   *chi.Mux
	server   *http.Server
	engine   Engine
	store    Store
	balances BalanceReader
	userID   string
	defaults config.UserSettings
	port     int
	log      *logrus.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.UserID == "" {
		cfg.UserID = storage.DefaultUserID
	}

	s := &Server{
		router:   chi.NewRouter(),
		engine:   cfg.Engine,
		store:    cfg.Store,
		balances: cfg.Balances,
		userID:   cfg.UserID,
		defaults: cfg.Defaults,
		port:     cfg.Port,
		log:      cfg.Log,
	}

	s.setupMiddleware(cfg.AllowedOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	// Ranking fans out to every tracked wallet; allow for slow upstreams
	s.router.Use(middleware.Timeout(75 * time.Second))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/signals", s.handleSignals)

		r.Route("/user", func(r chi.Router) {
			r.Get("/portfolio", s.handlePortfolio)
			r.Get("/balance", s.handleBalance)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/wallets", s.handleListWallets)
			r.Post("/wallets", s.handleConfigureWallet)
			r.Put("/wallet-name", s.handleSetWalletName)
		})

		r.Get("/whale-scores", s.handleWhaleScores)
		r.Post("/whale-scores/refresh", s.handleRefreshWhaleScores)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.WithField("port", s.port).Info("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests and counts them per route pattern
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
