package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ranking pipeline metrics
	RankingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_ranking_runs_total",
			Help: "Total number of ranking runs",
		},
		[]string{"status"}, // success, error
	)

	RankingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whaleconsensus_ranking_duration_seconds",
			Help:    "Duration of a full ranking run including upstream fetches",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SignalsRanked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whaleconsensus_signals_ranked",
			Help: "Number of signals returned by the last ranking run",
		},
	)

	WalletFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_wallet_fetches_total",
			Help: "Per-wallet position fetches",
		},
		[]string{"status"}, // success, error
	)

	// Score distributions
	AlphaScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whaleconsensus_alpha_scores",
			Help:    "Distribution of alpha scores (0-100)",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	WhaleScores = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whaleconsensus_whale_scores",
			Help:    "Distribution of whale quality totals (0-100)",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"tier"},
	)

	WhaleScoreLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_whale_score_lookups_total",
			Help: "Whale score lookups by source",
		},
		[]string{"source"}, // cache, computed, fallback
	)

	RecommendedSizes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_sizing_decisions_total",
			Help: "Position sizing decisions by strategy",
		},
		[]string{"strategy"}, // yield, speculation, invalid
	)

	// API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_api_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"api", "endpoint", "status"}, // data/gamma/clob/rpc, /positions, success/error
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whaleconsensus_api_request_duration_seconds",
			Help:    "Duration of upstream API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "endpoint"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_http_requests_total",
			Help: "Requests served by the HTTP API",
		},
		[]string{"route", "code"},
	)

	// Database metrics
	DatabaseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whaleconsensus_database_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whaleconsensus_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordRanking records a finished ranking run
func RecordRanking(duration time.Duration, signals int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RankingRuns.WithLabelValues(status).Inc()
	RankingDuration.Observe(duration.Seconds())
	if err == nil {
		SignalsRanked.Set(float64(signals))
	}
}

// RecordWalletFetch records the outcome of one wallet's fetch
func RecordWalletFetch(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	WalletFetches.WithLabelValues(status).Inc()
}

// RecordWhaleScore records a whale score and where it came from
func RecordWhaleScore(source, tier string, total int) {
	WhaleScoreLookups.WithLabelValues(source).Inc()
	WhaleScores.WithLabelValues(tier).Observe(float64(total))
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(api, endpoint string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	APIRequests.WithLabelValues(api, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueries.WithLabelValues(operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
