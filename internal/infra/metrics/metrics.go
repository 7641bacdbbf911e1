package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RecommendBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recommend_build_seconds",
		Help:    "Time to assemble a personalized recommendation set",
		Buckets: prometheus.DefBuckets,
	})

	RecommendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recommend_requests_total",
		Help: "Recommendation requests by list kind",
	}, []string{"kind"})

	AffinityCandidatesScanned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "affinity_candidates_scanned",
		Help:    "Candidate pool size per affinity ranking",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	ActivityEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_events_total",
		Help: "Activity events enqueued by type",
	}, []string{"type"})

	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "List cache lookups by key and outcome",
	}, []string{"key", "outcome"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Duration of store and queue requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Count of store and queue requests",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister registers the collectors.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RecommendBuildSeconds,
		RecommendRequestsTotal,
		AffinityCandidatesScanned,
		ActivityEventsTotal,
		CacheLookupsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer starts an HTTP server with the /metrics endpoint.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest records the duration and status of a store request.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncRecommendRequest counts a recommendation request for a list kind.
func IncRecommendRequest(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	RecommendRequestsTotal.WithLabelValues(kind).Inc()
}

// IncActivityEvent counts an enqueued activity event.
func IncActivityEvent(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	ActivityEventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveCacheLookup records a cache hit or miss for a list key.
func ObserveCacheLookup(key string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CacheLookupsTotal.WithLabelValues(key, outcome).Inc()
}
