// Package metrics provides Prometheus metrics for the reroute API server.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	// Engine metrics
	TopologyCacheLookups *prometheus.CounterVec
	UpstreamFailures     *prometheus.CounterVec
	ArrivalItemsDropped  *prometheus.CounterVec
	ItineraryOutcomes    *prometheus.CounterVec

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the DB stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the DB stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reroute_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reroute_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reroute_db_connections_open",
		Help: "Number of open database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reroute_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})

	dbConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reroute_db_connections_idle",
		Help: "Number of idle database connections",
	})

	dbWaitSecondsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reroute_db_wait_seconds_total",
		Help: "Total time blocked waiting for a database connection",
	})

	topologyCacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reroute_topology_cache_lookups_total",
			Help: "Route topology cache lookups by result",
		},
		[]string{"result"},
	)

	upstreamFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reroute_upstream_failures_total",
			Help: "Upstream fetches that were converted to no data",
		},
		[]string{"source"},
	)

	arrivalItemsDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reroute_arrival_items_dropped_total",
			Help: "Arrival feed items discarded during normalization",
		},
		[]string{"reason"},
	)

	itineraryOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reroute_itinerary_outcomes_total",
			Help: "Computed itineraries by outcome",
		},
		[]string{"kind"},
	)

	// Register all metrics with the custom registry
	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		dbConnectionsOpen,
		dbConnectionsInUse,
		dbConnectionsIdle,
		dbWaitSecondsTotal,
		topologyCacheLookups,
		upstreamFailures,
		arrivalItemsDropped,
		itineraryOutcomes,
	)

	return &Metrics{
		Registry:            registry,
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		DBConnectionsOpen:   dbConnectionsOpen,
		DBConnectionsInUse:  dbConnectionsInUse,
		DBConnectionsIdle:   dbConnectionsIdle,
		DBWaitSecondsTotal:  dbWaitSecondsTotal,

		TopologyCacheLookups: topologyCacheLookups,
		UpstreamFailures:     upstreamFailures,
		ArrivalItemsDropped:  arrivalItemsDropped,
		ItineraryOutcomes:    itineraryOutcomes,

		logger: logger,
	}
}

// StartDBStatsCollector starts a goroutine that periodically collects database
// connection pool statistics and updates the corresponding metrics.
// The interval specifies how often to collect stats.
// This method is idempotent - calling it multiple times has no effect after the first call.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var lastWaitDuration time.Duration

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))

				// Add the delta of wait duration since last check
				waitDelta := stats.WaitDuration - lastWaitDuration
				if waitDelta > 0 {
					m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
				}
				lastWaitDuration = stats.WaitDuration

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Itinerary outcome kinds.
const (
	OutcomeBus      = "bus"
	OutcomeWalkOnly = "walk_only"
	OutcomeNoStop   = "no_stop"
)

// The recorders below are safe to call on a nil *Metrics so engine
// components can run without a registry in tests.

func (m *Metrics) RecordTopologyLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TopologyCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordUpstreamFailure(source string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordArrivalsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArrivalItemsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) RecordItineraryOutcome(kind string) {
	if m == nil {
		return
	}
	m.ItineraryOutcomes.WithLabelValues(kind).Inc()
}
