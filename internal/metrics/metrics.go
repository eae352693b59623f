package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	aggregateDuration prometheus.Histogram
	aggregateRows     prometheus.Histogram
	aggregateErrors   *prometheus.CounterVec
	fakeDataRuns      *prometheus.CounterVec
	ingestMessages    *prometheus.CounterVec
	sessions          prometheus.Gauge
	sessionsReaped    prometheus.Counter
	busPublishes      *prometheus.CounterVec
}

// CacheSource reports the session cache counters
type CacheSource interface {
	HitRatio() float64
	Hits() uint64
	Misses() uint64
	Evictions() uint64
	Rejections() uint64
}

// New creates and registers the collectors on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacons_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beacons_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		aggregateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacons_aggregate_duration_seconds",
			Help:    "Histogram of event aggregation durations.",
			Buckets: prometheus.DefBuckets,
		}),
		aggregateRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacons_aggregate_rows",
			Help:    "Number of ping rows read per aggregation.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
		aggregateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacons_aggregate_errors_total",
			Help: "Failed aggregations by reason.",
		}, []string{"reason"}),
		fakeDataRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacons_fake_data_runs_total",
			Help: "Fake data generator runs by outcome.",
		}, []string{"outcome"}),
		ingestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacons_ingest_messages_total",
			Help: "Ingested ping messages by outcome.",
		}, []string{"outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beacons_sessions_open",
			Help: "Number of open dashboard sessions.",
		}),
		sessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacons_sessions_reaped_total",
			Help: "Sessions closed after being idle or to stay under the session cap.",
		}),
		busPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacons_bus_publishes_total",
			Help: "Coordination bus publishes by topic and outcome.",
		}, []string{"topic", "outcome"}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.aggregateDuration,
		m.aggregateRows,
		m.aggregateErrors,
		m.fakeDataRuns,
		m.ingestMessages,
		m.sessions,
		m.sessionsReaped,
		m.busPublishes,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Aggregated records one successful aggregation
func (m *Metrics) Aggregated(duration time.Duration, rows int) {
	if m == nil {
		return
	}
	m.aggregateDuration.Observe(duration.Seconds())
	m.aggregateRows.Observe(float64(rows))
}

// AggregateFailed records a failed aggregation
func (m *Metrics) AggregateFailed(reason string) {
	if m == nil {
		return
	}
	m.aggregateErrors.WithLabelValues(reason).Inc()
}

// FakeDataRun records a generator run outcome
func (m *Metrics) FakeDataRun(outcome string) {
	if m == nil {
		return
	}
	m.fakeDataRuns.WithLabelValues(outcome).Inc()
}

// Ingested records one ingest message outcome
func (m *Metrics) Ingested(outcome string) {
	if m == nil {
		return
	}
	m.ingestMessages.WithLabelValues(outcome).Inc()
}

// SetSessions sets the open session gauge
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// SessionReaped records a session closed by the reaper
func (m *Metrics) SessionReaped() {
	if m == nil {
		return
	}
	m.sessionsReaped.Inc()
}

// Published records one bus publish
func (m *Metrics) Published(topic string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.busPublishes.WithLabelValues(topic, outcome).Inc()
}

// WatchCache exports the session cache counters. Call it once per cache.
func (m *Metrics) WatchCache(c CacheSource) {
	if m == nil || c == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "beacons_session_cache_hit_ratio",
			Help: "Session cache hit ratio since start.",
		}, c.HitRatio),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "beacons_session_cache_hits_total",
			Help: "Session cache reads that found their entry.",
		}, func() float64 { return float64(c.Hits()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "beacons_session_cache_misses_total",
			Help: "Session cache reads that found nothing.",
		}, func() float64 { return float64(c.Misses()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "beacons_session_cache_evictions_total",
			Help: "Session cache entries evicted by cost.",
		}, func() float64 { return float64(c.Evictions()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "beacons_session_cache_rejections_total",
			Help: "Session cache writes refused by the admission policy.",
		}, func() float64 { return float64(c.Rejections()) }),
	)
}
