package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/factory-ops-api/internal/models"
)

const metricsNamespace = "factoryops"

// MetricsService owns the process Prometheus registry and keeps running
// totals for the operator snapshot. A nil *MetricsService records nothing.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration  *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	txAborts      *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cacheLatency  *prometheus.HistogramVec

	totals struct {
		requests        atomic.Uint64
		requestNanos    atomic.Uint64
		storeOps        atomic.Uint64
		storeNanos      atomic.Uint64
		txAborts        atomic.Uint64
		rollbacks       atomic.Uint64
		delivered       atomic.Uint64
		deliveryFailure atomic.Uint64
		cacheHits       atomic.Uint64
		cacheMisses     atomic.Uint64
	}
}

// NewMetricsService registers the API, store, workspace, notification and
// cache collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of API requests by route template.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route template and status.",
	}, []string{"method", "route", "status"})
	m.storeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Latency of document store operations.",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})
	m.txAborts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "store",
		Name:      "transaction_aborts_total",
		Help:      "Store transactions that exhausted their retry budget.",
	}, []string{"operation"})
	m.rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "workspace",
		Name:      "rollbacks_total",
		Help:      "Optimistic record changes reverted after a failed write.",
	}, []string{"kind"})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "notifications",
		Name:      "writes_total",
		Help:      "Notification documents by type and outcome.",
	}, []string{"type", "outcome"})
	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Master data cache lookups by result.",
	}, []string{"result"})
	m.cacheLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency of cache reads and writes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines",
		Help:      "Goroutines currently running.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(m.httpDuration, m.httpRequests, m.storeDuration, m.txAborts, m.rollbacks, m.notifications, m.cacheLookups, m.cacheLatency, goroutines)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one API request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.totals.requests.Add(1)
	m.totals.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// ObserveStoreOperation records the latency of one document store call.
func (m *MetricsService) ObserveStoreOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.totals.storeOps.Add(1)
	m.totals.storeNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordTransactionAbort counts a transaction that gave up after retries.
func (m *MetricsService) RecordTransactionAbort(operation string) {
	if m == nil {
		return
	}
	m.txAborts.WithLabelValues(operation).Inc()
	m.totals.txAborts.Add(1)
}

// RecordRollback counts an optimistic change that was reverted.
func (m *MetricsService) RecordRollback(kind string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(kind).Inc()
	m.totals.rollbacks.Add(1)
}

// RecordNotification counts a notification write outcome.
func (m *MetricsService) RecordNotification(notificationType string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if delivered {
		outcome = "delivered"
		m.totals.delivered.Add(1)
	} else {
		m.totals.deliveryFailure.Add(1)
	}
	m.notifications.WithLabelValues(notificationType, outcome).Inc()
}

// RecordCacheOperation records a cache read and whether it hit.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.totals.cacheHits.Add(1)
	} else {
		m.totals.cacheMisses.Add(1)
	}
	m.cacheLookups.WithLabelValues(result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

// ObserveCacheWrite records a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// Snapshot summarises the running totals for the system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits, misses := m.totals.cacheHits.Load(), m.totals.cacheMisses.Load()
	requests, storeOps := m.totals.requests.Load(), m.totals.storeOps.Load()

	return models.SystemMetrics{
		CacheHitRatio:            ratio(float64(hits), float64(hits+misses)),
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: ratio(float64(m.totals.requestNanos.Load()), float64(requests)) / float64(time.Millisecond),
		StoreOperations:          storeOps,
		AverageStoreDurationMs:   ratio(float64(m.totals.storeNanos.Load()), float64(storeOps)) / float64(time.Millisecond),
		TransactionAborts:        m.totals.txAborts.Load(),
		Rollbacks:                m.totals.rollbacks.Load(),
		NotificationsDelivered:   m.totals.delivered.Load(),
		NotificationFailures:     m.totals.deliveryFailure.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func ratio(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}
