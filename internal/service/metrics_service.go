package service

import (
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

const outcomeOK = "ok"

// MetricsService encapsulates Prometheus instrumentation for engine operations.
// A nil *MetricsService is valid and records nothing.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	enrollments       *prometheus.GaugeVec
	eventDeliveries   *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
	operationCount uint64
}

// MetricsSnapshot is a point-in-time summary of the counters.
type MetricsSnapshot struct {
	CacheHits     uint64  `json:"cache_hits"`
	CacheMisses   uint64  `json:"cache_misses"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
	Operations    uint64  `json:"operations"`
	Goroutines    int     `json:"goroutines"`
}

// NewMetricsService registers the engine collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "academic_operation_duration_seconds",
		Help:    "Duration of engine operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	operationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "academic_operations_total",
		Help: "Engine operations by outcome",
	}, []string{"operation", "outcome"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "academic_cache_latency_seconds",
		Help:    "Latency for statistics cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "academic_cache_write_seconds",
		Help:    "Latency for statistics cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "academic_cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "academic_cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "academic_cache_misses_total",
		Help: "Total cache misses",
	})

	enrollments := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "academic_course_active_enrollments",
		Help: "Active enrollments per course after the last enrollment change",
	}, []string{"course_id"})

	eventDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "academic_event_deliveries_total",
		Help: "Outbox event delivery attempts by event type and outcome",
	}, []string{"type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "academic_goroutines",
		Help: "Number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(operationDuration, operationTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, enrollments, eventDeliveries, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		operationDuration: operationDuration,
		operationTotal:    operationTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		enrollments:       enrollments,
		eventDeliveries:   eventDeliveries,
	}
}

// Registry exposes the underlying registry so a host process can gather it.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler for hosts that serve metrics.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveOperation records the duration and outcome of an engine operation.
// The outcome label is "ok" or the lowercased error code.
func (m *MetricsService) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	m.operationTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
	atomic.AddUint64(&m.operationCount, 1)
}

// Track starts timing operation. Call the returned func with a pointer to the
// operation's final error, typically via defer.
func (m *MetricsService) Track(operation string) func(err *error) {
	started := time.Now()
	return func(err *error) {
		var final error
		if err != nil {
			final = *err
		}
		m.ObserveOperation(operation, started, final)
	}
}

// SetActiveEnrollments publishes the active enrollment count of a course.
func (m *MetricsService) SetActiveEnrollments(courseID string, count int) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(courseID).Set(float64(count))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEventDelivery counts one delivery attempt for an outbox event.
func (m *MetricsService) RecordEventDelivery(eventType string, delivered bool) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if !delivered {
		outcome = "failed"
	}
	m.eventDeliveries.WithLabelValues(eventType, outcome).Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	return MetricsSnapshot{
		CacheHits:     hits,
		CacheMisses:   misses,
		CacheHitRatio: ratio,
		Operations:    atomic.LoadUint64(&m.operationCount),
		Goroutines:    runtime.NumGoroutine(),
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return outcomeOK
	}
	return strings.ToLower(appErrors.FromError(err).Code)
}
