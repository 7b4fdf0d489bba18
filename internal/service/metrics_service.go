package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/roster-import-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// preview caching and roster imports.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheWrite      prometheus.Observer
	importRecords   *prometheus.CounterVec
	importDuration  *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_preview_cache_lookups_total",
		Help: "Preview cache lookups by result",
	}, []string{"result"})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roster_preview_cache_write_seconds",
		Help:    "Latency for preview cache writes",
		Buckets: prometheus.DefBuckets,
	})

	importRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_import_records_total",
		Help: "Roster records processed by committed imports, by outcome",
	}, []string{"profile", "outcome"})

	importDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_import_duration_seconds",
		Help:    "Duration of roster import calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"profile", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, cacheWrite, importRecords, importDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
		cacheWrite:      cacheWrite,
		importRecords:   importRecords,
		importDuration:  importDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation counts a preview cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordImportOutcomes adds the per-outcome record counts of a committed import.
func (m *MetricsService) RecordImportOutcomes(profile models.RosterProfile, counts map[models.OutcomeKind]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		if n > 0 {
			m.importRecords.WithLabelValues(string(profile), string(kind)).Add(float64(n))
		}
	}
}

// ObserveImport records how long an import call took and how it ended.
func (m *MetricsService) ObserveImport(profile models.RosterProfile, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.importDuration.WithLabelValues(string(profile), status).Observe(duration.Seconds())
}
