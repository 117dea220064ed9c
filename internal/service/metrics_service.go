package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the collectors the API reports to.
// A nil *MetricsService is valid and records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbDuration      *prometheus.HistogramVec
	dbErrors        *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	ingestedRecords *prometheus.CounterVec
	exportJobs      *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		dbDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_statement_duration_seconds",
			Help:    "Duration of data store statements by table and operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"table", "operation"}),
		dbErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "db_statement_errors_total",
			Help: "Failed data store statements by table and operation",
		}, []string{"table", "operation"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_cache_lookups_total",
			Help: "Trend report cache lookups by result",
		}, []string{"result"}),
		ingestedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestion_records_total",
			Help: "Ingested student records by mode and action",
		}, []string{"mode", "action"}),
		exportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_export_jobs_total",
			Help: "Finished export jobs by format and outcome",
		}, []string{"format", "outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.dbDuration, m.dbErrors, m.cacheLookups,
		m.ingestedRecords, m.exportJobs, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveStatement matches datastore.Observer so the store can report every statement.
func (m *MetricsService) ObserveStatement(table, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.dbDuration.WithLabelValues(table, operation).Observe(duration.Seconds())
	if err != nil {
		m.dbErrors.WithLabelValues(table, operation).Inc()
	}
}

// RecordCacheLookup counts a trend cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordIngestion counts one processed record.
func (m *MetricsService) RecordIngestion(mode, action string) {
	if m == nil {
		return
	}
	m.ingestedRecords.WithLabelValues(mode, action).Inc()
}

// RecordExport counts a finished export job.
func (m *MetricsService) RecordExport(format string, success bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "finished"
	}
	m.exportJobs.WithLabelValues(format, outcome).Inc()
}
