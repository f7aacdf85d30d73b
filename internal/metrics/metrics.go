package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Metrics holds every Prometheus collector MoonBall exposes, covering
// archive build/extract throughput, per-codec compression cost, encryption
// cost, embedder IPC cost, search queries, and (in `moonball serve` mode)
// HTTP request metrics.
type Metrics struct {
	chunkOperationsTotal *prometheus.CounterVec
	chunkBytesTotal      *prometheus.CounterVec

	compressionDuration *prometheus.HistogramVec
	compressionRatio    *prometheus.HistogramVec

	encryptionOperationsTotal *prometheus.CounterVec
	encryptionDuration        *prometheus.HistogramVec
	encryptionErrorsTotal     *prometheus.CounterVec

	embedderOperationsTotal *prometheus.CounterVec
	embedderDuration        prometheus.Histogram
	embedderErrorsTotal     *prometheus.CounterVec

	searchQueriesTotal *prometheus.CounterVec
	searchDuration     prometheus.Histogram

	archiveBuildDuration   prometheus.Histogram
	archiveExtractDuration prometheus.Histogram

	hardwareAccelerationEnabled *prometheus.GaugeVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	goroutines       prometheus.Gauge
	memoryAllocBytes prometheus.Gauge
	memorySysBytes   prometheus.Gauge
}

// NewMetrics registers every collector against the default Prometheus
// registry.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry registers against a caller-supplied registry,
// avoiding collector-already-registered panics across repeated test runs.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg)
}

func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		chunkOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_chunk_operations_total",
				Help: "Total number of chunks processed, by pipeline stage and algorithm",
			},
			[]string{"stage", "algorithm"},
		),
		chunkBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_chunk_bytes_total",
				Help: "Total bytes processed per chunk pipeline stage",
			},
			[]string{"stage"},
		),
		compressionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moonball_compression_duration_seconds",
				Help:    "Per-chunk compression duration in seconds, by algorithm",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"algorithm"},
		),
		compressionRatio: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moonball_compression_ratio",
				Help:    "compressedSize/originalSize per chunk, by algorithm",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"algorithm"},
		),
		encryptionOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_encryption_operations_total",
				Help: "Total number of encrypt/decrypt operations",
			},
			[]string{"operation"},
		),
		encryptionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moonball_encryption_duration_seconds",
				Help:    "Encrypt/decrypt operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"},
		),
		encryptionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_encryption_errors_total",
				Help: "Total number of encrypt/decrypt failures (wrong passphrase, tampered ciphertext)",
			},
			[]string{"operation"},
		),
		embedderOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_embedder_operations_total",
				Help: "Total number of external embedder invocations",
			},
			[]string{"result"},
		),
		embedderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moonball_embedder_duration_seconds",
				Help:    "External embedder subprocess duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		embedderErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_embedder_errors_total",
				Help: "Total number of embedder failures, by kind (unavailable, failed, malformed, timeout)",
			},
			[]string{"kind"},
		),
		searchQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_search_queries_total",
				Help: "Total number of semantic search queries",
			},
			[]string{"result"},
		),
		searchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moonball_search_duration_seconds",
				Help:    "Semantic search query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		archiveBuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moonball_archive_build_duration_seconds",
				Help:    "Whole-archive build duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		archiveExtractDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moonball_archive_extract_duration_seconds",
				Help:    "Whole-archive extract duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		hardwareAccelerationEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "moonball_hardware_acceleration_enabled",
				Help: "Hardware acceleration status (1=enabled, 0=disabled), by instruction set",
			},
			[]string{"type"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonball_http_requests_total",
				Help: "Total number of HTTP requests handled by moonball serve",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moonball_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds, moonball serve only",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moonball_goroutines",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moonball_memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moonball_memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordChunk records one chunk passing through stage (e.g. "compress",
// "encrypt", "embed") using the given algorithm label (empty when not
// applicable, e.g. the embed stage).
func (m *Metrics) RecordChunk(stage, algorithm string, bytes int64) {
	m.chunkOperationsTotal.WithLabelValues(stage, algorithm).Inc()
	m.chunkBytesTotal.WithLabelValues(stage).Add(float64(bytes))
}

// RecordCompression records one chunk's compression duration and ratio.
func (m *Metrics) RecordCompression(algorithm string, duration time.Duration, originalSize, compressedSize int64) {
	m.compressionDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	if originalSize > 0 {
		m.compressionRatio.WithLabelValues(algorithm).Observe(float64(compressedSize) / float64(originalSize))
	}
}

// RecordEncryption records one encrypt or decrypt operation.
func (m *Metrics) RecordEncryption(operation string, duration time.Duration) {
	m.encryptionOperationsTotal.WithLabelValues(operation).Inc()
	m.encryptionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEncryptionError records an encrypt or decrypt failure.
func (m *Metrics) RecordEncryptionError(operation string) {
	m.encryptionErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordEmbedderCall records one embedder subprocess invocation.
func (m *Metrics) RecordEmbedderCall(duration time.Duration, err error) {
	m.embedderDuration.Observe(duration.Seconds())
	if err == nil {
		m.embedderOperationsTotal.WithLabelValues("success").Inc()
		return
	}
	m.embedderOperationsTotal.WithLabelValues("failure").Inc()
}

// RecordEmbedderError records an embedder failure by kind ("unavailable",
// "failed", "malformed", "timeout").
func (m *Metrics) RecordEmbedderError(kind string) {
	m.embedderErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordSearch records one semantic search query.
func (m *Metrics) RecordSearch(duration time.Duration, err error) {
	m.searchDuration.Observe(duration.Seconds())
	if err == nil {
		m.searchQueriesTotal.WithLabelValues("success").Inc()
		return
	}
	m.searchQueriesTotal.WithLabelValues("error").Inc()
}

// RecordArchiveBuild records a completed build's total duration.
func (m *Metrics) RecordArchiveBuild(duration time.Duration) {
	m.archiveBuildDuration.Observe(duration.Seconds())
}

// RecordArchiveExtract records a completed extraction's total duration.
func (m *Metrics) RecordArchiveExtract(duration time.Duration) {
	m.archiveExtractDuration.Observe(duration.Seconds())
}

// SetHardwareAccelerationStatus sets the hardware acceleration status metric.
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAccelerationEnabled.WithLabelValues(accelType).Set(val)
}

// RecordHTTPRequest records an HTTP request metric for moonball serve.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": http.StatusText(status)}
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates
// system metrics, for moonball serve's long-running process.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
