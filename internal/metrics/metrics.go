package metrics

import (
	"runtime"
	"sync"
	"time"

	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Recognition metrics
	RecognizeRequests *Counter
	RecognizeLatency  *Histogram
	RecognizeErrors   *CounterVec // labels: code
	RecognizedIntents *CounterVec // labels: intent
	EntitiesFound     *Histogram

	// Model metrics
	ModelsLoaded   *Gauge
	ModelReloads   *Counter
	ModelLoadTime  *Histogram
	ModelLoadFails *Counter

	// Conversion metrics
	Conversions       *CounterVec // labels: status
	ConversionLatency *Histogram

	// Cache metrics
	CacheHits   *CounterVec // labels: type
	CacheMisses *CounterVec // labels: type
	CacheSize   *GaugeVec   // labels: type

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic
	BusHandlerErrors   *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Gauge // in seconds

	startTime time.Time
	stopOnce  sync.Once
	stop      chan struct{}
}

// New creates a metrics instance and starts the system metrics collector.
// Call Close to stop it.
func New() *Metrics {
	m := &Metrics{
		RecognizeRequests: NewCounter(
			"luserve_recognize_requests_total",
			"Total number of recognition requests",
			nil,
		),
		RecognizeLatency: NewHistogram(
			"luserve_recognize_latency_ms",
			"Recognition latency in milliseconds",
			[]float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		),
		RecognizeErrors: NewCounterVec(
			"luserve_recognize_errors_total",
			"Total number of failed recognitions",
			[]string{"code"},
		),
		RecognizedIntents: NewCounterVec(
			"luserve_recognized_intents_total",
			"Recognitions by top scoring intent",
			[]string{"intent"},
		),
		EntitiesFound: NewHistogram(
			"luserve_entities_per_query",
			"Number of entities recognized per query",
			[]float64{0, 1, 2, 3, 5, 8, 13},
		),

		ModelsLoaded: NewGauge(
			"luserve_models_loaded",
			"Number of models currently loaded",
			nil,
		),
		ModelReloads: NewCounter(
			"luserve_model_loads_total",
			"Total number of successful model loads",
			nil,
		),
		ModelLoadTime: NewHistogram(
			"luserve_model_load_ms",
			"Model load time in milliseconds",
			[]float64{1, 10, 50, 100, 500, 1000, 5000},
		),
		ModelLoadFails: NewCounter(
			"luserve_model_load_failures_total",
			"Total number of failed model loads",
			nil,
		),

		Conversions: NewCounterVec(
			"luserve_conversions_total",
			"Total number of .lu conversions",
			[]string{"status"},
		),
		ConversionLatency: NewHistogram(
			"luserve_conversion_latency_ms",
			"Conversion latency in milliseconds",
			[]float64{100, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		),

		CacheHits: NewCounterVec(
			"luserve_cache_hits_total",
			"Total number of result cache hits",
			[]string{"type"},
		),
		CacheMisses: NewCounterVec(
			"luserve_cache_misses_total",
			"Total number of result cache misses",
			[]string{"type"},
		),
		CacheSize: NewGaugeVec(
			"luserve_cache_size",
			"Current result cache size",
			[]string{"type"},
		),

		BusEventsPublished: NewCounterVec(
			"luserve_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"luserve_bus_event_latency_seconds",
			"Event bus publish latency in seconds",
			[]string{"topic"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		),
		BusErrors: NewCounterVec(
			"luserve_bus_errors_total",
			"Total number of event bus errors",
			[]string{"topic"},
		),
		BusHandlerErrors: NewCounterVec(
			"luserve_bus_handler_errors_total",
			"Total number of event handlers that returned an error",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"luserve_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"luserve_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		),
		HTTPRequestsInFlight: NewGauge(
			"luserve_http_requests_in_flight",
			"Number of HTTP requests currently being processed",
			nil,
		),

		GoroutineCount: NewGauge(
			"luserve_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"luserve_memory_bytes",
			"Heap memory in use in bytes",
			nil,
		),
		Uptime: NewGauge(
			"luserve_uptime_seconds",
			"Process uptime in seconds",
			nil,
		),

		startTime: time.Now(),
		stop:      make(chan struct{}),
	}

	m.collectSystemMetrics()
	go m.runCollector(15 * time.Second)

	return m
}

func (m *Metrics) runCollector(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.collectSystemMetrics()
		}
	}
}

func (m *Metrics) collectSystemMetrics() {
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsage.Set(float64(memStats.Alloc))

	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordRecognize records one recognition.
func (m *Metrics) RecordRecognize(intent string, entityCount int, latencyMs float64) {
	m.RecognizeRequests.Inc()
	m.RecognizeLatency.Observe(latencyMs)
	m.EntitiesFound.Observe(float64(entityCount))
	if intent != "" {
		m.RecognizedIntents.WithLabels(intent).Inc()
	}
}

// RecordRecognizeError records a failed recognition by error code.
func (m *Metrics) RecordRecognizeError(code string) {
	if code == "" {
		code = apperrors.CodeInternal
	}
	m.RecognizeErrors.WithLabels(code).Inc()
}

// RecordModelLoad records a model load attempt.
func (m *Metrics) RecordModelLoad(count int, latencyMs float64, err error) {
	if err != nil {
		m.ModelLoadFails.Inc()
		return
	}
	m.ModelReloads.Inc()
	m.ModelsLoaded.Set(float64(count))
	m.ModelLoadTime.Observe(latencyMs)
}

// RecordConversion records a .lu conversion.
func (m *Metrics) RecordConversion(latencyMs float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Conversions.WithLabels(status).Inc()
	m.ConversionLatency.Observe(latencyMs)
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(latency.Seconds())

	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordBusHandlerError counts a failed subscriber.
func (m *Metrics) RecordBusHandlerError(topic string) {
	m.BusHandlerErrors.WithLabels(topic).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabels(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabels(cacheType).Inc()
}

// UpdateCacheSize updates the cache size.
func (m *Metrics) UpdateCacheSize(cacheType string, size int) {
	m.CacheSize.WithLabels(cacheType).Set(float64(size))
}

// RecordHTTP records HTTP request metrics. Called by HTTPMiddleware.
func (m *Metrics) RecordHTTP(method, path string, status int, durationSeconds float64) {
	normalizedPath := normalizePath(path)
	m.HTTPRequests.WithLabels(method, normalizedPath, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, normalizedPath).Observe(durationSeconds)
}

// Close stops the background collector.
func (m *Metrics) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
