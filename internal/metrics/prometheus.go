package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the caption service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ingestion metrics
	FramesReceived prometheus.Counter
	SilentFrames   prometheus.Counter
	QueueSize      prometheus.Gauge

	// Segmentation metrics
	SegmentsFlushed  *prometheus.CounterVec
	SegmentsSkipped  prometheus.Counter
	SegmentDuration  prometheus.Histogram
	SegmentSizeBytes prometheus.Histogram

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram
	TranscriptEntries *prometheus.CounterVec

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionEmpty     prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Translation metrics
	TranslationRequests  *prometheus.CounterVec
	TranslationFailures  *prometheus.CounterVec
	TranslationFallbacks prometheus.Counter
	TranslationDuration  *prometheus.HistogramVec

	// Cache metrics
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   prometheus.Counter
	CacheExpirations prometheus.Counter
	CacheSize        prometheus.Gauge

	// HTTP API metrics
	HTTPRequests         *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPErrors           *prometheus.CounterVec
	WebSocketConnections prometheus.Gauge
}

// NewMetrics creates all metrics on the default registry
func NewMetrics() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// New creates and registers all metrics with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_frames_received_total",
			Help: "Total number of audio frames ingested",
		}),
		SilentFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_silent_frames_total",
			Help: "Total number of audio frames classified as silent",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caption_work_queue_size",
			Help: "Current number of segments and typed texts waiting for the session worker",
		}),

		// Segmentation metrics
		SegmentsFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_segments_flushed_total",
			Help: "Total number of segments flushed, by reason",
		}, []string{"reason"}),
		SegmentsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_segments_skipped_total",
			Help: "Total number of all-silent segments not sent for transcription",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_segment_duration_seconds",
			Help:    "Duration of flushed segments",
			Buckets: prometheus.LinearBuckets(0.25, 0.25, 12), // 250ms to 3s
		}),
		SegmentSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_segment_size_bytes",
			Help:    "Size of encoded PCM16 segments in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to ~512KB
		}),

		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caption_active_sessions",
			Help: "Current number of caption sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_session_duration_seconds",
			Help:    "Lifetime of caption sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		TranscriptEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_transcript_entries_total",
			Help: "Total number of transcript entries appended, by origin",
		}, []string{"origin"}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_transcription_empty_total",
			Help: "Total number of transcriptions that returned blank text",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		// Translation metrics
		TranslationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_translation_requests_total",
			Help: "Total number of translation requests, by backend",
		}, []string{"backend"}),
		TranslationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_translation_failures_total",
			Help: "Total number of failed translation requests, by backend",
		}, []string{"backend"}),
		TranslationFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_translation_fallbacks_total",
			Help: "Total number of online failures retried on the offline backend",
		}),
		TranslationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caption_translation_duration_seconds",
			Help:    "Duration of translation backend calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}, []string{"backend"}),

		// Cache metrics
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_translation_cache_hits_total",
			Help: "Total number of translation cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_translation_cache_misses_total",
			Help: "Total number of translation cache misses",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_translation_cache_evictions_total",
			Help: "Total number of entries evicted at capacity",
		}),
		CacheExpirations: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_translation_cache_expirations_total",
			Help: "Total number of entries removed after their TTL",
		}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caption_translation_cache_size",
			Help: "Current number of entries in the translation cache",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caption_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
		WebSocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caption_websocket_connections",
			Help: "Current number of open websocket connections",
		}),
	}
}

// RecordFrame counts an ingested frame
func (m *Metrics) RecordFrame(silent bool) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	if silent {
		m.SilentFrames.Inc()
	}
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordSegmentFlushed records a flushed segment
func (m *Metrics) RecordSegmentFlushed(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SegmentsFlushed.WithLabelValues(reason).Inc()
	m.SegmentDuration.Observe(duration.Seconds())
}

// RecordSegmentSkipped counts a segment dropped without a backend call
func (m *Metrics) RecordSegmentSkipped() {
	if m == nil {
		return
	}
	m.SegmentsSkipped.Inc()
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionDestroyed increments the sessions destroyed counter and records lifetime
func (m *Metrics) RecordSessionDestroyed(lifetime time.Duration) {
	if m == nil {
		return
	}
	m.SessionsDestroyed.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(lifetime.Seconds())
}

// RecordTranscriptEntry counts an appended transcript entry
func (m *Metrics) RecordTranscriptEntry(origin string) {
	if m == nil {
		return
	}
	m.TranscriptEntries.WithLabelValues(origin).Inc()
}

// RecordTranscriptionRequest records a segment sent for transcription
func (m *Metrics) RecordTranscriptionRequest(sizeBytes int) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
	m.SegmentSizeBytes.Observe(float64(sizeBytes))
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(duration time.Duration, empty bool) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	if empty {
		m.TranscriptionEmpty.Inc()
	}
	m.TranscriptionDuration.Observe(duration.Seconds())
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(duration time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(duration.Seconds())
}

// RecordTranslation records one backend call
func (m *Metrics) RecordTranslation(backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.TranslationRequests.WithLabelValues(backend).Inc()
	m.TranslationDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		m.TranslationFailures.WithLabelValues(backend).Inc()
	}
}

// RecordTranslationFallback counts an online failure handed to the offline backend
func (m *Metrics) RecordTranslationFallback() {
	if m == nil {
		return
	}
	m.TranslationFallbacks.Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordCacheEviction counts an entry evicted at capacity
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

// RecordCacheExpiration counts an entry removed after its TTL
func (m *Metrics) RecordCacheExpiration() {
	if m == nil {
		return
	}
	m.CacheExpirations.Inc()
}

// SetCacheSize sets the current cache size
func (m *Metrics) SetCacheSize(size int) {
	if m == nil {
		return
	}
	m.CacheSize.Set(float64(size))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// WebSocketOpened increments the open connection gauge
func (m *Metrics) WebSocketOpened() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Inc()
}

// WebSocketClosed decrements the open connection gauge
func (m *Metrics) WebSocketClosed() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Dec()
}
