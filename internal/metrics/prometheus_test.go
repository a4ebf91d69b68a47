package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		return total
	}

	t.Fatalf("Metric %s not found", name)
	return 0
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordFrame(true)
	m.RecordFrame(false)
	m.RecordSegmentFlushed("silence", 1400*time.Millisecond)
	m.RecordTranslation("online", 10*time.Millisecond, nil)
	m.RecordTranslation("online", 10*time.Millisecond, errors.New("boom"))
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.SetCacheSize(7)
	m.RecordSessionCreated()

	tests := []struct {
		name     string
		expected float64
	}{
		{"caption_frames_received_total", 2},
		{"caption_silent_frames_total", 1},
		{"caption_segments_flushed_total", 1},
		{"caption_segment_duration_seconds", 1},
		{"caption_translation_requests_total", 2},
		{"caption_translation_failures_total", 1},
		{"caption_translation_cache_hits_total", 1},
		{"caption_translation_cache_misses_total", 2},
		{"caption_translation_cache_size", 7},
		{"caption_active_sessions", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gatherValue(t, reg, tt.name); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordFrame(true)
	m.SetQueueSize(3)
	m.RecordSegmentFlushed("silence", time.Second)
	m.RecordSegmentSkipped()
	m.RecordSessionCreated()
	m.RecordSessionDestroyed(time.Second)
	m.RecordTranscriptEntry("voice")
	m.RecordTranscriptionRequest(100)
	m.RecordTranscriptionSuccess(time.Second, false)
	m.RecordTranscriptionFailure(time.Second)
	m.RecordTranslation("offline", time.Second, nil)
	m.RecordTranslationFallback()
	m.RecordCacheLookup(true)
	m.RecordCacheEviction()
	m.RecordCacheExpiration()
	m.SetCacheSize(1)
	m.RecordHTTPRequest("GET", "/health", "200", 0.1)
	m.RecordHTTPError("GET", "/health", "internal")
	m.WebSocketOpened()
	m.WebSocketClosed()
}
