package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultThreshold is tuned so that steady room noise stays above it while
// pauses between words fall below.
const DefaultThreshold = 0.005

// RMS returns sqrt(mean(sample^2)) over samples. An empty slice has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy / float64(len(samples)))
}

// SilenceDetector classifies frames as silent using an RMS threshold
type SilenceDetector struct {
	threshold float64

	// Statistics
	totalFrames  uint64
	silentFrames uint64
	lastRMS      float64
	peakRMS      float64
	lastUpdate   time.Time

	mu sync.RWMutex
}

// DetectorStats represents silence detector statistics
type DetectorStats struct {
	Threshold         float64   `json:"threshold"`
	TotalFrames       uint64    `json:"total_frames"`
	SilentFrames      uint64    `json:"silent_frames"`
	SilencePercentage float64   `json:"silence_percentage"`
	LastRMS           float64   `json:"last_rms"`
	PeakRMS           float64   `json:"peak_rms"`
	LastProcessed     time.Time `json:"last_processed"`
}

// NewSilenceDetector creates a detector with the given RMS threshold
func NewSilenceDetector(threshold float64) (*SilenceDetector, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %f", threshold)
	}

	return &SilenceDetector{threshold: threshold}, nil
}

// IsSilent reports whether the frame energy is below the threshold.
// The classification itself is pure; only the statistics are updated.
func (d *SilenceDetector) IsSilent(samples []float32) bool {
	level := RMS(samples)

	d.mu.Lock()
	defer d.mu.Unlock()

	silent := level < d.threshold

	d.totalFrames++
	if silent {
		d.silentFrames++
	}
	d.lastRMS = level
	if level > d.peakRMS {
		d.peakRMS = level
	}
	d.lastUpdate = time.Now()

	return silent
}

// Threshold returns the current RMS threshold
func (d *SilenceDetector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// UpdateThreshold changes the RMS threshold used for subsequent frames
func (d *SilenceDetector) UpdateThreshold(threshold float64) error {
	if threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %f", threshold)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.threshold = threshold
	return nil
}

// Stats returns current detector statistics
func (d *SilenceDetector) Stats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	silencePercentage := float64(0)
	if d.totalFrames > 0 {
		silencePercentage = float64(d.silentFrames) / float64(d.totalFrames) * 100
	}

	return DetectorStats{
		Threshold:         d.threshold,
		TotalFrames:       d.totalFrames,
		SilentFrames:      d.silentFrames,
		SilencePercentage: silencePercentage,
		LastRMS:           d.lastRMS,
		PeakRMS:           d.peakRMS,
		LastProcessed:     d.lastUpdate,
	}
}

// Reset clears the statistics; the threshold is kept
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalFrames = 0
	d.silentFrames = 0
	d.lastRMS = 0
	d.peakRMS = 0
	d.lastUpdate = time.Time{}
}
