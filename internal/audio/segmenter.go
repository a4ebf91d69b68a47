package audio

import (
	"fmt"
	"sync"
	"time"
)

// SegmenterState represents the current state of the segmentation process
type SegmenterState int

const (
	StateAccumulating SegmenterState = iota
	StateFlushing
)

func (s SegmenterState) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// SilenceClassifier decides whether a frame counts as silence
type SilenceClassifier interface {
	IsSilent(samples []float32) bool
}

// SegmenterConfig contains configuration for the segmentation process
type SegmenterConfig struct {
	SampleRate    int
	SilenceFrames int           // Consecutive silent frames that close an utterance
	MaxDuration   time.Duration // Hard cap on utterance length while speech continues
}

// Validate checks the segmenter configuration
func (c SegmenterConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.SilenceFrames < 1 {
		return fmt.Errorf("silence frames must be at least 1, got %d", c.SilenceFrames)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be positive, got %v", c.MaxDuration)
	}
	return nil
}

// Segmenter accumulates frames into an active segment and decides when to flush it.
// A flush moves the active frames into a new Segment value and clears the active
// buffer in the same step, so the caller can hand the segment to asynchronous
// processing while ingestion keeps appending to a fresh buffer.
type Segmenter struct {
	config     SegmenterConfig
	classifier SilenceClassifier
	maxSamples int
	state      SegmenterState

	// Active segment
	active        []Frame
	activeSamples int
	silentRun     int
	speechFrames  int

	// Statistics
	segmentsFlushed uint64
	framesSeen      uint64
	totalDuration   time.Duration
	flushReasons    map[FlushReason]uint64

	mu sync.RWMutex
}

// SegmenterStats represents segmenter statistics
type SegmenterStats struct {
	State           string                 `json:"state"`
	FramesSeen      uint64                 `json:"frames_seen"`
	SegmentsFlushed uint64                 `json:"segments_flushed"`
	ActiveFrames    int                    `json:"active_frames"`
	ActiveDuration  time.Duration          `json:"active_duration"`
	SilentRun       int                    `json:"silent_run"`
	AvgSegmentSec   float64                `json:"avg_segment_duration_sec"`
	FlushReasons    map[FlushReason]uint64 `json:"flush_reasons"`
}

// NewSegmenter creates a new segmenter
func NewSegmenter(config SegmenterConfig, classifier SilenceClassifier) (*Segmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, fmt.Errorf("silence classifier is required")
	}

	return &Segmenter{
		config:       config,
		classifier:   classifier,
		maxSamples:   int(config.MaxDuration * time.Duration(config.SampleRate) / time.Second),
		state:        StateAccumulating,
		flushReasons: make(map[FlushReason]uint64),
	}, nil
}

// Push appends a frame to the active segment and returns the flushed segment
// when this frame completes an utterance, nil otherwise.
func (s *Segmenter) Push(frame Frame) *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.framesSeen++
	s.active = append(s.active, frame)
	s.activeSamples += len(frame.Samples)

	if s.classifier.IsSilent(frame.Samples) {
		s.silentRun++
		if s.silentRun >= s.config.SilenceFrames {
			return s.flushLocked(FlushSilence)
		}
		return nil
	}

	s.silentRun = 0
	s.speechFrames++
	if s.activeSamples >= s.maxSamples {
		return s.flushLocked(FlushMaxDuration)
	}
	return nil
}

// Flush forces the active segment out, e.g. at end of stream.
// Returns nil when there is nothing buffered.
func (s *Segmenter) Flush(reason FlushReason) *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked(reason)
}

// flushLocked hands the active frames to a new segment and clears all counters
func (s *Segmenter) flushLocked(reason FlushReason) *Segment {
	if len(s.active) == 0 {
		return nil
	}

	s.state = StateFlushing

	s.segmentsFlushed++
	segment := &Segment{
		Seq:          s.segmentsFlushed,
		Frames:       s.active,
		SampleRate:   s.config.SampleRate,
		Reason:       reason,
		SpeechFrames: s.speechFrames,
		Duration:     samplesToDuration(s.activeSamples, s.config.SampleRate),
		FlushedAt:    time.Now(),
	}

	// The segment owns the old backing array from here on
	s.active = nil
	s.activeSamples = 0
	s.silentRun = 0
	s.speechFrames = 0

	s.totalDuration += segment.Duration
	s.flushReasons[reason]++
	s.state = StateAccumulating

	return segment
}

// Reset drops the active segment and all counters
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = nil
	s.activeSamples = 0
	s.silentRun = 0
	s.speechFrames = 0
	s.state = StateAccumulating
}

// ActiveFrames returns a copy of the frames in the active segment
func (s *Segmenter) ActiveFrames() []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	frames := make([]Frame, len(s.active))
	copy(frames, s.active)
	return frames
}

// ActiveDuration returns the duration of the active segment
func (s *Segmenter) ActiveDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return samplesToDuration(s.activeSamples, s.config.SampleRate)
}

// State returns the current segmenter state
func (s *Segmenter) State() SegmenterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats returns current segmenter statistics
func (s *Segmenter) Stats() SegmenterStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	avgDuration := float64(0)
	if s.segmentsFlushed > 0 {
		avgDuration = s.totalDuration.Seconds() / float64(s.segmentsFlushed)
	}

	reasons := make(map[FlushReason]uint64, len(s.flushReasons))
	for k, v := range s.flushReasons {
		reasons[k] = v
	}

	return SegmenterStats{
		State:           s.state.String(),
		FramesSeen:      s.framesSeen,
		SegmentsFlushed: s.segmentsFlushed,
		ActiveFrames:    len(s.active),
		ActiveDuration:  samplesToDuration(s.activeSamples, s.config.SampleRate),
		SilentRun:       s.silentRun,
		AvgSegmentSec:   avgDuration,
		FlushReasons:    reasons,
	}
}
