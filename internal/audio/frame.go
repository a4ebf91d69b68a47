package audio

import "time"

const (
	// SampleRate is the fixed capture rate for the whole pipeline (16 kHz mono)
	SampleRate = 16000

	// DefaultFrameDuration is the length of one frame produced by a Framer
	DefaultFrameDuration = 100 * time.Millisecond
)

// Frame is a fixed-length run of normalized samples in [-1.0, 1.0].
// Frames are treated as immutable once emitted.
type Frame struct {
	Seq     uint64    // Position of the frame in its source stream
	Samples []float32 // Normalized mono samples
}

// Duration returns the playback duration of the frame at the given rate
func (f Frame) Duration(sampleRate int) time.Duration {
	return samplesToDuration(len(f.Samples), sampleRate)
}

// FlushReason records why a segment left the active buffer
type FlushReason string

const (
	FlushSilence     FlushReason = "silence"
	FlushMaxDuration FlushReason = "max_duration"
	FlushEndOfStream FlushReason = "end_of_stream"
	FlushForced      FlushReason = "forced"
)

// Segment is the ordered concatenation of frames collected between two flushes
type Segment struct {
	Seq          uint64        `json:"seq"`
	Frames       []Frame       `json:"-"`
	SampleRate   int           `json:"sample_rate"`
	Reason       FlushReason   `json:"reason"`
	SpeechFrames int           `json:"speech_frames"`
	Duration     time.Duration `json:"duration"`
	FlushedAt    time.Time     `json:"flushed_at"`
}

// Samples returns the segment audio as one contiguous slice
func (s *Segment) Samples() []float32 {
	total := 0
	for _, f := range s.Frames {
		total += len(f.Samples)
	}

	out := make([]float32, 0, total)
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// HasSpeech reports whether any frame in the segment was classified non-silent
func (s *Segment) HasSpeech() bool {
	return s.SpeechFrames > 0
}

func samplesToDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
