package audio

import (
	"fmt"
	"sync"
	"time"
)

// Framer cuts a stream of PCM16LE payloads of arbitrary length into
// fixed-length frames
type Framer struct {
	sampleRate int
	frameSize  int // Samples per frame

	pending []float32 // Decoded samples not yet emitted
	oddByte []byte    // Half a sample carried over from the previous payload
	nextSeq uint64

	// Statistics
	bytesReceived uint64
	framesEmitted uint64
	lastUpdate    time.Time

	mu sync.Mutex
}

// FramerStats represents framer statistics for monitoring
type FramerStats struct {
	BytesReceived  uint64    `json:"bytes_received"`
	FramesEmitted  uint64    `json:"frames_emitted"`
	PendingSamples int       `json:"pending_samples"`
	FrameSize      int       `json:"frame_size_samples"`
	LastUpdate     time.Time `json:"last_update"`
}

// NewFramer creates a framer producing frames of frameDuration at sampleRate
func NewFramer(sampleRate int, frameDuration time.Duration) (*Framer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	frameSize := int(frameDuration * time.Duration(sampleRate) / time.Second)
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame duration %v is too short for %d Hz", frameDuration, sampleRate)
	}

	return &Framer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		pending:    make([]float32, 0, frameSize*2),
	}, nil
}

// Write adds a PCM16LE payload and returns every complete frame it produced.
// A trailing odd byte is kept and joined with the next payload.
func (f *Framer) Write(data []byte) ([]Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bytesReceived += uint64(len(data))
	f.lastUpdate = time.Now()

	if len(f.oddByte) > 0 {
		data = append(append([]byte{}, f.oddByte...), data...)
		f.oddByte = nil
	}
	if len(data)%2 != 0 {
		f.oddByte = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}

	samples, err := DecodePCM16(data)
	if err != nil {
		return nil, err
	}
	f.pending = append(f.pending, samples...)

	var frames []Frame
	for len(f.pending) >= f.frameSize {
		frames = append(frames, f.emit(f.frameSize))
	}
	return frames, nil
}

// WriteSamples adds already-normalized samples
func (f *Framer) WriteSamples(samples []float32) []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastUpdate = time.Now()
	f.pending = append(f.pending, samples...)

	var frames []Frame
	for len(f.pending) >= f.frameSize {
		frames = append(frames, f.emit(f.frameSize))
	}
	return frames
}

// Flush emits the remaining partial frame, if any
func (f *Framer) Flush() (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.oddByte = nil
	if len(f.pending) == 0 {
		return Frame{}, false
	}
	return f.emit(len(f.pending)), true
}

// emit copies n pending samples into a new frame and shifts the remainder
func (f *Framer) emit(n int) Frame {
	samples := make([]float32, n)
	copy(samples, f.pending[:n])

	remaining := copy(f.pending, f.pending[n:])
	f.pending = f.pending[:remaining]

	frame := Frame{Seq: f.nextSeq, Samples: samples}
	f.nextSeq++
	f.framesEmitted++
	return frame
}

// FrameSize returns the number of samples per frame
func (f *Framer) FrameSize() int {
	return f.frameSize
}

// Stats returns current framer statistics
func (f *Framer) Stats() FramerStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return FramerStats{
		BytesReceived:  f.bytesReceived,
		FramesEmitted:  f.framesEmitted,
		PendingSamples: len(f.pending),
		FrameSize:      f.frameSize,
		LastUpdate:     f.lastUpdate,
	}
}
