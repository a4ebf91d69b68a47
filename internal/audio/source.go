package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// closeFlushWait bounds how long Close waits to queue the trailing frame
const closeFlushWait = time.Second

// Source emits frames continuously until it is closed or fails.
// The frame channel is closed when the source ends; Err then reports
// whether it ended because of a failure.
type Source interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Err() error
	Close() error
}

// SourceError is a fatal failure of an audio source
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("audio source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// ErrSourceClosed is returned when writing to a closed source
var ErrSourceClosed = errors.New("audio source closed")

// ChannelSource is a Source fed by its owner, e.g. a network connection
// reading PCM payloads. Writes go through a Framer so callers may push
// payloads of any length.
type ChannelSource struct {
	name   string
	framer *Framer
	frames chan Frame
	done   chan struct{}
	once   sync.Once

	started bool
	closed  bool
	err     error
	dropped atomic.Uint64

	mu sync.RWMutex // Held for reading while sending, for writing while closing
}

// NewChannelSource creates a source buffering up to bufferFrames frames
func NewChannelSource(name string, framer *Framer, bufferFrames int) *ChannelSource {
	if bufferFrames <= 0 {
		bufferFrames = 64
	}
	return &ChannelSource{
		name:   name,
		framer: framer,
		frames: make(chan Frame, bufferFrames),
		done:   make(chan struct{}),
	}
}

// Start returns the frame channel; a source can only be started once.
// Cancelling ctx ends the source without error.
func (s *ChannelSource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.started {
		return nil, fmt.Errorf("audio source %s already started", s.name)
	}
	s.started = true

	go func() {
		select {
		case <-ctx.Done():
			s.finish(nil)
		case <-s.done:
		}
	}()

	return s.frames, nil
}

// WritePCM16 frames a PCM16LE payload and queues the resulting frames
func (s *ChannelSource) WritePCM16(ctx context.Context, data []byte) error {
	frames, err := s.framer.Write(data)
	if err != nil {
		return err
	}
	return s.send(ctx, frames)
}

// WriteSamples frames normalized samples and queues the resulting frames
func (s *ChannelSource) WriteSamples(ctx context.Context, samples []float32) error {
	return s.send(ctx, s.framer.WriteSamples(samples))
}

func (s *ChannelSource) send(ctx context.Context, frames []Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSourceClosed
	}
	for _, frame := range frames {
		select {
		case s.frames <- frame:
		case <-s.done:
			return ErrSourceClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Fail ends the source with a fatal error
func (s *ChannelSource) Fail(err error) {
	s.finish(&SourceError{Source: s.name, Err: err})
}

// Close ends the source normally. A trailing partial frame waits up to
// closeFlushWait for room in the buffer; if the reader is gone it is
// counted in Dropped.
func (s *ChannelSource) Close() error {
	s.mu.RLock()
	if !s.closed {
		if frame, ok := s.framer.Flush(); ok {
			timer := time.NewTimer(closeFlushWait)
			select {
			case s.frames <- frame:
			case <-s.done:
				s.dropped.Add(1)
			case <-timer.C:
				s.dropped.Add(1)
			}
			timer.Stop()
		}
	}
	s.mu.RUnlock()

	s.finish(nil)
	return nil
}

// finish wakes blocked writers first, then closes the frame channel
// once no writer holds the read lock
func (s *ChannelSource) finish(err error) {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()

		s.closed = true
		s.err = err
		close(s.frames)
	})
}

// Closed reports whether the source has ended
func (s *ChannelSource) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Dropped returns the number of frames lost at close because nobody read them
func (s *ChannelSource) Dropped() uint64 {
	return s.dropped.Load()
}

// Err returns the fatal error that ended the source, if any
func (s *ChannelSource) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
