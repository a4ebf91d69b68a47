package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVFileSource replays a 16 kHz mono 16-bit WAV file as a frame stream
type WAVFileSource struct {
	path          string
	frameDuration time.Duration
	realtime      bool // Pace frames at capture speed instead of as fast as possible

	file *os.File
	err  error
	mu   sync.Mutex
}

// NewWAVFileSource creates a file-backed source
func NewWAVFileSource(path string, frameDuration time.Duration, realtime bool) *WAVFileSource {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	return &WAVFileSource{
		path:          path,
		frameDuration: frameDuration,
		realtime:      realtime,
	}
}

// Start opens and validates the file, then streams it on the returned channel
func (s *WAVFileSource) Start(ctx context.Context) (<-chan Frame, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, &SourceError{Source: s.path, Err: err}
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, &SourceError{Source: s.path, Err: fmt.Errorf("invalid wav file")}
	}
	if int(dec.SampleRate) != SampleRate || dec.NumChans != 1 || dec.BitDepth != 16 {
		f.Close()
		return nil, &SourceError{Source: s.path, Err: fmt.Errorf(
			"unsupported format: %d Hz, %d channels, %d bit (need %d Hz mono 16 bit)",
			dec.SampleRate, dec.NumChans, dec.BitDepth, SampleRate)}
	}

	s.mu.Lock()
	s.file = f
	s.mu.Unlock()

	frameSize := int(s.frameDuration * SampleRate / time.Second)
	frames := make(chan Frame, 16)

	go func() {
		defer close(frames)
		defer f.Close()

		var ticker *time.Ticker
		if s.realtime {
			ticker = time.NewTicker(s.frameDuration)
			defer ticker.Stop()
		}

		buf := &goaudio.IntBuffer{
			Data:           make([]int, frameSize),
			Format:         dec.Format(),
			SourceBitDepth: 16,
		}

		var seq uint64
		for {
			n, err := dec.PCMBuffer(buf)
			if err != nil && !errors.Is(err, io.EOF) {
				s.setErr(&SourceError{Source: s.path, Err: err})
				return
			}
			if n == 0 {
				return
			}

			samples := make([]float32, n)
			for i := 0; i < n; i++ {
				samples[i] = float32(buf.Data[i]) / pcmScale
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}

			select {
			case frames <- Frame{Seq: seq, Samples: samples}:
				seq++
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

func (s *WAVFileSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the read error that ended the stream, if any
func (s *WAVFileSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the underlying file
func (s *WAVFileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
