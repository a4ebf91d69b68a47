package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestChannelSource(t *testing.T, buffer int) *ChannelSource {
	t.Helper()
	framer, err := NewFramer(SampleRate, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create framer: %v", err)
	}
	return NewChannelSource("test", framer, buffer)
}

func drain(frames <-chan Frame, timeout time.Duration) ([]Frame, bool) {
	var out []Frame
	deadline := time.After(timeout)
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return out, true
			}
			out = append(out, frame)
		case <-deadline:
			return out, false
		}
	}
}

func TestChannelSourceDeliversFrames(t *testing.T) {
	source := newTestChannelSource(t, 16)

	frames, err := source.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := source.Start(context.Background()); err == nil {
		t.Error("Expected error when starting twice")
	}

	pcm := EncodePCM16(make([]float32, 3500))
	if err := source.WritePCM16(context.Background(), pcm); err != nil {
		t.Fatalf("WritePCM16 failed: %v", err)
	}
	if err := source.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, closed := drain(frames, time.Second)
	if !closed {
		t.Fatal("Expected frame channel to close")
	}
	if len(got) != 3 {
		t.Fatalf("Expected 2 full frames plus a trailing frame, got %d", len(got))
	}
	if len(got[2].Samples) != 300 {
		t.Errorf("Expected 300 trailing samples, got %d", len(got[2].Samples))
	}
	if source.Err() != nil {
		t.Errorf("Expected no error after normal close, got %v", source.Err())
	}

	if err := source.WritePCM16(context.Background(), pcm); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Expected ErrSourceClosed, got %v", err)
	}
}

func TestChannelSourceFail(t *testing.T) {
	source := newTestChannelSource(t, 4)

	frames, err := source.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cause := errors.New("device unplugged")
	source.Fail(cause)

	if _, closed := drain(frames, time.Second); !closed {
		t.Fatal("Expected frame channel to close")
	}

	var sourceErr *SourceError
	if !errors.As(source.Err(), &sourceErr) {
		t.Fatalf("Expected *SourceError, got %T", source.Err())
	}
	if !errors.Is(source.Err(), cause) {
		t.Errorf("Expected error to wrap %v", cause)
	}
}

func TestChannelSourceUnblocksWriterOnClose(t *testing.T) {
	source := newTestChannelSource(t, 1)

	if _, err := source.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Nobody reads, so the writer blocks after the first frame
	errCh := make(chan error, 1)
	go func() {
		errCh <- source.WriteSamples(context.Background(), make([]float32, 1600*4))
	}()

	time.Sleep(20 * time.Millisecond)
	source.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSourceClosed) {
			t.Errorf("Expected ErrSourceClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Writer stayed blocked after close")
	}
}

func TestChannelSourceContextCancel(t *testing.T) {
	source := newTestChannelSource(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := source.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()
	if _, closed := drain(frames, time.Second); !closed {
		t.Fatal("Expected frame channel to close after cancel")
	}
	if source.Err() != nil {
		t.Errorf("Expected no error after cancel, got %v", source.Err())
	}
}

func writeTestWAV(t *testing.T, samples []float32) string {
	t.Helper()
	data, err := EncodeWAV(EncodePCM16(samples), SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write WAV: %v", err)
	}
	return path
}

func TestWAVFileSource(t *testing.T) {
	path := writeTestWAV(t, sineSamples(4000, 440, SampleRate))

	source := NewWAVFileSource(path, 100*time.Millisecond, false)
	defer source.Close()

	frames, err := source.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got, closed := drain(frames, 2*time.Second)
	if !closed {
		t.Fatal("Expected frame channel to close at end of file")
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(got))
	}
	if len(got[0].Samples) != 1600 || len(got[2].Samples) != 800 {
		t.Errorf("Unexpected frame sizes: %d, %d", len(got[0].Samples), len(got[2].Samples))
	}
	for i, frame := range got {
		if frame.Seq != uint64(i) {
			t.Errorf("Expected seq %d, got %d", i, frame.Seq)
		}
	}
	if source.Err() != nil {
		t.Errorf("Expected no error, got %v", source.Err())
	}
}

func TestWAVFileSourceRejectsMissingFile(t *testing.T) {
	source := NewWAVFileSource(filepath.Join(t.TempDir(), "missing.wav"), 0, false)
	if _, err := source.Start(context.Background()); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestWAVFileSourceRejectsWrongRate(t *testing.T) {
	data, err := EncodeWAV(EncodePCM16(make([]float32, 800)), 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "8k.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write WAV: %v", err)
	}

	source := NewWAVFileSource(path, 0, false)
	if _, err := source.Start(context.Background()); err == nil {
		t.Error("Expected error for 8kHz file")
	}
}

func TestChannelSourceCloseWaitsForTrailingFrame(t *testing.T) {
	source := newTestChannelSource(t, 1)

	frames, err := source.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// One full frame fills the buffer, the rest stays pending in the framer
	if err := source.WriteSamples(context.Background(), make([]float32, 1600+400)); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		<-frames
	}()

	if err := source.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, closed := drain(frames, time.Second)
	if !closed {
		t.Fatal("Expected frame channel to close")
	}
	if len(got) != 1 || len(got[0].Samples) != 400 {
		t.Fatalf("Expected the 400-sample trailing frame, got %d frames", len(got))
	}
	if source.Dropped() != 0 {
		t.Errorf("Expected no dropped frames, got %d", source.Dropped())
	}
}

func TestChannelSourceCountsDroppedTrailingFrame(t *testing.T) {
	source := newTestChannelSource(t, 1)

	if _, err := source.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := source.WriteSamples(context.Background(), make([]float32, 1600+400)); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}

	// Nobody reads, so Close gives up on the trailing frame
	start := time.Now()
	source.Close()
	if elapsed := time.Since(start); elapsed > 3*closeFlushWait {
		t.Errorf("Close blocked for %v", elapsed)
	}
	if source.Dropped() != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", source.Dropped())
	}
}
