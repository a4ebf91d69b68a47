package audio

import (
	"testing"
	"time"
)

func TestNewFramer(t *testing.T) {
	tests := []struct {
		name          string
		sampleRate    int
		frameDuration time.Duration
		expectedSize  int
		expectErr     bool
	}{
		{"100ms at 16kHz", SampleRate, 100 * time.Millisecond, 1600, false},
		{"20ms at 16kHz", SampleRate, 20 * time.Millisecond, 320, false},
		{"zero rate", 0, 100 * time.Millisecond, 0, true},
		{"too short", SampleRate, time.Microsecond, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framer, err := NewFramer(tt.sampleRate, tt.frameDuration)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if framer.FrameSize() != tt.expectedSize {
				t.Errorf("Expected frame size %d, got %d", tt.expectedSize, framer.FrameSize())
			}
		})
	}
}

func TestFramerWrite(t *testing.T) {
	framer, err := NewFramer(SampleRate, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create framer: %v", err)
	}

	// 2.5 frames worth of audio in one payload
	pcm := EncodePCM16(make([]float32, 4000))
	frames, err := framer.Write(pcm)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Seq != uint64(i) {
			t.Errorf("Expected seq %d, got %d", i, frame.Seq)
		}
		if len(frame.Samples) != 1600 {
			t.Errorf("Expected 1600 samples, got %d", len(frame.Samples))
		}
		if frame.Duration(SampleRate) != 100*time.Millisecond {
			t.Errorf("Expected 100ms frame, got %v", frame.Duration(SampleRate))
		}
	}

	stats := framer.Stats()
	if stats.PendingSamples != 800 {
		t.Errorf("Expected 800 pending samples, got %d", stats.PendingSamples)
	}
	if stats.BytesReceived != 8000 {
		t.Errorf("Expected 8000 bytes received, got %d", stats.BytesReceived)
	}

	tail, ok := framer.Flush()
	if !ok {
		t.Fatal("Expected trailing partial frame")
	}
	if len(tail.Samples) != 800 {
		t.Errorf("Expected 800 trailing samples, got %d", len(tail.Samples))
	}
	if tail.Seq != 2 {
		t.Errorf("Expected trailing seq 2, got %d", tail.Seq)
	}

	if _, ok := framer.Flush(); ok {
		t.Error("Expected nothing left after flush")
	}
}

func TestFramerOddByteCarry(t *testing.T) {
	framer, err := NewFramer(SampleRate, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create framer: %v", err)
	}

	samples := make([]float32, 320)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}
	pcm := EncodePCM16(samples)

	// Split the payload in the middle of a sample
	frames, err := framer.Write(pcm[:101])
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("Expected no frames yet, got %d", len(frames))
	}

	frames, err = framer.Write(pcm[101:])
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}

	expected, _ := DecodePCM16(pcm)
	for i, v := range frames[0].Samples {
		if v != expected[i] {
			t.Fatalf("Sample %d: expected %f, got %f", i, expected[i], v)
		}
	}
}

func TestFramerWriteSamples(t *testing.T) {
	framer, _ := NewFramer(SampleRate, 100*time.Millisecond)

	var total int
	for i := 0; i < 10; i++ {
		frames := framer.WriteSamples(make([]float32, 500))
		for _, frame := range frames {
			total += len(frame.Samples)
		}
	}

	if total != 4800 {
		t.Errorf("Expected 4800 framed samples, got %d", total)
	}
	if stats := framer.Stats(); stats.FramesEmitted != 3 {
		t.Errorf("Expected 3 frames emitted, got %d", stats.FramesEmitted)
	}
}
