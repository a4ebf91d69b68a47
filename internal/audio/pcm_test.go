package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodePCM16Layout(t *testing.T) {
	tests := []struct {
		name     string
		sample   float32
		expected int16
	}{
		{"zero", 0, 0},
		{"full scale", 1, 32767},
		{"negative full scale", -1, -32767},
		{"half", 0.5, 16383},
		{"negative half", -0.5, -16383},
		{"clamped high", 1.7, 32767},
		{"clamped low", -3, -32767},
		{"truncates toward zero", 0.00005, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EncodePCM16([]float32{tt.sample})
			if len(out) != 2 {
				t.Fatalf("Expected 2 bytes, got %d", len(out))
			}
			got := int16(binary.LittleEndian.Uint16(out))
			if got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestEncodePCM16Length(t *testing.T) {
	for _, n := range []int{0, 1, 1600, 32000} {
		out := EncodePCM16(make([]float32, n))
		if len(out) != 2*n {
			t.Errorf("Expected %d bytes for %d samples, got %d", 2*n, n, len(out))
		}
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	var samples []float32
	for i := -1000; i <= 1000; i++ {
		samples = append(samples, float32(i)/1000)
	}

	decoded, err := DecodePCM16(EncodePCM16(samples))
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	tolerance := 1.0/32768 + 1e-9
	for i := range samples {
		if diff := math.Abs(float64(decoded[i]) - float64(samples[i])); diff > tolerance {
			t.Errorf("Sample %d: expected %f, got %f (diff %g)", i, samples[i], decoded[i], diff)
		}
	}
}

func TestPCM16RoundTripNearStepBoundaries(t *testing.T) {
	const step = 1.0 / 32767
	tolerance := 1.0/32768 + 1e-7

	for _, k := range []int{2, 3, 100, 16383, 16384, 32000, 32766} {
		for _, sign := range []float64{1, -1} {
			below := float32(sign * (float64(k) - 0.01) * step)
			above := float32(sign * (float64(k) + 0.01) * step)

			ints := ToInt16([]float32{below, above})
			if want := int16(sign) * int16(k-1); ints[0] != want {
				t.Errorf("k=%d sign=%v: expected just-below sample to truncate to %d, got %d", k, sign, want, ints[0])
			}
			if want := int16(sign) * int16(k); ints[1] != want {
				t.Errorf("k=%d sign=%v: expected just-above sample to truncate to %d, got %d", k, sign, want, ints[1])
			}

			decoded, err := DecodePCM16(EncodePCM16([]float32{below, above}))
			if err != nil {
				t.Fatalf("DecodePCM16 failed: %v", err)
			}
			for i, s := range []float32{below, above} {
				if diff := math.Abs(float64(decoded[i]) - float64(s)); diff > tolerance {
					t.Errorf("k=%d sample %g: decoded %g (diff %g)", k, s, decoded[i], diff)
				}
			}
		}
	}
}

func TestPCM16RoundTripZeroCode(t *testing.T) {
	const step = 1.0 / 32767
	samples := []float32{float32(0.99 * step), float32(-0.99 * step), float32(0.3 * step)}

	decoded, err := DecodePCM16(EncodePCM16(samples))
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	for i, s := range samples {
		if decoded[i] != 0 {
			t.Errorf("Sample %g: expected to decode to 0, got %g", s, decoded[i])
		}
		// Code 0 spans two steps, so the error is bounded by one step
		if diff := math.Abs(float64(s)); diff >= step {
			t.Errorf("Sample %g: error %g reaches a full step", s, diff)
		}
	}
}

func TestDecodePCM16FullScale(t *testing.T) {
	decoded, err := DecodePCM16(EncodePCM16([]float32{1, -1}))
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	if decoded[0] != 1 || decoded[1] != -1 {
		t.Errorf("Expected full scale to decode exactly, got %v", decoded)
	}

	raw := make([]byte, 2)
	binary.LittleEndian.PutUint16(raw, uint16(0x8000)) // -32768, never written by the encoder
	decoded, err = DecodePCM16(raw)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	if decoded[0] != -1 {
		t.Errorf("Expected -32768 to decode to -1, got %g", decoded[0])
	}
}

func TestDecodePCM16OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length payload")
	}
}

func TestToInt16MatchesEncoder(t *testing.T) {
	samples := []float32{-2, -1, -0.25, 0, 0.25, 0.9999, 2}
	ints := ToInt16(samples)
	pcm := EncodePCM16(samples)

	for i, v := range ints {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if got != v {
			t.Errorf("Sample %d: ToInt16 gave %d, encoder wrote %d", i, v, got)
		}
	}
}
