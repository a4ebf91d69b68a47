package audio

import (
	"encoding/binary"
	"fmt"
)

// pcmScale maps a normalized sample onto the signed 16-bit range
const pcmScale = 32767

// EncodePCM16 converts normalized samples to 16-bit signed little-endian PCM.
// Each sample is clamped to [-1, 1], multiplied by 32767 and truncated toward
// zero. Backends depend on this exact layout.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(quantize(s)))
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM back to normalized
// samples. Because the encoder truncates, each nonzero code stands for an
// interval one step (1/32767) wide; decoding to its centre keeps the round
// trip within 1/32768. Code 0 covers two steps around zero, so samples with
// |s| < 1/32767 come back as 0 and may be off by up to one step.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 data length must be even (got %d bytes)", len(data))
	}

	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = decodeSample(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return out, nil
}

func decodeSample(v int16) float32 {
	switch {
	case v == 0:
		return 0
	case v >= pcmScale:
		return 1
	case v <= -pcmScale:
		return -1
	case v > 0:
		return float32((float64(v) + 0.5) / pcmScale)
	default:
		return float32((float64(v) - 0.5) / pcmScale)
	}
}

// ToInt16 quantizes normalized samples with the same rule as EncodePCM16
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = quantize(s)
	}
	return out
}

func quantize(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * pcmScale)
}
