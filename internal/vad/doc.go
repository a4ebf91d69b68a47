// Package vad provides energy-based silence detection for fixed-size audio frames.
// It computes the RMS of normalized float samples and classifies a frame as silent
// when the energy falls below a configurable threshold.
package vad
