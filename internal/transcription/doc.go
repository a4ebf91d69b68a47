// Package transcription implements the speech-to-text backends used by caption
// sessions. Every backend receives one utterance as 16-bit signed little-endian
// PCM at 16 kHz mono plus a locale code, and returns the recognized text.
// Backends make exactly one call per segment; failures are reported as *Error
// and never retried.
package transcription
