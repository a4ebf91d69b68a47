// Package audio handles frame assembly, utterance segmentation and format conversion.
// It turns PCM16 payloads into fixed-length frames, groups frames into segments using
// silence runs and a maximum utterance duration, and encodes segments as PCM16LE or WAV
// for transcription backends.
package audio
