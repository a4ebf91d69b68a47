package transcription

import (
	"context"
	"fmt"
)

// Transcriber turns one PCM16LE utterance into text. languageCode is a
// locale such as "en-US"; an empty code asks the backend to detect it.
// Blank text is a valid result for near-silent audio.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, languageCode string) (string, error)
}

// Error is a transient transcription failure. The segment that caused it is
// dropped and the session keeps listening.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription (%s): %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
