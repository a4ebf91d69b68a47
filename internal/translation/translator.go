package translation

import (
	"context"
	"errors"
	"fmt"
)

// Translator translates text between two ISO 639 language codes
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// CredentialChecker is implemented by backends that need an API key
type CredentialChecker interface {
	HasCredentials() bool
}

// ConnectivityChecker reports whether the online backend is reachable
type ConnectivityChecker interface {
	Online(ctx context.Context) bool
}

// Error is a transient translation failure; the transcript entry stays
// untranslated
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translation (%s): %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrCapacityViolation means the cache grew past its capacity. It can only
// be caused by a bug in the cache itself.
var ErrCapacityViolation = errors.New("translation cache capacity violated")
