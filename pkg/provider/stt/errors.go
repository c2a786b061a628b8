package stt

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrModelNotLoaded is returned when a local inference engine failed to
	// initialise and cannot serve requests.
	ErrModelNotLoaded = errors.New("stt: model not loaded")

	// ErrInvalidAudio is returned for recordings that are missing, empty or
	// not in a format the backend accepts.
	ErrInvalidAudio = errors.New("stt: invalid audio")
)

// APIError is returned when a remote transcription service answers with a
// non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stt: api error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request later might succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Unavailable is a [Provider] that fails every call with
// [ErrModelNotLoaded]. It stands in for a backend that could not be
// constructed at startup so the rest of the application keeps running.
type Unavailable struct {
	// Reason is included in every returned error.
	Reason error
}

var _ Provider = Unavailable{}

// Transcribe implements [Provider].
func (u Unavailable) Transcribe(_ context.Context, _ Request) (string, error) {
	if u.Reason == nil {
		return "", ErrModelNotLoaded
	}
	return "", fmt.Errorf("%w: %w", ErrModelNotLoaded, u.Reason)
}
