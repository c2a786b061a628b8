// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider turns one finished recording into text. The recording is a WAV
// file on local disk; callers own it and delete it once Transcribe returns.
// Backends may run a local model or call a remote service, so callers must
// treat every call as a potentially slow, cancellable operation.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request describes one transcription call.
type Request struct {
	// AudioPath is the WAV file to transcribe.
	AudioPath string

	// Translate requests English output regardless of the spoken language.
	// When false the text is returned in the spoken language.
	Translate bool
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in req.AudioPath, trimmed of
	// surrounding whitespace.
	//
	// It fails with [ErrModelNotLoaded] when a local engine is unavailable,
	// [ErrInvalidAudio] when the recording holds no usable samples, or an
	// [*APIError] when a remote service rejects the request.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts an ordinary function to the [Provider] interface.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

// Transcribe implements [Provider].
func (f ProviderFunc) Transcribe(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
