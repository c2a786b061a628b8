package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// transcription backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// STTFailure is the failure classifier used for transcription backends. A
// recording the backend rejects as invalid would be rejected by every
// backend, so it neither trips the breaker nor moves on to a fallback.
func STTFailure(err error) bool {
	return CountsAsFailure(err) && !errors.Is(err, stt.ErrInvalidAudio)
}

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. cfg.CircuitBreaker.IsFailure defaults to [STTFailure].
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = STTFailure
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends the recording to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, req)
	})
}

// Ready reports whether at least one backend can take a request: its breaker
// is not open and, for backends that report readiness (a local model), the
// model is loaded.
func (f *STTFallback) Ready() bool {
	for _, e := range f.group.members {
		if e.breaker.State() == StateOpen {
			continue
		}
		if r, ok := e.value.(interface{ Ready() bool }); ok && !r.Ready() {
			continue
		}
		return true
	}
	return false
}

// States returns the breaker state of each backend by name.
func (f *STTFallback) States() map[string]State { return f.group.States() }
