package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/fnx/pkg/provider/stt"
	sttmock "github.com/MrWong99/fnx/pkg/provider/stt/mock"
)

func TestSTTFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Text: "from primary"}
	secondary := &sttmock.Provider{Text: "from secondary"}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Transcribe(context.Background(), stt.Request{AudioPath: "/tmp/a.wav", Translate: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "from primary" {
		t.Fatalf("text = %q, want from primary", text)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Fatalf("calls = %d/%d, want 1/0", primary.CallCount(), secondary.CallCount())
	}
	req, _ := primary.LastRequest()
	if req.AudioPath != "/tmp/a.wav" || !req.Translate {
		t.Errorf("request = %+v, not passed through", req)
	}
}

func TestSTTFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: &stt.APIError{StatusCode: 503, Message: "busy"}}
	secondary := &sttmock.Provider{Text: "from secondary"}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Transcribe(context.Background(), stt.Request{AudioPath: "/tmp/a.wav"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "from secondary" {
		t.Fatalf("text = %q, want from secondary", text)
	}
}

func TestSTTFallback_InvalidAudioDoesNotFailOver(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: fmt.Errorf("whisper: %w", stt.ErrInvalidAudio)}
	secondary := &sttmock.Provider{Text: "never"}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, stt.ErrInvalidAudio) {
		t.Fatalf("err = %v, want ErrInvalidAudio", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("invalid audio should not be reported as a provider outage")
	}
	if secondary.CallCount() != 0 {
		t.Error("secondary should not be tried for invalid audio")
	}
	if s := fb.States()["primary"]; s != StateClosed {
		t.Errorf("primary breaker = %v, want closed", s)
	}
}

func TestSTTFallback_AllFailKeepsCause(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: stt.ErrModelNotLoaded}
	fb := NewSTTFallback(primary, "primary", FallbackConfig{})

	_, err := fb.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, stt.ErrModelNotLoaded) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping ErrModelNotLoaded", err)
	}
}

type readyProvider struct {
	sttmock.Provider
	ready bool
}

func (p *readyProvider) Ready() bool { return p.ready }

func TestSTTFallback_Ready(t *testing.T) {
	t.Parallel()
	notLoaded := &readyProvider{}
	remote := &sttmock.Provider{Err: errTest}

	fb := NewSTTFallback(notLoaded, "native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	if fb.Ready() {
		t.Fatal("Ready() = true with only an unloaded model")
	}

	fb.AddFallback("remote", remote)
	if !fb.Ready() {
		t.Fatal("Ready() = false with a closed remote fallback")
	}

	// One failed call opens both breakers.
	notLoaded.Err = stt.ErrModelNotLoaded
	_, _ = fb.Transcribe(context.Background(), stt.Request{})
	if fb.Ready() {
		t.Fatal("Ready() = true with every breaker open or model unloaded")
	}
}
