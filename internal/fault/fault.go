// Package fault sorts pipeline failures into the three classes the
// application reacts to differently.
//
//   - Configuration errors break a capability until the user fixes
//     something (missing model, unusable audio format, bad credentials).
//     They are logged once and never retried.
//   - Transient errors affect one session only (network hiccup, a 5xx, a
//     malformed reply). The session is abandoned; the next one starts fresh.
//   - Policy rejections are not errors at all: quota exhausted, noise
//     filtered out, rule gated behind a tier. They get their own UI state.
package fault

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/fnx/pkg/audio"
	"github.com/MrWong99/fnx/pkg/provider/llm"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// Kind is a failure class.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindTransient
	KindPolicy
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransient:
		return "transient"
	case KindPolicy:
		return "policy"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Policy is a deliberate refusal. It satisfies error so it can travel
// through error returns, but callers branch on it rather than log it.
type Policy struct {
	Reason string
}

func (p *Policy) Error() string { return "policy: " + p.Reason }

// Reject returns a [*Policy] for reason.
func Reject(reason string) error { return &Policy{Reason: reason} }

// Configuration wraps err as a configuration failure.
func Configuration(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: KindConfiguration, err: err}
}

// Transient wraps err as a one-session failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: KindTransient, err: err}
}

type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return fmt.Sprintf("%s: %v", c.kind, c.err) }
func (c *classified) Unwrap() error { return c.err }

// Classify returns the class of err. Explicit wrappers win; otherwise the
// sentinel and typed errors of the audio, stt and llm packages are mapped.
// A nil error is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	var p *Policy
	if errors.As(err, &p) {
		return KindPolicy
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	switch {
	case errors.Is(err, stt.ErrModelNotLoaded),
		errors.Is(err, audio.ErrFormat),
		errors.Is(err, audio.ErrConverter):
		return KindConfiguration
	case errors.Is(err, stt.ErrInvalidAudio),
		errors.Is(err, llm.ErrDecoding),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	if status, ok := apiStatus(err); ok {
		switch status {
		case 401, 403, 404:
			return KindConfiguration
		default:
			return KindTransient
		}
	}
	return KindTransient
}

// apiStatus extracts an HTTP status from provider API errors.
func apiStatus(err error) (int, bool) {
	var se *stt.APIError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	var le *llm.APIError
	if errors.As(err, &le) {
		return le.StatusCode, true
	}
	return 0, false
}
