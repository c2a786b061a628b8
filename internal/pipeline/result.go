package pipeline

import (
	"time"

	"github.com/MrWong99/fnx/internal/quality"
)

// Outcome is how a session ended.
type Outcome string

const (
	// OutcomeDone: text was typed and counted.
	OutcomeDone Outcome = "done"
	// OutcomeProRequired: the plain transcription was typed because the
	// active rule needs the pro tier.
	OutcomeProRequired Outcome = "pro_required"
	// OutcomeLowQuality: the transcription was noise and was discarded.
	OutcomeLowQuality Outcome = "low_quality"
	// OutcomeLimitReached: the daily quota refused the session.
	OutcomeLimitReached Outcome = "limit_reached"
	// OutcomeNoAudio: capture produced no file.
	OutcomeNoAudio Outcome = "no_audio"
	// OutcomeCaptureFailed: the microphone could not be opened.
	OutcomeCaptureFailed Outcome = "capture_failed"
	// OutcomePermissionDenied: microphone access is not granted.
	OutcomePermissionDenied Outcome = "permission_denied"
	// OutcomeError: transcription or transform failed.
	OutcomeError Outcome = "error"
	// OutcomeCanceled: shutdown interrupted the session.
	OutcomeCanceled Outcome = "canceled"
)

// Result describes one session. Transcript text is deliberately absent;
// only its length is kept.
type Result struct {
	Outcome Outcome
	Started time.Time

	// Rule is the active rule's name, empty for none.
	Rule      string
	Translate bool
	Transform bool

	// Reason is set for OutcomeLowQuality.
	Reason quality.Reason

	// Err is set for failure outcomes and policy refusals.
	Err error

	// Chars is the number of runes typed.
	Chars int

	Total             time.Duration
	TranscribeLatency time.Duration
	TransformLatency  time.Duration
	InjectLatency     time.Duration

	// Counted reports whether the session was charged to the quota.
	Counted bool
}
