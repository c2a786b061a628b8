// Package pipeline runs dictation sessions: hold the key to record, release
// to transcribe, optionally rewrite through the active rule, and type the
// result into the focused application.
//
// A [Coordinator] owns the session state machine (Idle, Recording,
// Processing). All transitions happen on the goroutine running
// [Coordinator.Run]; the processing chain of a released recording runs on
// its own goroutine and hands the finished session back to Run. At most one
// session is in flight, so a key press while not Idle is ignored.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/MrWong99/fnx/internal/observe"
	"github.com/MrWong99/fnx/internal/overlay"
	"github.com/MrWong99/fnx/internal/rules"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// State is a coordinator state.
type State int32

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// Recorder captures one session at a time. *audio.Capture satisfies it.
type Recorder interface {
	Start() error
	Stop() error
	LastRecording() (path string, ok bool)
}

// Gate admits sessions and counts completed ones. *usage.Gate satisfies it.
type Gate interface {
	CanTranscribe() bool
	CanUseRules() bool
	RemainingToday() int
	IncrementUsage(ctx context.Context) error
}

// RuleSource returns the active rule. *rules.Manager satisfies it.
type RuleSource interface {
	Active(ctx context.Context) (rules.Rule, bool, error)
}

// Transformer rewrites text per instruction. *transform.Transformer
// satisfies it.
type Transformer interface {
	Transform(ctx context.Context, text, instruction string) (string, error)
}

// Injector types text into the focused application. *inject.Injector
// satisfies it.
type Injector interface {
	Type(ctx context.Context, text string) error
}

// Overlay displays the session state. *overlay.Presenter satisfies it.
type Overlay interface {
	Show(s overlay.State)
}

// PermissionChecker reports whether the microphone may be used.
type PermissionChecker interface {
	MicrophoneGranted() bool
}

// UpgradePrompter asks the user to upgrade after the daily limit was hit.
type UpgradePrompter interface {
	PromptUpgrade(ctx context.Context, dailyLimitHit bool)
}

// Policy holds the tunable admission rules.
type Policy struct {
	// RulesRequirePro gates every active rule behind the pro tier. A gated
	// rule is skipped and the plain transcription is typed instead.
	RulesRequirePro bool

	// ProRequiredCountsUsage decides whether a session downgraded because of
	// RulesRequirePro counts against the daily quota.
	ProRequiredCountsUsage bool
}

// DefaultUpgradeDelay is how long after a quota denial the upgrade prompt
// appears.
const DefaultUpgradeDelay = time.Second

// Config carries the coordinator's collaborators. Recorder, Transcriber,
// Injector, Gate and Overlay are required.
type Config struct {
	Recorder    Recorder
	Transcriber stt.Provider
	Transformer Transformer
	Injector    Injector
	Gate        Gate
	Rules       RuleSource
	Overlay     Overlay
	Permission  PermissionChecker
	Prompter    UpgradePrompter
	Policy      Policy

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// STTName and LLMName label provider metrics.
	STTName string
	LLMName string

	// Observer, if set, is called on the Run goroutine once per finished or
	// refused session.
	Observer func(Result)

	// UpgradeDelay defaults to DefaultUpgradeDelay.
	UpgradeDelay time.Duration

	// Remove deletes finished recordings. Defaults to os.Remove.
	Remove func(path string) error

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) validate() error {
	var errs []error
	if c.Recorder == nil {
		errs = append(errs, errors.New("pipeline: recorder is required"))
	}
	if c.Transcriber == nil {
		errs = append(errs, errors.New("pipeline: transcriber is required"))
	}
	if c.Injector == nil {
		errs = append(errs, errors.New("pipeline: injector is required"))
	}
	if c.Gate == nil {
		errs = append(errs, errors.New("pipeline: usage gate is required"))
	}
	if c.Overlay == nil {
		errs = append(errs, errors.New("pipeline: overlay is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) defaults() {
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	if c.STTName == "" {
		c.STTName = "stt"
	}
	if c.LLMName == "" {
		c.LLMName = "llm"
	}
	if c.UpgradeDelay <= 0 {
		c.UpgradeDelay = DefaultUpgradeDelay
	}
	if c.Remove == nil {
		c.Remove = os.Remove
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
