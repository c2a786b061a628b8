package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/fnx/internal/fault"
	"github.com/MrWong99/fnx/internal/observe"
	"github.com/MrWong99/fnx/internal/overlay"
	"github.com/MrWong99/fnx/pkg/hotkey"
)

// Coordinator is the session state machine. Create it with [New] and drive
// it with [Coordinator.Run].
type Coordinator struct {
	cfg    Config
	state  atomic.Int32
	policy atomic.Pointer[Policy]

	// finished carries the result of the single in-flight processing chain
	// back to Run. Buffered so the chain never blocks on a stopped Run.
	finished chan Result
	wg       sync.WaitGroup

	// Owned by the Run goroutine.
	recStarted   time.Time
	upgradeTimer *time.Timer
}

// New validates cfg and returns an idle Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.defaults()
	c := &Coordinator{
		cfg:      cfg,
		finished: make(chan Result, 1),
	}
	p := cfg.Policy
	c.policy.Store(&p)
	return c, nil
}

// State returns the current state. Safe to call from any goroutine.
func (c *Coordinator) State() State { return State(c.state.Load()) }

func (c *Coordinator) setState(s State) { c.state.Store(int32(s)) }

// SetPolicy replaces the admission policy. It applies to sessions started
// after the call.
func (c *Coordinator) SetPolicy(p Policy) { c.policy.Store(&p) }

// Policy returns the current admission policy.
func (c *Coordinator) Policy() Policy { return *c.policy.Load() }

// Run consumes hotkey edges until ctx is cancelled. A recording in progress
// at shutdown is discarded; a processing chain is cancelled and awaited so
// its recording is removed. Run returns nil on shutdown.
func (c *Coordinator) Run(ctx context.Context, edges <-chan hotkey.Edge) error {
	defer c.stopUpgradePrompt()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case e, ok := <-edges:
			if !ok {
				edges = nil
				continue
			}
			switch e {
			case hotkey.EdgeStarted:
				c.onStarted(ctx)
			case hotkey.EdgeStopped:
				c.onStopped(ctx)
			}

		case r := <-c.finished:
			c.finish(ctx, r)
		}
	}
}

func (c *Coordinator) onStarted(ctx context.Context) {
	if st := c.State(); st != Idle {
		slog.Debug("pipeline: start ignored", "state", st.String())
		return
	}
	now := c.cfg.Now()

	if !c.cfg.Gate.CanTranscribe() {
		slog.Info("pipeline: daily limit reached")
		c.cfg.Overlay.Show(overlay.LimitReached)
		c.cfg.Metrics.RecordRejection(ctx, string(OutcomeLimitReached))
		c.scheduleUpgradePrompt(ctx)
		c.report(Result{Outcome: OutcomeLimitReached, Started: now, Err: fault.Reject("daily limit reached")})
		return
	}

	if c.cfg.Permission != nil && !c.cfg.Permission.MicrophoneGranted() {
		slog.Warn("pipeline: microphone permission not granted, not recording")
		c.report(Result{Outcome: OutcomePermissionDenied, Started: now})
		return
	}

	if err := c.cfg.Recorder.Start(); err != nil {
		logFailure(ctx, "pipeline: capture start failed", err)
		c.cfg.Overlay.Show(overlay.Hidden)
		c.report(Result{Outcome: OutcomeCaptureFailed, Started: now, Err: err})
		return
	}

	c.setState(Recording)
	c.recStarted = now
	c.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	c.cfg.Overlay.Show(overlay.Recording)
	slog.Debug("pipeline: recording")
}

func (c *Coordinator) onStopped(ctx context.Context) {
	if st := c.State(); st != Recording {
		slog.Debug("pipeline: stop ignored", "state", st.String())
		return
	}
	c.setState(Processing)

	if err := c.cfg.Recorder.Stop(); err != nil {
		slog.Warn("pipeline: capture stop reported an error", "err", err)
	}
	path, ok := c.cfg.Recorder.LastRecording()
	if !ok {
		c.cfg.Overlay.Show(overlay.Hidden)
		c.finish(ctx, Result{Outcome: OutcomeNoAudio, Started: c.recStarted})
		return
	}
	c.cfg.Overlay.Show(overlay.Processing)

	started := c.recStarted
	pol := c.Policy()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.finished <- c.process(ctx, path, started, pol)
	}()
}

// finish returns to Idle and records a session that entered Recording.
func (c *Coordinator) finish(ctx context.Context, r Result) {
	c.setState(Idle)
	c.cfg.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	if r.Total == 0 && !r.Started.IsZero() {
		r.Total = c.cfg.Now().Sub(r.Started)
	}
	c.cfg.Metrics.RecordSession(context.WithoutCancel(ctx), string(r.Outcome), r.Total)
	c.report(r)
}

func (c *Coordinator) report(r Result) {
	if c.cfg.Observer != nil {
		c.cfg.Observer(r)
	}
}

func (c *Coordinator) shutdown() {
	switch c.State() {
	case Recording:
		if err := c.cfg.Recorder.Stop(); err != nil {
			slog.Warn("pipeline: capture stop on shutdown", "err", err)
		}
		if path, ok := c.cfg.Recorder.LastRecording(); ok {
			c.removeRecording(path)
		}
		c.cfg.Overlay.Show(overlay.Hidden)
		c.finish(context.Background(), Result{Outcome: OutcomeCanceled, Started: c.recStarted})
	case Processing:
		c.wg.Wait()
		c.finish(context.Background(), <-c.finished)
	}
}

func (c *Coordinator) scheduleUpgradePrompt(ctx context.Context) {
	if c.cfg.Prompter == nil {
		return
	}
	c.stopUpgradePrompt()
	c.upgradeTimer = time.AfterFunc(c.cfg.UpgradeDelay, func() {
		c.cfg.Prompter.PromptUpgrade(ctx, true)
	})
}

func (c *Coordinator) stopUpgradePrompt() {
	if c.upgradeTimer != nil {
		c.upgradeTimer.Stop()
		c.upgradeTimer = nil
	}
}

func (c *Coordinator) removeRecording(path string) {
	if err := c.cfg.Remove(path); err != nil {
		slog.Warn("pipeline: remove recording", "path", path, "err", err)
	}
}

// logFailure logs err at a level matching its class.
func logFailure(ctx context.Context, msg string, err error) {
	kind := fault.Classify(err)
	l := observe.Logger(ctx)
	switch kind {
	case fault.KindConfiguration:
		l.Error(msg, "err", err, "class", kind.String())
	case fault.KindCanceled:
		l.Debug(msg, "err", err, "class", kind.String())
	default:
		l.Warn(msg, "err", err, "class", kind.String())
	}
}
