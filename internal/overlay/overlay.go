// Package overlay tracks what the floating status indicator should show and
// hides it again after short, state-dependent delays.
//
// The presenter holds only the most recent state. Every transition cancels
// the pending auto-hide of the state it replaces, so a stale timer can never
// hide a newer state.
package overlay

import (
	"log/slog"
	"sync"
	"time"
)

// State is a visible overlay state.
type State int

const (
	Hidden State = iota
	Recording
	Processing
	Done
	LimitReached
	ProRequired
)

// String returns the state's identifier.
func (s State) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Done:
		return "done"
	case LimitReached:
		return "limit_reached"
	case ProRequired:
		return "pro_required"
	default:
		return "unknown"
	}
}

// Label is the user-facing text for s.
func (s State) Label() string {
	switch s {
	case Recording:
		return "Listening..."
	case Processing:
		return "Processing..."
	case Done:
		return "Done!"
	case LimitReached:
		return "Daily limit reached"
	case ProRequired:
		return "Pro required for AI Rules"
	default:
		return ""
	}
}

// Default auto-hide delays.
const (
	DefaultDoneDelay    = 1200 * time.Millisecond
	DefaultBlockedDelay = 3 * time.Second
)

// Renderer draws a state. Render is called with the presenter's lock held,
// in transition order, and must not call back into the presenter.
type Renderer interface {
	Render(s State)
}

// RendererFunc adapts a function to [Renderer].
type RendererFunc func(State)

// Render implements [Renderer].
func (f RendererFunc) Render(s State) { f(s) }

// LogRenderer writes every transition to the default logger.
type LogRenderer struct{}

// Render implements [Renderer].
func (LogRenderer) Render(s State) {
	slog.Debug("overlay", "state", s.String(), "label", s.Label())
}

// Option configures a [Presenter].
type Option func(*Presenter)

// WithDelays overrides the auto-hide delays. Non-positive values keep the
// defaults.
func WithDelays(done, blocked time.Duration) Option {
	return func(p *Presenter) { p.setDelays(done, blocked) }
}

// WithRenderer adds a renderer. Renderers are called in registration order.
func WithRenderer(r Renderer) Option {
	return func(p *Presenter) { p.renderers = append(p.renderers, r) }
}

// Presenter is the overlay state machine. It is safe for concurrent use.
type Presenter struct {
	mu           sync.Mutex
	state        State
	gen          uint64
	timer        *time.Timer
	doneDelay    time.Duration
	blockedDelay time.Duration
	renderers    []Renderer
}

// New returns a hidden Presenter.
func New(opts ...Option) *Presenter {
	p := &Presenter{
		doneDelay:    DefaultDoneDelay,
		blockedDelay: DefaultBlockedDelay,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Presenter) setDelays(done, blocked time.Duration) {
	if done > 0 {
		p.doneDelay = done
	}
	if blocked > 0 {
		p.blockedDelay = blocked
	}
}

// SetDelays changes the auto-hide delays for future transitions.
func (p *Presenter) SetDelays(done, blocked time.Duration) {
	p.mu.Lock()
	p.setDelays(done, blocked)
	p.mu.Unlock()
}

// State returns the current state.
func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Show transitions to s, cancelling any pending auto-hide. Done,
// LimitReached and ProRequired schedule their own return to Hidden.
func (p *Presenter) Show(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s == Hidden && p.state == Hidden {
		p.cancelTimer()
		return
	}
	p.transition(s)

	var delay time.Duration
	switch s {
	case Done:
		delay = p.doneDelay
	case LimitReached, ProRequired:
		delay = p.blockedDelay
	default:
		return
	}
	gen := p.gen
	p.timer = time.AfterFunc(delay, func() { p.autoHide(gen) })
}

// Hide is Show(Hidden).
func (p *Presenter) Hide() { p.Show(Hidden) }

// Close cancels any pending auto-hide without rendering.
func (p *Presenter) Close() {
	p.mu.Lock()
	p.cancelTimer()
	p.gen++
	p.mu.Unlock()
}

func (p *Presenter) autoHide(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.timer = nil
	p.transition(Hidden)
}

// transition applies s. Callers hold mu.
func (p *Presenter) transition(s State) {
	p.cancelTimer()
	p.gen++
	p.state = s
	for _, r := range p.renderers {
		r.Render(s)
	}
}

func (p *Presenter) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
