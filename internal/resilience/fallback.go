package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed means no member of a [FallbackGroup] produced a result. The
// error of the last member tried is wrapped alongside it.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the breaker template applied to every member of a
// [FallbackGroup]. Each member gets its own breaker named after it.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable backends, each behind
// its own [CircuitBreaker]. Calls go to the first member whose breaker
// admits them. A member error that its breaker counts as a failure moves on
// to the next member; any other error is final.
//
// Members are added during setup only. AddFallback must not race with calls.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a member tried after all existing ones.
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

func (g *FallbackGroup[T]) Len() int   { return len(g.members) }
func (g *FallbackGroup[T]) Primary() T { return g.members[0].value }

// States reports the breaker state of every member by name.
func (g *FallbackGroup[T]) States() map[string]State {
	states := make(map[string]State, len(g.members))
	for _, m := range g.members {
		states[m.name] = m.breaker.State()
	}
	return states
}

// Execute is [ExecuteWithResult] for calls without a result.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// ExecuteWithResult runs fn against the members of g in order and returns
// the first success.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var last error
	for i, m := range g.members {
		out, err := attempt(m, fn)
		switch {
		case err == nil:
			if i > 0 {
				slog.Info("fallback provider served request", "provider", m.name)
			}
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		case !m.breaker.isFailure(err):
			return zero, err
		case i+1 < len(g.members):
			slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		last = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

func attempt[T, R any](m member[T], fn func(T) (R, error)) (R, error) {
	var out R
	err := m.breaker.Execute(func() error {
		var err error
		out, err = fn(m.value)
		return err
	})
	return out, err
}
