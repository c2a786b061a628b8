// Package gohook provides a [hotkey.Source] backed by a global keyboard hook
// (github.com/robotn/gohook). It can watch bare modifier keys such as fn or
// right option, which chord-style hotkey APIs cannot register on their own.
//
// On macOS the process needs the Accessibility (Input Monitoring)
// permission; without it the hook delivers nothing.
package gohook

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/MrWong99/fnx/pkg/hotkey"
)

// Compile-time interface assertion.
var _ hotkey.Source = (*Source)(nil)

// macKeycodes maps key names to macOS virtual keycodes as reported in
// Event.Rawcode.
var macKeycodes = map[string]uint16{
	"fn":            63,
	"right_option":  61,
	"right_command": 54,
	"right_control": 62,
	"right_shift":   60,
	"left_option":   58,
	"left_command":  55,
	"left_control":  59,
	"left_shift":    56,
	"caps_lock":     57,
}

// KeyNames lists the key names accepted by [New] in sorted order.
func KeyNames() []string {
	names := make([]string, 0, len(macKeycodes))
	for k := range macKeycodes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Source watches a single key through the global hook.
type Source struct {
	key     string
	rawcode uint16

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// New returns a Source for the named key (see [KeyNames]).
func New(key string) (*Source, error) {
	name := strings.ToLower(strings.TrimSpace(key))
	code, ok := macKeycodes[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", hotkey.ErrUnknownKey, key, strings.Join(KeyNames(), ", "))
	}
	return &Source{key: name, rawcode: code}, nil
}

// Open implements [hotkey.Source]. It starts the process-wide hook; only one
// Source should be open at a time.
func (s *Source) Open() (<-chan bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil, fmt.Errorf("gohook: source for %q already open", s.key)
	}

	events := hook.Start()
	out := make(chan bool, 16)
	done := make(chan struct{})
	s.done = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		for {
			select {
			case <-done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				down, match := keyState(ev, s.rawcode)
				if !match {
					continue
				}
				select {
				case out <- down:
				case <-done:
					return
				}
			}
		}
	}()

	slog.Debug("gohook: listening", "key", s.key, "rawcode", s.rawcode)
	return out, nil
}

// Close implements [hotkey.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return nil
	}
	hook.End()
	close(s.done)
	s.wg.Wait()
	s.done = nil
	return nil
}

// keyState extracts the state of the watched key from a hook event.
func keyState(ev hook.Event, rawcode uint16) (down, match bool) {
	if ev.Rawcode != rawcode {
		return false, false
	}
	switch ev.Kind {
	case hook.KeyDown, hook.KeyHold:
		return true, true
	case hook.KeyUp:
		return false, true
	default:
		return false, false
	}
}
