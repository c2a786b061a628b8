// Package chord provides a [hotkey.Source] for modifier+key combinations
// registered through golang.design/x/hotkey.
//
// On macOS the registration must happen while mainthread.Init is driving the
// main goroutine; see cmd/fnx.
package chord

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	xhotkey "golang.design/x/hotkey"

	"github.com/MrWong99/fnx/pkg/hotkey"
)

// Compile-time interface assertion.
var _ hotkey.Source = (*Source)(nil)

var keys = map[string]xhotkey.Key{
	"space": xhotkey.KeySpace, "return": xhotkey.KeyReturn,
	"escape": xhotkey.KeyEscape, "tab": xhotkey.KeyTab,
	"a": xhotkey.KeyA, "b": xhotkey.KeyB, "c": xhotkey.KeyC, "d": xhotkey.KeyD,
	"e": xhotkey.KeyE, "f": xhotkey.KeyF, "g": xhotkey.KeyG, "h": xhotkey.KeyH,
	"i": xhotkey.KeyI, "j": xhotkey.KeyJ, "k": xhotkey.KeyK, "l": xhotkey.KeyL,
	"m": xhotkey.KeyM, "n": xhotkey.KeyN, "o": xhotkey.KeyO, "p": xhotkey.KeyP,
	"q": xhotkey.KeyQ, "r": xhotkey.KeyR, "s": xhotkey.KeyS, "t": xhotkey.KeyT,
	"u": xhotkey.KeyU, "v": xhotkey.KeyV, "w": xhotkey.KeyW, "x": xhotkey.KeyX,
	"y": xhotkey.KeyY, "z": xhotkey.KeyZ,
	"0": xhotkey.Key0, "1": xhotkey.Key1, "2": xhotkey.Key2, "3": xhotkey.Key3,
	"4": xhotkey.Key4, "5": xhotkey.Key5, "6": xhotkey.Key6, "7": xhotkey.Key7,
	"8": xhotkey.Key8, "9": xhotkey.Key9,
	"f1": xhotkey.KeyF1, "f2": xhotkey.KeyF2, "f3": xhotkey.KeyF3, "f4": xhotkey.KeyF4,
	"f5": xhotkey.KeyF5, "f6": xhotkey.KeyF6, "f7": xhotkey.KeyF7, "f8": xhotkey.KeyF8,
	"f9": xhotkey.KeyF9, "f10": xhotkey.KeyF10, "f11": xhotkey.KeyF11, "f12": xhotkey.KeyF12,
}

// Source registers one chord and reports its press and release.
type Source struct {
	desc string
	mods []xhotkey.Modifier
	key  xhotkey.Key

	mu   sync.Mutex
	hk   *xhotkey.Hotkey
	done chan struct{}
	wg   sync.WaitGroup
}

// New parses a key name and modifier names (e.g. "space", ["ctrl",
// "shift"]). Modifier names depend on the platform; see [ModifierNames].
func New(key string, modifiers []string) (*Source, error) {
	k, ok := keys[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, fmt.Errorf("%w %q", hotkey.ErrUnknownKey, key)
	}
	mods := make([]xhotkey.Modifier, 0, len(modifiers))
	for _, name := range modifiers {
		m, ok := modifierByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: modifier %q (known: %s)", hotkey.ErrUnknownKey, name, strings.Join(ModifierNames(), ", "))
		}
		mods = append(mods, m)
	}
	desc := strings.Join(append(append([]string(nil), modifiers...), key), "+")
	return &Source{desc: desc, mods: mods, key: k}, nil
}

// ModifierNames lists the modifier names accepted on this platform.
func ModifierNames() []string {
	names := make([]string, 0, len(modifierByName))
	for k := range modifierByName {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Open implements [hotkey.Source].
func (s *Source) Open() (<-chan bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hk != nil {
		return nil, fmt.Errorf("chord: %s already registered", s.desc)
	}

	hk := xhotkey.New(s.mods, s.key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("chord: register %s: %w", s.desc, err)
	}
	s.hk = hk
	s.done = make(chan struct{})

	out := make(chan bool, 16)
	s.wg.Add(1)
	go func(done <-chan struct{}) {
		defer s.wg.Done()
		defer close(out)
		for {
			var down bool
			select {
			case <-done:
				return
			case <-hk.Keydown():
				down = true
			case <-hk.Keyup():
				down = false
			}
			select {
			case out <- down:
			case <-done:
				return
			}
		}
	}(s.done)

	slog.Debug("chord: registered", "hotkey", s.desc)
	return out, nil
}

// Close implements [hotkey.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hk == nil {
		return nil
	}
	close(s.done)
	s.wg.Wait()
	err := s.hk.Unregister()
	s.hk = nil
	if err != nil {
		return fmt.Errorf("chord: unregister %s: %w", s.desc, err)
	}
	return nil
}
