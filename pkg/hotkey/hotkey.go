// Package hotkey turns raw global key state into hold-to-talk edges.
//
// A [Source] reports the up/down state of one designated key as the host
// input subsystem delivers it, repeats and all. [Watcher] latches that
// state so each physical hold produces exactly one [EdgeStarted] followed by
// exactly one [EdgeStopped]. No debounce is applied.
//
// If the host refuses to let the process observe global input the source
// simply stays silent; detecting that is left to the caller.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Edge is a logical transition of the hold-to-talk key.
type Edge int

const (
	// EdgeStarted means the key is newly held.
	EdgeStarted Edge = iota + 1
	// EdgeStopped means the key is newly released.
	EdgeStopped
)

func (e Edge) String() string {
	switch e {
	case EdgeStarted:
		return "started"
	case EdgeStopped:
		return "stopped"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// Source observes one key system-wide.
type Source interface {
	// Open registers with the host input subsystem and returns a channel
	// carrying the key state (true = down) for every relevant hardware
	// event. The channel may be closed by the source when it gives up.
	Open() (<-chan bool, error)

	// Close unregisters from the host. No values are sent after Close
	// returns.
	Close() error
}

// edgeBuffer absorbs short bursts while the consumer is busy.
const edgeBuffer = 8

// Watcher latches a [Source] into edges. Start and Stop may be called any
// number of times; a running watcher is registered exactly once.
type Watcher struct {
	src   Source
	edges chan Edge

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	// held is owned by the run goroutine while running and by Stop
	// afterwards.
	held bool
}

// NewWatcher returns a stopped Watcher over src.
func NewWatcher(src Source) *Watcher {
	return &Watcher{
		src:   src,
		edges: make(chan Edge, edgeBuffer),
	}
}

// Edges returns the channel edges are delivered on. It is never closed, so
// a Watcher can be stopped and started again.
func (w *Watcher) Edges() <-chan Edge { return w.edges }

// Start registers with the source. Calling Start on a running watcher is a
// no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	states, err := w.src.Open()
	if err != nil {
		return fmt.Errorf("hotkey: open source: %w", err)
	}
	w.done = make(chan struct{})
	w.running = true
	w.held = false

	w.wg.Add(1)
	go w.run(states, w.done)
	return nil
}

// Stop unregisters from the source. If the key was held, a final
// [EdgeStopped] is emitted so consumers never see an unbalanced start.
// Calling Stop on a stopped watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false

	err := w.src.Close()
	close(w.done)
	w.wg.Wait()

	if w.held {
		w.held = false
		select {
		case w.edges <- EdgeStopped:
		default:
			slog.Warn("hotkey: edge buffer full, dropping final stop edge")
		}
	}
	if err != nil {
		return fmt.Errorf("hotkey: close source: %w", err)
	}
	return nil
}

func (w *Watcher) run(states <-chan bool, done <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-done:
			return
		case down, ok := <-states:
			if !ok {
				slog.Warn("hotkey: source closed its event stream")
				return
			}
			edge, changed := w.latch(down)
			if !changed {
				continue
			}
			select {
			case w.edges <- edge:
			case <-done:
				return
			}
		}
	}
}

// latch applies one raw state to the held flag and reports the resulting
// edge, if any.
func (w *Watcher) latch(down bool) (Edge, bool) {
	switch {
	case down && !w.held:
		w.held = true
		return EdgeStarted, true
	case !down && w.held:
		w.held = false
		return EdgeStopped, true
	default:
		return 0, false
	}
}

// ErrUnknownKey is returned by source constructors for key names they do
// not recognise.
var ErrUnknownKey = errors.New("hotkey: unknown key")
