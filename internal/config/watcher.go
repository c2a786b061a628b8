package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] looks at the file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc receives the previous and the newly loaded configuration.
type ReloadFunc func(old, new *Config)

// fingerprint identifies one version of the file on disk.
type fingerprint struct {
	mod time.Time
	sum [sha256.Size]byte
}

// Watcher re-reads a config file whenever it changes and hands each new valid
// version to a [ReloadFunc]. A file that fails to parse or validate is
// reported once and otherwise ignored until it changes again.
type Watcher struct {
	path     string
	interval time.Duration
	reload   ReloadFunc

	mu      sync.Mutex
	current *Config

	// seen is only touched by the polling goroutine.
	seen fingerprint

	quit     chan struct{}
	finished chan struct{}
	once     sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval]. Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and begins watching it. reload may be nil and is
// called from the watcher's own goroutine.
func NewWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		reload:   reload,
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, fp

	go w.loop()
	return w, nil
}

// Current returns the last valid configuration read from disk.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching. It returns once any running [ReloadFunc] is done and
// may be called more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.quit) })
	<-w.finished
}

func (w *Watcher) loop() {
	defer close(w.finished)
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-tick.C:
			w.refresh()
		}
	}
}

func (w *Watcher) refresh() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config file unavailable", "path", w.path, "err", err)
		return
	}
	if info.ModTime().Equal(w.seen.mod) {
		return
	}

	cfg, fp, err := w.read()
	if fp.sum == w.seen.sum {
		// Touched without edits.
		w.seen.mod = fp.mod
		return
	}
	w.seen = fp
	if err != nil {
		slog.Warn("config change ignored", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config file changed", "path", w.path)
	if w.reload != nil {
		w.reload(prev, cfg)
	}
}

// read returns the parsed file together with its fingerprint. The
// fingerprint is filled in whenever the bytes could be read, even when
// parsing fails.
func (w *Watcher) read() (*Config, fingerprint, error) {
	var fp fingerprint
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fp, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fp, err
	}
	fp = fingerprint{mod: info.ModTime(), sum: sha256.Sum256(data)}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fp, err
	}
	return cfg, fp, nil
}
