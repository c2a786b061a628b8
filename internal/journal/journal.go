// Package journal appends one JSON line per dictation session to a local
// file. Entries carry timings, the rule and the outcome, never the
// transcribed text.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/fnx/internal/fault"
	"github.com/MrWong99/fnx/internal/pipeline"
)

// Entry is a single journal line.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
	Rule      string    `json:"rule,omitempty"`
	Translate bool      `json:"translate,omitempty"`
	Transform bool      `json:"transform,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Class     string    `json:"error_class,omitempty"`
	Chars     int       `json:"chars"`
	Counted   bool      `json:"counted"`

	TotalMS      int64 `json:"total_ms"`
	TranscribeMS int64 `json:"transcribe_ms,omitempty"`
	TransformMS  int64 `json:"transform_ms,omitempty"`
	InjectMS     int64 `json:"inject_ms,omitempty"`
}

// FromResult converts a session result into an entry.
func FromResult(r pipeline.Result) Entry {
	e := Entry{
		ID:           uuid.NewString(),
		Timestamp:    r.Started.UTC(),
		Outcome:      string(r.Outcome),
		Rule:         r.Rule,
		Translate:    r.Translate,
		Transform:    r.Transform,
		Reason:       string(r.Reason),
		Chars:        r.Chars,
		Counted:      r.Counted,
		TotalMS:      r.Total.Milliseconds(),
		TranscribeMS: r.TranscribeLatency.Milliseconds(),
		TransformMS:  r.TransformLatency.Milliseconds(),
		InjectMS:     r.InjectLatency.Milliseconds(),
	}
	if r.Err != nil {
		e.Class = fault.Classify(r.Err).String()
	}
	if r.Started.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

// FileStore appends entries to a JSON lines file. It is safe for
// concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore writing to path. The file and its
// directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the journal file location.
func (fs *FileStore) Path() string { return fs.path }

// Append writes e as one line.
func (fs *FileStore) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("journal: create directory: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Observer returns a pipeline observer that journals every session. Write
// failures are logged and otherwise ignored.
func (fs *FileStore) Observer() func(pipeline.Result) {
	return func(r pipeline.Result) {
		if err := fs.Append(FromResult(r)); err != nil {
			slog.Warn("journal: append failed", "path", fs.path, "err", err)
		}
	}
}

// ReadAll loads every entry from path. Malformed lines are skipped.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			slog.Debug("journal: skipping malformed line", "line", line, "err", err)
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("journal: read: %w", err)
	}
	return out, nil
}
