package journal_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/fnx/internal/fault"
	"github.com/MrWong99/fnx/internal/journal"
	"github.com/MrWong99/fnx/internal/pipeline"
	"github.com/MrWong99/fnx/internal/quality"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

func TestFromResult(t *testing.T) {
	t.Parallel()
	started := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	e := journal.FromResult(pipeline.Result{
		Outcome:           pipeline.OutcomeDone,
		Started:           started,
		Rule:              "✏️ Clean English",
		Transform:         true,
		Chars:             42,
		Counted:           true,
		Total:             2500 * time.Millisecond,
		TranscribeLatency: 900 * time.Millisecond,
		TransformLatency:  1400 * time.Millisecond,
		InjectLatency:     150 * time.Millisecond,
	})
	if e.ID == "" || !e.Timestamp.Equal(started) {
		t.Errorf("id/timestamp = %q %v", e.ID, e.Timestamp)
	}
	if e.Outcome != "done" || e.Chars != 42 || !e.Counted || !e.Transform {
		t.Errorf("entry = %+v", e)
	}
	if e.TotalMS != 2500 || e.TranscribeMS != 900 || e.TransformMS != 1400 || e.InjectMS != 150 {
		t.Errorf("timings = %+v", e)
	}
	if e.Class != "" {
		t.Errorf("class = %q, want empty", e.Class)
	}
}

func TestFromResult_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		res   pipeline.Result
		class string
	}{
		{"transient", pipeline.Result{Outcome: pipeline.OutcomeError, Err: &stt.APIError{StatusCode: 502}}, "transient"},
		{"policy", pipeline.Result{Outcome: pipeline.OutcomeLowQuality, Reason: quality.ReasonDenylisted, Err: fault.Reject("denylisted")}, "policy"},
		{"config", pipeline.Result{Outcome: pipeline.OutcomeError, Err: stt.ErrModelNotLoaded}, "configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := journal.FromResult(tt.res)
			if e.Class != tt.class {
				t.Errorf("class = %q, want %q", e.Class, tt.class)
			}
			if e.Timestamp.IsZero() {
				t.Error("timestamp should default to now")
			}
		})
	}
}

func TestFileStore_AppendAndRead(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "journal.jsonl")
	fs := journal.NewFileStore(path)

	obs := fs.Observer()
	obs(pipeline.Result{Outcome: pipeline.OutcomeDone, Chars: 5})
	obs(pipeline.Result{Outcome: pipeline.OutcomeLowQuality, Reason: quality.ReasonTooShort})

	got, err := journal.ReadAll(fs.Path())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 || got[0].Outcome != "done" || got[1].Reason != "too_short" {
		t.Errorf("entries = %+v", got)
	}
}

func TestFileStore_NeverStoresText(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	fs := journal.NewFileStore(path)
	if err := fs.Append(journal.FromResult(pipeline.Result{
		Outcome: pipeline.OutcomeError,
		Err:     errors.New("transcribe: my secret words"),
	})); err != nil {
		t.Fatalf("Append: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "secret") {
		t.Errorf("journal leaked error text: %s", data)
	}
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	fs := journal.NewFileStore(filepath.Join(t.TempDir(), "journal.jsonl"))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fs.Append(journal.Entry{Outcome: "done"})
		}()
	}
	wg.Wait()

	got, err := journal.ReadAll(fs.Path())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("got %d entries, want 20", len(got))
	}
}

func TestReadAll_SkipsMalformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	content := `{"outcome":"done","chars":3}` + "\n" + "garbage\n" + `{"outcome":"error"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := journal.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
}

func TestReadAll_Missing(t *testing.T) {
	t.Parallel()
	if _, err := journal.ReadAll(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}
