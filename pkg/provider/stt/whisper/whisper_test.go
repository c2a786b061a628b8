package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/fnx/pkg/audio"
	"github.com/MrWong99/fnx/pkg/provider/stt"
	"github.com/MrWong99/fnx/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type inferenceRequest struct {
	language  string
	translate string
	format    string
	model     string
	fileName  string
	fileSize  int
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records each parsed request.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		_ = f.Close()

		mu.Lock()
		reqs = append(reqs, inferenceRequest{
			language:  r.FormValue("language"),
			translate: r.FormValue("translate"),
			format:    r.FormValue("response_format"),
			model:     r.FormValue("model"),
			fileName:  hdr.Filename,
			fileSize:  len(data),
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

// writeRecording writes n samples of target-format audio to a temp WAV.
func writeRecording(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := audio.NewWAVWriter(f, audio.Target)
	if err != nil {
		t.Fatal(err)
	}
	if n > 0 {
		if err := w.Write(make([]float32, n)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- Transcribe -------------------------------------------------------------

func TestTranscribe_SendsRecordingAndTrims(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, "  turn on the lights\n")
	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeRecording(t, 16000)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "turn on the lights" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	got := reqs[0]
	if got.language != "auto" {
		t.Errorf("language = %q, want auto", got.language)
	}
	if got.translate != "false" {
		t.Errorf("translate = %q, want false", got.translate)
	}
	if got.format != "json" {
		t.Errorf("response_format = %q, want json", got.format)
	}
	if got.model != "base" {
		t.Errorf("model = %q, want base", got.model)
	}
	if got.fileName != "recording.wav" {
		t.Errorf("file name = %q", got.fileName)
	}
	if got.fileSize <= 44 {
		t.Errorf("uploaded %d bytes, want a full recording", got.fileSize)
	}
}

func TestTranscribe_TranslateFlag(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, "hello")
	p, _ := whisper.New(srv.URL, whisper.WithLanguage("de"))

	if _, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeRecording(t, 1600), Translate: true}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	got := requests()[0]
	if got.translate != "true" {
		t.Errorf("translate = %q, want true", got.translate)
	}
	if got.language != "de" {
		t.Errorf("language = %q, want de", got.language)
	}
}

func TestTranscribe_EmptyRecording_ReturnsInvalidAudio(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, "never")
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeRecording(t, 0)})
	if !errors.Is(err, stt.ErrInvalidAudio) {
		t.Fatalf("err = %v, want ErrInvalidAudio", err)
	}
	if n := len(requests()); n != 0 {
		t.Errorf("server saw %d requests for an empty recording", n)
	}
}

func TestTranscribe_MissingFile_ReturnsInvalidAudio(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://127.0.0.1:0")
	_, err := p.Transcribe(context.Background(), stt.Request{AudioPath: filepath.Join(t.TempDir(), "gone.wav")})
	if !errors.Is(err, stt.ErrInvalidAudio) {
		t.Fatalf("err = %v, want ErrInvalidAudio", err)
	}
}

func TestTranscribe_ServerError_ReturnsAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeRecording(t, 1600)})
	var apiErr *stt.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *stt.APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "model busy" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestTranscribe_MalformedJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeRecording(t, 1600)}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "hello")
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Transcribe(ctx, stt.Request{AudioPath: writeRecording(t, 1600)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
