// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/fnx/pkg/audio"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// minSamples is the shortest recording handed to the model, 100 ms at
// 16 kHz. whisper.cpp produces nothing useful below that.
const minSamples = 1600

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at startup and shared across calls; each
// call creates its own inference context.
type NativeProvider struct {
	language string
	threads  uint

	mu    sync.RWMutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription (e.g., "en",
// "de"). Defaults to "auto".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithNativeThreads sets the number of CPU threads used per inference.
// Zero keeps the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: modelPath must not be empty", stt.ErrModelNotLoaded)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %w", stt.ErrModelNotLoaded, modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	slog.Info("whisper model loaded", "path", modelPath, "multilingual", model.IsMultilingual())
	return p, nil
}

// Close releases the whisper model. Later Transcribe calls fail with
// stt.ErrModelNotLoaded.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Ready reports whether the model is loaded.
func (p *NativeProvider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model != nil
}

// Transcribe decodes the recording and runs whisper.cpp inference on it.
// The context is checked before inference starts; whisper.cpp itself
// cannot be interrupted.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	samples, format, err := audio.ReadWAV(req.AudioPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stt.ErrInvalidAudio, err)
	}
	if format != audio.Target {
		return "", fmt.Errorf("%w: recording is %s, want %s", stt.ErrInvalidAudio, format, audio.Target)
	}
	if len(samples) < minSamples {
		return "", fmt.Errorf("%w: %d samples", stt.ErrInvalidAudio, len(samples))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return "", stt.ErrModelNotLoaded
	}
	return p.infer(samples, req.Translate)
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated text.
func (p *NativeProvider) infer(samples []float32, translate bool) (string, error) {
	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}
	if translate && !wctx.IsMultilingual() {
		slog.Warn("whisper: model is English-only, translation has no effect")
	}
	wctx.SetTranslate(translate)
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
