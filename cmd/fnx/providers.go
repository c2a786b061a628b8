package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/MrWong99/fnx/internal/app"
	"github.com/MrWong99/fnx/internal/config"
	"github.com/MrWong99/fnx/pkg/audio/portaudio"
	"github.com/MrWong99/fnx/pkg/hotkey"
	"github.com/MrWong99/fnx/pkg/hotkey/chord"
	"github.com/MrWong99/fnx/pkg/hotkey/gohook"
	"github.com/MrWong99/fnx/pkg/inject/robotgo"
	"github.com/MrWong99/fnx/pkg/provider/llm"
	"github.com/MrWong99/fnx/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/fnx/pkg/provider/llm/openai"
	"github.com/MrWong99/fnx/pkg/provider/stt"
	sttopenai "github.com/MrWong99/fnx/pkg/provider/stt/openai"
	"github.com/MrWong99/fnx/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the official SDK; it also serves any
	// OpenAI-compatible endpoint via base_url.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org, ok := entry.StringOption("organization"); ok {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other vendor goes through any-llm-go. Local servers take only a
	// base_url.
	for _, name := range anyllm.Names() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			key := entry.APIKey
			if anyllm.IsLocal(name) {
				key = ""
			}
			return anyllm.New(name, entry.Model, anyllm.Options(key, entry.BaseURL)...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if p, ok := entry.StringOption("model_path"); ok && modelPath == "" {
			modelPath = p
		}
		var opts []whisper.NativeOption
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		switch v := entry.Options["threads"].(type) {
		case nil:
		case int:
			if v < 0 {
				return nil, fmt.Errorf("options.threads: %d must not be negative", v)
			}
			opts = append(opts, whisper.WithNativeThreads(uint(v)))
		case string:
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("options.threads: %w", err)
			}
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		default:
			return nil, fmt.Errorf("options.threads: unsupported type %T", v)
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		return sttopenai.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"llm", "stt"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the providers named in cfg. A transcriber that
// fails to build is replaced by [stt.Unavailable] so the hotkey and overlay
// keep working and every session reports the cause.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	entry := cfg.Providers.STT
	p, err := reg.CreateSTT(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	case err != nil:
		p = unavailableSTT(entry.Name, err)
	default:
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}
	ps.STT, ps.STTName = p, entry.Name

	if fb := cfg.Providers.STTFallback; fb.IsSet() {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			slog.Warn("stt fallback disabled", "name", fb.Name, "err", err)
		} else {
			ps.STTFallback, ps.STTFallbackName = p, fb.Name+"-fallback"
			slog.Info("provider created", "kind", "stt_fallback", "name", fb.Name)
		}
	}

	if e := cfg.Providers.LLM; e.IsSet() {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", e.Name, err)
		}
		ps.LLM, ps.LLMName = p, e.Name
		slog.Info("provider created", "kind", "llm", "name", e.Name)
	}

	return ps, nil
}

// buildPlatform opens the microphone and selects the hotkey backend.
func buildPlatform(cfg *config.Config) (app.Platform, error) {
	var src hotkey.Source
	var err error
	switch cfg.Hotkey.Backend {
	case config.HotkeyChord:
		src, err = chord.New(cfg.Hotkey.Key, cfg.Hotkey.Modifiers)
	default:
		src, err = gohook.New(cfg.Hotkey.Key)
	}
	if err != nil {
		return app.Platform{}, fmt.Errorf("hotkey: %w", err)
	}

	mic, err := portaudio.New(portaudio.WithFramesPerBuffer(cfg.Audio.FramesPerBuffer))
	if err != nil {
		return app.Platform{}, fmt.Errorf("microphone: %w", err)
	}

	return app.Platform{
		Microphone: mic,
		Hotkey:     src,
		Keyboard:   robotgo.Sender{},
	}, nil
}
