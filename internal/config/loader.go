package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "whisper-native", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if !cfg.Providers.STT.IsSet() {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.STTFallback.IsSet() && sameEntry(cfg.Providers.STTFallback, cfg.Providers.STT) {
		slog.Warn("providers.stt_fallback is identical to providers.stt; the fallback adds nothing")
	}

	// Hotkey
	switch {
	case !cfg.Hotkey.Backend.IsValid():
		errs = append(errs, fmt.Errorf("hotkey.backend %q is invalid; valid values: hook, chord", cfg.Hotkey.Backend))
	case strings.TrimSpace(cfg.Hotkey.Key) == "":
		errs = append(errs, errors.New("hotkey.key is required"))
	case cfg.Hotkey.Backend == HotkeyHook && len(cfg.Hotkey.Modifiers) > 0:
		slog.Warn("hotkey.modifiers is ignored by the hook backend", "modifiers", cfg.Hotkey.Modifiers)
	}

	// Audio
	if cfg.Audio.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d must not be negative", cfg.Audio.FramesPerBuffer))
	}

	// Usage
	if cfg.Usage.DailyLimit < 0 {
		errs = append(errs, fmt.Errorf("usage.daily_limit %d must not be negative", cfg.Usage.DailyLimit))
	}
	if cfg.Usage.Tier != "" && !cfg.Usage.Tier.IsValid() {
		errs = append(errs, fmt.Errorf("usage.tier %q is invalid; valid values: free, pro", cfg.Usage.Tier))
	}

	// Overlay
	if cfg.Overlay.DoneDelay < 0 {
		errs = append(errs, fmt.Errorf("overlay.done_delay %s must not be negative", cfg.Overlay.DoneDelay))
	}
	if cfg.Overlay.BlockedDelay < 0 {
		errs = append(errs, fmt.Errorf("overlay.blocked_delay %s must not be negative", cfg.Overlay.BlockedDelay))
	}

	// Inject
	if cfg.Inject.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("inject.chunk_size %d must be at least 1", cfg.Inject.ChunkSize))
	}
	if cfg.Inject.ChunkDelay < 0 {
		errs = append(errs, fmt.Errorf("inject.chunk_delay %s must not be negative", cfg.Inject.ChunkDelay))
	}

	// Rules
	seen := make(map[string]int, len(cfg.Rules.Custom))
	for i, r := range cfg.Rules.Custom {
		prefix := fmt.Sprintf("rules.custom[%d]", i)
		name := strings.TrimSpace(r.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of rules.custom[%d]", prefix, r.Name, prev))
		}
		seen[key] = i
		if r.UseTranslation && strings.TrimSpace(r.Prompt) != "" {
			slog.Warn("translation rule prompt is ignored", "rule", r.Name)
		}
		if !r.UseTranslation && strings.TrimSpace(r.Prompt) != "" && !cfg.Providers.LLM.IsSet() {
			slog.Warn("prompt rule configured without providers.llm; it will transcribe only", "rule", r.Name)
		}
	}

	return errors.Join(errs...)
}

// sameEntry compares everything but Options.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
