package config_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/fnx/internal/config"
	"github.com/MrWong99/fnx/internal/usage"
	"github.com/MrWong99/fnx/pkg/provider/llm"
	llmmock "github.com/MrWong99/fnx/pkg/provider/llm/mock"
	"github.com/MrWong99/fnx/pkg/provider/stt"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: "127.0.0.1:9464"
  log_level: debug

providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
    options:
      language: en
  stt_fallback:
    name: openai
    api_key: sk-test
    model: whisper-1
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini

hotkey:
  backend: chord
  key: space
  modifiers: [ctrl, shift]

audio:
  temp_dir: /tmp/fnx
  frames_per_buffer: 512

usage:
  daily_limit: 30
  tier: pro
  rules_require_pro: false
  pro_required_counts_usage: true

store:
  path: /tmp/fnx/state.sqlite

overlay:
  done_delay: 2s
  blocked_delay: 4500ms

inject:
  chunk_size: 10
  chunk_delay: 1ms

rules:
  active: Shouty
  custom:
    - name: Shouty
      prompt: Rewrite in upper case.
    - name: Translate again
      use_translation: true

journal:
  path: /tmp/fnx/journal.jsonl
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_AllSections(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != "127.0.0.1:9464" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.STT.Name != "whisper" || cfg.Providers.STT.BaseURL != "http://localhost:8081" {
		t.Errorf("providers.stt = %+v", cfg.Providers.STT)
	}
	if lang, ok := cfg.Providers.STT.StringOption("language"); !ok || lang != "en" {
		t.Errorf("stt language option = %q, %v", lang, ok)
	}
	if cfg.Providers.STTFallback.Model != "whisper-1" {
		t.Errorf("providers.stt_fallback = %+v", cfg.Providers.STTFallback)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("providers.llm = %+v", cfg.Providers.LLM)
	}
	if cfg.Hotkey.Backend != config.HotkeyChord || cfg.Hotkey.Key != "space" ||
		!slices.Equal(cfg.Hotkey.Modifiers, []string{"ctrl", "shift"}) {
		t.Errorf("hotkey = %+v", cfg.Hotkey)
	}
	if cfg.Audio.TempDir != "/tmp/fnx" || cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	want := config.UsageConfig{DailyLimit: 30, Tier: usage.TierPro, RulesRequirePro: false, ProRequiredCountsUsage: true}
	if cfg.Usage != want {
		t.Errorf("usage = %+v, want %+v", cfg.Usage, want)
	}
	if cfg.Store.Path != "/tmp/fnx/state.sqlite" {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
	if cfg.Overlay.DoneDelay != 2*time.Second || cfg.Overlay.BlockedDelay != 4500*time.Millisecond {
		t.Errorf("overlay = %+v", cfg.Overlay)
	}
	if cfg.Inject.ChunkSize != 10 || cfg.Inject.ChunkDelay != time.Millisecond {
		t.Errorf("inject = %+v", cfg.Inject)
	}
	if cfg.Rules.Active != "Shouty" || len(cfg.Rules.Custom) != 2 || !cfg.Rules.Custom[1].UseTranslation {
		t.Errorf("rules = %+v", cfg.Rules)
	}
	if cfg.Journal.Path != "/tmp/fnx/journal.jsonl" {
		t.Errorf("journal.path = %q", cfg.Journal.Path)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "providers:\n  stt:\n    name: whisper\n")

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Hotkey.Backend != config.HotkeyHook || cfg.Hotkey.Key != "fn" {
		t.Errorf("hotkey = %+v, want hook/fn", cfg.Hotkey)
	}
	if cfg.Usage.DailyLimit != usage.DefaultDailyLimit {
		t.Errorf("daily_limit = %d, want %d", cfg.Usage.DailyLimit, usage.DefaultDailyLimit)
	}
	if !cfg.Usage.RulesRequirePro {
		t.Error("rules_require_pro should default to true")
	}
	if cfg.Usage.ProRequiredCountsUsage {
		t.Error("pro_required_counts_usage should default to false")
	}
	if cfg.Overlay.DoneDelay != 1200*time.Millisecond || cfg.Overlay.BlockedDelay != 3*time.Second {
		t.Errorf("overlay = %+v", cfg.Overlay)
	}
	if cfg.Inject.ChunkSize != 20 || cfg.Inject.ChunkDelay != 5*time.Millisecond {
		t.Errorf("inject = %+v", cfg.Inject)
	}
	if cfg.Server.ListenAddr != "" || cfg.Journal.Path != "" {
		t.Error("listen_addr and journal.path should default to empty")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: whisper\nnpcs: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: whisper\noverlay:\n  done_delay: soon\n"))
	if err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

// ── validation ───────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing stt", func(c *config.Config) { c.Providers.STT = config.ProviderEntry{} }, "providers.stt.name"},
		{"log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"hotkey backend", func(c *config.Config) { c.Hotkey.Backend = "telepathy" }, "hotkey.backend"},
		{"hotkey key", func(c *config.Config) { c.Hotkey.Key = " " }, "hotkey.key"},
		{"frames", func(c *config.Config) { c.Audio.FramesPerBuffer = -1 }, "audio.frames_per_buffer"},
		{"daily limit", func(c *config.Config) { c.Usage.DailyLimit = -3 }, "usage.daily_limit"},
		{"tier", func(c *config.Config) { c.Usage.Tier = "gold" }, "usage.tier"},
		{"done delay", func(c *config.Config) { c.Overlay.DoneDelay = -time.Second }, "overlay.done_delay"},
		{"blocked delay", func(c *config.Config) { c.Overlay.BlockedDelay = -time.Second }, "overlay.blocked_delay"},
		{"chunk size", func(c *config.Config) { c.Inject.ChunkSize = 0 }, "inject.chunk_size"},
		{"chunk delay", func(c *config.Config) { c.Inject.ChunkDelay = -time.Millisecond }, "inject.chunk_delay"},
		{"rule name", func(c *config.Config) { c.Rules.Custom = []config.RuleConfig{{Prompt: "x"}} }, "rules.custom[0].name"},
		{"duplicate rule", func(c *config.Config) {
			c.Rules.Custom = []config.RuleConfig{{Name: "Loud", Prompt: "a"}, {Name: "loud", Prompt: "b"}}
		}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Providers.STT.Name = "whisper"
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Inject.ChunkSize = 0
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"providers.stt.name", "server.log_level", "inject.chunk_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error is missing %q: %v", want, err)
		}
	}
}

func TestValidate_DefaultsWithSTTAreValid(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.STT.Name = "some-third-party"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unknown provider names only warn, got %v", err)
	}
}

// ── enums ─────────────────────────────────────────────────────────────────────

func TestEnums_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
	if !config.HotkeyHook.IsValid() || !config.HotkeyChord.IsValid() {
		t.Error("hook and chord should be valid")
	}
	if config.HotkeyBackend("").IsValid() {
		t.Error("empty backend should be invalid")
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Provider, error) {
		got = e
		return stt.ProviderFunc(func(context.Context, stt.Request) (string, error) { return "hi", nil }), nil
	})

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "fake", Model: "tiny"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if got.Model != "tiny" {
		t.Errorf("factory saw model %q, want tiny", got.Model)
	}
	text, _ := p.Transcribe(context.Background(), stt.Request{})
	if text != "hi" {
		t.Errorf("Transcribe = %q", text)
	}
}

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &llmmock.Provider{}
	reg.RegisterLLM("fake", func(config.ProviderEntry) (llm.Provider, error) { return want, nil })

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "fake"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p != want {
		t.Error("CreateLLM returned a different provider")
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("bad", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	noop := func(config.ProviderEntry) (stt.Provider, error) { return nil, nil }
	reg.RegisterSTT("whisper", noop)
	reg.RegisterSTT("openai", noop)
	reg.RegisterSTT("openai", noop)

	if got := reg.Names("stt"); !slices.Equal(got, []string{"openai", "whisper"}) {
		t.Errorf("Names(stt) = %v", got)
	}
	if got := reg.Names("llm"); len(got) != 0 {
		t.Errorf("Names(llm) = %v, want empty", got)
	}
}
