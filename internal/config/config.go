// Package config provides the configuration schema, loader, and provider
// registry for the fnx dictation daemon.
package config

import (
	"time"

	"github.com/MrWong99/fnx/internal/usage"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// HotkeyBackend selects how the hold-to-talk key is observed.
type HotkeyBackend string

const (
	// HotkeyHook watches a single (modifier) key through a global keyboard
	// hook. This is the only backend that can observe the fn key.
	HotkeyHook HotkeyBackend = "hook"

	// HotkeyChord registers a modifier+key combination with the OS.
	HotkeyChord HotkeyBackend = "chord"
)

// IsValid reports whether b is a recognised hotkey backend.
func (b HotkeyBackend) IsValid() bool {
	return b == HotkeyHook || b == HotkeyChord
}

// Defaults applied by [Default] before a file is decoded over them.
const (
	DefaultHotkeyKey       = "fn"
	DefaultFramesPerBuffer = 1024
	DefaultDoneDelay       = 1200 * time.Millisecond
	DefaultBlockedDelay    = 3 * time.Second
	DefaultChunkSize       = 20
	DefaultChunkDelay      = 5 * time.Millisecond
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Hotkey    HotkeyConfig    `yaml:"hotkey"`
	Audio     AudioConfig     `yaml:"audio"`
	Usage     UsageConfig     `yaml:"usage"`
	Store     StoreConfig     `yaml:"store"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Inject    InjectConfig    `yaml:"inject"`
	Rules     RulesConfig     `yaml:"rules"`
	Journal   JournalConfig   `yaml:"journal"`
}

// Default returns a Config populated with every default value. Files are
// decoded on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Hotkey: HotkeyConfig{Backend: HotkeyHook, Key: DefaultHotkeyKey},
		Audio:  AudioConfig{FramesPerBuffer: DefaultFramesPerBuffer},
		Usage: UsageConfig{
			DailyLimit:      usage.DefaultDailyLimit,
			RulesRequirePro: true,
		},
		Overlay: OverlayConfig{DoneDelay: DefaultDoneDelay, BlockedDelay: DefaultBlockedDelay},
		Inject:  InjectConfig{ChunkSize: DefaultChunkSize, ChunkDelay: DefaultChunkDelay},
	}
}

// ServerConfig holds logging and the optional metrics/health endpoint.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., "127.0.0.1:9464"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// STTFallback is tried when STT fails with a transient error or its
	// circuit breaker is open. Optional.
	STTFallback ProviderEntry `yaml:"stt_fallback"`

	// LLM backs prompt rules. Without it, prompt rules transcribe only.
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1",
	// "gpt-4o-mini"). For whisper-native it is the path to the ggml model file.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// IsSet reports whether the entry names a provider.
func (e ProviderEntry) IsSet() bool { return e.Name != "" }

// StringOption returns Options[key] when it is a non-empty string.
func (e ProviderEntry) StringOption(key string) (string, bool) {
	v, ok := e.Options[key].(string)
	return v, ok && v != ""
}

// HotkeyConfig selects the hold-to-talk key.
type HotkeyConfig struct {
	Backend HotkeyBackend `yaml:"backend"`

	// Key is a modifier name for the hook backend ("fn", "right_option")
	// or a key name for the chord backend ("space", "f5").
	Key string `yaml:"key"`

	// Modifiers only applies to the chord backend (e.g., ["ctrl", "shift"]).
	Modifiers []string `yaml:"modifiers"`
}

// AudioConfig tunes microphone capture.
type AudioConfig struct {
	// TempDir receives recordings while they are transcribed. Defaults to
	// the OS temp directory.
	TempDir string `yaml:"temp_dir"`

	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// UsageConfig holds the quota and gating policy.
type UsageConfig struct {
	// DailyLimit is the number of free-tier sessions per local day.
	DailyLimit int `yaml:"daily_limit"`

	// Tier, when set, overwrites the stored license tier at startup.
	Tier usage.Tier `yaml:"tier"`

	// RulesRequirePro gates every active rule behind the pro tier.
	RulesRequirePro bool `yaml:"rules_require_pro"`

	// ProRequiredCountsUsage charges the daily quota for sessions that were
	// typed without their rule because the tier did not allow it.
	ProRequiredCountsUsage bool `yaml:"pro_required_counts_usage"`
}

// StoreConfig locates the sqlite state database.
type StoreConfig struct {
	// Path defaults to fnx/fnx.sqlite under the user config directory.
	Path string `yaml:"path"`
}

// OverlayConfig sets how long terminal overlay states stay up.
type OverlayConfig struct {
	DoneDelay    time.Duration `yaml:"done_delay"`
	BlockedDelay time.Duration `yaml:"blocked_delay"`
}

// InjectConfig tunes keystroke injection.
type InjectConfig struct {
	ChunkSize  int           `yaml:"chunk_size"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

// RulesConfig seeds the rule set at startup.
type RulesConfig struct {
	// Active is a rule name or id to select at startup. "none" clears the
	// selection; empty keeps whatever was stored.
	Active string `yaml:"active"`

	// Custom rules are upserted by name on every start.
	Custom []RuleConfig `yaml:"custom"`
}

// RuleConfig is a user-defined rule.
type RuleConfig struct {
	Name           string `yaml:"name"`
	Prompt         string `yaml:"prompt"`
	UseTranslation bool   `yaml:"use_translation"`
}

// JournalConfig enables the JSONL session journal.
type JournalConfig struct {
	// Path of the journal file. Empty disables journaling.
	Path string `yaml:"path"`
}
