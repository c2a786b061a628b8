package config

import (
	"reflect"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// UsageChanged is set when the daily limit or either policy flag changed.
	UsageChanged bool
	NewUsage     UsageConfig

	OverlayChanged  bool
	NewDoneDelay    time.Duration
	NewBlockedDelay time.Duration

	// RestartRequired lists changed sections that are only read at startup.
	RestartRequired []string
}

// IsZero reports whether nothing changed.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.UsageChanged && !d.OverlayChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ou, nu := old.Usage, new.Usage
	if ou.DailyLimit != nu.DailyLimit ||
		ou.RulesRequirePro != nu.RulesRequirePro ||
		ou.ProRequiredCountsUsage != nu.ProRequiredCountsUsage {
		d.UsageChanged = true
		d.NewUsage = nu
	}
	if ou.Tier != nu.Tier {
		d.RestartRequired = append(d.RestartRequired, "usage.tier")
	}

	if old.Overlay != new.Overlay {
		d.OverlayChanged = true
		d.NewDoneDelay = new.Overlay.DoneDelay
		d.NewBlockedDelay = new.Overlay.BlockedDelay
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !sameHotkey(old.Hotkey, new.Hotkey) {
		d.RestartRequired = append(d.RestartRequired, "hotkey")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Inject != new.Inject {
		d.RestartRequired = append(d.RestartRequired, "inject")
	}
	if !sameRules(old.Rules, new.Rules) {
		d.RestartRequired = append(d.RestartRequired, "rules")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}

	return d
}

func sameHotkey(a, b HotkeyConfig) bool {
	if a.Backend != b.Backend || a.Key != b.Key || len(a.Modifiers) != len(b.Modifiers) {
		return false
	}
	for i := range a.Modifiers {
		if a.Modifiers[i] != b.Modifiers[i] {
			return false
		}
	}
	return true
}

func sameRules(a, b RulesConfig) bool {
	if a.Active != b.Active || len(a.Custom) != len(b.Custom) {
		return false
	}
	for i := range a.Custom {
		if a.Custom[i] != b.Custom[i] {
			return false
		}
	}
	return true
}
