// Package rules stores the named instructions applied to a transcription
// before it is typed: translate it, or rewrite it through a language model.
//
// Rules live in the key/value store as a JSON array. A fixed set of
// built-ins is installed on first use and reinstalled whenever
// [SchemaVersion] moves past the stored version; built-ins cannot be edited
// or deleted. At most one rule is active.
package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/fnx/internal/store"
)

// Persistence keys.
const (
	KeyRules    = "fnx_rules"
	KeyActiveID = "fnx_active_rule_id"
	KeyVersion  = "fnx_rules_version"
)

// NoneRef clears the active rule when passed to [Manager.SetActive].
const NoneRef = "none"

var (
	// ErrNotFound is returned when no rule matches an ID or name.
	ErrNotFound = errors.New("rules: rule not found")

	// ErrBuiltin is returned when a caller tries to change a built-in rule.
	ErrBuiltin = errors.New("rules: built-in rules cannot be modified")

	// ErrInvalid is returned for rules without a name.
	ErrInvalid = errors.New("rules: invalid rule")
)

// Rule is a named transformation. A rule with UseTranslation asks the
// transcriber for English output and never calls the language model, even
// when Prompt is set.
type Rule struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Prompt         string    `json:"prompt"`
	UseTranslation bool      `json:"useTranslation"`
	IsDefault      bool      `json:"isDefault"`
}

// Transforms reports whether the rule sends text through the language model.
func (r Rule) Transforms() bool {
	return !r.UseTranslation && strings.TrimSpace(r.Prompt) != ""
}

// KV is the persistence the manager needs. *store.Store satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetAll(ctx context.Context, kv map[string]string) error
	Delete(ctx context.Context, key string) error
}

// Manager reads and writes rules. Every read goes to the store, so changes
// made by another process are seen on the next session. It is safe for
// concurrent use.
type Manager struct {
	kv KV
	mu sync.Mutex
}

// New returns a Manager over kv, replacing stored rules with the defaults
// when the stored schema version is older than [SchemaVersion].
func New(ctx context.Context, kv KV) (*Manager, error) {
	m := &Manager{kv: kv}
	if err := m.migrate(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) migrate(ctx context.Context) error {
	raw, err := m.get(ctx, KeyVersion)
	if err != nil {
		return err
	}
	saved, _ := strconv.Atoi(raw)
	if saved >= SchemaVersion {
		return nil
	}
	if err := m.kv.Delete(ctx, KeyRules); err != nil {
		return fmt.Errorf("rules: clear stored rules: %w", err)
	}
	if err := m.kv.SetAll(ctx, map[string]string{KeyVersion: strconv.Itoa(SchemaVersion)}); err != nil {
		return fmt.Errorf("rules: store schema version: %w", err)
	}
	slog.Info("rules migrated to built-in defaults", "from", saved, "to", SchemaVersion)
	return nil
}

func (m *Manager) get(ctx context.Context, key string) (string, error) {
	v, err := m.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("rules: load %s: %w", key, err)
	}
	return v, nil
}

// List returns all rules. A missing or unreadable list yields the defaults.
func (m *Manager) List(ctx context.Context) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(ctx)
}

func (m *Manager) list(ctx context.Context) ([]Rule, error) {
	raw, err := m.get(ctx, KeyRules)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return Defaults(), nil
	}
	var rs []Rule
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		slog.Warn("rules: stored list unreadable, using defaults", "err", err)
		return Defaults(), nil
	}
	return rs, nil
}

func (m *Manager) save(ctx context.Context, rs []Rule, extra map[string]string) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("rules: encode: %w", err)
	}
	kv := map[string]string{KeyRules: string(data)}
	for k, v := range extra {
		kv[k] = v
	}
	if err := m.kv.SetAll(ctx, kv); err != nil {
		return fmt.Errorf("rules: save: %w", err)
	}
	return nil
}

// Active returns the selected rule. ok is false when none is selected or the
// selected ID no longer exists.
func (m *Manager) Active(ctx context.Context) (r Rule, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.get(ctx, KeyActiveID)
	if err != nil || raw == "" {
		return Rule{}, false, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Rule{}, false, nil
	}
	rs, err := m.list(ctx)
	if err != nil {
		return Rule{}, false, err
	}
	i := indexOf(rs, id)
	if i < 0 {
		return Rule{}, false, nil
	}
	return rs[i], true, nil
}

// SetActive selects the rule identified by ref, which may be an ID or a
// name (compared case-insensitively). [NoneRef] or "" clears the selection.
func (m *Manager) SetActive(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref == "" || strings.EqualFold(ref, NoneRef) {
		return m.clearActive(ctx)
	}
	rs, err := m.list(ctx)
	if err != nil {
		return err
	}
	r, err := find(rs, ref)
	if err != nil {
		return err
	}
	if err := m.kv.SetAll(ctx, map[string]string{KeyActiveID: r.ID.String()}); err != nil {
		return fmt.Errorf("rules: store active rule: %w", err)
	}
	return nil
}

func (m *Manager) clearActive(ctx context.Context) error {
	if err := m.kv.Delete(ctx, KeyActiveID); err != nil {
		return fmt.Errorf("rules: clear active rule: %w", err)
	}
	return nil
}

// Find looks a rule up by ID or name.
func (m *Manager) Find(ctx context.Context, ref string) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := m.list(ctx)
	if err != nil {
		return Rule{}, err
	}
	return find(rs, ref)
}

// Add appends a user rule and returns it with its assigned ID.
func (m *Manager) Add(ctx context.Context, r Rule) (Rule, error) {
	if strings.TrimSpace(r.Name) == "" {
		return Rule{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, err := m.list(ctx)
	if err != nil {
		return Rule{}, err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if indexOf(rs, r.ID) >= 0 {
		return Rule{}, fmt.Errorf("%w: duplicate id %s", ErrInvalid, r.ID)
	}
	r.IsDefault = false
	rs = append(rs, r)
	if err := m.save(ctx, rs, nil); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Update replaces the user rule with the same ID.
func (m *Manager) Update(ctx context.Context, r Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, err := m.list(ctx)
	if err != nil {
		return err
	}
	i := indexOf(rs, r.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	if rs[i].IsDefault {
		return fmt.Errorf("%w: %q", ErrBuiltin, rs[i].Name)
	}
	r.IsDefault = false
	rs[i] = r
	return m.save(ctx, rs, nil)
}

// Upsert adds r, or updates the user rule carrying the same name. It is how
// rules from the configuration file are applied at startup.
func (m *Manager) Upsert(ctx context.Context, r Rule) (Rule, error) {
	existing, err := m.Find(ctx, r.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		return m.Add(ctx, r)
	case err != nil:
		return Rule{}, err
	}
	r.ID = existing.ID
	if err := m.Update(ctx, r); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Delete removes the user rule with the given ID. Deleting the active rule
// clears the selection.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, err := m.list(ctx)
	if err != nil {
		return err
	}
	i := indexOf(rs, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rs[i].IsDefault {
		return fmt.Errorf("%w: %q", ErrBuiltin, rs[i].Name)
	}
	rs = append(rs[:i], rs[i+1:]...)
	if err := m.save(ctx, rs, nil); err != nil {
		return err
	}

	active, err := m.get(ctx, KeyActiveID)
	if err != nil {
		return err
	}
	if active == id.String() {
		return m.clearActive(ctx)
	}
	return nil
}

func indexOf(rs []Rule, id uuid.UUID) int {
	for i, r := range rs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func find(rs []Rule, ref string) (Rule, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if i := indexOf(rs, id); i >= 0 {
			return rs[i], nil
		}
	}
	for _, r := range rs {
		if strings.EqualFold(r.Name, ref) {
			return r, nil
		}
	}
	return Rule{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}
