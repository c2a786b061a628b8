package usage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/fnx/internal/store"
	"github.com/MrWong99/fnx/internal/usage"
)

// memKV is an in-memory usage.KV.
type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	setErr  error
	getErr  error
	setAlls int
}

func newMemKV(init map[string]string) *memKV {
	kv := &memKV{data: map[string]string{}}
	for k, v := range init {
		kv.data[k] = v
	}
	return kv
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memKV) SetAll(_ context.Context, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAlls++
	if m.setErr != nil {
		return m.setErr
	}
	for k, v := range kv {
		m.data[k] = v
	}
	return nil
}

func (m *memKV) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func newGate(t *testing.T, kv usage.KV, c *clock, opts ...usage.Option) *usage.Gate {
	t.Helper()
	g, err := usage.New(context.Background(), kv, append([]usage.Option{usage.WithClock(c.now)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestGate_FreshInstall(t *testing.T) {
	t.Parallel()
	g := newGate(t, newMemKV(nil), &clock{day("2026-10-19 09:00")})

	if g.Tier() != usage.TierFree {
		t.Errorf("tier = %q, want free", g.Tier())
	}
	if !g.CanTranscribe() {
		t.Error("fresh install should be admitted")
	}
	if got := g.RemainingToday(); got != usage.DefaultDailyLimit {
		t.Errorf("remaining = %d, want %d", got, usage.DefaultDailyLimit)
	}
	if g.CanUseRules() {
		t.Error("free tier should not unlock rules")
	}
}

func TestGate_LimitReached(t *testing.T) {
	t.Parallel()
	kv := newMemKV(map[string]string{
		usage.KeyUsageDate:  "2026-10-19",
		usage.KeyUsageCount: "14",
	})
	g := newGate(t, kv, &clock{day("2026-10-19 18:00")})

	if !g.CanTranscribe() {
		t.Fatal("14 of 15 should still be admitted")
	}
	if err := g.IncrementUsage(context.Background()); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	if g.CanTranscribe() {
		t.Error("15 of 15 should be denied")
	}
	if got := g.RemainingToday(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
	if kv.get(usage.KeyUsageCount) != "15" {
		t.Errorf("persisted count = %q, want 15", kv.get(usage.KeyUsageCount))
	}
}

func TestGate_DailyReset(t *testing.T) {
	t.Parallel()
	kv := newMemKV(map[string]string{
		usage.KeyUsageDate:  "2026-10-18",
		usage.KeyUsageCount: "15",
	})
	c := &clock{day("2026-10-19 00:05")}
	g := newGate(t, kv, c)

	if !g.CanTranscribe() {
		t.Fatal("yesterday's usage must not block today")
	}
	// Reads alone do not write.
	if kv.setAlls != 0 {
		t.Errorf("SetAll called %d times before increment", kv.setAlls)
	}
	if err := g.IncrementUsage(context.Background()); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	if kv.get(usage.KeyUsageCount) != "1" || kv.get(usage.KeyUsageDate) != "2026-10-19" {
		t.Errorf("persisted = (%q, %q), want (2026-10-19, 1)", kv.get(usage.KeyUsageDate), kv.get(usage.KeyUsageCount))
	}
	snap := g.Snapshot()
	if snap.Count != 1 || snap.Remaining != 14 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestGate_CrossMidnightWhileRunning(t *testing.T) {
	t.Parallel()
	c := &clock{day("2026-10-19 23:59")}
	g := newGate(t, newMemKV(nil), c, usage.WithDailyLimit(2))

	_ = g.IncrementUsage(context.Background())
	_ = g.IncrementUsage(context.Background())
	if g.CanTranscribe() {
		t.Fatal("limit of 2 reached")
	}
	c.t = day("2026-10-20 00:01")
	if !g.CanTranscribe() {
		t.Error("new day should reset the quota")
	}
	if got := g.RemainingToday(); got != 2 {
		t.Errorf("remaining = %d, want 2", got)
	}
}

func TestGate_ProBypass(t *testing.T) {
	t.Parallel()
	kv := newMemKV(map[string]string{
		usage.KeyTier:       "pro",
		usage.KeyUsageDate:  "2026-10-19",
		usage.KeyUsageCount: "500",
	})
	g := newGate(t, kv, &clock{day("2026-10-19 12:00")})

	if !g.CanTranscribe() {
		t.Error("pro must always be admitted")
	}
	if got := g.RemainingToday(); got != usage.Unlimited {
		t.Errorf("remaining = %d, want Unlimited", got)
	}
	if !g.CanUseRules() {
		t.Error("pro should unlock rules")
	}
}

func TestGate_SetTier(t *testing.T) {
	t.Parallel()
	kv := newMemKV(nil)
	g := newGate(t, kv, &clock{day("2026-10-19 12:00")})

	if err := g.SetTier(context.Background(), usage.TierPro); err != nil {
		t.Fatalf("SetTier: %v", err)
	}
	if kv.get(usage.KeyTier) != "pro" || g.Tier() != usage.TierPro {
		t.Error("tier not applied")
	}
	if err := g.SetTier(context.Background(), "platinum"); err == nil {
		t.Error("expected error for invalid tier")
	}
}

func TestGate_IncrementFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	kv := newMemKV(nil)
	g := newGate(t, kv, &clock{day("2026-10-19 12:00")})

	kv.setErr = errors.New("disk full")
	if err := g.IncrementUsage(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := g.RemainingToday(); got != usage.DefaultDailyLimit {
		t.Errorf("remaining = %d, want untouched %d", got, usage.DefaultDailyLimit)
	}
}

func TestGate_MalformedValuesFallBack(t *testing.T) {
	t.Parallel()
	kv := newMemKV(map[string]string{
		usage.KeyTier:       "gold",
		usage.KeyUsageDate:  "2026-10-19",
		usage.KeyUsageCount: "many",
	})
	g := newGate(t, kv, &clock{day("2026-10-19 12:00")})
	if g.Tier() != usage.TierFree {
		t.Errorf("tier = %q, want free", g.Tier())
	}
	if got := g.RemainingToday(); got != usage.DefaultDailyLimit {
		t.Errorf("remaining = %d", got)
	}
}

func TestGate_LoadError(t *testing.T) {
	t.Parallel()
	kv := newMemKV(nil)
	kv.getErr = errors.New("database locked")
	if _, err := usage.New(context.Background(), kv); err == nil {
		t.Fatal("expected load error")
	}
}

func TestGate_SetDailyLimit(t *testing.T) {
	t.Parallel()
	g := newGate(t, newMemKV(nil), &clock{day("2026-10-19 12:00")})
	g.SetDailyLimit(3)
	g.SetDailyLimit(0)
	if got := g.RemainingToday(); got != 3 {
		t.Errorf("remaining = %d, want 3", got)
	}
}

func TestGate_WithSQLiteStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := store.Open(ctx, store.MemoryPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	c := &clock{day("2026-10-19 12:00")}
	g := newGate(t, s, c)
	if err := g.IncrementUsage(ctx); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}

	// A second gate over the same store sees the persisted usage.
	g2 := newGate(t, s, c)
	if got := g2.RemainingToday(); got != usage.DefaultDailyLimit-1 {
		t.Errorf("remaining = %d, want %d", got, usage.DefaultDailyLimit-1)
	}
}
