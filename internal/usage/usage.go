// Package usage decides whether a recording session may start and counts
// completed sessions against a per-day quota.
//
// The day/count pair is reset lazily: nothing happens at midnight, but the
// first read on a new day sees a count of zero and the next increment
// persists the new date together with a count of one.
package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/fnx/internal/store"
)

// Persistence keys.
const (
	KeyTier       = "fnx_license_tier"
	KeyUsageDate  = "fnx_usage_date"
	KeyUsageCount = "fnx_usage_count"
)

// DefaultDailyLimit is the number of free sessions per day.
const DefaultDailyLimit = 15

// Unlimited is reported by [Gate.RemainingToday] for pro users.
const Unlimited = math.MaxInt

const dateLayout = "2006-01-02"

// Tier is a license tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPro
}

// KV is the persistence the gate needs. *store.Store satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetAll(ctx context.Context, kv map[string]string) error
}

// Option configures a [Gate].
type Option func(*Gate)

// WithDailyLimit overrides [DefaultDailyLimit].
func WithDailyLimit(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.limit = n
		}
	}
}

// WithClock replaces time.Now. Tests use it to cross midnight.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Snapshot is a consistent view of the gate's state.
type Snapshot struct {
	Tier      Tier
	Date      string
	Count     int
	Limit     int
	Remaining int
}

// Gate is the single authority on admission and usage. It is safe for
// concurrent use.
type Gate struct {
	kv  KV
	now func() time.Time

	mu    sync.Mutex
	limit int
	tier  Tier
	date  string
	count int
}

// New loads the persisted tier and usage from kv. Missing or malformed
// values fall back to the free tier with no usage.
func New(ctx context.Context, kv KV, opts ...Option) (*Gate, error) {
	g := &Gate{
		kv:    kv,
		now:   time.Now,
		limit: DefaultDailyLimit,
		tier:  TierFree,
	}
	for _, o := range opts {
		o(g)
	}

	tier, err := g.load(ctx, KeyTier)
	if err != nil {
		return nil, err
	}
	if t := Tier(tier); t.IsValid() {
		g.tier = t
	}
	if g.date, err = g.load(ctx, KeyUsageDate); err != nil {
		return nil, err
	}
	count, err := g.load(ctx, KeyUsageCount)
	if err != nil {
		return nil, err
	}
	if n, convErr := strconv.Atoi(count); convErr == nil && n > 0 {
		g.count = n
	}
	return g, nil
}

func (g *Gate) load(ctx context.Context, key string) (string, error) {
	v, err := g.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("usage: load %s: %w", key, err)
	}
	return v, nil
}

func (g *Gate) today() string { return g.now().Format(dateLayout) }

// countToday returns the count with the lazy reset applied. Callers hold mu.
func (g *Gate) countToday() int {
	if g.date != g.today() {
		return 0
	}
	return g.count
}

// CanTranscribe reports whether a new session may start.
func (g *Gate) CanTranscribe() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tier == TierPro || g.countToday() < g.limit
}

// RemainingToday returns the sessions left today, or [Unlimited] for pro.
func (g *Gate) RemainingToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining()
}

func (g *Gate) remaining() int {
	if g.tier == TierPro {
		return Unlimited
	}
	return max(0, g.limit-g.countToday())
}

// CanUseRules reports whether the current tier unlocks gated rules.
func (g *Gate) CanUseRules() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tier == TierPro
}

// IncrementUsage records one completed session. Date and count are written
// together; on failure the in-memory state is left unchanged.
func (g *Gate) IncrementUsage(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.today()
	next := g.countToday() + 1
	err := g.kv.SetAll(ctx, map[string]string{
		KeyUsageDate:  today,
		KeyUsageCount: strconv.Itoa(next),
	})
	if err != nil {
		return fmt.Errorf("usage: persist count: %w", err)
	}
	g.date, g.count = today, next
	return nil
}

// Tier returns the current license tier.
func (g *Gate) Tier() Tier {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tier
}

// SetTier persists and applies a new tier.
func (g *Gate) SetTier(ctx context.Context, t Tier) error {
	if !t.IsValid() {
		return fmt.Errorf("usage: invalid tier %q", t)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.kv.SetAll(ctx, map[string]string{KeyTier: string(t)}); err != nil {
		return fmt.Errorf("usage: persist tier: %w", err)
	}
	g.tier = t
	return nil
}

// SetDailyLimit changes the free-tier quota at runtime. Non-positive values
// are ignored.
func (g *Gate) SetDailyLimit(n int) {
	if n <= 0 {
		return
	}
	g.mu.Lock()
	g.limit = n
	g.mu.Unlock()
}

// Snapshot returns the current state with the lazy reset applied.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		Tier:      g.tier,
		Date:      g.today(),
		Count:     g.countToday(),
		Limit:     g.limit,
		Remaining: g.remaining(),
	}
}
