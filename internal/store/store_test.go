package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrWong99/fnx/internal/store"
)

func openMemory(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.MemoryPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_SetGetOverwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)

	if err := s.Set(ctx, "fnx_license_tier", "free"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "fnx_license_tier", "pro"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "fnx_license_tier")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "pro" {
		t.Errorf("got %q, want pro", got)
	}
}

func TestStore_SetAllAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)

	err := s.SetAll(ctx, map[string]string{
		"fnx_usage_date":  "2026-10-19",
		"fnx_usage_count": "3",
	})
	if err != nil {
		t.Fatalf("SetAll: %v", err)
	}
	if v, _ := s.Get(ctx, "fnx_usage_count"); v != "3" {
		t.Errorf("count = %q, want 3", v)
	}
	if v, _ := s.Get(ctx, "fnx_usage_date"); v != "2026-10-19" {
		t.Errorf("date = %q", v)
	}

	if err := s.Delete(ctx, "fnx_usage_count"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "fnx_usage_count"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, "fnx_usage_count"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fnx.sqlite")

	s, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(ctx, "fnx_active_rule_id", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if v, err := s2.Get(ctx, "fnx_active_rule_id"); err != nil || v != "abc" {
		t.Fatalf("Get after reopen = %q, %v", v, err)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	t.Parallel()
	s := openMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Set(ctx, "k", "v"); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
