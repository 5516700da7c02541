package kv

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNamespacedKey(t *testing.T) {
	t.Parallel()
	got := namespacedKey("weather-sync", "last-run")
	want := "octabot:kv:weather-sync:last-run"
	if got != want {
		t.Fatalf("namespacedKey = %q, want %q", got, want)
	}
}

// openTestStore requires REDIS_URL, so this file's other tests are skipped
// (not failed) when no scratch Redis instance is available.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping kv integration test")
	}
	rdb, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return New(rdb)
}

func TestSetGetDeleteRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "plugin-a", "missing"); err != nil || ok {
		t.Fatalf("expected miss for unset key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "plugin-a", "greeting", "hello", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := s.Get(ctx, "plugin-a", "greeting")
	if err != nil || !ok || val != "hello" {
		t.Fatalf("get after set = (%q, %v, %v), want (hello, true, nil)", val, ok, err)
	}

	exists, err := s.Exists(ctx, "plugin-a", "greeting")
	if err != nil || !exists {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", exists, err)
	}

	if err := s.Delete(ctx, "plugin-a", "greeting"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "plugin-a", "greeting"); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestNamespaceIsolatesPlugins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "plugin-a", "shared-key", "a-value", time.Minute); err != nil {
		t.Fatalf("set plugin-a: %v", err)
	}
	if _, ok, err := s.Get(ctx, "plugin-b", "shared-key"); err != nil || ok {
		t.Fatalf("plugin-b should not see plugin-a's key, got ok=%v err=%v", ok, err)
	}
}
