package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prostomarkeloff/emergent/cache"
)

type fakeTier struct {
	data map[string]string
}

func newFakeTier() *fakeTier {
	return &fakeTier{data: make(map[string]string)}
}

func (f *fakeTier) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeTier) Set(ctx context.Context, key string, value string) error {
	f.data[key] = value
	return nil
}

func (f *fakeTier) Invalidate(ctx context.Context, key string) (bool, error) {
	_, ok := f.data[key]
	delete(f.data, key)
	return ok, nil
}

func TestExecutor_FetchThenTierHit(t *testing.T) {
	l0 := newFakeTier()
	l1 := newFakeTier()

	var fetches atomic.Int32
	exec := cache.New[string, string](
		func(k string) string { return k },
		func(ctx context.Context, k string) (string, error) {
			fetches.Add(1)
			return "alice", nil
		},
	).Tier(l0).Tier(l1).Build()

	r, err := exec.Get(context.Background(), "u42")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r.Value != "alice" || r.Source != "fetch" {
		t.Fatalf("first Get = %+v, want fetch/alice", r)
	}
	if l0.data["u42"] != "alice" || l1.data["u42"] != "alice" {
		t.Fatalf("fetch result was not written through to all tiers")
	}

	r2, err := exec.Get(context.Background(), "u42")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if r2.Source != "tier-0" {
		t.Fatalf("second Get source = %q, want tier-0", r2.Source)
	}
	if fetches.Load() != 1 {
		t.Fatalf("fetch invoked %d times, want 1", fetches.Load())
	}
}

func TestExecutor_RefillsShallowerTiers(t *testing.T) {
	l0 := newFakeTier()
	l1 := newFakeTier()
	l1.data["k"] = "deep-value"

	exec := cache.New[string, string](
		func(k string) string { return k },
		func(ctx context.Context, k string) (string, error) {
			t.Fatalf("fetch should not be called when tier 1 has the value")
			return "", nil
		},
	).Tier(l0).Tier(l1).Build()

	r, err := exec.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r.Source != "tier-1" {
		t.Fatalf("source = %q, want tier-1", r.Source)
	}
	if l0.data["k"] != "deep-value" {
		t.Fatalf("tier 0 was not refilled from the tier-1 hit")
	}
}

func TestExecutor_Invalidate(t *testing.T) {
	l0 := newFakeTier()
	l1 := newFakeTier()
	l0.data["k"] = "v"
	l1.data["k"] = "v"

	exec := cache.New[string, string](
		func(k string) string { return k },
		func(ctx context.Context, k string) (string, error) { return "", errors.New("no fetch") },
	).Tier(l0).Tier(l1).Build()

	existed, err := exec.Invalidate(context.Background(), "k")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if !existed {
		t.Fatalf("Invalidate should report the key existed")
	}
	if _, ok := l0.data["k"]; ok {
		t.Fatalf("tier 0 was not invalidated")
	}
	if _, ok := l1.data["k"]; ok {
		t.Fatalf("tier 1 was not invalidated")
	}
}

func TestExecutor_FetchError(t *testing.T) {
	boom := errors.New("boom")
	exec := cache.New[string, string](
		func(k string) string { return k },
		func(ctx context.Context, k string) (string, error) { return "", boom },
	).Tier(newFakeTier()).Build()

	_, err := exec.Get(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected a fetch error")
	}
	var cacheErr *cache.CacheError
	if !errors.As(err, &cacheErr) {
		t.Fatalf("expected *cache.CacheError, got %T", err)
	}
	if cacheErr.Kind != cache.CacheErrFetch {
		t.Fatalf("kind = %v, want CacheErrFetch", cacheErr.Kind)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected errors.Is to find the underlying fetch error")
	}
}
