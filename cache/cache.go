package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prostomarkeloff/emergent/observability"
)

// FetchFunc loads a value for key on a full cache miss.
type FetchFunc[K, T any] func(ctx context.Context, key K) (T, error)

// KeyFunc derives the string cache key for a logical key value.
type KeyFunc[K any] func(key K) string

// CacheResult describes where a value was served from.
type CacheResult[T any] struct {
	Value  T
	Source string // "tier-<i>" or "fetch"
}

// OnTierError is called when a best-effort tier write (refill or
// write-through) fails. It never aborts the Get that triggered it.
type OnTierError func(ctx context.Context, tierIdx int, key string, err error)

// Builder assembles an Executor from an ordered list of tiers.
type Builder[K, T any] struct {
	keyFn     KeyFunc[K]
	fetch     FetchFunc[K, T]
	tiers     []Tier[T]
	cfg       Config
	onTierErr OnTierError
}

// New starts building an Executor. Tiers are added shallowest-first via
// Tier; at least one tier must be added before Build.
func New[K, T any](keyFn KeyFunc[K], fetch FetchFunc[K, T]) *Builder[K, T] {
	return &Builder[K, T]{keyFn: keyFn, fetch: fetch, cfg: DefaultConfig()}
}

// Tier appends a tier, deeper than any previously added tier.
func (b *Builder[K, T]) Tier(t Tier[T]) *Builder[K, T] {
	b.tiers = append(b.tiers, t)
	return b
}

// Config overlays non-zero fields of cfg onto the builder's configuration.
func (b *Builder[K, T]) Config(cfg Config) *Builder[K, T] {
	b.cfg.Merge(cfg)
	return b
}

// OnTierError registers a hook invoked when a best-effort tier write fails.
func (b *Builder[K, T]) OnTierError(fn OnTierError) *Builder[K, T] {
	b.onTierErr = fn
	return b
}

// Build finalizes the Executor. Panics if no tier was added, since an
// Executor with no tiers is a configuration error, not a runtime one.
func (b *Builder[K, T]) Build() *Executor[K, T] {
	if len(b.tiers) == 0 {
		panic("cache: Executor built with no tiers")
	}
	observer, err := observability.GetObserver(b.cfg.Observer)
	if err != nil {
		observer = observability.NoOpObserver{}
	}
	return &Executor[K, T]{
		keyFn:     b.keyFn,
		fetch:     b.fetch,
		tiers:     b.tiers,
		observer:  observer,
		onTierErr: b.onTierErr,
	}
}

// Executor is an immutable, ordered stack of tiers sitting in front of a
// fetch function.
type Executor[K, T any] struct {
	keyFn     KeyFunc[K]
	fetch     FetchFunc[K, T]
	tiers     []Tier[T]
	observer  observability.Observer
	onTierErr OnTierError
}

// Get satisfies key by probing tiers shallowest-first, refilling shallower
// tiers on a deeper hit, and falling through to fetch on a full miss.
func (e *Executor[K, T]) Get(ctx context.Context, key K) (CacheResult[T], error) {
	k := e.keyFn(key)

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventGetStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "cache.Executor.Get",
		Data:      map[string]any{"key": k, "tiers": len(e.tiers)},
	})

	for i, tier := range e.tiers {
		v, ok, err := tier.Get(ctx, k)
		if err != nil {
			return CacheResult[T]{}, &CacheError{Kind: CacheErrTier, Key: k, TierIdx: i, Err: err}
		}
		if ok {
			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventGetHit,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "cache.Executor.Get",
				Data:      map[string]any{"key": k, "tier": i},
			})
			e.refillAbove(ctx, i, k, v)
			return CacheResult[T]{Value: v, Source: fmt.Sprintf("tier-%d", i)}, nil
		}
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventGetMiss,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "cache.Executor.Get",
			Data:      map[string]any{"key": k, "tier": i},
		})
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventGetFetch,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "cache.Executor.Get",
		Data:      map[string]any{"key": k},
	})

	v, err := e.fetch(ctx, key)
	if err != nil {
		return CacheResult[T]{}, &CacheError{Kind: CacheErrFetch, Key: k, TierIdx: -1, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(len(e.tiers))
	for i, tier := range e.tiers {
		i, tier := i, tier
		go func() {
			defer wg.Done()
			if err := tier.Set(ctx, k, v); err != nil && e.onTierErr != nil {
				e.onTierErr(ctx, i, k, err)
			}
		}()
	}
	wg.Wait()

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventGetComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "cache.Executor.Get",
		Data:      map[string]any{"key": k, "source": "fetch"},
	})

	return CacheResult[T]{Value: v, Source: "fetch"}, nil
}

// refillAbove writes v into every tier shallower than hitIdx, concurrently
// and best-effort.
func (e *Executor[K, T]) refillAbove(ctx context.Context, hitIdx int, key string, v T) {
	if hitIdx == 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(hitIdx)
	for i := range hitIdx {
		i := i
		go func() {
			defer wg.Done()
			if err := e.tiers[i].Set(ctx, key, v); err != nil {
				e.observer.OnEvent(ctx, observability.Event{
					Type:      EventRefillError,
					Level:     observability.LevelWarning,
					Timestamp: time.Now(),
					Source:    "cache.Executor.Get",
					Data:      map[string]any{"key": key, "tier": i, "error": err.Error()},
				})
				if e.onTierErr != nil {
					e.onTierErr(ctx, i, key, err)
				}
				return
			}
			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventRefill,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "cache.Executor.Get",
				Data:      map[string]any{"key": key, "tier": i},
			})
		}()
	}
	wg.Wait()
}

// Invalidate removes key from every tier. Every tier is attempted even if
// one fails; the first hard error encountered is returned after all tiers
// have been tried.
func (e *Executor[K, T]) Invalidate(ctx context.Context, key K) (bool, error) {
	k := e.keyFn(key)
	existedAny := false
	var firstErr error
	for i, tier := range e.tiers {
		existed, err := tier.Invalidate(ctx, k)
		if existed {
			existedAny = true
		}
		if err != nil && firstErr == nil {
			firstErr = &CacheError{Kind: CacheErrTier, Key: k, TierIdx: i, Err: err}
		}
	}
	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventInvalidate,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "cache.Executor.Invalidate",
		Data:      map[string]any{"key": k, "existed": existedAny, "error": firstErr != nil},
	})
	return existedAny, firstErr
}
