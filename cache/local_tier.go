package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localTier is an in-process, bounded-size Tier backed by an LRU. It is the
// natural shallowest tier: fast, volatile, capacity-limited.
type localTier[T any] struct {
	lru *lru.Cache[string, T]
}

// NewLocalTier returns a Tier holding at most maxSize entries, evicting the
// least recently used entry once full.
func NewLocalTier[T any](maxSize int) (Tier[T], error) {
	c, err := lru.New[string, T](maxSize)
	if err != nil {
		return nil, err
	}
	return &localTier[T]{lru: c}, nil
}

func (t *localTier[T]) Get(ctx context.Context, key string) (T, bool, error) {
	v, ok := t.lru.Get(key)
	return v, ok, nil
}

func (t *localTier[T]) Set(ctx context.Context, key string, value T) error {
	t.lru.Add(key, value)
	return nil
}

func (t *localTier[T]) Invalidate(ctx context.Context, key string) (bool, error) {
	return t.lru.Remove(key), nil
}
