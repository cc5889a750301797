package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("cache")

// boltTier is a disk-resident Tier backed by a single bbolt file. It is the
// natural deepest tier: durable across process restarts, slower than
// localTier, with per-entry TTL expiry.
type boltTier[T any] struct {
	db  *bbolt.DB
	ttl time.Duration
}

type boltEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewFileTier returns a Tier persisted to a single bbolt file under dir. ttl
// <= 0 means entries never expire. Values are round-tripped through
// encoding/json, so T must marshal and unmarshal cleanly.
func NewFileTier[T any](dir string, ttl time.Duration) (Tier[T], error) {
	path := filepath.Join(dir, "cache.db")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open bolt tier: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init bolt tier: %w", err)
	}

	return &boltTier[T]{db: db, ttl: ttl}, nil
}

func (t *boltTier[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	var entry boltEntry
	found := false

	err := t.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("cache: decode entry %q: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		_, _ = t.Invalidate(ctx, key)
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return zero, false, fmt.Errorf("cache: decode value %q: %w", key, err)
	}
	return value, true, nil
}

func (t *boltTier[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode value %q: %w", key, err)
	}

	var expiresAt time.Time
	if t.ttl > 0 {
		expiresAt = time.Now().Add(t.ttl)
	}
	entry, err := json.Marshal(boltEntry{Value: raw, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("cache: encode entry %q: %w", key, err)
	}

	return t.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), entry)
	})
}

func (t *boltTier[T]) Invalidate(ctx context.Context, key string) (bool, error) {
	existed := false
	err := t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(key)) != nil {
			existed = true
		}
		return b.Delete([]byte(key))
	})
	return existed, err
}

// Close releases the underlying bbolt file handle.
func (t *boltTier[T]) Close() error {
	return t.db.Close()
}
