package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store guarded by a single mutex, grounded on
// the locking idiom of a session-scoped cache: every record read or write
// takes the same lock, and expired records are purged lazily on access
// rather than by a background goroutine.
type MemoryStore[T any] struct {
	policy Policy

	mu      sync.Mutex
	records map[string]Record[T]
}

// NewMemoryStore creates an empty MemoryStore. Claim and Get drop the record
// they look up when it is past policy's TTLs; other expired records stay
// until PurgeExpired is called.
func NewMemoryStore[T any](policy Policy) *MemoryStore[T] {
	return &MemoryStore[T]{policy: policy, records: make(map[string]Record[T])}
}

func (s *MemoryStore[T]) Claim(ctx context.Context, key string, now time.Time, inputHash uint64) (ClaimOutcome, Record[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key]
	if exists && expired(rec, now, s.policy) {
		exists = false
		delete(s.records, key)
	}

	if exists {
		if inputHash != 0 && rec.InputHash != 0 && rec.InputHash != inputHash {
			return CollidedInputHash, rec, nil
		}
		switch rec.State {
		case stateDone:
			return AlreadyDone, rec, nil
		case stateFailed:
			return Failed, rec, nil
		case statePending:
			return InFlight, rec, nil
		}
	}

	fresh := Record[T]{
		Key:        key,
		State:      statePending,
		InputHash:  inputHash,
		InsertedAt: now,
		ClaimToken: newClaimToken(),
	}
	s.records[key] = fresh
	return Claimed, fresh, nil
}

func (s *MemoryStore[T]) ForceClaim(ctx context.Context, key string, now time.Time, inputHash uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := Record[T]{
		Key:        key,
		State:      statePending,
		InputHash:  inputHash,
		InsertedAt: now,
		ClaimToken: newClaimToken(),
	}
	s.records[key] = fresh
	return fresh.ClaimToken, nil
}

func (s *MemoryStore[T]) Complete(ctx context.Context, key string, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[key]
	rec.Key = key
	rec.State = stateDone
	rec.Value = value
	rec.Err = ""
	s.records[key] = rec
	return nil
}

func (s *MemoryStore[T]) Fail(ctx context.Context, key string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[key]
	rec.Key = key
	rec.State = stateFailed
	rec.Err = msg
	s.records[key] = rec
	return nil
}

func (s *MemoryStore[T]) Get(ctx context.Context, key string) (Record[T], bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record[T]{}, false, nil
	}
	if expired(rec, time.Now(), s.policy) {
		delete(s.records, key)
		return Record[T]{}, false, nil
	}
	return rec, true, nil
}

func (s *MemoryStore[T]) PurgeExpired(ctx context.Context, now time.Time, policy Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, rec := range s.records {
		if expired(rec, now, policy) {
			delete(s.records, k)
		}
	}
	return nil
}

func expired[T any](rec Record[T], now time.Time, policy Policy) bool {
	switch rec.State {
	case stateDone:
		return policy.SuccessTTL > 0 && now.After(rec.InsertedAt.Add(policy.SuccessTTL))
	case stateFailed:
		return policy.FailureTTL > 0 && now.After(rec.InsertedAt.Add(policy.FailureTTL))
	case statePending:
		return policy.PendingLease > 0 && now.After(rec.InsertedAt.Add(policy.PendingLease))
	default:
		return false
	}
}
