package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("idempotency")

type boltRecord struct {
	Key        string          `json:"key"`
	State      recordState     `json:"state"`
	Value      json.RawMessage `json:"value,omitempty"`
	Err        string          `json:"err,omitempty"`
	InputHash  uint64          `json:"input_hash,omitempty"`
	InsertedAt time.Time       `json:"inserted_at"`
	ClaimToken string          `json:"claim_token,omitempty"`
}

// BoltStore is a Store backed by a single bbolt file, demonstrating an
// embedded-engine persistence path: claim records survive process restarts,
// at the cost of one disk transaction per Claim/Complete/Fail/Get.
type BoltStore[T any] struct {
	db     *bbolt.DB
	policy Policy
}

// NewBoltStore opens (creating if absent) a bbolt-backed Store under dir.
func NewBoltStore[T any](dir string, policy Policy) (*BoltStore[T], error) {
	path := filepath.Join(dir, "idempotency.db")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("idempotency: open bolt store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("idempotency: init bolt store: %w", err)
	}
	return &BoltStore[T]{db: db, policy: policy}, nil
}

// Close releases the underlying bbolt file handle.
func (s *BoltStore[T]) Close() error {
	return s.db.Close()
}

func (s *BoltStore[T]) Claim(ctx context.Context, key string, now time.Time, inputHash uint64) (ClaimOutcome, Record[T], error) {
	var outcome ClaimOutcome
	var rec Record[T]

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(key))

		if raw != nil {
			var br boltRecord
			if err := json.Unmarshal(raw, &br); err != nil {
				return fmt.Errorf("idempotency: decode record %q: %w", key, err)
			}
			r, expiredNow := decodeRecord[T](br, now, s.policy)
			if !expiredNow {
				rec = r
				if inputHash != 0 && r.InputHash != 0 && r.InputHash != inputHash {
					outcome = CollidedInputHash
					return nil
				}
				switch br.State {
				case stateDone:
					outcome = AlreadyDone
					return nil
				case stateFailed:
					outcome = Failed
					return nil
				case statePending:
					outcome = InFlight
					return nil
				}
			}
		}

		fresh := boltRecord{Key: key, State: statePending, InputHash: inputHash, InsertedAt: now, ClaimToken: newClaimToken()}
		encoded, err := json.Marshal(fresh)
		if err != nil {
			return fmt.Errorf("idempotency: encode record %q: %w", key, err)
		}
		if err := b.Put([]byte(key), encoded); err != nil {
			return err
		}
		outcome = Claimed
		rec, _ = decodeRecord[T](fresh, now, s.policy)
		return nil
	})
	if err != nil {
		return 0, Record[T]{}, err
	}
	return outcome, rec, nil
}

func (s *BoltStore[T]) ForceClaim(ctx context.Context, key string, now time.Time, inputHash uint64) (string, error) {
	fresh := boltRecord{Key: key, State: statePending, InputHash: inputHash, InsertedAt: now, ClaimToken: newClaimToken()}
	encoded, err := json.Marshal(fresh)
	if err != nil {
		return "", fmt.Errorf("idempotency: encode record %q: %w", key, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), encoded)
	})
	if err != nil {
		return "", err
	}
	return fresh.ClaimToken, nil
}

func (s *BoltStore[T]) Complete(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("idempotency: encode value %q: %w", key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		br := existingOrNew(b, key)
		br.State = stateDone
		br.Value = raw
		br.Err = ""
		encoded, err := json.Marshal(br)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), encoded)
	})
}

func (s *BoltStore[T]) Fail(ctx context.Context, key string, msg string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		br := existingOrNew(b, key)
		br.State = stateFailed
		br.Err = msg
		encoded, err := json.Marshal(br)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), encoded)
	})
}

func (s *BoltStore[T]) Get(ctx context.Context, key string) (Record[T], bool, error) {
	var rec Record[T]
	found := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		var br boltRecord
		if err := json.Unmarshal(raw, &br); err != nil {
			return fmt.Errorf("idempotency: decode record %q: %w", key, err)
		}
		r, expiredNow := decodeRecord[T](br, time.Now(), s.policy)
		if expiredNow {
			return b.Delete([]byte(key))
		}
		rec = r
		found = true
		return nil
	})
	if err != nil {
		return Record[T]{}, false, err
	}
	return rec, found, nil
}

func (s *BoltStore[T]) PurgeExpired(ctx context.Context, now time.Time, policy Policy) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var br boltRecord
			if err := json.Unmarshal(v, &br); err != nil {
				continue
			}
			if _, expiredNow := decodeRecord[T](br, now, policy); expiredNow {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func existingOrNew(b *bbolt.Bucket, key string) boltRecord {
	raw := b.Get([]byte(key))
	if raw == nil {
		return boltRecord{Key: key, InsertedAt: time.Now()}
	}
	var br boltRecord
	if err := json.Unmarshal(raw, &br); err != nil {
		return boltRecord{Key: key, InsertedAt: time.Now()}
	}
	return br
}

func decodeRecord[T any](br boltRecord, now time.Time, policy Policy) (Record[T], bool) {
	rec := Record[T]{
		Key:        br.Key,
		State:      br.State,
		Err:        br.Err,
		InputHash:  br.InputHash,
		InsertedAt: br.InsertedAt,
		ClaimToken: br.ClaimToken,
	}
	if len(br.Value) > 0 {
		_ = json.Unmarshal(br.Value, &rec.Value)
	}
	return rec, expired(rec, now, policy)
}
