package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/prostomarkeloff/emergent/observability"
	"github.com/prostomarkeloff/emergent/result"
)

// IdempotentResult is the value Executor.Run returns on success. ClaimToken
// identifies which Claim/ForceClaim call actually executed the operation,
// for correlating a caller's own invocation against the winning claim.
type IdempotentResult[T any] struct {
	Value      T
	FromCache  bool
	Key        string
	ClaimToken string
}

// KeyFunc derives an idempotency key from an operation's input.
type KeyFunc[In any] func(In) string

// Operation is the underlying work an Executor guards with single-flight
// semantics.
type Operation[In, T any] func(ctx context.Context, input In) result.LazyAction[T]

// Builder assembles an Executor.
type Builder[In, T any] struct {
	keyFn     KeyFunc[In]
	operation Operation[In, T]
	store     Store[T]
	policy    Policy
	cfg       Config
}

// New starts building an Executor around keyFn and operation.
func New[In, T any](keyFn KeyFunc[In], operation Operation[In, T]) *Builder[In, T] {
	return &Builder[In, T]{
		keyFn:     keyFn,
		operation: operation,
		policy:    DefaultPolicy(),
		cfg:       DefaultConfig(),
	}
}

// Store sets the backing Store. Required.
func (b *Builder[In, T]) Store(s Store[T]) *Builder[In, T] {
	b.store = s
	return b
}

// Policy overrides the default Policy.
func (b *Builder[In, T]) Policy(p Policy) *Builder[In, T] {
	b.policy = p
	return b
}

// Config overrides the default Config.
func (b *Builder[In, T]) Config(c Config) *Builder[In, T] {
	b.cfg.Merge(c)
	return b
}

// Build finalizes the Executor. Panics if Store was never called, since an
// Executor without a Store cannot provide any single-flight guarantee.
func (b *Builder[In, T]) Build() *Executor[In, T] {
	if b.store == nil {
		panic("idempotency: Builder.Build called without a Store")
	}
	observer, err := observability.GetObserver(b.cfg.Observer)
	if err != nil {
		observer = observability.NoOpObserver{}
	}
	return &Executor[In, T]{
		keyFn:     b.keyFn,
		operation: b.operation,
		store:     b.store,
		policy:    b.policy,
		observer:  observer,
	}
}

// Executor runs an Operation with single-flight, exactly-once-to-success
// semantics keyed by KeyFunc.
type Executor[In, T any] struct {
	keyFn     KeyFunc[In]
	operation Operation[In, T]
	store     Store[T]
	policy    Policy
	observer  observability.Observer
}

// Run executes the operation for input, or returns the result of whichever
// concurrent/prior call already completed it.
func (e *Executor[In, T]) Run(ctx context.Context, input In) (IdempotentResult[T], error) {
	key := e.keyFn(input)
	var hash uint64
	if e.policy.InputFingerprint {
		h, err := fingerprint(input)
		if err != nil {
			return IdempotentResult[T]{}, &IdempotencyError{Kind: StoreError, Key: key, Inner: err}
		}
		hash = h
	}

	for {
		now := time.Now()
		outcome, rec, err := e.store.Claim(ctx, key, now, hash)
		if err != nil {
			return IdempotentResult[T]{}, &IdempotencyError{Kind: StoreError, Key: key, Inner: err}
		}

		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventClaim,
			Level:     observability.LevelVerbose,
			Timestamp: now,
			Source:    "idempotency.Executor",
			Data:      map[string]any{"key": key, "outcome": outcome.String()},
		})

		switch outcome {
		case Claimed:
			return e.execute(ctx, key, rec.ClaimToken, input)

		case AlreadyDone:
			return IdempotentResult[T]{Value: rec.Value, FromCache: true, Key: key, ClaimToken: rec.ClaimToken}, nil

		case CollidedInputHash:
			return IdempotentResult[T]{}, &IdempotencyError{Kind: Conflict, Key: key, Msg: "key reused with a different input"}

		case Failed:
			return IdempotentResult[T]{}, &IdempotencyError{Kind: PreviouslyFailed, Key: key, Inner: fmt.Errorf("%s", rec.Err)}

		case InFlight:
			switch e.policy.OnPending {
			case FailFast:
				return IdempotentResult[T]{}, &IdempotencyError{Kind: InFlight, Key: key}
			case Force:
				token, err := e.store.ForceClaim(ctx, key, now, hash)
				if err != nil {
					return IdempotentResult[T]{}, &IdempotencyError{Kind: StoreError, Key: key, Inner: err}
				}
				return e.execute(ctx, key, token, input)
			default: // Wait
				if done, result, err := e.waitForResolution(ctx, key, rec.InsertedAt); done {
					return result, err
				}
				// Lease expired without resolution: loop back to Claim,
				// whose own expiry check atomically purges the stale
				// pending record so exactly one re-claimer wins.
				continue
			}
		}
	}
}

// waitForResolution polls the store until key resolves to Done/Failed, the
// pending lease (measured from insertedAt) elapses, or ctx is cancelled.
func (e *Executor[In, T]) waitForResolution(ctx context.Context, key string, insertedAt time.Time) (bool, IdempotentResult[T], error) {
	interval := e.policy.PollInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, IdempotentResult[T]{}, &IdempotencyError{Kind: StoreError, Key: key, Inner: ctx.Err()}
		case <-ticker.C:
			rec, ok, err := e.store.Get(ctx, key)
			if err != nil {
				return true, IdempotentResult[T]{}, &IdempotencyError{Kind: StoreError, Key: key, Inner: err}
			}
			if !ok {
				return false, IdempotentResult[T]{}, nil
			}
			switch rec.State {
			case stateDone:
				return true, IdempotentResult[T]{Value: rec.Value, FromCache: true, Key: key, ClaimToken: rec.ClaimToken}, nil
			case stateFailed:
				return true, IdempotentResult[T]{}, &IdempotencyError{Kind: PreviouslyFailed, Key: key, Inner: fmt.Errorf("%s", rec.Err)}
			}

			if e.policy.PendingLease > 0 && time.Now().After(insertedAt.Add(e.policy.PendingLease)) {
				e.observer.OnEvent(ctx, observability.Event{
					Type:      EventLeaseExpired,
					Level:     observability.LevelWarning,
					Timestamp: time.Now(),
					Source:    "idempotency.Executor",
					Data:      map[string]any{"key": key},
				})
				return false, IdempotentResult[T]{}, nil
			}

			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventWaitPoll,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "idempotency.Executor",
				Data:      map[string]any{"key": key},
			})
		}
	}
}

func (e *Executor[In, T]) execute(ctx context.Context, key, claimToken string, input In) (IdempotentResult[T], error) {
	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventExecuteStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "idempotency.Executor",
		Data:      map[string]any{"key": key, "claim_token": claimToken},
	})

	action := e.operation(ctx, input)
	v, err := action(ctx).Unwrap()

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventExecuteDone,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "idempotency.Executor",
		Data:      map[string]any{"key": key, "claim_token": claimToken, "error": err != nil},
	})

	if err != nil {
		failCtx := context.WithoutCancel(ctx)
		_ = e.store.Fail(failCtx, key, err.Error())
		return IdempotentResult[T]{}, &IdempotencyError{Kind: OperationFailed, Key: key, Inner: err}
	}

	if completeErr := e.store.Complete(context.WithoutCancel(ctx), key, v); completeErr != nil {
		return IdempotentResult[T]{}, &IdempotencyError{Kind: StoreError, Key: key, Inner: completeErr}
	}
	return IdempotentResult[T]{Value: v, FromCache: false, Key: key, ClaimToken: claimToken}, nil
}

// fingerprint computes an FNV-1a hash over the canonical JSON encoding of
// input, used to detect accidental reuse of an idempotency key across
// different payloads. A fixed-width, cheap fingerprint is preferred here
// over a collision-resistant hash since the only requirement is flagging
// likely-accidental key collisions, not cryptographic integrity.
func fingerprint[In any](input In) (uint64, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return 0, fmt.Errorf("idempotency: marshal input for fingerprint: %w", err)
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return h.Sum64(), nil
}
