package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prostomarkeloff/emergent/result"
)

func counterOp(calls *int32, d time.Duration, value string) Operation[string, string] {
	return func(ctx context.Context, input string) result.LazyAction[string] {
		return func(ctx context.Context) result.Result[string] {
			atomic.AddInt32(calls, 1)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return result.Err[string](ctx.Err())
			}
			return result.Ok(value)
		}
	}
}

// TestExecutor_SingleFlight implements the 50-concurrent-caller scenario:
// an operation that sleeps before returning must execute exactly once for
// 50 concurrent callers sharing a key, and every caller must observe the
// same value.
func TestExecutor_SingleFlight(t *testing.T) {
	var calls int32
	store := NewMemoryStore[string](DefaultPolicy())
	exec := New(func(s string) string { return s }, counterOp(&calls, 100*time.Millisecond, "tx_1")).
		Store(store).
		Build()

	const n = 50
	results := make([]IdempotentResult[string], n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i], errs[i] = exec.Run(context.Background(), "key-a")
		}()
	}
	wg.Wait()

	fromCacheCount := 0
	winningToken := ""
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i].Value != "tx_1" {
			t.Fatalf("caller %d: expected tx_1, got %s", i, results[i].Value)
		}
		if results[i].ClaimToken == "" {
			t.Fatalf("caller %d: expected a non-empty claim token", i)
		}
		if !results[i].FromCache {
			winningToken = results[i].ClaimToken
		} else {
			fromCacheCount++
		}
	}
	for i := 0; i < n; i++ {
		if results[i].ClaimToken != winningToken {
			t.Fatalf("caller %d: expected every caller to observe the single winning claim token, got %q want %q", i, results[i].ClaimToken, winningToken)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected operation to run exactly once, ran %d times", calls)
	}
	if fromCacheCount != n-1 {
		t.Fatalf("expected exactly one non-cached winner, got %d from cache out of %d", fromCacheCount, n)
	}
}

// TestExecutor_RetentionWithinTTL verifies that within SuccessTTL, a second
// call with the same key returns FromCache=true without re-invoking the
// operation, and that after SuccessTTL the operation runs again.
func TestExecutor_RetentionWithinTTL(t *testing.T) {
	var calls int32
	policy := DefaultPolicy().WithTTL(40*time.Millisecond, time.Minute)
	store := NewMemoryStore[string](policy)
	exec := New(func(s string) string { return s }, counterOp(&calls, 0, "v1")).
		Store(store).
		Policy(policy).
		Build()

	r1, err := exec.Run(context.Background(), "k")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if r1.FromCache {
		t.Fatal("first run should not be from cache")
	}

	r2, err := exec.Run(context.Background(), "k")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !r2.FromCache {
		t.Fatal("second run within TTL should be from cache")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call before TTL expiry, got %d", calls)
	}

	time.Sleep(60 * time.Millisecond)

	r3, err := exec.Run(context.Background(), "k")
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if r3.FromCache {
		t.Fatal("third run after TTL expiry should re-execute, not be from cache")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls after TTL expiry, got %d", calls)
	}
}

// TestExecutor_InputFingerprintDetectsCollision verifies that with
// InputFingerprint enabled, reusing a key with a different input returns
// Conflict.
func TestExecutor_InputFingerprintDetectsCollision(t *testing.T) {
	var calls int32
	policy := DefaultPolicy().WithInputFingerprint(true)
	store := NewMemoryStore[string](policy)
	exec := New(func(s string) string { return "fixed-key" }, counterOp(&calls, 0, "v")).
		Store(store).
		Policy(policy).
		Build()

	_, err := exec.Run(context.Background(), "payload-a")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	_, err = exec.Run(context.Background(), "payload-b")
	if err == nil {
		t.Fatal("expected a conflict error for a differing payload under the same key")
	}
	var idemErr *IdempotencyError
	if !isIdempotencyError(err, &idemErr) {
		t.Fatalf("expected *IdempotencyError, got %T: %v", err, err)
	}
	if idemErr.Kind != Conflict {
		t.Fatalf("expected Conflict, got %v", idemErr.Kind)
	}
}

func isIdempotencyError(err error, target **IdempotencyError) bool {
	ie, ok := err.(*IdempotencyError)
	if !ok {
		return false
	}
	*target = ie
	return true
}

// TestExecutor_OperationFailurePropagates verifies a failing operation
// surfaces as OperationFailed and subsequent calls within FailureTTL see
// PreviouslyFailed.
func TestExecutor_OperationFailurePropagates(t *testing.T) {
	policy := DefaultPolicy().WithTTL(time.Hour, time.Hour)
	store := NewMemoryStore[string](policy)
	exec := New(func(s string) string { return s }, func(ctx context.Context, input string) result.LazyAction[string] {
		return result.ActionOfErr[string](errBoom)
	}).Store(store).Policy(policy).Build()

	_, err := exec.Run(context.Background(), "k")
	var idemErr *IdempotencyError
	if !isIdempotencyError(err, &idemErr) || idemErr.Kind != OperationFailed {
		t.Fatalf("expected OperationFailed, got %v", err)
	}

	_, err = exec.Run(context.Background(), "k")
	if !isIdempotencyError(err, &idemErr) || idemErr.Kind != PreviouslyFailed {
		t.Fatalf("expected PreviouslyFailed on retry within FailureTTL, got %v", err)
	}
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errBoom = sentinelErr("boom")
