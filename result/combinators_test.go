package result_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prostomarkeloff/emergent/result"
)

func TestRetry_SucceedsOnFinalAttempt(t *testing.T) {
	var calls atomic.Int32
	action := result.LazyAction[int](func(ctx context.Context) result.Result[int] {
		n := calls.Add(1)
		if n < 3 {
			return result.Err[int](errors.New("not yet"))
		}
		return result.Ok(int(n))
	})

	r := result.Retry(action, 3, nil)(context.Background())
	v, err := r.Unwrap()
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if v != 3 {
		t.Fatalf("value = %d, want 3", v)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	action := result.ActionOfErr[int](boom)
	r := result.Retry(action, 3, nil)(context.Background())
	if !r.IsErr() || r.Error() != boom {
		t.Fatalf("expected boom after exhausting retries, got %v", r.Error())
	}
}

func TestTimeout_FiresBeforeSlowAction(t *testing.T) {
	slow := result.LazyAction[int](func(ctx context.Context) result.Result[int] {
		select {
		case <-time.After(50 * time.Millisecond):
			return result.Ok(1)
		case <-ctx.Done():
			return result.Err[int](ctx.Err())
		}
	})

	r := result.Timeout(slow, 5*time.Millisecond)(context.Background())
	if !errors.Is(r.Error(), result.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", r.Error())
	}
}

func TestTimeout_FastActionWins(t *testing.T) {
	fast := result.ActionOf(99)
	r := result.Timeout(fast, 50*time.Millisecond)(context.Background())
	v, err := r.Unwrap()
	if err != nil || v != 99 {
		t.Fatalf("Timeout should not delay a fast action: %d, %v", v, err)
	}
}

func TestFallbackChain_FirstOkWins(t *testing.T) {
	boom := errors.New("boom")
	chain := result.FallbackChain(
		result.ActionOfErr[string](boom),
		result.ActionOf("second"),
		result.ActionOf("third"),
	)
	v, err := chain(context.Background()).Unwrap()
	if err != nil || v != "second" {
		t.Fatalf("FallbackChain = %q, %v, want \"second\"", v, err)
	}
}

func TestFallbackChain_AllFail(t *testing.T) {
	last := errors.New("last")
	chain := result.FallbackChain(
		result.ActionOfErr[string](errors.New("first")),
		result.ActionOfErr[string](last),
	)
	r := chain(context.Background())
	if !r.IsErr() || r.Error() != last {
		t.Fatalf("expected the last error, got %v", r.Error())
	}
}

func TestRaceOk_ReturnsFirstSuccess(t *testing.T) {
	slowOk := result.LazyAction[string](func(ctx context.Context) result.Result[string] {
		select {
		case <-time.After(30 * time.Millisecond):
			return result.Ok("slow")
		case <-ctx.Done():
			return result.Err[string](ctx.Err())
		}
	})
	fastOk := result.LazyAction[string](func(ctx context.Context) result.Result[string] {
		return result.Ok("fast")
	})

	v, err := result.RaceOk(slowOk, fastOk)(context.Background()).Unwrap()
	if err != nil || v != "fast" {
		t.Fatalf("RaceOk = %q, %v, want \"fast\"", v, err)
	}
}

func TestRaceOk_AllFail(t *testing.T) {
	last := errors.New("last")
	r := result.RaceOk(
		result.ActionOfErr[int](errors.New("first")),
		result.ActionOfErr[int](last),
	)(context.Background())
	if !r.IsErr() {
		t.Fatalf("expected failure when all actions fail")
	}
}

func TestParallel_AllSucceed(t *testing.T) {
	r := result.Parallel(
		result.ActionOf(1),
		result.ActionOf(2),
		result.ActionOf(3),
	)(context.Background())

	values, err := r.Unwrap()
	if err != nil {
		t.Fatalf("Parallel failed: %v", err)
	}
	want := []int{1, 2, 3}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("values = %v, want %v", values, want)
		}
	}
}

func TestParallel_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	r := result.Parallel(
		result.ActionOf(1),
		result.ActionOfErr[int](boom),
		result.ActionOf(3),
	)(context.Background())

	if !r.IsErr() || r.Error() != boom {
		t.Fatalf("Parallel error = %v, want %v", r.Error(), boom)
	}
}

func TestTraversePar_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	r := result.TraversePar(context.Background(), items, func(ctx context.Context, i int) result.Result[int] {
		return result.Ok(i * i)
	}, 2)

	values, err := r.Unwrap()
	if err != nil {
		t.Fatalf("TraversePar failed: %v", err)
	}
	want := []int{1, 4, 9, 16, 25}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("values = %v, want %v", values, want)
		}
	}
}

func TestTraversePar_FailFast(t *testing.T) {
	boom := errors.New("boom")
	items := []int{1, 2, 3}
	r := result.TraversePar(context.Background(), items, func(ctx context.Context, i int) result.Result[int] {
		if i == 2 {
			return result.Err[int](boom)
		}
		return result.Ok(i)
	}, 3)

	if !r.IsErr() || r.Error() != boom {
		t.Fatalf("TraversePar = %v, want %v", r.Error(), boom)
	}
}

func TestTraversePar_EmptyInput(t *testing.T) {
	r := result.TraversePar(context.Background(), []int{}, func(ctx context.Context, i int) result.Result[int] {
		return result.Ok(i)
	}, 4)
	values, err := r.Unwrap()
	if err != nil || len(values) != 0 {
		t.Fatalf("TraversePar on empty input = %v, %v", values, err)
	}
}
