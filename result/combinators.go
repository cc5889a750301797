package result

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Retry invokes action up to times attempts, stopping at the first success.
// backoff(n) computes the delay after failed attempt n (1-indexed), i.e. the
// delay before attempt n+1; a nil backoff retries immediately. The error from the
// final attempt is returned if every attempt fails. times < 1 is treated as
// 1 (the action always runs at least once).
func Retry[T any](action LazyAction[T], times int, backoff func(attempt int) time.Duration) LazyAction[T] {
	if times < 1 {
		times = 1
	}
	return func(ctx context.Context) Result[T] {
		var last Result[T]
		for attempt := 1; attempt <= times; attempt++ {
			if err := ctx.Err(); err != nil {
				return Err[T](err)
			}
			last = action(ctx)
			if last.IsOk() {
				return last
			}
			if attempt == times {
				break
			}
			if backoff != nil {
				d := backoff(attempt)
				if d > 0 {
					t := time.NewTimer(d)
					select {
					case <-ctx.Done():
						t.Stop()
						return Err[T](ctx.Err())
					case <-t.C:
					}
				}
			}
		}
		return last
	}
}

// Timeout races action against a d-long timer. If the timer fires first, the
// returned action yields Err(ErrTimeout); action runs on a context derived
// from ctx via context.WithTimeout, which is itself cancelled once the timer
// fires (or once the caller's ctx is), so action observes cancellation
// through ctx.Done() like any other LazyAction.
func Timeout[T any](action LazyAction[T], d time.Duration) LazyAction[T] {
	return func(ctx context.Context) Result[T] {
		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		out := make(chan Result[T], 1)
		go func() {
			out <- action(tctx)
		}()

		select {
		case r := <-out:
			return r
		case <-tctx.Done():
			if ctx.Err() != nil {
				return Err[T](ctx.Err())
			}
			return Err[T](ErrTimeout)
		}
	}
}

// FallbackChain invokes actions in order, returning the first Ok result. If
// every action fails, the last error is returned. Calling FallbackChain with
// no actions returns an action that always fails.
func FallbackChain[T any](actions ...LazyAction[T]) LazyAction[T] {
	return func(ctx context.Context) Result[T] {
		var last Result[T] = Err[T](ErrCancelled)
		for _, action := range actions {
			if err := ctx.Err(); err != nil {
				return Err[T](err)
			}
			last = action(ctx)
			if last.IsOk() {
				return last
			}
		}
		return last
	}
}

// RaceOk invokes every action concurrently and returns the first Ok result,
// cancelling the remaining actions' derived context. If every action fails,
// the last observed error is returned (observation order is not
// deterministic across runs).
func RaceOk[T any](actions ...LazyAction[T]) LazyAction[T] {
	return func(ctx context.Context) Result[T] {
		if len(actions) == 0 {
			return Err[T](ErrCancelled)
		}

		rctx, cancel := context.WithCancel(ctx)
		defer cancel()

		out := make(chan Result[T], len(actions))
		var wg sync.WaitGroup
		wg.Add(len(actions))
		for _, action := range actions {
			action := action
			go func() {
				defer wg.Done()
				out <- action(rctx)
			}()
		}
		go func() {
			wg.Wait()
			close(out)
		}()

		var last Result[T]
		for r := range out {
			if r.IsOk() {
				cancel()
				return r
			}
			last = r
		}
		return last
	}
}

// Parallel invokes every action concurrently and, if all succeed, returns
// Ok of their values in input order. The first failure cancels the
// remaining actions' derived context and is returned as the overall error.
func Parallel[T any](actions ...LazyAction[T]) LazyAction[[]T] {
	return func(ctx context.Context) Result[[]T] {
		if len(actions) == 0 {
			return Ok([]T{})
		}

		pctx, cancel := context.WithCancel(ctx)
		defer cancel()

		values := make([]T, len(actions))
		var errOnce sync.Once
		var firstErr error

		var wg sync.WaitGroup
		wg.Add(len(actions))
		for i, action := range actions {
			i, action := i, action
			go func() {
				defer wg.Done()
				r := action(pctx)
				v, err := r.Unwrap()
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					cancel()
					return
				}
				values[i] = v
			}()
		}
		wg.Wait()

		if firstErr != nil {
			return Err[[]T](firstErr)
		}
		return Ok(values)
	}
}

// TraversePar applies f to every item with bounded concurrency, preserving
// input order in the returned slice. concurrency <= 0 means
// runtime.NumCPU()*2. The first error cancels sibling work via a derived
// context and is returned once the in-flight calls of f have returned.
func TraversePar[T, R any](ctx context.Context, items []T, f func(context.Context, T) Result[R], concurrency int) Result[[]R] {
	if len(items) == 0 {
		return Ok([]R{})
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU() * 2
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	tctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	var errOnce sync.Once
	var firstErr error

	type work struct {
		index int
		item  T
	}
	queue := make(chan work, len(items))
	for i, item := range items {
		queue <- work{index: i, item: item}
	}
	close(queue)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for range concurrency {
		go func() {
			defer wg.Done()
			for w := range queue {
				select {
				case <-tctx.Done():
					return
				default:
				}
				r := f(tctx, w.item)
				v, err := r.Unwrap()
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					cancel()
					continue
				}
				results[w.index] = v
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return Err[[]R](firstErr)
	}
	if err := ctx.Err(); err != nil {
		return Err[[]R](err)
	}
	return Ok(results)
}
