// Package saga implements a sequential chain of reversible steps. Each step
// pairs an action with an optional compensator; on failure, compensators for
// every already-applied step run in reverse order before the failure is
// surfaced to the caller.
package saga

import (
	"context"

	"github.com/prostomarkeloff/emergent/result"
)

// Compensate undoes the effect of a successfully applied step. It receives
// the value the step produced.
type Compensate[T any] func(ctx context.Context, value T) error

// Step pairs an action with its compensator. Compensate may be nil for
// steps with no undo (e.g. a pure read).
type Step[T any] struct {
	Action     result.LazyAction[T]
	Compensate Compensate[T]
}

// NewStep builds a Step from an action and an optional compensator.
func NewStep[T any](action result.LazyAction[T], compensate Compensate[T]) Step[T] {
	return Step[T]{Action: action, Compensate: compensate}
}

// NextFunc produces the next step from the previous step's success value.
type NextFunc[T any] func(ctx context.Context, previous T) Step[T]

// Chain is a sequence of steps built by chaining NextFuncs off the first
// step. It is immutable once built; Run may be called multiple times, each
// invocation re-evaluating every step from scratch.
type Chain[T any] struct {
	first Step[T]
	nexts []NextFunc[T]
}

// NewChain starts a Chain with its first step.
func NewChain[T any](first Step[T]) *Chain[T] {
	return &Chain[T]{first: first}
}

// Then appends a step, derived from the previous step's success value, to
// the chain. Returns the same *Chain for fluent chaining.
func (c *Chain[T]) Then(next NextFunc[T]) *Chain[T] {
	c.nexts = append(c.nexts, next)
	return c
}

// AppliedStep records a successfully applied step's value and compensator,
// for introspection or for driving rollback.
type AppliedStep[T any] struct {
	Value      T
	Compensate Compensate[T]
}

// SagaResult is returned by Run on success. RunID identifies this
// particular invocation of Run for log correlation; it has no meaning
// across process restarts.
type SagaResult[T any] struct {
	RunID   string
	Value   T
	Applied []AppliedStep[T]
}
