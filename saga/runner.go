package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prostomarkeloff/emergent/observability"
)

// ErrCancelled is surfaced as the failing step's error when ctx is
// cancelled while that step's action is running.
var ErrCancelled = fmt.Errorf("saga: run cancelled")

// Run executes chain sequentially: the first step's action runs, then each
// NextFunc derives the following step from the previous success value. On
// any step's failure (including ctx cancellation observed during that
// step), every already-applied step's compensator runs in reverse order,
// using a context derived via context.WithoutCancel so an outer
// cancellation never aborts the unwind.
func Run[T any](ctx context.Context, cfg Config, chain *Chain[T]) (SagaResult[T], error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		observer = observability.NoOpObserver{}
	}

	runID := uuid.NewString()
	totalSteps := len(chain.nexts) + 1
	observer.OnEvent(ctx, observability.Event{
		Type:      EventSagaStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "saga.Run",
		Data:      map[string]any{"run_id": runID, "steps": totalSteps},
	})

	applied := make([]AppliedStep[T], 0, totalSteps)
	step := chain.first

	for idx := 0; ; idx++ {
		stage := idx + 1
		observer.OnEvent(ctx, observability.Event{
			Type:      EventStepStart,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "saga.Run",
			Data:      map[string]any{"run_id": runID, "stage": stage, "total": totalSteps},
		})

		var stepErr error
		var value T
		if ctx.Err() != nil {
			stepErr = ErrCancelled
		} else {
			r := step.Action(ctx)
			value, stepErr = r.Unwrap()
			if stepErr != nil && ctx.Err() != nil {
				stepErr = fmt.Errorf("%w: %w", ErrCancelled, stepErr)
			}
		}

		observer.OnEvent(ctx, observability.Event{
			Type:      EventStepComplete,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "saga.Run",
			Data:      map[string]any{"run_id": runID, "stage": stage, "total": totalSteps, "error": stepErr != nil},
		})

		if stepErr != nil {
			rollbackErrs := rollback(ctx, observer, runID, applied)
			observer.OnEvent(ctx, observability.Event{
				Type:      EventSagaComplete,
				Level:     observability.LevelError,
				Timestamp: time.Now(),
				Source:    "saga.Run",
				Data:      map[string]any{"run_id": runID, "stage": stage, "error": true, "rollback_complete": len(rollbackErrs) == 0},
			})
			return SagaResult[T]{}, &SagaError{
				RunID:            runID,
				Stage:            stage,
				Err:              stepErr,
				RollbackComplete: len(rollbackErrs) == 0,
				RollbackErrors:   rollbackErrs,
			}
		}

		applied = append(applied, AppliedStep[T]{Value: value, Compensate: step.Compensate})

		if idx == len(chain.nexts) {
			observer.OnEvent(ctx, observability.Event{
				Type:      EventSagaComplete,
				Level:     observability.LevelInfo,
				Timestamp: time.Now(),
				Source:    "saga.Run",
				Data:      map[string]any{"run_id": runID, "stage": stage, "error": false},
			})
			return SagaResult[T]{RunID: runID, Value: value, Applied: applied}, nil
		}

		step = chain.nexts[idx](ctx, value)
	}
}

// rollback pops applied in LIFO order, invoking every non-nil compensator.
// Every remaining compensator is attempted even if an earlier one fails.
func rollback[T any](ctx context.Context, observer observability.Observer, runID string, applied []AppliedStep[T]) []error {
	if len(applied) == 0 {
		return nil
	}

	rctx := context.WithoutCancel(ctx)
	observer.OnEvent(ctx, observability.Event{
		Type:      EventRollbackStart,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "saga.Run",
		Data:      map[string]any{"run_id": runID, "applied": len(applied)},
	})

	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		if step.Compensate == nil {
			continue
		}
		err := step.Compensate(rctx, step.Value)
		observer.OnEvent(ctx, observability.Event{
			Type:      EventCompensatorRun,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "saga.Run",
			Data:      map[string]any{"run_id": runID, "index": i, "error": err != nil},
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	observer.OnEvent(ctx, observability.Event{
		Type:      EventRollbackComplete,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "saga.Run",
		Data:      map[string]any{"run_id": runID, "errors": len(errs)},
	})

	return errs
}
