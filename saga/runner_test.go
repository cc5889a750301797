package saga_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prostomarkeloff/emergent/result"
	"github.com/prostomarkeloff/emergent/saga"
)

func TestRun_AllStepsSucceed(t *testing.T) {
	var applied []string

	chain := saga.NewChain(saga.NewStep(
		result.ActionOf(10),
		func(ctx context.Context, v int) error {
			applied = append(applied, "c1")
			return nil
		},
	)).Then(func(ctx context.Context, prev int) saga.Step[int] {
		return saga.NewStep(
			result.ActionOf(prev+5),
			func(ctx context.Context, v int) error {
				applied = append(applied, "c2")
				return nil
			},
		)
	})

	r, err := saga.Run(context.Background(), saga.DefaultConfig(), chain)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r.Value != 15 {
		t.Fatalf("value = %d, want 15", r.Value)
	}
	if len(r.Applied) != 2 {
		t.Fatalf("applied = %d steps, want 2", len(r.Applied))
	}
	if len(applied) != 0 {
		t.Fatalf("no compensator should run on success, got %v", applied)
	}
	if r.RunID == "" {
		t.Fatal("expected a non-empty RunID")
	}
}

func TestRun_DistinctRunsGetDistinctRunIDs(t *testing.T) {
	chain := func() *saga.Chain[int] {
		return saga.NewChain(saga.NewStep(result.ActionOf(1), nil))
	}

	r1, err := saga.Run(context.Background(), saga.DefaultConfig(), chain())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	r2, err := saga.Run(context.Background(), saga.DefaultConfig(), chain())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if r1.RunID == r2.RunID {
		t.Fatalf("expected distinct RunIDs across separate Run calls, both were %q", r1.RunID)
	}
}

func TestRun_RollsBackInLIFOOrder(t *testing.T) {
	var log []string

	chain := saga.NewChain(saga.NewStep(
		result.ActionOf(10),
		func(ctx context.Context, v int) error {
			log = append(log, "c1")
			return nil
		},
	)).Then(func(ctx context.Context, prev int) saga.Step[int] {
		return saga.NewStep(
			result.ActionOfErr[int](errors.New("fail")),
			func(ctx context.Context, v int) error {
				log = append(log, "c2-should-not-run")
				return nil
			},
		)
	})

	_, err := saga.Run(context.Background(), saga.DefaultConfig(), chain)
	if err == nil {
		t.Fatalf("expected an error")
	}

	var sagaErr *saga.SagaError
	if !errors.As(err, &sagaErr) {
		t.Fatalf("expected *saga.SagaError, got %T", err)
	}
	if sagaErr.Stage != 2 {
		t.Fatalf("stage = %d, want 2", sagaErr.Stage)
	}
	if !sagaErr.RollbackComplete {
		t.Fatalf("rollback should be complete")
	}
	if len(log) != 1 || log[0] != "c1" {
		t.Fatalf("compensator log = %v, want [c1]", log)
	}
}

func TestRun_AttemptsAllCompensatorsDespiteFailures(t *testing.T) {
	boom1 := errors.New("compensator 1 failed")

	chain := saga.NewChain(saga.NewStep(
		result.ActionOf(1),
		func(ctx context.Context, v int) error { return boom1 },
	)).Then(func(ctx context.Context, prev int) saga.Step[int] {
		return saga.NewStep(
			result.ActionOf(2),
			func(ctx context.Context, v int) error { return nil },
		)
	}).Then(func(ctx context.Context, prev int) saga.Step[int] {
		return saga.NewStep(
			result.ActionOfErr[int](errors.New("step 3 failed")),
			nil,
		)
	})

	_, err := saga.Run(context.Background(), saga.DefaultConfig(), chain)
	var sagaErr *saga.SagaError
	if !errors.As(err, &sagaErr) {
		t.Fatalf("expected *saga.SagaError, got %T", err)
	}
	if sagaErr.RollbackComplete {
		t.Fatalf("rollback should be incomplete due to the failing compensator")
	}
	if len(sagaErr.RollbackErrors) != 1 || sagaErr.RollbackErrors[0] != boom1 {
		t.Fatalf("RollbackErrors = %v, want [%v]", sagaErr.RollbackErrors, boom1)
	}
}

func TestRun_NilCompensatorIsSkipped(t *testing.T) {
	chain := saga.NewChain(saga.NewStep(result.ActionOf(1), nil)).
		Then(func(ctx context.Context, prev int) saga.Step[int] {
			return saga.NewStep(result.ActionOfErr[int](errors.New("fail")), nil)
		})

	_, err := saga.Run(context.Background(), saga.DefaultConfig(), chain)
	var sagaErr *saga.SagaError
	if !errors.As(err, &sagaErr) {
		t.Fatalf("expected *saga.SagaError, got %T", err)
	}
	if !sagaErr.RollbackComplete {
		t.Fatalf("rollback with only nil compensators should report complete")
	}
}
