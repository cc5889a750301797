package saga

import "fmt"

// SagaError is returned by Run when a step fails. Stage is 1-based (the
// first step is stage 1) to match how a chain's steps are numbered
// elsewhere. RollbackComplete reports whether every compensator for every
// already-applied step succeeded; RollbackErrors lists any that did not.
type SagaError struct {
	RunID            string
	Stage            int
	Err              error
	RollbackComplete bool
	RollbackErrors   []error
}

func (e *SagaError) Error() string {
	if e.RollbackComplete {
		return fmt.Sprintf("saga: step %d failed: %v (rollback complete)", e.Stage, e.Err)
	}
	return fmt.Sprintf("saga: step %d failed: %v (rollback incomplete: %d compensator error(s))", e.Stage, e.Err, len(e.RollbackErrors))
}

func (e *SagaError) Unwrap() error {
	return e.Err
}
