package saga

import "github.com/prostomarkeloff/emergent/observability"

const (
	EventSagaStart        observability.EventType = "saga.start"
	EventSagaComplete     observability.EventType = "saga.complete"
	EventStepStart        observability.EventType = "saga.step.start"
	EventStepComplete     observability.EventType = "saga.step.complete"
	EventRollbackStart    observability.EventType = "saga.rollback.start"
	EventCompensatorRun   observability.EventType = "saga.rollback.compensator"
	EventRollbackComplete observability.EventType = "saga.rollback.complete"
)
