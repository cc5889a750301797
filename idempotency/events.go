package idempotency

import "github.com/prostomarkeloff/emergent/observability"

const (
	EventClaim        observability.EventType = "idempotency.claim"
	EventExecuteStart observability.EventType = "idempotency.execute.start"
	EventExecuteDone  observability.EventType = "idempotency.execute.done"
	EventWaitPoll     observability.EventType = "idempotency.wait.poll"
	EventLeaseExpired observability.EventType = "idempotency.lease.expired"
)
