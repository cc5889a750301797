package idempotency

import "time"

// OnPendingBehavior controls what Run does when it observes an in-flight
// claim for its key.
type OnPendingBehavior int

const (
	// Wait polls until the pending record resolves or its lease expires,
	// at which point the key is re-claimed.
	Wait OnPendingBehavior = iota
	// FailFast returns an IdempotencyError{Kind: InFlight} immediately.
	FailFast
	// Force re-claims the key immediately, ignoring the existing claim.
	Force
)

// Policy controls TTL and contention behavior for an Executor.
type Policy struct {
	// SuccessTTL bounds how long a Done record is served from cache.
	SuccessTTL time.Duration
	// FailureTTL bounds how long a Failed record blocks re-execution.
	FailureTTL time.Duration
	// PendingLease bounds how long a Pending record is honored by
	// OnPending == Wait before the key is treated as abandoned and
	// re-claimed.
	PendingLease time.Duration
	// OnPending selects the behavior when a claim observes InFlight.
	OnPending OnPendingBehavior
	// InputFingerprint enables hashing the JSON-marshaled input and
	// rejecting key reuse across differing inputs.
	InputFingerprint bool
	// PollInterval controls the polling cadence under Wait.
	PollInterval time.Duration
}

// DefaultPolicy returns a Policy with conservative, always-terminating
// defaults.
func DefaultPolicy() Policy {
	return Policy{
		SuccessTTL:       24 * time.Hour,
		FailureTTL:       time.Minute,
		PendingLease:     30 * time.Second,
		OnPending:        Wait,
		InputFingerprint: false,
		PollInterval:     20 * time.Millisecond,
	}
}

// WithTTL returns a copy of p with SuccessTTL and FailureTTL set.
func (p Policy) WithTTL(success, failure time.Duration) Policy {
	p.SuccessTTL = success
	p.FailureTTL = failure
	return p
}

// WithOnPending returns a copy of p with OnPending set.
func (p Policy) WithOnPending(b OnPendingBehavior) Policy {
	p.OnPending = b
	return p
}

// WithInputFingerprint returns a copy of p with InputFingerprint set.
func (p Policy) WithInputFingerprint(enabled bool) Policy {
	p.InputFingerprint = enabled
	return p
}

// WithPendingLease returns a copy of p with PendingLease set.
func (p Policy) WithPendingLease(d time.Duration) Policy {
	p.PendingLease = d
	return p
}
