// Package idempotency provides single-flight, exactly-once-to-success
// execution of a keyed operation: concurrent or retried invocations sharing
// a key observe exactly one underlying execution and the same result.
package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ClaimOutcome reports the result of attempting to claim a key for
// execution.
type ClaimOutcome int

const (
	// Claimed means the caller won the right to execute the operation.
	Claimed ClaimOutcome = iota
	// AlreadyDone means a prior winner already completed successfully;
	// the caller should use the returned record's value.
	AlreadyDone
	// InFlight means another caller currently holds the claim.
	InFlight
	// CollidedInputHash means the key was claimed before with a
	// different input fingerprint.
	CollidedInputHash
	// Failed means a prior winner completed with a failure still within
	// its FailureTTL.
	Failed
)

// String renders the outcome for logging.
func (o ClaimOutcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case AlreadyDone:
		return "already_done"
	case InFlight:
		return "in_flight"
	case CollidedInputHash:
		return "collided_input_hash"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is the persisted state of one idempotency key. ClaimToken
// identifies the specific claim that produced the record, minted fresh on
// every Claim/ForceClaim, so a caller can tell its own claim apart from one
// a concurrent re-claimer won after a lease expired.
type Record[T any] struct {
	Key        string
	State      recordState
	Value      T
	Err        string
	InputHash  uint64
	InsertedAt time.Time
	ClaimToken string
}

// newClaimToken mints a fresh claim identifier for a Claim or ForceClaim
// call.
func newClaimToken() string {
	return uuid.NewString()
}

type recordState int

const (
	statePending recordState = iota
	stateDone
	stateFailed
)

// Store persists claim records for a keyed operation. Claim must be atomic:
// under concurrent calls for the same key, exactly one caller observes
// Claimed and every other caller observes InFlight, AlreadyDone, Failed, or
// CollidedInputHash, never a second Claimed.
type Store[T any] interface {
	// Claim attempts to acquire key for execution at time now, recording
	// inputHash if fingerprinting is enabled (0 otherwise). It returns
	// the outcome and a record: for Claimed, the fresh Pending record
	// carrying its ClaimToken; for every other outcome, the existing
	// record.
	Claim(ctx context.Context, key string, now time.Time, inputHash uint64) (ClaimOutcome, Record[T], error)
	// ForceClaim unconditionally overwrites whatever record exists for
	// key with a fresh Pending record, used by Policy.OnPending == Force.
	// Returns the fresh record's ClaimToken.
	ForceClaim(ctx context.Context, key string, now time.Time, inputHash uint64) (string, error)
	// Complete marks key as successfully done with value.
	Complete(ctx context.Context, key string, value T) error
	// Fail marks key as failed with msg.
	Fail(ctx context.Context, key string, msg string) error
	// Get returns the current record for key, if any and not expired.
	Get(ctx context.Context, key string) (Record[T], bool, error)
	// PurgeExpired removes records whose TTL has elapsed as of now.
	PurgeExpired(ctx context.Context, now time.Time, policy Policy) error
}
