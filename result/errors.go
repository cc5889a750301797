package result

import "errors"

// ErrTimeout is returned by Timeout when the wrapped action does not
// complete before the deadline.
var ErrTimeout = errors.New("result: action timed out")

// ErrCancelled is returned by combinators when ctx is cancelled before an
// action can produce a result.
var ErrCancelled = errors.New("result: action cancelled")
