package queue

import (
	"errors"

	"proxyencoder/internal/services"
)

// ErrNotClaimed is returned when a transition targets a job that is no longer
// encoding under the caller, e.g. after a stale reclaim or a batch cancel.
var ErrNotClaimed = errors.New("job is not claimed by this worker")

// ShouldRequeue decides whether a failed attempt goes back to pending.
// Validation, configuration and missing-input errors are terminal; everything
// else is retried until the job has used maxAttempts claims.
func ShouldRequeue(err error, attempts, maxAttempts int) bool {
	if !services.Retryable(err) {
		return false
	}
	return attempts < maxAttempts
}
