package syncjob

import "errors"

// retryable is implemented by domain errors that know their own retry
// semantics (AdapterUnavailableError, MalformedStatementError,
// CrossTenantError, SyncConflictError).
type retryable interface {
	Retryable() bool
}

// IsRetryable classifies a job failure. Errors that declare themselves are
// believed; anything else (store contention, transport hiccups, timeouts) is
// treated as transient and retried with backoff.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
