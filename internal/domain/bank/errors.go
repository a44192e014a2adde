package bank

import (
	"fmt"
)

// AdapterUnavailableError wraps a transport or timeout failure from a bank
// feed client. Retryable: the enclosing job backs off and tries again.
type AdapterUnavailableError struct {
	Bank Bank
	Err  error
}

func (e AdapterUnavailableError) Error() string {
	return fmt.Sprintf("bank adapter %s unavailable: %v", e.Bank, e.Err)
}

func (e AdapterUnavailableError) Unwrap() error { return e.Err }

// Retryable marks transport failures as transient for the job queue
func (e AdapterUnavailableError) Retryable() bool { return true }

// MalformedStatementError indicates a statement line that cannot be parsed
// after normalization rules are applied. Never retried: the raw line is
// routed to the operator queue instead.
type MalformedStatementError struct {
	Bank   Bank
	Line   int
	Reason string
}

func (e MalformedStatementError) Error() string {
	return fmt.Sprintf("malformed statement line %d from %s: %s", e.Line, e.Bank, e.Reason)
}

// Retryable marks parse failures as permanent for the job queue
func (e MalformedStatementError) Retryable() bool { return false }
