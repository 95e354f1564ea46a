package audit

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested audit resource cannot be located.
var ErrNotFound = errors.New("not found")

// ErrNotReady is returned when an append is attempted before the ledger
// finished recovering its chain state from the store.
var ErrNotReady = errors.New("ledger not ready")

// ValidationError rejects a malformed AuditEvent at LogEvent call time.
// It is the only error class surfaced to the business caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid audit event: %s: %s", e.Field, e.Reason)
}

// StoreError wraps a persistence failure. Retryable failures are retried by
// the ledger with bounded backoff before being given up on.
type StoreError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// CryptoError marks a failed key, cipher or signature operation. Fatal for
// the current append only; an entry must never be persisted with a missing
// or default signature.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// retryable reports whether err is a StoreError flagged as retryable.
func retryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
