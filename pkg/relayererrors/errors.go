// Package relayererrors classifies failures the way §7 of the design
// groups them: most are contained inside the component that raised
// them, a handful must abort the owning task.
package relayererrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across components.
var (
	// ErrNotFound marks a read that found nothing, as distinct from a
	// storage failure.
	ErrNotFound = errors.New("not found")

	// ErrNotReady marks an operation that cannot proceed yet but may
	// succeed on a later retry (quorum not reached, payment pending).
	ErrNotReady = errors.New("not ready")
)

// MessageNotFoundError reports a gap the merkle tree builder found while
// advancing to a target leaf index: the store is missing a message the
// origin's on-chain tree already committed.
type MessageNotFoundError struct {
	Nonce uint32
}

func (e *MessageNotFoundError) Error() string {
	return fmt.Sprintf("message not found for nonce %d", e.Nonce)
}

// CriticalError wraps an invariant breach that the owning task cannot
// recover from on its own; the processor and submitter never swallow
// one, and agent assembly cancels every sibling task when one surfaces.
type CriticalError struct {
	Component string
	Cause     error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical failure in %s: %v", e.Component, e.Cause)
}

func (e *CriticalError) Unwrap() error {
	return e.Cause
}

// NewCritical wraps cause as a CriticalError attributed to component.
func NewCritical(component string, cause error) *CriticalError {
	return &CriticalError{Component: component, Cause: cause}
}

// IsCritical reports whether err (or something it wraps) is a CriticalError.
func IsCritical(err error) bool {
	var ce *CriticalError
	return errors.As(err, &ce)
}

// TransientError wraps a recoverable chain/storage error that should be
// retried with backoff rather than surfaced to the caller as fatal.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransient wraps cause as a TransientError attributed to op.
func NewTransient(op string, cause error) *TransientError {
	return &TransientError{Op: op, Cause: cause}
}

// IsTransient reports whether err (or something it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
