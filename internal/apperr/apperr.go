// Package apperr classifies errors flowing out of backend drivers, the
// store, and ingress handlers into the kinds the "durable-accept,
// repair-later" policy distinguishes. Callers branch on classification
// with errors.As rather than string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error classifications the ingress and worker layers
// need to branch on.
type Kind int

const (
	// KindTransientBackend is retried via retry_queue with backoff.
	KindTransientBackend Kind = iota
	// KindPermanentBackend is a backend failure that persisted through the
	// driver's own repair step (record count still wrong after Reconcile,
	// or zone still present after delete). It takes the same retry path;
	// dead-lettering after the last attempt does not depend on the kind.
	KindPermanentBackend
	// KindOwnershipConflict is a delete rejected because the requester is
	// not the recorded owning upstream.
	KindOwnershipConflict
	// KindAuthFailure is a basic-auth credential mismatch.
	KindAuthFailure
	// KindMalformedInput is a structurally invalid request body.
	KindMalformedInput
	// KindStorageFailure is an internal datastore failure.
	KindStorageFailure
)

func (k Kind) String() string {
	switch k {
	case KindTransientBackend:
		return "transient_backend"
	case KindPermanentBackend:
		return "permanent_backend"
	case KindOwnershipConflict:
		return "ownership_conflict"
	case KindAuthFailure:
		return "auth_failure"
	case KindMalformedInput:
		return "malformed_input"
	case KindStorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can recover it
// with errors.As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func TransientBackend(msg string, err error) *Error {
	return Wrap(KindTransientBackend, msg, err)
}

func PermanentBackend(msg string, err error) *Error {
	return Wrap(KindPermanentBackend, msg, err)
}

func OwnershipConflict(msg string) *Error {
	return New(KindOwnershipConflict, msg)
}

func AuthFailure(msg string) *Error {
	return New(KindAuthFailure, msg)
}

func MalformedInput(msg string, err error) *Error {
	return Wrap(KindMalformedInput, msg, err)
}

func StorageFailure(msg string, err error) *Error {
	return Wrap(KindStorageFailure, msg, err)
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
