package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind uint8

const (
	kindOther errorKind = iota
	kindNotFound
	kindAlreadyExists
	kindConflict
	kindUnavailable
)

func kindOf(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists:
		return kindAlreadyExists
	case codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return kindUnavailable
	default:
		return kindOther
	}
}

// Error carries the gRPC classification of a failed Firestore call so repository callers can map
// it without importing grpc.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return e.op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsAlreadyExists reports that a create-only write hit an existing document.
func (e *Error) IsAlreadyExists() bool { return e != nil && e.kind == kindAlreadyExists }

// IsConflict reports contention or a failed precondition. AlreadyExists counts as a conflict.
func (e *Error) IsConflict() bool {
	return e != nil && (e.kind == kindConflict || e.kind == kindAlreadyExists)
}

// IsUnavailable reports a transient backend failure worth retrying.
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// WrapError tags err with op and its classification. Cancellation and deadline errors, including
// their gRPC forms, come back as the plain context errors. An *Error already in the chain is
// returned as is, gaining op only if it had none.
func WrapError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, kind: kindOf(code), err: err}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
