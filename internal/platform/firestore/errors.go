package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies Firestore failures for callers that branch on them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnavailable
)

// Error wraps a Firestore failure with the operation that produced it.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a missing-document failure.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsConflict reports whether err is an already-exists or contention failure.
func IsConflict(err error) bool { return kindOf(err) == KindConflict }

// IsUnavailable reports whether err is transient.
func IsUnavailable(err error) bool { return kindOf(err) == KindUnavailable }

func kindOf(err error) ErrorKind {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Kind
	}
	return classify(err)
}

func classify(err error) ErrorKind {
	switch status.Code(err) {
	case codes.NotFound:
		return KindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return KindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// WrapError annotates err with op. Context errors pass through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}
