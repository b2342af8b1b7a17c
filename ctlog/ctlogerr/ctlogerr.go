// Package ctlogerr defines the error-kind taxonomy shared by every
// component in this module, built on gRPC's status codes the way
// Trillian's own storage and server layers do.
package ctlogerr

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an error by how a caller should react to it.
type Kind int

const (
	// Unknown is the zero value; errors should never be constructed
	// with it deliberately.
	Unknown Kind = iota
	// Validation means the request was malformed; retrying it
	// unmodified will never succeed.
	Validation
	// Conflict means the request collided with concurrent state
	// (e.g. a duplicate leaf hash, a stale CAS version); the caller
	// may retry after re-reading state.
	Conflict
	// Transient means the operation may succeed if retried as-is,
	// typically after a backoff.
	Transient
	// Fatal means the log or node is in a state from which this
	// operation cannot proceed at all.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func (k Kind) code() codes.Code {
	switch k {
	case Validation:
		return codes.InvalidArgument
	case Conflict:
		return codes.AlreadyExists
	case Transient:
		return codes.Unavailable
	case Fatal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Error is a kind-tagged error with an optional wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets an *Error round-trip through status.FromError, matching
// the convention grpc-status.Errorf/status.FromError expect.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.code(), e.Error())
}

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
