package permits

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"connectrpc.com/connect"
)

// ErrorKind classifies a failed record query.
type ErrorKind uint8

// Query failure kinds.
const (
	// ConnectionFailure means the store could not be reached.
	ConnectionFailure ErrorKind = iota + 1
	// ExecutionFailure means the store rejected the query or returned a
	// result that does not match the field catalog.
	ExecutionFailure
	// IntegrityViolation means a required field was NULL in storage.
	IntegrityViolation
	// Timeout means the query did not finish within the configured bound.
	Timeout
	// Canceled means the caller went away before the query finished.
	Canceled
)

// String satisfies [fmt.Stringer].
func (k ErrorKind) String() string {
	switch k {
	case ConnectionFailure:
		return "storage unavailable"
	case ExecutionFailure:
		return "query execution failed"
	case IntegrityViolation:
		return "data integrity violation"
	case Timeout:
		return "query timed out"
	case Canceled:
		return "query canceled"
	default:
		return fmt.Sprintf("error kind %d", uint8(k))
	}
}

// QueryError is an opaque error describing why records could not be fetched.
// The message never includes storage details; use [errors.Unwrap] to access
// the cause.
type QueryError struct {
	Kind ErrorKind
	// Field is the public field involved, if any.
	Field string
	cause error
}

// Error satisfies [error].
func (qerr QueryError) Error() string {
	return "record query failed: " + qerr.Kind.String()
}

// Unwrap returns the underlying cause of the query error.
func (qerr QueryError) Unwrap() error {
	return qerr.cause
}

// Code maps the failure onto a connect status code.
func (qerr QueryError) Code() connect.Code {
	switch qerr.Kind {
	case ConnectionFailure:
		return connect.CodeUnavailable
	case IntegrityViolation:
		return connect.CodeDataLoss
	case Timeout:
		return connect.CodeDeadlineExceeded
	case Canceled:
		return connect.CodeCanceled
	default:
		return connect.CodeInternal
	}
}

// LimitError is returned when a caller-supplied row limit is out of bounds.
type LimitError struct {
	Limit int
	Max   int
}

// Error satisfies [error].
func (lerr LimitError) Error() string {
	return fmt.Sprintf("limit must be between 1 and %d", lerr.Max)
}

// Code maps the failure onto a connect status code.
func (LimitError) Code() connect.Code {
	return connect.CodeInvalidArgument
}

// classify wraps a driver error with the kind a caller should act on.
func classify(ctx context.Context, fallback ErrorKind, err error) QueryError {
	kind := fallback
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = Timeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		kind = Canceled
	case errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr):
		kind = ConnectionFailure
	}
	return QueryError{Kind: kind, cause: err}
}
