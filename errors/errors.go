// Package errors provides error handling for notify.
//
// This package re-exports github.com/cockroachdb/errors so every error carries
// a stack trace and can be annotated with hints and details, and it defines the
// sentinels the notification store and the timer engine classify failures by.
//
// Usage:
//
//	if err := store.SaveTimer(ctx, t); err != nil {
//	    return errors.Wrapf(err, "failed to save timer %s", t.Name)
//	}
//
//	if errors.IsNotFoundError(err) {
//	    // create the record
//	}
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors. Wrap them to add context; check them with Is.
var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = New("not found")
	// ErrInvalidRequest indicates the input was malformed or failed validation
	ErrInvalidRequest = New("invalid request")
	// ErrConflict indicates a uniqueness violation (e.g., a reused timer name)
	ErrConflict = New("resource conflict")
	// ErrResolution indicates a handler reference could not be resolved or constructed
	ErrResolution = New("handler resolution failed")
)

// IsNotFoundError reports whether err is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError reports whether err is or wraps ErrInvalidRequest.
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsResolutionError reports whether err is or wraps ErrResolution.
func IsResolutionError(err error) bool {
	return err != nil && Is(err, ErrResolution)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, fmt.Sprintf(format, args...))
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// NewResolutionError creates a resolution error for the given handler reference.
func NewResolutionError(ref string, format string, args ...interface{}) error {
	return WithDetailf(Wrapf(ErrResolution, "%s: %s", ref, fmt.Sprintf(format, args...)), "handler_ref=%s", ref)
}

// FromPanic converts a recovered panic value into an error with a stack trace.
// Values that already are errors keep their chain so Is/As still work.
func FromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return Wrap(err, "panic")
	}
	return Newf("panic: %v", r)
}
