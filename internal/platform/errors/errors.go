// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	"context"
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode defines supported error codes used across the engine
// Values are stable for log/wire compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodePanic is for panics recovered by a worker loop
	ErrorCodePanic

	// ErrorCodeUnavailable is for transient errors where retry may succeed
	// (TradeSource unreachable, filesystem temporarily unavailable, ...)
	ErrorCodeUnavailable

	// ErrorCodeCancelled is for operations aborted by context cancellation
	ErrorCodeCancelled

	// ErrorCodeInvalidConfiguration is for bad/missing configuration at startup
	ErrorCodeInvalidConfiguration

	// ErrorCodeInvalidInput is for malformed extraction input (bad trade data)
	ErrorCodeInvalidInput

	// ErrorCodeInvalidPeriodCount is for a trade period count that isn't a
	// multiple of 24 (aggregator boundary)
	ErrorCodeInvalidPeriodCount

	// ErrorCodeOutOfRange is for a period index outside 1..24
	ErrorCodeOutOfRange

	// ErrorCodeInvalidArgument is for bad input parameters generally
	ErrorCodeInvalidArgument

	// ErrorCodeIOFailure is for report/audit/DLQ file write or read failures
	ErrorCodeIOFailure
)

// HTTPStatusCode turns an ErrorCode into an http status code, used only by the
// read-only ops surface (internal/ops/httpstatus)
func HTTPStatusCode(c ErrorCode) int {
	switch c {
	case ErrorCodeInvalidConfiguration, ErrorCodeInvalidInput,
		ErrorCodeInvalidPeriodCount, ErrorCodeOutOfRange, ErrorCodeInvalidArgument:
		return http.StatusUnprocessableEntity
	case ErrorCodeCancelled:
		return http.StatusServiceUnavailable
	case ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeIOFailure, ErrorCodePanic, ErrorCodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// field is optional (for validation); op is optional operation tag
// orig is the wrapped cause
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
	op    string
}

// Wire is the JSON-serializable form returned by the ops surface
type Wire struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// ToWire converts an *Error to a Wire payload
func (e *Error) ToWire() Wire { return Wire{Code: e.code, Message: e.msg, Field: e.field} }

// WireFrom converts any error into a Wire payload with best-effort mapping
// If err is nil, returns the zero-value Wire (no error)
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	if e, ok := As(err); ok {
		return e.ToWire()
	}
	return Wire{Code: ErrorCodeUnknown, Message: err.Error()}
}

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTPStatus returns the mapped HTTP status for any error
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Mutators (copy-on-write)

// WithField attaches a field to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// WithOp attaches an operation label to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// WithFieldChain sets field on *Error or wraps a foreign error into an *Error with Unknown code (copy-on-write)
func WithFieldChain(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return &Error{code: ErrorCodeUnknown, msg: err.Error(), field: field, orig: err}
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// InvalidConfigurationf returns a configuration error (the engine's one fatal error class)
func InvalidConfigurationf(format string, a ...any) error {
	return Newf(ErrorCodeInvalidConfiguration, format, a...)
}

// InvalidInputf returns a malformed-input error
func InvalidInputf(format string, a ...any) error { return Newf(ErrorCodeInvalidInput, format, a...) }

// InvalidPeriodCountf returns a period-count error naming the offending count
func InvalidPeriodCountf(format string, a ...any) error {
	return Newf(ErrorCodeInvalidPeriodCount, format, a...)
}

// OutOfRangef returns an out-of-range period index error
func OutOfRangef(format string, a ...any) error { return Newf(ErrorCodeOutOfRange, format, a...) }

// InvalidArgf returns an invalid argument error
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// Cancelledf returns a cancellation error
func Cancelledf(format string, a ...any) error { return Newf(ErrorCodeCancelled, format, a...) }

// Unavailablef returns an unavailable (transient) error
func Unavailablef(format string, a ...any) error { return Newf(ErrorCodeUnavailable, format, a...) }

// IOFailuref returns a report/audit/DLQ I/O error
func IOFailuref(format string, a ...any) error { return Newf(ErrorCodeIOFailure, format, a...) }

// PanicErrf returns a panic error
func PanicErrf(format string, a ...any) error { return Newf(ErrorCodePanic, format, a...) }

// Internalf returns a generic internal error
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }

// HTTP bundles status + wire in one shot (used by the ops surface)
func HTTP(err error) (int, Wire) {
	if err == nil {
		return http.StatusOK, Wire{}
	}
	return HTTPStatus(err), WireFrom(err)
}

// Retry semantics

// Retryable reports whether the error should be retried by the extraction
// runner's retry state machine. Unavailable, I/O failure, and uncoded
// (Unknown) errors, such as a foreign error from a TradeSource, are
// retryable; cancellation and every other code are not
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch CodeOf(err) {
	case ErrorCodeUnavailable, ErrorCodeIOFailure, ErrorCodeUnknown:
		return true
	default:
		return false
	}
}
