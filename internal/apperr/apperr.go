// Package apperr defines the error kinds used throughout the lead event
// pipeline (spec.md §7): a machine code, a human message, and a
// retryability flag per error.
package apperr

import "fmt"

// Kind is the machine-readable error classification from spec.md §7.
type Kind string

const (
	Validation        Kind = "validation"
	Unauthorized      Kind = "unauthorized"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	RateLimitedRule   Kind = "rate_limited_rule"
	TransientIO       Kind = "transient_io"
	DownstreamRejected Kind = "downstream_rejected"
	InvariantViolation Kind = "invariant_violation"
)

// Error carries a machine code, a human message, and optional structured
// details, matching the {error:{code,message,details}} body spec.md §6/§7
// requires from the ingestion endpoint.
type Error struct {
	Kind    Kind                   `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether a job failing with this error should be
// retried per the propagation policy in spec.md §7.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case TransientIO, Conflict:
		return true
	default:
		return false
	}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Newf(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func WithDetails(err *Error, details map[string]interface{}) *Error {
	e := *err
	e.Details = details
	return &e
}

func NewValidation(message string) *Error { return New(Validation, "validation", message) }

func NewUnauthorized(message string) *Error { return New(Unauthorized, "unauthorized", message) }

func NewNotFound(resource string) *Error {
	return Newf(NotFound, "not_found", "%s not found", resource)
}

func NewConflict(message string) *Error { return New(Conflict, "conflict", message) }

func NewTransientIO(err error) *Error {
	return &Error{Kind: TransientIO, Code: "transient_io", Message: err.Error()}
}

func NewDownstreamRejected(message string) *Error {
	return New(DownstreamRejected, "downstream_rejected", message)
}

func NewInvariantViolation(message string) *Error {
	return New(InvariantViolation, "invariant_violation", message)
}

// As extracts an *Error from err, if it is one.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
