package errors

import (
	stdErrors "errors"
	"net/http"
)

// Code classifies an error for HTTP mapping, retries and logging.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeInvalidState Code = "INVALID_STATE_TRANSITION"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	// CodeIdentityInconsistency marks a store that reported a duplicate identity it cannot return.
	CodeIdentityInconsistency Code = "IDENTITY_INCONSISTENCY"
	// CodeNotification is only ever logged; decisions never fail because of it.
	CodeNotification Code = "NOTIFICATION_FAILURE"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable = true
	final     = false
	details   = true
	opaque    = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:            {http.StatusBadRequest, final, "validation failed", details},
	CodeUnauthorized:          {http.StatusUnauthorized, final, "authentication required", opaque},
	CodeForbidden:             {http.StatusForbidden, final, "access denied", opaque},
	CodeNotFound:              {http.StatusNotFound, final, "resource not found", opaque},
	CodeConflict:              {http.StatusConflict, final, "conflict detected", opaque},
	CodeInvalidState:          {http.StatusUnprocessableEntity, final, "state transition disallowed", details},
	CodeIdempotency:           {http.StatusConflict, final, "idempotency key reused", details},
	CodeRateLimit:             {http.StatusTooManyRequests, final, "rate limit exceeded", opaque},
	CodeInternal:              {http.StatusInternalServerError, retryable, "internal server error", opaque},
	CodeDependency:            {http.StatusServiceUnavailable, retryable, "dependency unavailable", details},
	CodeIdentityInconsistency: {http.StatusInternalServerError, final, "identity store inconsistency", opaque},
	CodeNotification:          {http.StatusBadGateway, retryable, "notification delivery failed", opaque},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with a caller-facing message, optional details and
// an optional cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Error renders "CODE: message" followed by the cause when present.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	out := string(e.code) + ": " + e.message
	if e.cause != nil {
		out += ": " + e.cause.Error()
	}
	return out
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether the outermost coded error in err's chain has code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Retryable reports whether a caller may retry the operation that failed
// with err. Uncoded errors count as internal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}
