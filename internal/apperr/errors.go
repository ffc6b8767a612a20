package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	NotFound
	Validation
	Security
	StateConflict
	Permission
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Security:
		return "security"
	case StateConflict:
		return "state_conflict"
	case Permission:
		return "permission"
	default:
		return "internal"
	}
}

// Error is the typed, recoverable error surfaced at the API boundary.
// Security errors always carry a generic message; internals never leak.
type Error struct {
	Kind    Kind
	Message string
	Errs    []string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches per-field detail strings for the error list in the
// response envelope.
func (e *Error) WithDetails(details ...string) *Error {
	e.Errs = append(e.Errs, details...)
	return e
}

// FromError returns the *Error inside err, or wraps err as Internal.
func FromError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(Internal, "internal error", err)
}

// KindOf reports the Kind of err, Internal for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return http.StatusUnprocessableEntity
	case Security:
		return http.StatusUnauthorized
	case StateConflict:
		return http.StatusConflict
	case Permission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
