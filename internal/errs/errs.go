// internal/errs/errs.go
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the stable category of an application error.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindConflict           Kind = "CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindExpired            Kind = "EXPIRED"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindMismatch           Kind = "MISMATCH"
	KindUnsupportedDialect Kind = "UNSUPPORTED_DIALECT"
	KindConnection         Kind = "CONNECTION_ERROR"
	KindProvisioning       Kind = "PROVISIONING_ERROR"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// ConnCategory sub-classifies connection failures.
type ConnCategory string

const (
	ConnAuth            ConnCategory = "auth"
	ConnUnknownDatabase ConnCategory = "unknown_database"
	ConnUnreachable     ConnCategory = "unreachable"
	ConnTimeout         ConnCategory = "timeout"
	ConnTLSMismatch     ConnCategory = "tls_mismatch"
	ConnTooMany         ConnCategory = "too_many_connections"
	ConnGeneric         ConnCategory = "generic"
)

// Error is the application error carried from the core packages to the
// request boundary. Tag is the stable error_type reported to clients.
type Error struct {
	Kind     Kind
	Tag      string
	Message  string
	Category ConnCategory
	Status   int
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// HTTPStatus returns the explicit status override or the default for the kind.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindExpired, KindMismatch, KindUnsupportedDialect, KindConnection:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrExpired            = &Error{Kind: KindExpired}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrMismatch           = &Error{Kind: KindMismatch}
	ErrUnsupportedDialect = &Error{Kind: KindUnsupportedDialect}
	ErrConnection         = &Error{Kind: KindConnection}
	ErrProvisioning       = &Error{Kind: KindProvisioning}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrInternal           = &Error{Kind: KindInternal}
)

func newErr(kind Kind, tag, msg string) *Error {
	return &Error{Kind: kind, Tag: tag, Message: msg}
}

func Validation(tag, msg string) *Error  { return newErr(KindValidation, tag, msg) }
func Conflict(tag, msg string) *Error    { return newErr(KindConflict, tag, msg) }
func NotFound(tag, msg string) *Error    { return newErr(KindNotFound, tag, msg) }
func Expired(tag, msg string) *Error     { return newErr(KindExpired, tag, msg) }
func RateLimited(tag, msg string) *Error { return newErr(KindRateLimited, tag, msg) }
func Mismatch(tag, msg string) *Error    { return newErr(KindMismatch, tag, msg) }
func Unauthorized(tag, msg string) *Error {
	return newErr(KindUnauthorized, tag, msg)
}

// UnsupportedDialect reports an unknown dialect tag.
func UnsupportedDialect(dialect string) *Error {
	return newErr(KindUnsupportedDialect, "UNSUPPORTED_DB_TYPE", fmt.Sprintf("Unsupported DB type: %s", dialect))
}

// Connection builds a classified connection failure.
func Connection(category ConnCategory, msg string, cause error) *Error {
	return &Error{
		Kind:     KindConnection,
		Tag:      "CONNECTION_" + strings.ToUpper(string(category)),
		Message:  msg,
		Category: category,
		Cause:    cause,
	}
}

// Provisioning hides the cause from clients; it is kept for logs.
func Provisioning(msg string, cause error) *Error {
	return &Error{Kind: KindProvisioning, Tag: "PROVISIONING_ERROR", Message: msg, Cause: cause}
}

// Internal wraps an unexpected failure behind a short message.
func Internal(tag, msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Tag: tag, Message: msg, Cause: cause}
}

// WithStatus returns a copy of err with an explicit HTTP status. Non-application
// errors are wrapped as internal first.
func WithStatus(err error, status int) *Error {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Internal("INTERNAL_ERROR", "An unexpected internal server error occurred.", err)
	}
	cp := *appErr
	cp.Status = status
	return &cp
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
