// Package apperr defines the typed outcomes returned by the service layer.
//
// Every rejection leaving the auth core or a service is an [*Error] carrying a
// [Kind]. Transport code maps the kind to its own representation; the Cause is
// kept for server-side logging and never sent to clients.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation is a locally detectable client fault.
	KindValidation
	// KindAuthentication is a failed credential check. Its sub-cases are indistinguishable.
	KindAuthentication
	// KindAuthorization means the caller is not (or no longer) authenticated.
	KindAuthorization
	// KindAccessDenied means the caller is authenticated but may not act on the resource.
	KindAccessDenied
	KindConflict
	KindNotFound
	// KindUnavailable marks a failed store or backend call.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindAccessDenied:
		return "access_denied"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the canonical error value of the service layer.
type Error struct {
	Kind Kind
	// Code is a machine-readable identifier such as "INVALID_TOKEN".
	Code string
	// Message is safe to return to the client.
	Message string
	// Cause is for logging only.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same code, so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e carrying cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// Sentinel outcomes of the auth core. Their messages are fixed.
var (
	ErrInvalidCredentials = &Error{Kind: KindAuthentication, Code: "INVALID_CREDENTIALS", Message: "Incorrect email or password"}
	ErrAccountDeactivated = &Error{Kind: KindAuthorization, Code: "ACCOUNT_DEACTIVATED", Message: "Account is deactivated"}
	ErrInvalidToken       = &Error{Kind: KindAuthorization, Code: "INVALID_TOKEN", Message: "Could not validate credentials"}
	ErrInvalidScheme      = &Error{Kind: KindAuthorization, Code: "INVALID_AUTH_SCHEME", Message: "Invalid authentication scheme"}
	ErrPasswordMismatch   = &Error{Kind: KindValidation, Code: "PASSWORD_MISMATCH", Message: "Passwords do not match"}
	ErrEmailTaken         = &Error{Kind: KindConflict, Code: "EMAIL_TAKEN", Message: "A user with this email already exists"}
)

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: msg}
}

func AccessDenied(msg string) *Error {
	return &Error{Kind: KindAccessDenied, Code: "ACCESS_DENIED", Message: msg}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: resource + " not found"}
}

// Unavailable wraps a store or backend failure.
func Unavailable(cause error) *Error {
	return &Error{Kind: KindUnavailable, Code: "STORE_UNAVAILABLE", Message: "Service temporarily unavailable", Cause: cause}
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "An unexpected error occurred", Cause: cause}
}

// As extracts the *Error from err's chain, or nil.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	if ae := As(err); ae != nil {
		return ae.Kind
	}
	return KindInternal
}
