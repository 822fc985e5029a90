// Package apperr carries a typed error kind through every layer so the HTTP
// boundary can map failures to status codes in exactly one place.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindGateway
	KindConfiguration
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	case KindConfiguration:
		return "configuration"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a kinded error with a client-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrGateway        = &Error{Kind: KindGateway}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrRateLimited    = &Error{Kind: KindRateLimited}
)

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or missing input.
func Validation(format string, args ...any) error {
	return newf(KindValidation, format, args...)
}

// Authentication reports a missing or invalid credential.
func Authentication(format string, args ...any) error {
	return newf(KindAuthentication, format, args...)
}

// Authorization reports a caller acting outside its role.
func Authorization(format string, args ...any) error {
	return newf(KindAuthorization, format, args...)
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

// Conflict reports a request that clashes with current state.
func Conflict(format string, args ...any) error {
	return newf(KindConflict, format, args...)
}

// Configuration reports a missing or invalid setting.
func Configuration(format string, args ...any) error {
	return newf(KindConfiguration, format, args...)
}

// RateLimited reports a caller over its request budget.
func RateLimited(format string, args ...any) error {
	return newf(KindRateLimited, format, args...)
}

// Gateway wraps a third-party failure; message is what the provider reported.
func Gateway(message string, cause error) error {
	return &Error{Kind: KindGateway, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the outermost client-safe message. Internal errors never
// leak their cause.
func MessageOf(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal server error"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}
