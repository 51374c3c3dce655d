package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error. Kinds map onto HTTP statuses and stable
// wire codes that clients switch on.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindNotFound           Kind = "not_found"
	KindExpired            Kind = "expired"
	KindAlreadyUsed        Kind = "already_used"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindEmailNotConfirmed  Kind = "email_not_confirmed"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal_error"
)

// HTTPStatus returns the status code used when an error of this kind reaches a handler.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindExpired:
		return http.StatusGone
	case KindAlreadyUsed, KindConflict:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthorized:
		return http.StatusUnauthorized
	case KindEmailNotConfirmed, KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	cause   error
}

// Kind-only sentinels. errors.Is(err, ErrNotFound) matches any not-found error.
var (
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrExpired            = &Error{Kind: KindExpired}
	ErrAlreadyUsed        = &Error{Kind: KindAlreadyUsed}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrEmailNotConfirmed  = &Error{Kind: KindEmailNotConfirmed}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrConflict           = &Error{Kind: KindConflict}
)

// New creates a domain error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a domain error that unwraps to cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails returns a copy of e with per-field details attached.
func (e *Error) WithDetails(details map[string]string) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Details: details, cause: e.cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error of the same kind. A target with a message only
// matches errors carrying that same message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// KindOf returns the kind of err, or KindInternal when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
