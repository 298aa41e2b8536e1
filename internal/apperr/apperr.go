// Package apperr defines the error kinds surfaced by the wallet core. Every
// error returned from the ledger, credential and auth packages carries one of
// these kinds so the transport layer can map it to a status code without
// string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable category of an error.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidCredential  Kind = "invalid_credential"
	KindCredentialExpired  Kind = "credential_expired"
	KindCredentialInactive Kind = "credential_inactive"
	KindForbidden          Kind = "forbidden"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindSameAccount        Kind = "same_account"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindLimitExceeded      Kind = "limit_exceeded"
	KindSignature          Kind = "signature"
	KindExternalService    Kind = "external_service"
)

// Error is a categorized error with a human-readable message. Permission is
// only set for forbidden errors and names the permission that was missing.
type Error struct {
	Kind       Kind
	Message    string
	Permission string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below can be used
// with errors.Is regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "no credentials supplied"}
	ErrInvalidCredential  = &Error{Kind: KindInvalidCredential, Message: "could not validate credentials"}
	ErrCredentialExpired  = &Error{Kind: KindCredentialExpired, Message: "API key has expired"}
	ErrCredentialInactive = &Error{Kind: KindCredentialInactive, Message: "API key is inactive"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrSameAccount        = &Error{Kind: KindSameAccount, Message: "cannot transfer to the same wallet"}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrLimitExceeded      = &Error{Kind: KindLimitExceeded, Message: "limit exceeded"}
	ErrSignature          = &Error{Kind: KindSignature, Message: "invalid signature"}
	ErrExternalService    = &Error{Kind: KindExternalService, Message: "external service failure"}
)

// Validation returns a validation error with the given message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error naming the missing thing.
func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// Forbidden reports that permission is required but was not granted.
func Forbidden(permission string) error {
	return &Error{
		Kind:       KindForbidden,
		Message:    fmt.Sprintf("insufficient permissions: %q required", permission),
		Permission: permission,
	}
}

// LimitExceeded returns a limit error with the given message.
func LimitExceeded(format string, args ...any) error {
	return &Error{Kind: KindLimitExceeded, Message: fmt.Sprintf(format, args...)}
}

// Signature returns a webhook authenticity failure.
func Signature(msg string) error {
	return &Error{Kind: KindSignature, Message: msg}
}

// External wraps a failure from an outbound collaborator.
func External(msg string, err error) error {
	return &Error{Kind: KindExternalService, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MissingPermission returns the permission named by a forbidden error.
func MissingPermission(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindForbidden {
		return e.Permission
	}
	return ""
}
