package provider

import (
	"errors"
	"fmt"
)

// Error codes reported by backends.
const (
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeWeakPassword      = "auth/weak-password"
	CodeUserDisabled      = "auth/user-disabled"
	CodeUserNotFound      = "auth/user-not-found"
	CodeWrongPassword     = "auth/wrong-password"
	CodeInvalidCredential = "auth/invalid-credential"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeInvalidToken      = "auth/invalid-token"
	CodeInvalidCode       = "auth/invalid-action-code"

	CodePermissionDenied = "permission-denied"
	CodeNotFound         = "not-found"
	CodeInvalidArgument  = "invalid-argument"
	CodeUnavailable      = "unavailable"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func Errf(code, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with code unless it already carries one.
func Wrap(code string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Code: code, Err: err}
}

// Code returns the provider code carried by err, or "" for foreign errors.
func Code(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
