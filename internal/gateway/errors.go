package gateway

import (
	"errors"

	"github.com/tazhibayda/feed-service/internal/provider"
)

var ErrAuthRequired = errors.New("authentication required")

// ValidationError is raised before any provider call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ProviderError is a provider failure translated to a user-facing message.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Message }
func (e *ProviderError) Unwrap() error { return e.Err }

const (
	msgInvalidCredentials = "Invalid email or password."
	msgAuthRequired       = "You must be signed in to do that."

	msgRegisterFailed   = "Failed to create account. Please try again."
	msgSignInFailed     = "Failed to sign in. Please try again."
	msgSignOutFailed    = "Failed to sign out. Please try again."
	msgConfirmFailed    = "Failed to confirm email. Please try again."
	msgPostFailed       = "Failed to create post. Please try again."
	msgCategoryFailed   = "Failed to create category. Please try again."
	msgLoadFailed       = "Failed to load data. Please try again."
	msgInvalidEmail     = "Please enter a valid email address."
	msgWeakPassword     = "Password should be at least 6 characters."
	msgPasswordMismatch = "Passwords do not match."
	msgMissingLogin     = "Please enter your email and password."
	msgEmptyPost        = "Post content cannot be empty."
	msgLongPost         = "Post content must be 500 characters or less."
	msgEmptyCategory    = "Category name cannot be empty."
	msgEmptyCode        = "Confirmation code is required."
)

var authMessages = map[string]string{
	provider.CodeEmailInUse:        "An account with this email already exists.",
	provider.CodeInvalidEmail:      msgInvalidEmail,
	provider.CodeWeakPassword:      msgWeakPassword,
	provider.CodeUserDisabled:      "This account has been disabled.",
	provider.CodeUserNotFound:      msgInvalidCredentials,
	provider.CodeWrongPassword:     msgInvalidCredentials,
	provider.CodeInvalidCredential: msgInvalidCredentials,
	provider.CodeTooManyRequests:   "Too many failed attempts. Please try again later.",
	provider.CodeInvalidCode:       "This confirmation link is invalid or has expired.",
}

// mapAuthError looks the provider code up in the auth table; unknown codes get
// fallback.
func mapAuthError(err error, fallback string) error {
	code := provider.Code(err)
	msg, ok := authMessages[code]
	if !ok {
		msg = fallback
	}
	return &ProviderError{Code: code, Message: msg, Err: err}
}

func generic(err error, msg string) error {
	if errors.Is(err, ErrAuthRequired) {
		return err
	}
	return &ProviderError{Code: provider.Code(err), Message: msg, Err: err}
}

// Message is the text to show a user for err.
func Message(err error) string {
	var ve *ValidationError
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &pe):
		return pe.Message
	case errors.Is(err, ErrAuthRequired):
		return msgAuthRequired
	}
	if msg, ok := authMessages[provider.Code(err)]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}
