package provider

import (
	"net/mail"
	"strings"
)

const MinPasswordLength = 6

// NormalizeEmail lowercases and trims, and reports CodeInvalidEmail for
// anything that is not a bare address.
func NormalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	a, err := mail.ParseAddress(e)
	if err != nil || a.Address != e || !strings.Contains(e[strings.LastIndex(e, "@")+1:], ".") {
		return "", &Error{Code: CodeInvalidEmail}
	}
	return e, nil
}

func CheckPassword(pw string) error {
	if len([]rune(pw)) < MinPasswordLength {
		return &Error{Code: CodeWeakPassword}
	}
	return nil
}

type Op int

const (
	OpRead Op = iota
	OpWrite
)

// Authorize applies the access policy shared by every backend: signed-in users
// read any post or category, create posts and categories only as themselves,
// and see only their own profile.
func Authorize(caller *Identity, op Op, collection, id string, data map[string]any) error {
	if caller == nil {
		return Errf(CodePermissionDenied, "sign-in required")
	}
	switch collection {
	case Users:
		if id != caller.UID {
			return Errf(CodePermissionDenied, "profile %s belongs to another user", id)
		}
	case Posts:
		if op == OpWrite && data["userId"] != caller.UID {
			return Errf(CodePermissionDenied, "post must be attributed to the caller")
		}
	case Categories:
		if op == OpWrite && data["createdBy"] != caller.UID {
			return Errf(CodePermissionDenied, "category must be attributed to the caller")
		}
	default:
		return Errf(CodePermissionDenied, "unknown collection %q", collection)
	}
	return nil
}
