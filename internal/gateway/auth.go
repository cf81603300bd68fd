package gateway

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/helper"
	"github.com/tazhibayda/feed-service/internal/metrics"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/queue"
)

type Registration struct {
	User             domain.User
	VerificationCode string
}

func ValidateCredentials(email, password string) error {
	if _, err := provider.NormalizeEmail(email); err != nil {
		return &ValidationError{Field: "email", Message: msgInvalidEmail}
	}
	if len([]rune(password)) < provider.MinPasswordLength {
		return &ValidationError{Field: "password", Message: msgWeakPassword}
	}
	return nil
}

func ValidateSignup(email, password, confirm string) error {
	if err := ValidateCredentials(email, password); err != nil {
		return err
	}
	if password != confirm {
		return &ValidationError{Field: "confirmPassword", Message: msgPasswordMismatch}
	}
	return nil
}

func ValidateLogin(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return &ValidationError{Field: "email", Message: msgMissingLogin}
	}
	if _, err := provider.NormalizeEmail(email); err != nil {
		return &ValidationError{Field: "email", Message: msgInvalidEmail}
	}
	return nil
}

// Register creates the identity, signs it in and writes the initial profile.
func (g *Gateway) Register(ctx context.Context, email, password string) (*Registration, error) {
	if err := ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	id, err := g.client.CreateUserWithEmailAndPassword(ctx, email, password)
	if err != nil {
		metrics.WritesTotal.WithLabelValues("account", "error").Inc()
		return nil, mapAuthError(err, msgRegisterFailed)
	}

	now := g.now()
	profile := map[string]any{
		"email":     id.Email,
		"createdAt": now,
		"lastLogin": now,
	}
	if err := g.client.Set(ctx, provider.Users, id.UID, profile, false); err != nil {
		g.log.Error("write profile", zap.String("uid", id.UID), zap.Error(err))
		metrics.WritesTotal.WithLabelValues("account", "error").Inc()
		return nil, generic(err, msgRegisterFailed)
	}
	metrics.WritesTotal.WithLabelValues("account", "ok").Inc()
	g.log.Info("account created", zap.String("uid", id.UID), zap.String("email_hash", helper.Hash8(id.Email)))

	g.publish(ctx, queue.KeyUserRegistered, queue.UserRegistered{
		UserID: id.UID, Email: id.Email, VerifyCode: id.VerificationCode,
	})
	return &Registration{User: *userOf(id), VerificationCode: id.VerificationCode}, nil
}

// Authenticate signs in and refreshes the profile's lastLogin. The profile
// update is best-effort.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}
	id, err := g.client.SignInWithEmailAndPassword(ctx, email, password)
	if err != nil {
		g.log.Info("sign-in rejected",
			zap.String("email_hash", helper.Hash8(email)),
			zap.String("code", provider.Code(err)))
		return nil, mapAuthError(err, msgSignInFailed)
	}

	if err := g.client.Set(ctx, provider.Users, id.UID, map[string]any{"lastLogin": g.now()}, true); err != nil {
		g.log.Warn("update lastLogin", zap.String("uid", id.UID), zap.Error(err))
	}
	g.publish(ctx, queue.KeyUserSignedIn, queue.UserSignedIn{UserID: id.UID, Email: id.Email})
	return userOf(id), nil
}

func (g *Gateway) Logout(ctx context.Context) error {
	if err := g.client.SignOut(ctx); err != nil {
		g.log.Error("sign-out", zap.Error(err))
		return &ProviderError{Code: provider.Code(err), Message: msgSignOutFailed, Err: err}
	}
	return nil
}

func (g *Gateway) ConfirmEmail(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return &ValidationError{Field: "code", Message: msgEmptyCode}
	}
	if err := g.client.ConfirmEmail(ctx, strings.TrimSpace(code)); err != nil {
		return mapAuthError(err, msgConfirmFailed)
	}
	return nil
}

func (g *Gateway) GetProfile(ctx context.Context) (*domain.Profile, error) {
	u := g.client.CurrentUser()
	if u == nil {
		return nil, ErrAuthRequired
	}
	doc, err := g.client.Get(ctx, provider.Users, u.UID)
	if err != nil {
		return nil, generic(err, msgLoadFailed)
	}
	return &domain.Profile{
		ID:        doc.ID,
		Email:     str(doc.Data, "email"),
		CreatedAt: ts(doc.Data, "createdAt"),
		LastLogin: ts(doc.Data, "lastLogin"),
	}, nil
}
