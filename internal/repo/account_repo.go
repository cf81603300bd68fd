package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/tazhibayda/feed-service/internal/helper"
	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/security"
)

// Account is the credential record. The public profile lives separately in
// the users collection.
type Account struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"password_hash"`
	EmailVerified bool      `bson:"email_verified"`
	Disabled      bool      `bson:"disabled"`
	CreatedAt     time.Time `bson:"created_at"`
	LastSignInAt  time.Time `bson:"last_sign_in_at"`
}

// Session backs one issued ID token; revoking it invalidates the token before
// the JWT itself expires.
type Session struct {
	TokenHash string    `bson:"token_hash"` // sha256(base64url(jti))
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	Revoked   bool      `bson:"revoked"`
	CreatedAt time.Time `bson:"created_at"`
}

type EmailToken struct {
	Token     string     `bson:"token"`
	UserID    string     `bson:"user_id"`
	Purpose   string     `bson:"purpose"` // "verify"
	ExpiresAt time.Time  `bson:"expires_at"`
	UsedAt    *time.Time `bson:"used_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
}

const purposeVerify = "verify"

func (s *Store) CreateAccount(ctx context.Context, email, password string) (*provider.Identity, error) {
	email, err := provider.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := provider.CheckPassword(password); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, unavailable(err)
	}

	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.account.insert",
		tracer.Tag("email_hash", helper.Hash8(email)),
	)
	defer sp.Finish()

	now := time.Now().UTC()
	a := Account{ID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: now, LastSignInAt: now}
	if _, err := s.DB.Collection(colAccounts).InsertOne(ctx, a); err != nil {
		if IsDup(err) {
			return nil, &provider.Error{Code: provider.CodeEmailInUse}
		}
		sp.SetTag("error", err)
		return nil, unavailable(err)
	}

	code, token, err := s.startAccount(ctx, &a, now)
	if err != nil {
		sp.SetTag("error", err)
		s.dropAccount(ctx, a.ID)
		return nil, err
	}
	id := identityOf(&a, token)
	id.VerificationCode = code
	return id, nil
}

// startAccount issues the verification code and first session of a new account.
func (s *Store) startAccount(ctx context.Context, a *Account, now time.Time) (code, token string, err error) {
	code, err = security.NewOpaqueToken()
	if err != nil {
		return "", "", unavailable(err)
	}
	if _, err := s.DB.Collection(colEmailTokens).InsertOne(ctx, EmailToken{
		Token:     code,
		UserID:    a.ID,
		Purpose:   purposeVerify,
		ExpiresAt: now.Add(s.VerifyTTL),
		CreatedAt: now,
	}); err != nil {
		return "", "", unavailable(err)
	}
	token, err = s.openSession(ctx, a)
	if err != nil {
		return "", "", err
	}
	return code, token, nil
}

// dropAccount undoes a half-created account so the email can be registered again.
func (s *Store) dropAccount(ctx context.Context, uid string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.DB.Collection(colEmailTokens).DeleteMany(ctx, bson.M{"user_id": uid}); err != nil {
		log.WithDD(ctx).Warn("drop email tokens", zap.String("uid", uid), zap.Error(err))
	}
	if _, err := s.DB.Collection(colAccounts).DeleteOne(ctx, bson.M{"_id": uid}); err != nil {
		log.WithDD(ctx).Error("drop half-created account", zap.String("uid", uid), zap.Error(err))
	}
}

func (s *Store) SignIn(ctx context.Context, email, password string) (*provider.Identity, error) {
	email, err := provider.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	blocked, err := s.throttle.Blocked(ctx, email)
	if err != nil {
		log.WithDD(ctx).Warn("throttle check", zap.Error(err))
	}
	if blocked {
		return nil, &provider.Error{Code: provider.CodeTooManyRequests}
	}

	a, err := s.accountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil || !security.CheckPassword(a.PasswordHash, password) {
		if err := s.throttle.Failed(ctx, email); err != nil {
			log.WithDD(ctx).Warn("throttle record", zap.Error(err))
		}
		return nil, &provider.Error{Code: provider.CodeInvalidCredential}
	}
	if a.Disabled {
		return nil, &provider.Error{Code: provider.CodeUserDisabled}
	}
	if err := s.throttle.Reset(ctx, email); err != nil {
		log.WithDD(ctx).Warn("throttle reset", zap.Error(err))
	}

	a.LastSignInAt = time.Now().UTC()
	if _, err := s.DB.Collection(colAccounts).UpdateByID(ctx, a.ID,
		bson.M{"$set": bson.M{"last_sign_in_at": a.LastSignInAt}}); err != nil {
		return nil, unavailable(err)
	}
	token, err := s.openSession(ctx, a)
	if err != nil {
		return nil, err
	}
	return identityOf(a, token), nil
}

// SignOut revokes the session behind token. A token that no longer parses has
// nothing left to revoke.
func (s *Store) SignOut(ctx context.Context, token string) error {
	claims, err := security.ParseIDToken(s.jwtSecret, token)
	if err != nil {
		return nil
	}
	_, err = s.DB.Collection(colSessions).
		UpdateOne(ctx, bson.M{"token_hash": security.HashToken(claims.ID)}, bson.M{"$set": bson.M{"revoked": true}})
	return unavailable(err)
}

func (s *Store) VerifyToken(ctx context.Context, token string) (*provider.Identity, error) {
	claims, err := security.ParseIDToken(s.jwtSecret, token)
	if err != nil {
		return nil, provider.Wrap(provider.CodeInvalidToken, err)
	}
	var sess Session
	err = s.DB.Collection(colSessions).FindOne(ctx, bson.M{
		"token_hash": security.HashToken(claims.ID),
		"revoked":    false,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&sess)
	if err == mongo.ErrNoDocuments || (err == nil && sess.UserID != claims.UID) {
		return nil, &provider.Error{Code: provider.CodeInvalidToken}
	}
	if err != nil {
		return nil, unavailable(err)
	}
	a, err := s.accountByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.Disabled {
		return nil, &provider.Error{Code: provider.CodeInvalidToken}
	}
	return identityOf(a, token), nil
}

// ConfirmEmail consumes a verification code once.
func (s *Store) ConfirmEmail(ctx context.Context, code string) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.email_token.consume",
		tracer.Tag("purpose", purposeVerify),
	)
	defer sp.Finish()

	now := time.Now().UTC()
	var et EmailToken
	err := s.DB.Collection(colEmailTokens).FindOneAndUpdate(ctx,
		bson.M{"token": code, "purpose": purposeVerify, "used_at": bson.M{"$exists": false}, "expires_at": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{"used_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&et)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &provider.Error{Code: provider.CodeInvalidCode}
	}
	if err != nil {
		sp.SetTag("error", err)
		return unavailable(err)
	}
	_, err = s.DB.Collection(colAccounts).UpdateByID(ctx, et.UserID, bson.M{"$set": bson.M{"email_verified": true}})
	return unavailable(err)
}

// DisableAccount blocks sign-in and invalidates outstanding tokens on their
// next verification.
func (s *Store) DisableAccount(ctx context.Context, email string) error {
	email, err := provider.NormalizeEmail(email)
	if err != nil {
		return err
	}
	_, err = s.DB.Collection(colAccounts).UpdateOne(ctx, bson.M{"email": email}, bson.M{"$set": bson.M{"disabled": true}})
	return unavailable(err)
}

// openSession issues an HS256 ID token whose jti names a new session record.
func (s *Store) openSession(ctx context.Context, a *Account) (string, error) {
	token, jti, err := security.MakeIDToken(s.jwtSecret, a.ID, a.Email, s.SessionTTL)
	if err != nil {
		return "", unavailable(err)
	}
	now := time.Now().UTC()
	_, err = s.DB.Collection(colSessions).InsertOne(ctx, Session{
		TokenHash: security.HashToken(jti),
		UserID:    a.ID,
		ExpiresAt: now.Add(s.SessionTTL),
		CreatedAt: now,
	})
	if err != nil {
		return "", unavailable(err)
	}
	return token, nil
}

func (s *Store) accountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findAccount(ctx, bson.M{"email": email})
}

func (s *Store) accountByID(ctx context.Context, id string) (*Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id})
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (*Account, error) {
	var a Account
	err := s.DB.Collection(colAccounts).FindOne(ctx, filter).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &a, nil
}

func identityOf(a *Account, token string) *provider.Identity {
	return &provider.Identity{
		UID:           a.ID,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		LastSignInAt:  a.LastSignInAt,
		Token:         token,
	}
}
