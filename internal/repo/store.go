// Package repo is the MongoDB implementation of provider.Backend. Live queries
// are driven by a Notifier, which is Redis pub/sub when several server
// instances share one database.
package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tazhibayda/feed-service/internal/provider"
)

const (
	colAccounts    = "accounts"
	colSessions    = "sessions"
	colEmailTokens = "email_tokens"
)

type Store struct {
	Client *mongo.Client
	DB     *mongo.Database

	// SessionTTL bounds how long an issued token stays valid.
	SessionTTL time.Duration
	// VerifyTTL bounds how long an email confirmation code stays valid.
	VerifyTTL time.Duration

	jwtSecret string
	notifier  Notifier
	throttle  Throttle
}

var _ provider.Backend = (*Store)(nil)

type Option func(*Store)

func WithNotifier(n Notifier) Option     { return func(s *Store) { s.notifier = n } }
func WithThrottle(t Throttle) Option     { return func(s *Store) { s.throttle = t } }
func WithJWTSecret(secret string) Option { return func(s *Store) { s.jwtSecret = secret } }

func WithSessionTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.SessionTTL = d
		}
	}
}

func NewStore(ctx context.Context, uri, dbname string, opts ...Option) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetRetryWrites(true).
		SetMaxPoolSize(50),
	)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, err
	}
	s := &Store{
		Client:     cli,
		DB:         cli.Database(dbname),
		SessionTTL: 24 * time.Hour,
		VerifyTTL:  48 * time.Hour,
		jwtSecret:  "default_secret_key",
		notifier:   NewLocalNotifier(),
		throttle:   NewLocalThrottle(5, time.Minute),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error { return s.Client.Disconnect(ctx) }

// EnsureIndexes creates the uniqueness, TTL and feed-order indexes.
// Sessions and email codes are removed by Mongo once expires_at passes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.DB.Collection(colAccounts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
	}); err != nil {
		return err
	}

	if _, err := s.DB.Collection(colSessions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_token_hash"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expire"),
		},
	}); err != nil {
		return err
	}

	if _, err := s.DB.Collection(colEmailTokens).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_token"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expire"),
		},
	}); err != nil {
		return err
	}

	if _, err := s.DB.Collection(provider.Posts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("created_desc"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("category_created_desc"),
		},
	}); err != nil {
		return err
	}

	_, err := s.DB.Collection(provider.Categories).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("created_asc"),
	})
	return err
}

func IsDup(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce *mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return false
}

// unavailable tags driver failures so callers see a provider code.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return provider.Wrap(provider.CodeUnavailable, err)
}
