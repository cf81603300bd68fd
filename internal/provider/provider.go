// Package provider defines the capabilities the feed needs from an identity and
// document-store backend, plus a Client that carries one session's auth state.
package provider

import (
	"context"
	"time"
)

// Collections used by the feed.
const (
	Users      = "users"
	Posts      = "posts"
	Categories = "categories"
)

// Identity is a signed-in account as seen by the application.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	LastSignInAt  time.Time
	Token         string

	// VerificationCode is only filled by CreateAccount.
	VerificationCode string
}

type IdentityService interface {
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context, token string) error
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	ConfirmEmail(ctx context.Context, code string) error
}

type Filter struct {
	Field string
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit <= 0 means unbounded.
	Limit int
}

func (q Query) Where(field string, v any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: v})
	return q
}

type Document struct {
	ID   string
	Data map[string]any
}

// Unsubscribe releases a live query. Calling it more than once is a no-op.
type Unsubscribe func()

// DocumentStore is a collection/document database with live queries. caller is
// the verified identity making the request, or nil when signed out.
//
// Listen delivers snapshots on a goroutine owned by the store and never from
// inside the Listen call itself; onErr is called at most once, after which the
// subscription is dead.
type DocumentStore interface {
	Get(ctx context.Context, caller *Identity, collection, id string) (*Document, error)
	Set(ctx context.Context, caller *Identity, collection, id string, data map[string]any, merge bool) error
	Add(ctx context.Context, caller *Identity, collection string, data map[string]any) (string, error)
	Query(ctx context.Context, caller *Identity, q Query) ([]Document, error)
	Listen(caller *Identity, q Query, onNext func([]Document), onErr func(error)) Unsubscribe
}

type Backend interface {
	IdentityService
	DocumentStore
}
