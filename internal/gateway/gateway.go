// Package gateway is the feed's data-access layer over a provider.Client:
// account lifecycle, profile documents, posts and categories, and live
// subscriptions. Every error it returns is a *ValidationError, ErrAuthRequired
// or a *ProviderError carrying a user-facing message.
package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/metrics"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/queue"
)

const DefaultFeedLimit = 50

type Gateway struct {
	client   *provider.Client
	events   queue.Publisher
	exchange string
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Gateway)

func WithEvents(pub queue.Publisher, exchange string) Option {
	return func(g *Gateway) { g.events, g.exchange = pub, exchange }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func New(c *provider.Client, opts ...Option) *Gateway {
	g := &Gateway{
		client: c,
		events: queue.NewNoop(),
		now:    func() time.Time { return time.Now().UTC() },
		log:    log.L(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Client() *provider.Client { return g.client }

func (g *Gateway) CurrentUser() *domain.User { return userOf(g.client.CurrentUser()) }

// OnAuthStateChanged forwards the client's auth signal as domain users.
func (g *Gateway) OnAuthStateChanged(fn func(*domain.User)) func() {
	return g.client.OnAuthStateChanged(func(id *provider.Identity) { fn(userOf(id)) })
}

type ctxKey string

const requestIDKey ctxKey = "X-Request-ID"

// WithRequestID tags events published while handling ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func (g *Gateway) publish(ctx context.Context, key string, event any) {
	reqID, _ := ctx.Value(requestIDKey).(string)
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := g.events.Publish(ctx, g.exchange, key, event, reqID); err != nil {
			g.log.Warn("publish event", zap.String("key", key), zap.Error(err))
		}
	}()
}

// trackSubscription keeps the subscription gauge honest across repeated
// unsubscribe calls.
func trackSubscription(collection string, unsub provider.Unsubscribe) provider.Unsubscribe {
	g := metrics.ActiveSubscriptions.WithLabelValues(collection)
	g.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			g.Dec()
		})
	}
}

func userOf(id *provider.Identity) *domain.User {
	if id == nil {
		return nil
	}
	return &domain.User{
		ID:            id.UID,
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
		LastSignInAt:  id.LastSignInAt,
	}
}

func str(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

func ts(m map[string]any, k string) time.Time {
	t, _ := m[k].(time.Time)
	return t
}
