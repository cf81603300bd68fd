package gateway

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/metrics"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/queue"
)

var categoriesQuery = provider.Query{Collection: provider.Categories, OrderBy: "createdAt"}

// CreateCategory does not check for an existing category with the same name.
func (g *Gateway) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: msgEmptyCategory}
	}
	u := g.client.CurrentUser()
	if u == nil {
		return nil, ErrAuthRequired
	}

	c := domain.Category{Name: name, CreatedBy: u.UID, CreatedAt: g.now()}
	id, err := g.client.Add(ctx, provider.Categories, map[string]any{
		"name":      c.Name,
		"createdBy": c.CreatedBy,
		"createdAt": c.CreatedAt,
	})
	if err != nil {
		g.log.Error("create category", zap.String("uid", u.UID), zap.Error(err))
		metrics.WritesTotal.WithLabelValues("category", "error").Inc()
		return nil, generic(err, msgCategoryFailed)
	}
	c.ID = id
	metrics.WritesTotal.WithLabelValues("category", "ok").Inc()

	g.publish(ctx, queue.KeyCategoryCreated, queue.CategoryCreated{CategoryID: c.ID, Name: c.Name, CreatedBy: c.CreatedBy})
	return &c, nil
}

func (g *Gateway) SubscribeToCategories(cb func([]domain.Category)) provider.Unsubscribe {
	unsub := g.client.Listen(categoriesQuery,
		func(docs []provider.Document) { cb(decodeCategories(docs)) },
		func(err error) {
			g.log.Warn("categories subscription failed", zap.Error(err))
			cb([]domain.Category{})
		},
	)
	return trackSubscription(provider.Categories, unsub)
}

func (g *Gateway) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if g.client.CurrentUser() == nil {
		return nil, ErrAuthRequired
	}
	docs, err := g.client.Query(ctx, categoriesQuery)
	if err != nil {
		return nil, generic(err, msgLoadFailed)
	}
	return decodeCategories(docs), nil
}

func decodeCategories(docs []provider.Document) []domain.Category {
	out := make([]domain.Category, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Category{
			ID:        d.ID,
			Name:      str(d.Data, "name"),
			CreatedBy: str(d.Data, "createdBy"),
			CreatedAt: ts(d.Data, "createdAt"),
		})
	}
	return out
}
