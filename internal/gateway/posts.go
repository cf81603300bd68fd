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

// NormalizeCategory maps the empty selector and "All" to the default category.
func NormalizeCategory(category string) string {
	c := strings.TrimSpace(category)
	if c == "" || c == domain.AllCategories {
		return domain.DefaultCategory
	}
	return c
}

func (g *Gateway) CreatePost(ctx context.Context, content, category string) (*domain.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Field: "content", Message: msgEmptyPost}
	}
	if len([]rune(content)) > domain.MaxPostLength {
		return nil, &ValidationError{Field: "content", Message: msgLongPost}
	}
	u := g.client.CurrentUser()
	if u == nil {
		return nil, ErrAuthRequired
	}

	now := g.now()
	p := domain.Post{
		Content:     content,
		Category:    NormalizeCategory(category),
		AuthorID:    u.UID,
		AuthorEmail: u.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := g.client.Add(ctx, provider.Posts, map[string]any{
		"content":   p.Content,
		"category":  p.Category,
		"userId":    p.AuthorID,
		"userEmail": p.AuthorEmail,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
	})
	if err != nil {
		g.log.Error("create post", zap.String("uid", u.UID), zap.Error(err))
		metrics.WritesTotal.WithLabelValues("post", "error").Inc()
		return nil, generic(err, msgPostFailed)
	}
	p.ID = id
	metrics.WritesTotal.WithLabelValues("post", "ok").Inc()

	g.publish(ctx, queue.KeyPostCreated, queue.PostCreated{
		PostID: p.ID, Category: p.Category, AuthorID: p.AuthorID, CreatedAt: p.CreatedAt,
	})
	return &p, nil
}

func postsQuery(category string, limit int) provider.Query {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	q := provider.Query{Collection: provider.Posts, OrderBy: "createdAt", Descending: true, Limit: limit}
	if c := strings.TrimSpace(category); c != "" && c != domain.AllCategories {
		q = q.Where("category", c)
	}
	return q
}

// SubscribeToPosts streams the newest limit posts, optionally restricted to
// one category. A failing query reports an empty feed instead of an error.
func (g *Gateway) SubscribeToPosts(cb func([]domain.Post), category string, limit int) provider.Unsubscribe {
	q := postsQuery(category, limit)
	unsub := g.client.Listen(q,
		func(docs []provider.Document) { cb(decodePosts(docs)) },
		func(err error) {
			g.log.Warn("posts subscription failed", zap.String("category", category), zap.Error(err))
			cb([]domain.Post{})
		},
	)
	return trackSubscription(provider.Posts, unsub)
}

func (g *Gateway) ListPosts(ctx context.Context, category string, limit int) ([]domain.Post, error) {
	if g.client.CurrentUser() == nil {
		return nil, ErrAuthRequired
	}
	docs, err := g.client.Query(ctx, postsQuery(category, limit))
	if err != nil {
		return nil, generic(err, msgLoadFailed)
	}
	return decodePosts(docs), nil
}

func decodePosts(docs []provider.Document) []domain.Post {
	out := make([]domain.Post, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Post{
			ID:          d.ID,
			Content:     str(d.Data, "content"),
			Category:    str(d.Data, "category"),
			AuthorID:    str(d.Data, "userId"),
			AuthorEmail: str(d.Data, "userEmail"),
			CreatedAt:   ts(d.Data, "createdAt"),
			UpdatedAt:   ts(d.Data, "updatedAt"),
		})
	}
	return out
}
