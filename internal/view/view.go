package view

import (
	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/format"
)

type Mode string

const (
	ModeLoading   Mode = "loading"
	ModeLogin     Mode = "login"
	ModeSignup    Mode = "signup"
	ModeDashboard Mode = "dashboard"
)

type CategoryItem struct {
	ID   string `json:"id"`
	Name string `json:"name"` // escaped
}

// View is an immutable snapshot handed to a Renderer.
type View struct {
	Mode       Mode                   `json:"mode"`
	User       *domain.User           `json:"user,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Selected   string                 `json:"selectedCategory,omitempty"`
	Categories []CategoryItem         `json:"categories,omitempty"`
	Posts      []format.FormattedPost `json:"posts"`
	// PostsLoaded stays false until the first snapshot of the current post query.
	PostsLoaded bool `json:"postsLoaded"`
}

// Renderer receives every view change. Render runs with the controller locked
// and must not call back into it.
type Renderer interface {
	Render(View)
}

type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }
