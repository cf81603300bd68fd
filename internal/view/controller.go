// Package view holds the per-session state machine that decides which screen
// is shown and owns the dashboard's live subscriptions.
package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/format"
	"github.com/tazhibayda/feed-service/internal/gateway"
	"github.com/tazhibayda/feed-service/internal/provider"
)

var (
	ErrWrongView = errors.New("action not available in the current view")
	ErrClosed    = errors.New("controller closed")
)

// Feed is what the controller needs from the gateway. Subscribe callbacks
// must arrive asynchronously, never from inside the Subscribe call.
type Feed interface {
	OnAuthStateChanged(fn func(*domain.User)) func()
	Register(ctx context.Context, email, password string) (*gateway.Registration, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	Logout(ctx context.Context) error
	CreatePost(ctx context.Context, content, category string) (*domain.Post, error)
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)
	SubscribeToPosts(cb func([]domain.Post), category string, limit int) provider.Unsubscribe
	SubscribeToCategories(cb func([]domain.Category)) provider.Unsubscribe
}

type Controller struct {
	feed   Feed
	render Renderer
	limit  int
	now    func() time.Time

	mu         sync.Mutex
	view       View
	closed     bool
	authUnsub  func()
	postsUnsub provider.Unsubscribe
	catsUnsub  provider.Unsubscribe
	// generations let late callbacks from released subscriptions be dropped
	postsGen uint64
	catsGen  uint64
}

func New(feed Feed, r Renderer, limit int) *Controller {
	return &Controller{
		feed:   feed,
		render: r,
		limit:  limit,
		now:    time.Now,
		view:   View{Mode: ModeLoading},
	}
}

// Start renders the loading view and begins following the auth signal.
func (c *Controller) Start() {
	c.mu.Lock()
	c.renderLocked()
	c.mu.Unlock()

	unsub := c.feed.OnAuthStateChanged(c.onAuth)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		unsub()
		return
	}
	c.authUnsub = unsub
}

// Close releases every subscription. The controller ignores all events after.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.releaseLocked()
	if c.authUnsub != nil {
		c.authUnsub()
		c.authUnsub = nil
	}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Controller) onAuth(u *domain.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if u != nil {
		if c.view.Mode == ModeDashboard && c.view.User != nil && c.view.User.ID == u.ID {
			c.view.User = u
			c.renderLocked()
			return
		}
		c.releaseLocked()
		c.enterDashboardLocked(u)
		return
	}
	c.leaveDashboardLocked()
}

func (c *Controller) enterDashboardLocked(u *domain.User) {
	c.view = View{Mode: ModeDashboard, User: u, Selected: domain.AllCategories}
	c.openPostsLocked()
	c.openCategoriesLocked()
	c.renderLocked()
}

// leaveDashboardLocked drops both subscriptions before the login view renders.
// A signed-out signal while on login or signup keeps the current form.
func (c *Controller) leaveDashboardLocked() {
	c.releaseLocked()
	if c.view.Mode == ModeLogin || c.view.Mode == ModeSignup {
		c.renderLocked()
		return
	}
	c.view = View{Mode: ModeLogin}
	c.renderLocked()
}

func (c *Controller) openPostsLocked() {
	c.postsGen++
	gen := c.postsGen
	c.postsUnsub = c.feed.SubscribeToPosts(func(p []domain.Post) { c.onPosts(gen, p) }, c.view.Selected, c.limit)
}

func (c *Controller) openCategoriesLocked() {
	c.catsGen++
	gen := c.catsGen
	c.catsUnsub = c.feed.SubscribeToCategories(func(cs []domain.Category) { c.onCategories(gen, cs) })
}

func (c *Controller) releasePostsLocked() {
	if c.postsUnsub != nil {
		c.postsUnsub()
		c.postsUnsub = nil
	}
	c.postsGen++
}

func (c *Controller) releaseLocked() {
	c.releasePostsLocked()
	if c.catsUnsub != nil {
		c.catsUnsub()
		c.catsUnsub = nil
	}
	c.catsGen++
}

func (c *Controller) onPosts(gen uint64, posts []domain.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.postsGen || c.view.Mode != ModeDashboard {
		return
	}
	now := c.now()
	out := make([]format.FormattedPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, format.FormatPost(p, now))
	}
	c.view.Posts = out
	c.view.PostsLoaded = true
	c.renderLocked()
}

func (c *Controller) onCategories(gen uint64, cs []domain.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.catsGen || c.view.Mode != ModeDashboard {
		return
	}
	items := make([]CategoryItem, 0, len(cs))
	for _, cat := range cs {
		items = append(items, CategoryItem{ID: cat.ID, Name: format.Escape(cat.Name)})
	}
	c.view.Categories = items
	c.renderLocked()
}

func (c *Controller) ShowSignup() error { return c.navigate(ModeSignup) }
func (c *Controller) ShowLogin() error  { return c.navigate(ModeLogin) }

func (c *Controller) navigate(to Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeLogin, ModeSignup); err != nil {
		return err
	}
	c.view = View{Mode: to}
	c.renderLocked()
	return nil
}

// SelectCategory swaps the post subscription for one filtered on category;
// "" and "All" mean no filter.
func (c *Controller) SelectCategory(category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		category = domain.AllCategories
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeDashboard); err != nil {
		return err
	}
	if category == c.view.Selected {
		return nil
	}
	c.releasePostsLocked()
	c.view.Selected = category
	c.view.Posts = nil
	c.view.PostsLoaded = false
	c.openPostsLocked()
	c.renderLocked()
	return nil
}

func (c *Controller) Login(ctx context.Context, email, password string) error {
	if err := c.check(ModeLogin); err != nil {
		return err
	}
	if err := gateway.ValidateLogin(email, password); err != nil {
		return c.fail(err)
	}
	if _, err := c.feed.Authenticate(ctx, email, password); err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *Controller) Signup(ctx context.Context, email, password, confirm string) error {
	if err := c.check(ModeSignup); err != nil {
		return err
	}
	if err := gateway.ValidateSignup(email, password, confirm); err != nil {
		return c.fail(err)
	}
	if _, err := c.feed.Register(ctx, email, password); err != nil {
		return c.fail(err)
	}
	return nil
}

// SubmitPost posts under the selected category, or the default one while
// "All" is selected.
func (c *Controller) SubmitPost(ctx context.Context, content string) (*domain.Post, error) {
	c.mu.Lock()
	if err := c.requireLocked(ModeDashboard); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	category := gateway.NormalizeCategory(c.view.Selected)
	c.mu.Unlock()

	p, err := c.feed.CreatePost(ctx, content, category)
	if err != nil {
		return nil, c.fail(err)
	}
	c.clearError()
	return p, nil
}

func (c *Controller) SubmitCategory(ctx context.Context, name string) (*domain.Category, error) {
	if err := c.check(ModeDashboard); err != nil {
		return nil, err
	}
	cat, err := c.feed.CreateCategory(ctx, name)
	if err != nil {
		return nil, c.fail(err)
	}
	c.clearError()
	return cat, nil
}

func (c *Controller) Logout(ctx context.Context) error {
	if err := c.check(ModeDashboard); err != nil {
		return err
	}
	if err := c.feed.Logout(ctx); err != nil {
		return c.fail(err)
	}
	// the auth signal normally got here first
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && c.view.Mode == ModeDashboard {
		c.leaveDashboardLocked()
	}
	return nil
}

func (c *Controller) check(modes ...Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requireLocked(modes...)
}

func (c *Controller) requireLocked(modes ...Mode) error {
	if c.closed {
		return ErrClosed
	}
	for _, m := range modes {
		if c.view.Mode == m {
			return nil
		}
	}
	return ErrWrongView
}

// fail shows err inline and hands it back.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.view.Error = gateway.Message(err)
		c.renderLocked()
	}
	return err
}

func (c *Controller) clearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && c.view.Error != "" {
		c.view.Error = ""
		c.renderLocked()
	}
}

func (c *Controller) renderLocked() {
	if c.render != nil {
		c.render.Render(c.view)
	}
}
