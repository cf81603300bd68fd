package gateway_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhibayda/feed-service/internal/domain"
	"github.com/tazhibayda/feed-service/internal/gateway"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/provider/memory"
	"github.com/tazhibayda/feed-service/internal/security"
)

func init() { security.BcryptCost = 4 }

// spyBackend counts provider calls and can fail selected operations.
type spyBackend struct {
	*memory.Backend
	calls      atomic.Int32
	setErr     error
	signOutErr error
}

func (s *spyBackend) CreateAccount(ctx context.Context, email, pw string) (*provider.Identity, error) {
	s.calls.Add(1)
	return s.Backend.CreateAccount(ctx, email, pw)
}

func (s *spyBackend) SignIn(ctx context.Context, email, pw string) (*provider.Identity, error) {
	s.calls.Add(1)
	return s.Backend.SignIn(ctx, email, pw)
}

func (s *spyBackend) SignOut(ctx context.Context, token string) error {
	s.calls.Add(1)
	if s.signOutErr != nil {
		return s.signOutErr
	}
	return s.Backend.SignOut(ctx, token)
}

func (s *spyBackend) Add(ctx context.Context, caller *provider.Identity, col string, data map[string]any) (string, error) {
	s.calls.Add(1)
	return s.Backend.Add(ctx, caller, col, data)
}

func (s *spyBackend) Set(ctx context.Context, caller *provider.Identity, col, id string, data map[string]any, merge bool) error {
	s.calls.Add(1)
	if s.setErr != nil && merge {
		return s.setErr
	}
	return s.Backend.Set(ctx, caller, col, id, data, merge)
}

type event struct {
	key   string
	value any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(ctx context.Context, exchange, key string, ev any, reqID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{key, ev})
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.key)
	}
	return out
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newGateway(t *testing.T) (*gateway.Gateway, *spyBackend, *recorder) {
	t.Helper()
	b := &spyBackend{Backend: memory.New()}
	rec := &recorder{}
	c := provider.NewClient(b)
	require.NoError(t, c.Resolve(context.Background(), ""))
	g := gateway.New(c,
		gateway.WithEvents(rec, "feed.events"),
		gateway.WithClock(func() time.Time { return fixedNow }),
	)
	return g, b, rec
}

func signedIn(t *testing.T) (*gateway.Gateway, *spyBackend, *recorder) {
	t.Helper()
	g, b, rec := newGateway(t)
	_, err := g.Register(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)
	return g, b, rec
}

func TestRegister_CreatesProfileAndSignsIn(t *testing.T) {
	ctx := context.Background()
	g, _, rec := newGateway(t)

	reg, err := g.Register(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", reg.User.Email)
	assert.NotEmpty(t, reg.VerificationCode)
	require.NotNil(t, g.CurrentUser())
	assert.Equal(t, reg.User.ID, g.CurrentUser().ID)

	p, err := g.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", p.Email)
	assert.Equal(t, fixedNow, p.CreatedAt)
	assert.Equal(t, fixedNow, p.LastLogin)

	assert.Eventually(t, func() bool {
		keys := rec.keys()
		return len(keys) == 1 && keys[0] == "user.registered"
	}, time.Second, 5*time.Millisecond)
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()
	g, b, _ := signedIn(t)
	require.NoError(t, g.Logout(ctx))
	before := b.calls.Load()

	_, err := g.Register(ctx, "not-an-email", "secret1")
	var ve *gateway.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Please enter a valid email address.", gateway.Message(err))

	_, err = g.Register(ctx, "c@d.com", "12345")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, before, b.calls.Load(), "validation must not reach the provider")

	_, err = g.Register(ctx, "a@b.com", "secret1")
	var pe *gateway.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provider.CodeEmailInUse, pe.Code)
	assert.Equal(t, "An account with this email already exists.", gateway.Message(err))
}

func TestValidateSignup(t *testing.T) {
	assert.NoError(t, gateway.ValidateSignup("a@b.com", "secret1", "secret1"))
	assert.Equal(t, "Passwords do not match.", gateway.Message(gateway.ValidateSignup("a@b.com", "secret1", "secret2")))
	assert.Equal(t, "Please enter your email and password.", gateway.Message(gateway.ValidateLogin(" ", "")))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	g, b, _ := signedIn(t)
	require.NoError(t, g.Logout(ctx))
	assert.Nil(t, g.CurrentUser())

	_, err := g.Authenticate(ctx, "a@b.com", "wrong-password")
	assert.Equal(t, "Invalid email or password.", gateway.Message(err))

	b.setErr = errors.New("profile store down")
	u, err := g.Authenticate(ctx, "a@b.com", "secret1")
	require.NoError(t, err, "lastLogin update is best-effort")
	assert.Equal(t, "a@b.com", u.Email)
	assert.NotNil(t, g.CurrentUser())
}

func TestAuthenticate_DisabledAndThrottled(t *testing.T) {
	ctx := context.Background()
	g, b, _ := signedIn(t)
	require.NoError(t, g.Logout(ctx))

	b.DisableAccount("a@b.com")
	_, err := g.Authenticate(ctx, "a@b.com", "secret1")
	assert.Equal(t, "This account has been disabled.", gateway.Message(err))

	b.MaxFailedSignIns = 1
	_, _ = g.Authenticate(ctx, "x@y.com", "whatever")
	_, err = g.Authenticate(ctx, "x@y.com", "whatever")
	assert.Equal(t, "Too many failed attempts. Please try again later.", gateway.Message(err))
}

func TestLogout_Failure(t *testing.T) {
	g, b, _ := signedIn(t)
	b.signOutErr = errors.New("network")
	err := g.Logout(context.Background())
	assert.Equal(t, "Failed to sign out. Please try again.", gateway.Message(err))
	assert.NotNil(t, g.CurrentUser(), "failed sign-out keeps the session")
}

func TestCreatePost_Validation(t *testing.T) {
	ctx := context.Background()
	g, b, _ := signedIn(t)
	before := b.calls.Load()

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := g.CreatePost(ctx, content, "General")
		var ve *gateway.ValidationError
		require.ErrorAs(t, err, &ve, "content %q", content)
	}
	_, err := g.CreatePost(ctx, strings.Repeat("é", domain.MaxPostLength+1), "")
	assert.Equal(t, "Post content must be 500 characters or less.", gateway.Message(err))
	assert.Equal(t, before, b.calls.Load())

	_, err = g.CreatePost(ctx, strings.Repeat("é", domain.MaxPostLength), "")
	assert.NoError(t, err)
}

func TestCreate_RequiresAuth(t *testing.T) {
	g, b, _ := newGateway(t)
	_, err := g.CreatePost(context.Background(), "hello", "")
	assert.ErrorIs(t, err, gateway.ErrAuthRequired)
	_, err = g.CreateCategory(context.Background(), "Go")
	assert.ErrorIs(t, err, gateway.ErrAuthRequired)
	assert.Zero(t, b.calls.Load())
	assert.Equal(t, "You must be signed in to do that.", gateway.Message(err))
}

func TestCreatePost_Category(t *testing.T) {
	ctx := context.Background()
	g, _, _ := signedIn(t)

	p, err := g.CreatePost(ctx, "  hi  ", "All")
	require.NoError(t, err)
	assert.Equal(t, "General", p.Category)
	assert.Equal(t, "hi", p.Content)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "a@b.com", p.AuthorEmail)

	p, err = g.CreatePost(ctx, "x", "")
	require.NoError(t, err)
	assert.Equal(t, "General", p.Category)

	p, err = g.CreatePost(ctx, "x", "X")
	require.NoError(t, err)
	assert.Equal(t, "X", p.Category)
}

func TestCreateCategory_AllowsDuplicates(t *testing.T) {
	ctx := context.Background()
	g, _, _ := signedIn(t)

	_, err := g.CreateCategory(ctx, "  ")
	assert.Equal(t, "Category name cannot be empty.", gateway.Message(err))

	a, err := g.CreateCategory(ctx, "Go")
	require.NoError(t, err)
	b, err := g.CreateCategory(ctx, " Go ")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	all, err := g.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Go", all[1].Name)
}

type postFeed struct {
	mu   sync.Mutex
	last []domain.Post
	n    int
}

func (f *postFeed) set(p []domain.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last, f.n = p, f.n+1
}

func (f *postFeed) get() ([]domain.Post, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.n
}

func TestSubscribeToPosts_FilterAndLimit(t *testing.T) {
	ctx := context.Background()
	g, b, _ := signedIn(t)

	var goFeed, allFeed postFeed
	unsubGo := g.SubscribeToPosts(goFeed.set, "Go", 2)
	defer unsubGo()
	unsubAll := g.SubscribeToPosts(allFeed.set, "All", 0)
	defer unsubAll()

	require.Eventually(t, func() bool { _, n := goFeed.get(); return n >= 1 }, time.Second, 5*time.Millisecond)

	for _, c := range []string{"Go", "Rust", "Go", "Go"} {
		_, err := g.CreatePost(ctx, "post about "+c, c)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { p, _ := allFeed.get(); return len(p) == 4 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { p, _ := goFeed.get(); return len(p) == 2 }, time.Second, 5*time.Millisecond)
	got, _ := goFeed.get()
	for _, p := range got {
		assert.Equal(t, "Go", p.Category)
	}
	assert.Equal(t, 2, b.Listeners())
}

func TestSubscribeToPosts_ErrorYieldsEmpty(t *testing.T) {
	g, b, _ := signedIn(t)
	b.SetQueryError(errors.New("index missing"))

	got := make(chan []domain.Post, 1)
	unsub := g.SubscribeToPosts(func(p []domain.Post) { got <- p }, "", 10)
	defer unsub()

	select {
	case p := <-got:
		assert.NotNil(t, p)
		assert.Empty(t, p)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked on query error")
	}
}

func TestSubscribeToCategories_Ascending(t *testing.T) {
	ctx := context.Background()
	g, _, _ := signedIn(t)
	_, err := g.CreateCategory(ctx, "First")
	require.NoError(t, err)
	_, err = g.CreateCategory(ctx, "Second")
	require.NoError(t, err)

	got := make(chan []domain.Category, 4)
	unsub := g.SubscribeToCategories(func(c []domain.Category) { got <- c })
	defer unsub()

	select {
	case cats := <-got:
		require.Len(t, cats, 2)
		assert.Equal(t, "First", cats[0].Name)
		assert.Equal(t, "Second", cats[1].Name)
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
	}
}

func TestConfirmEmail(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGateway(t)
	reg, err := g.Register(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "Confirmation code is required.", gateway.Message(g.ConfirmEmail(ctx, " ")))
	assert.Equal(t, "This confirmation link is invalid or has expired.", gateway.Message(g.ConfirmEmail(ctx, "nope")))
	require.NoError(t, g.ConfirmEmail(ctx, reg.VerificationCode))
	assert.True(t, g.CurrentUser().EmailVerified)
}
