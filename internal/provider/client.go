package provider

import (
	"context"
	"sync"
)

// Client is one session's handle on a Backend. It owns the current identity
// and notifies auth-state listeners whenever it changes. A Client starts
// unresolved; listeners registered before Resolve only hear about the first
// resolved state.
type Client struct {
	backend Backend

	mu        sync.Mutex
	current   *Identity
	resolved  bool
	listeners map[int]func(*Identity)
	nextID    int
}

func NewClient(b Backend) *Client {
	return &Client{backend: b, listeners: make(map[int]func(*Identity))}
}

// Resolve establishes the initial auth state from a previously issued token.
// An empty or rejected token resolves to signed out; the verification error is
// returned so callers can tell the two apart.
func (c *Client) Resolve(ctx context.Context, token string) error {
	if token == "" {
		c.setCurrent(nil)
		return nil
	}
	id, err := c.backend.VerifyToken(ctx, token)
	if err != nil {
		c.setCurrent(nil)
		return err
	}
	id.Token = token
	c.setCurrent(id)
	return nil
}

func (c *Client) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*Identity, error) {
	id, err := c.backend.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setCurrent(id)
	return id, nil
}

func (c *Client) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*Identity, error) {
	id, err := c.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setCurrent(id)
	return id, nil
}

// SignOut revokes the current token. The local state is only cleared when the
// backend accepted the sign-out.
func (c *Client) SignOut(ctx context.Context) error {
	cur := c.CurrentUser()
	if cur == nil {
		c.setCurrent(nil)
		return nil
	}
	if err := c.backend.SignOut(ctx, cur.Token); err != nil {
		return err
	}
	c.setCurrent(nil)
	return nil
}

func (c *Client) CurrentUser() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// OnAuthStateChanged registers fn and, if the state is already resolved, calls
// it once with the current identity before returning.
func (c *Client) OnAuthStateChanged(fn func(*Identity)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	resolved, cur := c.resolved, c.current
	c.mu.Unlock()

	if resolved {
		fn(copyIdentity(cur))
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// ConfirmEmail consumes code. The code may belong to any account, so the
// signed-in identity is re-read from the backend rather than assumed verified.
func (c *Client) ConfirmEmail(ctx context.Context, code string) error {
	if err := c.backend.ConfirmEmail(ctx, code); err != nil {
		return err
	}
	cur := c.CurrentUser()
	if cur == nil {
		return nil
	}
	id, err := c.backend.VerifyToken(ctx, cur.Token)
	if err != nil {
		// the session itself is still valid as far as this client knows
		return nil
	}
	if id.EmailVerified != cur.EmailVerified {
		id.Token = cur.Token
		c.setCurrent(id)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (*Document, error) {
	return c.backend.Get(ctx, c.CurrentUser(), collection, id)
}

func (c *Client) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return c.backend.Set(ctx, c.CurrentUser(), collection, id, data, merge)
}

func (c *Client) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	return c.backend.Add(ctx, c.CurrentUser(), collection, data)
}

func (c *Client) Query(ctx context.Context, q Query) ([]Document, error) {
	return c.backend.Query(ctx, c.CurrentUser(), q)
}

func (c *Client) Listen(q Query, onNext func([]Document), onErr func(error)) Unsubscribe {
	return c.backend.Listen(c.CurrentUser(), q, onNext, onErr)
}

// setCurrent swaps the identity and fans out to listeners outside the lock so
// listeners may call back into the client.
func (c *Client) setCurrent(id *Identity) {
	c.mu.Lock()
	c.current = id
	c.resolved = true
	fns := make([]func(*Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
