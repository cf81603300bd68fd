// Package memory is an in-process provider.Backend used by tests and by the
// server when FEED_BACKEND=memory.
package memory

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/security"
)

type account struct {
	uid          string
	email        string
	hash         string
	verified     bool
	disabled     bool
	createdAt    time.Time
	lastSignInAt time.Time
}

type failures struct {
	n     int
	first time.Time
}

type Backend struct {
	// MaxFailedSignIns within FailureWindow trips auth/too-many-requests.
	MaxFailedSignIns int
	FailureWindow    time.Duration

	mu          sync.Mutex
	accounts    map[string]*account // by email
	tokens      map[string]string   // token -> uid
	codes       map[string]string   // verification code -> uid
	failed      map[string]*failures
	collections map[string]map[string]*record
	seq         uint64
	listeners   map[uint64]*listener
	nextL       uint64
	queryErr    error
}

var _ provider.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		MaxFailedSignIns: 5,
		FailureWindow:    time.Minute,
		accounts:         make(map[string]*account),
		tokens:           make(map[string]string),
		codes:            make(map[string]string),
		failed:           make(map[string]*failures),
		collections:      make(map[string]map[string]*record),
		listeners:        make(map[uint64]*listener),
	}
}

// SetQueryError makes every Query and Listen fail with err until cleared with nil.
func (b *Backend) SetQueryError(err error) {
	b.mu.Lock()
	b.queryErr = err
	b.mu.Unlock()
}

func (b *Backend) DisableAccount(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[strings.ToLower(strings.TrimSpace(email))]; ok {
		a.disabled = true
	}
}

func (b *Backend) CreateAccount(ctx context.Context, email, password string) (*provider.Identity, error) {
	email, err := provider.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := provider.CheckPassword(password); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, provider.Wrap(provider.CodeUnavailable, err)
	}
	token, err := security.NewOpaqueToken()
	if err != nil {
		return nil, provider.Wrap(provider.CodeUnavailable, err)
	}
	code, err := security.NewOpaqueToken()
	if err != nil {
		return nil, provider.Wrap(provider.CodeUnavailable, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[email]; ok {
		return nil, &provider.Error{Code: provider.CodeEmailInUse}
	}
	now := time.Now().UTC()
	a := &account{uid: uuid.NewString(), email: email, hash: hash, createdAt: now, lastSignInAt: now}
	b.accounts[email] = a
	b.tokens[token] = a.uid
	b.codes[code] = a.uid

	id := identityOf(a, token)
	id.VerificationCode = code
	return id, nil
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*provider.Identity, error) {
	email, err := provider.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	a, ok := b.accounts[email]
	throttled := b.throttledLocked(email)
	b.mu.Unlock()
	if throttled {
		return nil, &provider.Error{Code: provider.CodeTooManyRequests}
	}
	if !ok || !security.CheckPassword(a.hash, password) {
		b.mu.Lock()
		b.recordFailureLocked(email)
		b.mu.Unlock()
		return nil, &provider.Error{Code: provider.CodeInvalidCredential}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if a.disabled {
		return nil, &provider.Error{Code: provider.CodeUserDisabled}
	}
	delete(b.failed, email)
	token, err := security.NewOpaqueToken()
	if err != nil {
		return nil, provider.Wrap(provider.CodeUnavailable, err)
	}
	a.lastSignInAt = time.Now().UTC()
	b.tokens[token] = a.uid
	return identityOf(a, token), nil
}

func (b *Backend) SignOut(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, token)
	return nil
}

func (b *Backend) VerifyToken(ctx context.Context, token string) (*provider.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uid, ok := b.tokens[token]
	if !ok {
		return nil, &provider.Error{Code: provider.CodeInvalidToken}
	}
	a := b.accountByUIDLocked(uid)
	if a == nil || a.disabled {
		return nil, &provider.Error{Code: provider.CodeInvalidToken}
	}
	return identityOf(a, token), nil
}

func (b *Backend) ConfirmEmail(ctx context.Context, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	uid, ok := b.codes[code]
	if !ok {
		return &provider.Error{Code: provider.CodeInvalidCode}
	}
	delete(b.codes, code)
	if a := b.accountByUIDLocked(uid); a != nil {
		a.verified = true
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, caller *provider.Identity, collection, id string) (*provider.Document, error) {
	if err := provider.Authorize(caller, provider.OpRead, collection, id, nil); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.collections[collection][id]
	if !ok {
		return nil, provider.Errf(provider.CodeNotFound, "%s/%s", collection, id)
	}
	return &provider.Document{ID: id, Data: maps.Clone(r.data)}, nil
}

func (b *Backend) Set(ctx context.Context, caller *provider.Identity, collection, id string, data map[string]any, merge bool) error {
	if err := provider.Authorize(caller, provider.OpWrite, collection, id, data); err != nil {
		return err
	}
	b.mu.Lock()
	col := b.collectionLocked(collection)
	r, ok := col[id]
	switch {
	case ok && merge:
		maps.Copy(r.data, data)
	case ok:
		r.data = maps.Clone(data)
	default:
		b.seq++
		col[id] = &record{data: maps.Clone(data), seq: b.seq}
	}
	b.notifyLocked(collection)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Add(ctx context.Context, caller *provider.Identity, collection string, data map[string]any) (string, error) {
	if err := provider.Authorize(caller, provider.OpWrite, collection, "", data); err != nil {
		return "", err
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.seq++
	b.collectionLocked(collection)[id] = &record{data: maps.Clone(data), seq: b.seq}
	b.notifyLocked(collection)
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) Query(ctx context.Context, caller *provider.Identity, q provider.Query) ([]provider.Document, error) {
	if err := provider.Authorize(caller, provider.OpRead, q.Collection, "", nil); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queryErr != nil {
		return nil, provider.Wrap(provider.CodeUnavailable, b.queryErr)
	}
	return run(b.collections[q.Collection], q), nil
}

func (b *Backend) collectionLocked(name string) map[string]*record {
	col, ok := b.collections[name]
	if !ok {
		col = make(map[string]*record)
		b.collections[name] = col
	}
	return col
}

func (b *Backend) accountByUIDLocked(uid string) *account {
	for _, a := range b.accounts {
		if a.uid == uid {
			return a
		}
	}
	return nil
}

func (b *Backend) throttledLocked(email string) bool {
	f, ok := b.failed[email]
	if !ok || b.MaxFailedSignIns <= 0 {
		return false
	}
	if time.Since(f.first) > b.FailureWindow {
		delete(b.failed, email)
		return false
	}
	return f.n >= b.MaxFailedSignIns
}

func (b *Backend) recordFailureLocked(email string) {
	f, ok := b.failed[email]
	if !ok || time.Since(f.first) > b.FailureWindow {
		b.failed[email] = &failures{n: 1, first: time.Now()}
		return
	}
	f.n++
}

func identityOf(a *account, token string) *provider.Identity {
	return &provider.Identity{
		UID:           a.uid,
		Email:         a.email,
		EmailVerified: a.verified,
		LastSignInAt:  a.lastSignInAt,
		Token:         token,
	}
}
