package repo

import (
	"context"
	"sync"
	"time"

	"github.com/tazhibayda/feed-service/internal/helper"
)

// Throttle limits repeated failed sign-ins for one email.
type Throttle interface {
	Blocked(ctx context.Context, email string) (bool, error)
	Failed(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

func throttleKey(email string) string { return "signin:fail:" + helper.Hash8(email) }

type failures struct {
	n     int
	first time.Time
}

// LocalThrottle is the single-instance fallback used without Redis.
type LocalThrottle struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	failed map[string]*failures
}

func NewLocalThrottle(limit int, w time.Duration) *LocalThrottle {
	return &LocalThrottle{max: limit, window: w, now: time.Now, failed: make(map[string]*failures)}
}

func (t *LocalThrottle) Blocked(_ context.Context, email string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.currentLocked(throttleKey(email))
	return t.max > 0 && w != nil && w.n >= t.max, nil
}

func (t *LocalThrottle) Failed(_ context.Context, email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := throttleKey(email)
	if w := t.currentLocked(key); w != nil {
		w.n++
		return nil
	}
	t.failed[key] = &failures{n: 1, first: t.now()}
	return nil
}

func (t *LocalThrottle) Reset(_ context.Context, email string) error {
	t.mu.Lock()
	delete(t.failed, throttleKey(email))
	t.mu.Unlock()
	return nil
}

func (t *LocalThrottle) currentLocked(key string) *failures {
	w, ok := t.failed[key]
	if !ok {
		return nil
	}
	if t.now().Sub(w.first) > t.window {
		delete(t.failed, key)
		return nil
	}
	return w
}
