package memory

import (
	"sync"

	"github.com/tazhibayda/feed-service/internal/provider"
)

type listener struct {
	caller *provider.Identity
	q      provider.Query
	onNext func([]provider.Document)
	onErr  func(error)
	dirty  chan struct{}
	done   chan struct{}
}

// Listen re-runs q on its own goroutine every time the collection changes.
// Unsubscribe does not wait for an in-flight callback; the callback is simply
// not invoked again after Unsubscribe returns and the current one finishes.
func (b *Backend) Listen(caller *provider.Identity, q provider.Query, onNext func([]provider.Document), onErr func(error)) provider.Unsubscribe {
	if err := provider.Authorize(caller, provider.OpRead, q.Collection, "", nil); err != nil {
		go onErr(err)
		return func() {}
	}
	l := &listener{
		caller: caller,
		q:      q,
		onNext: onNext,
		onErr:  onErr,
		dirty:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	l.dirty <- struct{}{}

	b.mu.Lock()
	id := b.nextL
	b.nextL++
	b.listeners[id] = l
	b.mu.Unlock()

	go b.serve(id, l)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
			close(l.done)
		})
	}
}

func (b *Backend) serve(id uint64, l *listener) {
	for {
		select {
		case <-l.done:
			return
		case <-l.dirty:
		}

		b.mu.Lock()
		err := b.queryErr
		var docs []provider.Document
		if err == nil {
			docs = run(b.collections[l.q.Collection], l.q)
		}
		b.mu.Unlock()

		select {
		case <-l.done:
			return
		default:
		}
		if err != nil {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
			l.onErr(provider.Wrap(provider.CodeUnavailable, err))
			return
		}
		l.onNext(docs)
	}
}

func (b *Backend) notifyLocked(collection string) {
	for _, l := range b.listeners {
		if l.q.Collection != collection {
			continue
		}
		select {
		case l.dirty <- struct{}{}:
		default:
		}
	}
}

// Listeners reports open live queries; tests use it to check for leaks.
func (b *Backend) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
