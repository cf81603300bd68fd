package repo

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/log"
)

// Notifier fans out "collection changed" signals to live queries. Signals are
// coalesced: a subscriber that is busy sees one pending wake-up, not one per write.
type Notifier interface {
	Publish(ctx context.Context, collection string) error
	Subscribe(collection string) (<-chan struct{}, func())
}

type LocalNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[collection] {
		wake(ch)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(collection string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subs[collection] == nil {
		n.subs[collection] = make(map[chan struct{}]struct{})
	}
	n.subs[collection][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[collection], ch)
			n.mu.Unlock()
		})
	}
}

// RedisNotifier shares change signals between server instances through one
// pub/sub channel per collection.
type RedisNotifier struct {
	r      *Redis
	prefix string
}

func NewRedisNotifier(r *Redis, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "feed:changes:"
	}
	return &RedisNotifier{r: r, prefix: prefix}
}

func (n *RedisNotifier) Publish(ctx context.Context, collection string) error {
	return n.r.C.Publish(context.WithoutCancel(ctx), n.prefix+collection, "1").Err()
}

func (n *RedisNotifier) Subscribe(collection string) (<-chan struct{}, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ps := n.r.C.Subscribe(ctx, n.prefix+collection)
	ch := make(chan struct{}, 1)

	go func() {
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				wake(ch)
			}
		}
	}()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			cancel()
			if err := ps.Close(); err != nil {
				log.L().Warn("redis unsubscribe", zap.String("collection", collection), zap.Error(err))
			}
		})
	}
}

func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
