package repo

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/provider"
)

// queryTimeout bounds each re-run of a live query.
const queryTimeout = 10 * time.Second

// Listen runs q once, then again on every change signal for its collection.
// Snapshots are delivered on the listener's own goroutine. Unsubscribe does
// not wait for a callback that is already running.
func (s *Store) Listen(caller *provider.Identity, q provider.Query, onNext func([]provider.Document), onErr func(error)) provider.Unsubscribe {
	if err := provider.Authorize(caller, provider.OpRead, q.Collection, "", nil); err != nil {
		go onErr(err)
		return func() {}
	}
	signals, stop := s.notifier.Subscribe(q.Collection)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer stop()
		for {
			qctx, qcancel := context.WithTimeout(ctx, queryTimeout)
			docs, err := s.find(qctx, q)
			qcancel()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.L().Warn("live query failed", zap.String("collection", q.Collection), zap.Error(err))
				onErr(err)
				return
			}
			onNext(docs)

			select {
			case <-ctx.Done():
				return
			case <-signals:
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}
