package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type queryFunc func(ctx context.Context, collection string, q Query) ([]Document, error)

// changeHub fans collection change signals out to live queries in this process.
// Each subscription re-runs its query and delivers the full result set; signals
// coalesce so a slow consumer only ever sees the latest state.
type changeHub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	query  queryFunc
	logger *zap.Logger
}

type subscription struct {
	collection string
	q          Query
	fn         SnapshotFunc
	signal     chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
}

func newChangeHub(query queryFunc, logger *zap.Logger) *changeHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &changeHub{subs: make(map[string]map[*subscription]struct{}), query: query, logger: logger}
}

func (h *changeHub) subscribe(ctx context.Context, collection string, q Query, fn SnapshotFunc) Unsubscribe {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		collection: collection,
		q:          q,
		fn:         fn,
		signal:     make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.mu.Lock()
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*subscription]struct{})
	}
	h.subs[collection][sub] = struct{}{}
	h.mu.Unlock()

	sub.signal <- struct{}{}
	go h.run(subCtx, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[collection], sub)
			h.mu.Unlock()
			cancel()
			<-sub.done
		})
	}
}

// run delivers snapshots until ctx ends. fn must not call the subscription's
// Unsubscribe, which waits for run to return.
func (h *changeHub) run(ctx context.Context, sub *subscription) {
	defer func() {
		h.mu.Lock()
		delete(h.subs[sub.collection], sub)
		h.mu.Unlock()
		close(sub.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.signal:
			docs, err := h.query(ctx, sub.collection, sub.q)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Warn("live query failed", zap.String("collection", sub.collection), zap.Error(err))
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			sub.fn(docs)
		}
	}
}

// notify marks every subscription on collection as stale.
func (h *changeHub) notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[collection] {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (h *changeHub) count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}
