package streamrouter

import (
	"context"
	"sync"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/panicerr"
)

// writeQueue applies the updates of one turn strictly in order. A drain
// goroutine runs only while updates are pending, so an abandoned turn holds
// no goroutine.
type writeQueue struct {
	router *Router
	ctx    context.Context

	mu       sync.Mutex
	items    []agenttask.Update
	draining bool
	closed   bool
}

func newWriteQueue(ctx context.Context, r *Router) *writeQueue {
	return &writeQueue{router: r, ctx: ctx}
}

func (q *writeQueue) push(u agenttask.Update) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, u)
	if q.draining {
		return
	}
	q.draining = true
	q.router.wg.Go(q.drain)
}

func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *writeQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		u := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.write(u)
	}
}

func (q *writeQueue) write(u agenttask.Update) {
	panicerr.Logged(q.ctx, "failed to persist agent task", func(ctx context.Context) error {
		_, err := q.router.store.Upsert(ctx, u)
		return err
	})
}
