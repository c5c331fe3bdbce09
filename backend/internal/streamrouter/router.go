// Package streamrouter turns the engine event stream of a chat turn into
// live stage events and persisted agent task state.
package streamrouter

import (
	"context"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/clog"
)

// Upserter persists one classified update.
type Upserter interface {
	Upsert(ctx context.Context, u agenttask.Update) (*agenttask.AgentTask, error)
}

type Router struct {
	classifier *stage.Classifier
	store      Upserter
	eventBus   *eventbus.Bus
	metrics    *metrics.Recorder
	now        func() time.Time
	wg         conc.WaitGroup
}

type Option func(*Router)

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func NewRouter(classifier *stage.Classifier, store Upserter, eventBus *eventbus.Bus, rec *metrics.Recorder, opts ...Option) *Router {
	r := &Router{
		classifier: classifier,
		store:      store,
		eventBus:   eventBus,
		metrics:    rec,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wait blocks until every queued write of every turn has been attempted.
func (r *Router) Wait() {
	r.wg.Wait()
}

type TurnParams struct {
	ConversationID string
	UserID         string
	ContextID      string
	Mode           stage.Mode
}

// Turn routes the events of one streaming chat turn. Handle must be called
// from a single goroutine in arrival order.
type Turn struct {
	router *Router
	params TurnParams
	// ctx outlives the request so queued writes finish after a client abort.
	ctx          context.Context
	lastStageKey stage.Key
	accumulated  strings.Builder
	queue        *writeQueue
}

func (r *Router) NewTurn(ctx context.Context, p TurnParams) *Turn {
	p.Mode = stage.ParseMode(string(p.Mode))
	persistCtx := clog.ContextWithSlog(context.WithoutCancel(ctx))
	clog.AddConversation(persistCtx, p.ConversationID, p.UserID, string(p.Mode))
	return &Turn{
		router: r,
		params: p,
		ctx:    persistCtx,
		queue:  newWriteQueue(persistCtx, r),
	}
}

// Handle classifies ev, publishes the live stage event and queues the state
// update. It never blocks on persistence and never fails.
func (t *Turn) Handle(ev dify.Event) agenttask.TaskEvent {
	r := t.router
	if msg, ok := ev.(*dify.Message); ok {
		t.accumulated.WriteString(msg.Delta)
	}

	key := r.classifier.ByEvent(ev, t.lastStageKey, t.params.Mode, t.accumulated.String())
	status := stage.StatusFor(ev)
	t.lastStageKey = key

	node := dify.NodeOf(ev)
	info := agenttask.NodeInfo{ID: node.ID, Title: node.Title, Type: node.Type}
	if info.Title == "" {
		info.Title = node.Type
	}

	out := agenttask.TaskEvent{
		ConversationID: t.params.ConversationID,
		UserID:         t.params.UserID,
		ContextID:      t.params.ContextID,
		Mode:           t.params.Mode,
		StageKey:       key,
		StageLabel:     stage.Label(t.params.Mode, key),
		Status:         status,
		Event:          string(ev.Type()),
		NodeTitle:      info.Title,
		NodeType:       info.Type,
		NodeID:         info.ID,
		WorkflowRunID:  ev.EventMeta().WorkflowRunID,
		Timestamp:      r.now().UnixMilli(),
	}
	r.metrics.ObserveStageEvent(string(out.Mode), string(key), string(status), out.Event)
	if r.eventBus != nil {
		r.eventBus.PublishNew(eventbus.TypeTaskEvent, out.ConversationID, out.UserID, out)
	}

	t.queue.push(agenttask.Update{
		ConversationID: t.params.ConversationID,
		UserID:         t.params.UserID,
		ContextID:      t.params.ContextID,
		Mode:           t.params.Mode,
		StageKey:       key,
		Status:         status,
		Node:           info,
		WorkflowRunID:  out.WorkflowRunID,
		Reset:          ev.Type() == dify.EventWorkflowStarted,
	})
	return out
}

// Accumulated returns the answer text streamed so far.
func (t *Turn) Accumulated() string {
	return t.accumulated.String()
}

func (t *Turn) LastStageKey() stage.Key {
	return t.lastStageKey
}

// Close stops accepting updates. Already queued updates are still written.
func (t *Turn) Close() {
	t.queue.close()
}
