package agenttask

import (
	"context"
	"fmt"
	"time"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
)

const defaultMaxAttempts = 5

// Store reconciles classified events into persisted agent task state.
type Store struct {
	repo        Repository
	eventBus    *eventbus.Bus
	metrics     *metrics.Recorder
	now         func() time.Time
	maxAttempts int
}

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithMaxAttempts(n int) StoreOption {
	return func(s *Store) { s.maxAttempts = n }
}

func NewStore(repo Repository, eventBus *eventbus.Bus, rec *metrics.Recorder, opts ...StoreOption) *Store {
	s := &Store{
		repo:        repo,
		eventBus:    eventBus,
		metrics:     rec,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert folds u into the conversation's state and persists it. Every
// attempt re-reads the latest state, so a write that loses a race is
// recomputed on top of the winner instead of clobbering it.
func (s *Store) Upsert(ctx context.Context, u Update) (*AgentTask, error) {
	if u.ConversationID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "conversation id is required", nil)
	}
	start := time.Now()
	task, err := s.upsert(ctx, u)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveUpsert(outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	if s.eventBus != nil {
		s.eventBus.PublishTaskState(task.ConversationID, task.UserID, task)
	}
	return task, nil
}

func (s *Store) upsert(ctx context.Context, u Update) (*AgentTask, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		current, err := s.repo.Get(ctx, u.ConversationID)
		if err != nil && !cerr.IsCode(err, cerr.NotFound) {
			return nil, err
		}
		if err != nil {
			current = nil
		}

		next := Apply(current, u, s.now())
		if current == nil {
			err = s.repo.Create(ctx, next)
		} else {
			err = s.repo.Update(ctx, next)
		}
		switch {
		case err == nil:
			return next, nil
		case cerr.IsCode(err, cerr.AlreadyExists), cerr.IsCode(err, cerr.Aborted):
			s.metrics.IncUpsertConflict()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		default:
			return nil, err
		}
	}
	return nil, cerr.NewError(cerr.Aborted, "agent task is being updated concurrently",
		fmt.Errorf("gave up after %d attempts for conversation %s", s.maxAttempts, u.ConversationID))
}

// Get returns the state of a conversation owned by userID, or nil when no
// state exists yet. State owned by another user is reported as absent.
func (s *Store) Get(ctx context.Context, conversationID, userID string) (*AgentTask, error) {
	task, err := s.repo.Get(ctx, conversationID)
	if cerr.IsCode(err, cerr.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if userID != "" && task.UserID != userID {
		return nil, nil
	}
	return task, nil
}

// List returns the user's agent tasks, most recently updated first.
func (s *Store) List(ctx context.Context, userID string, limit, offset int) ([]*AgentTask, int, error) {
	return s.repo.List(ctx, userID, limit, offset)
}

// Delete drops a conversation's state, e.g. when the conversation goes away.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	return s.repo.Delete(ctx, conversationID)
}
