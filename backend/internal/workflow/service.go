package workflow

import (
	"context"
	"sync"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
)

// Service loads a session's state, applies one machine transition and
// saves the result when it changed.
type Service struct {
	repo     Repository
	machine  *Machine
	eventBus *eventbus.Bus

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is dropped from Service.locks once no caller holds or waits
// on it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(repo Repository, machine *Machine, eventBus *eventbus.Bus) *Service {
	return &Service{
		repo:     repo,
		machine:  machine,
		eventBus: eventBus,
		locks:    make(map[string]*sessionLock),
	}
}

func (s *Service) Machine() *Machine {
	return s.machine
}

// Load returns the stored state, or a fresh one when nothing usable is
// stored.
func (s *Service) Load(ctx context.Context, userID, sessionID string) (State, error) {
	st, err := s.repo.Load(ctx, userID, sessionID)
	if cerr.IsCode(err, cerr.NotFound) {
		return NewState(s.machine.now()), nil
	}
	if err != nil {
		return State{}, err
	}
	return *st, nil
}

// Apply runs fn on the session's state under a per-session lock and
// persists the result when fn reports a change.
func (s *Service) Apply(ctx context.Context, userID, sessionID string, fn func(State) (State, bool)) (State, bool, error) {
	unlock := s.lock(userID + "/" + sessionID)
	defer unlock()

	current, err := s.Load(ctx, userID, sessionID)
	if err != nil {
		return State{}, false, err
	}
	next, changed := fn(current)
	if !changed {
		return current, false, nil
	}
	if err := s.repo.Save(ctx, userID, sessionID, &next); err != nil {
		return State{}, false, err
	}
	if s.eventBus != nil {
		s.eventBus.PublishNew(eventbus.TypeWorkflowState, sessionID, userID, next)
	}
	return next, true, nil
}

// Reset replaces the session's state with a fresh one regardless of what
// is stored.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) (State, error) {
	st, _, err := s.Apply(ctx, userID, sessionID, func(State) (State, bool) {
		return s.machine.Reset(), true
	})
	return st, err
}

// Feed applies one finished assistant answer to the session.
func (s *Service) Feed(ctx context.Context, userID, sessionID, answer string) (State, bool, error) {
	return s.Apply(ctx, userID, sessionID, func(st State) (State, bool) {
		return s.machine.CheckTransition(st, answer)
	})
}

func (s *Service) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
