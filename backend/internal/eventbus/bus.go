package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	// TypeTaskEvent carries the live stage event of a streaming turn.
	TypeTaskEvent Type = "task"
	// TypeTaskState carries the persisted agent task after an upsert.
	TypeTaskState Type = "task_state"
	// TypeWorkflowState carries a client workflow state after a transition.
	TypeWorkflowState Type = "workflow_state"
)

type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	UserID         string    `json:"userId,omitempty"`
	Payload        any       `json:"payload"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Bus fans events out to in-process subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType Type, conversationID, userID string, payload any) {
	b.Publish(&Event{
		ID:             ulid.Make().String(),
		Type:           eventType,
		ConversationID: conversationID,
		UserID:         userID,
		Payload:        payload,
		CreatedAt:      time.Now(),
	})
}

func (b *Bus) PublishTaskState(conversationID, userID string, state any) {
	b.PublishNew(TypeTaskState, conversationID, userID, state)
}
