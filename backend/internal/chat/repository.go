package chat

import "context"

type Repository interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// FindByEngineID returns a cerr.NotFound error when no conversation has
	// been bound to engineID yet.
	FindByEngineID(ctx context.Context, engineID string) (*Conversation, error)
	UpdateConversation(ctx context.Context, c *Conversation) error
	AppendMessage(ctx context.Context, m *Message) error
	// ListMessages returns a conversation's messages oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
}
