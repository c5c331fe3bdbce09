// Package chat serves the streaming chat turn: it resolves the conversation,
// relays the engine stream to the client and drives stage tracking.
package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

const nameLength = 50

type Conversation struct {
	ID        string     `json:"id" yaml:"id"`
	UserID    string     `json:"userId" yaml:"user_id"`
	ContextID string     `json:"contextId" yaml:"context_id"`
	Name      string     `json:"name" yaml:"name"`
	Mode      stage.Mode `json:"mode" yaml:"mode"`
	Tab       string     `json:"tab,omitempty" yaml:"tab,omitempty"`
	// EngineConversationID is assigned by the engine on the first turn.
	EngineConversationID string    `json:"engineConversationId,omitempty" yaml:"engine_conversation_id,omitempty"`
	CreatedAt            time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" yaml:"updated_at"`
}

// NewConversation starts a conversation named after its first query.
func NewConversation(userID, contextID, query string, now time.Time) *Conversation {
	tab := strings.TrimPrefix(contextID, "standard_")
	return &Conversation{
		ID:        ulid.Make().String(),
		UserID:    userID,
		ContextID: contextID,
		Name:      conversationName(query),
		Mode:      stage.ModeFromContextID(contextID),
		Tab:       tab,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func conversationName(query string) string {
	if utf8.RuneCountInString(query) <= nameLength {
		return query + "..."
	}
	return string([]rune(query)[:nameLength]) + "..."
}

// IsEngineID reports whether id was issued by the engine rather than by this
// server. Local ids are ULIDs and never contain a hyphen.
func IsEngineID(id string) bool {
	if _, err := uuid.Parse(id); err == nil {
		return true
	}
	return strings.Contains(id, "-")
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID             string `json:"id" yaml:"id"`
	ConversationID string `json:"conversationId" yaml:"conversation_id"`
	UserID         string `json:"userId" yaml:"user_id"`
	Role           Role   `json:"role" yaml:"role"`
	Content        string `json:"content" yaml:"content"`
	// EnhancedQuery is the query actually sent to the engine, when
	// preferences changed it.
	EnhancedQuery     string    `json:"enhancedQuery,omitempty" yaml:"enhanced_query,omitempty"`
	PreferenceVersion int64     `json:"preferenceVersion,omitempty" yaml:"preference_version,omitempty"`
	CreatedAt         time.Time `json:"createdAt" yaml:"created_at"`
}

func NewMessage(conv *Conversation, role Role, content string, now time.Time) *Message {
	return &Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
}
