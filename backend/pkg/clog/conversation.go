package clog

import "context"

const (
	ConversationAttributeKey = "conversation_id"
	UserAttributeKey         = "user_id"
	ModeAttributeKey         = "mode"
)

// AddConversation tags every record logged with ctx with the conversation
// that produced it. Empty values are skipped.
func AddConversation(ctx context.Context, conversationID, userID, mode string) {
	attrs := make(map[string]any, 3)
	if conversationID != "" {
		attrs[ConversationAttributeKey] = conversationID
	}
	if userID != "" {
		attrs[UserAttributeKey] = userID
	}
	if mode != "" {
		attrs[ModeAttributeKey] = mode
	}
	AddAttributes(ctx, attrs)
}
