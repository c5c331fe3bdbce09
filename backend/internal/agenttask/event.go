package agenttask

import "github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"

// TaskEvent is the live stage update pushed to the chat client for every
// classified engine event.
type TaskEvent struct {
	ConversationID string       `json:"conversationId"`
	UserID         string       `json:"-"`
	ContextID      string       `json:"contextId"`
	Mode           stage.Mode   `json:"mode"`
	StageKey       stage.Key    `json:"stageKey"`
	StageLabel     string       `json:"stageLabel"`
	Status         stage.Status `json:"status"`
	Event          string       `json:"event"`
	NodeTitle      string       `json:"nodeTitle,omitempty"`
	NodeType       string       `json:"nodeType,omitempty"`
	NodeID         string       `json:"nodeId,omitempty"`
	WorkflowRunID  string       `json:"-"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// TaskEnvelope is the wire form of a TaskEvent on the chat stream.
type TaskEnvelope struct {
	Type    string    `json:"type"`
	Payload TaskEvent `json:"payload"`
}

func (e TaskEvent) Envelope() TaskEnvelope {
	return TaskEnvelope{Type: "task", Payload: e}
}
