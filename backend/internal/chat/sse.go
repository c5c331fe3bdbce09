package chat

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow"
)

// Stream message types. Every message is a single data line holding a JSON
// object with a type field.
const (
	TypeChunk    = "chunk"
	TypeNode     = "node"
	TypeTask     = "task"
	TypeWorkflow = "workflow"
	TypeEnd      = "end"
	TypeError    = "error"
)

type chunkMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type nodeMessage struct {
	Type     string `json:"type"`
	NodeName string `json:"nodeName"`
}

type workflowMessage struct {
	Type    string         `json:"type"`
	State   workflow.State `json:"state"`
	Changed bool           `json:"changed"`
}

type endMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (e *eventWriter) send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal stream message: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("write stream message: %w", err)
	}
	e.flusher.Flush()
	return nil
}

func (e *eventWriter) chunk(content string) error {
	return e.send(chunkMessage{Type: TypeChunk, Content: content})
}

func (e *eventWriter) node(name string) error {
	return e.send(nodeMessage{Type: TypeNode, NodeName: name})
}

func (e *eventWriter) task(ev agenttask.TaskEvent) error {
	return e.send(ev.Envelope())
}

func (e *eventWriter) fail(msg string) error {
	return e.send(errorMessage{Type: TypeError, Error: msg})
}
