package dify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type EventType string

const (
	EventWorkflowStarted  EventType = "workflow_started"
	EventNodeStarted      EventType = "node_started"
	EventNodeFinished     EventType = "node_finished"
	EventWorkflowFinished EventType = "workflow_finished"
	EventMessage          EventType = "message"
	EventAgentMessage     EventType = "agent_message"
	EventMessageEnd       EventType = "message_end"
	EventError            EventType = "error"
)

// Event is one decoded streaming event. The concrete type is one of
// *WorkflowStarted, *NodeStarted, *NodeFinished, *WorkflowFinished,
// *Message, *MessageEnd, *ErrorEvent or *Unknown.
type Event interface {
	Type() EventType
	EventMeta() Meta
	isEvent()
}

// Meta carries the identifiers present on every engine event.
type Meta struct {
	TaskID         string `json:"task_id,omitempty"`
	WorkflowRunID  string `json:"workflow_run_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// Node describes the workflow node an event refers to. Any field may be empty.
type Node struct {
	ID    string `json:"node_id,omitempty"`
	Type  string `json:"node_type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Outcome is the completion status reported on finish events. The engine is
// not consistent about which field it fills.
type Outcome struct {
	Status     looseString `json:"status,omitempty"`
	StatusCode looseString `json:"status_code,omitempty"`
	State      looseString `json:"state,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Value returns the first non-empty status field.
func (o Outcome) Value() string {
	for _, v := range []looseString{o.Status, o.StatusCode, o.State} {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// Failed reports whether the outcome value is failed or error.
func (o Outcome) Failed() bool {
	switch strings.ToLower(o.Value()) {
	case "failed", "error":
		return true
	}
	return false
}

type WorkflowStarted struct {
	Meta
	WorkflowID string
}

type NodeStarted struct {
	Meta
	Node Node
}

type NodeFinished struct {
	Meta
	Node    Node
	Outcome Outcome
}

type WorkflowFinished struct {
	Meta
	Outcome Outcome
}

// Message is a streamed answer fragment. Delta is the fragment itself;
// Answer and Content are only set when the engine nests them in data.
type Message struct {
	Meta
	Agent   bool
	Delta   string
	Answer  string
	Content string
}

type MessageEnd struct {
	Meta
}

type ErrorEvent struct {
	Meta
	Status  int
	Code    string
	Message string
}

func (e *ErrorEvent) Error() string {
	return fmt.Sprintf("dify stream error (status %d, code %s): %s", e.Status, e.Code, e.Message)
}

// Unknown is any event kind not modelled above. Node is filled when the
// payload carries node fields.
type Unknown struct {
	Meta
	Name EventType
	Node Node
}

func (e *WorkflowStarted) Type() EventType  { return EventWorkflowStarted }
func (e *NodeStarted) Type() EventType      { return EventNodeStarted }
func (e *NodeFinished) Type() EventType     { return EventNodeFinished }
func (e *WorkflowFinished) Type() EventType { return EventWorkflowFinished }
func (e *MessageEnd) Type() EventType       { return EventMessageEnd }
func (e *ErrorEvent) Type() EventType       { return EventError }
func (e *Unknown) Type() EventType          { return e.Name }

func (e *Message) Type() EventType {
	if e.Agent {
		return EventAgentMessage
	}
	return EventMessage
}

func (m Meta) EventMeta() Meta { return m }

func (*WorkflowStarted) isEvent()  {}
func (*NodeStarted) isEvent()      {}
func (*NodeFinished) isEvent()     {}
func (*WorkflowFinished) isEvent() {}
func (*Message) isEvent()          {}
func (*MessageEnd) isEvent()       {}
func (*ErrorEvent) isEvent()       {}
func (*Unknown) isEvent()          {}

// NodeOf returns the node an event refers to, or the zero Node.
func NodeOf(ev Event) Node {
	switch e := ev.(type) {
	case *NodeStarted:
		return e.Node
	case *NodeFinished:
		return e.Node
	case *Unknown:
		return e.Node
	}
	return Node{}
}

type envelope struct {
	Event EventType `json:"event"`
	Meta
	Answer  string          `json:"answer"`
	Status  int             `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type eventData struct {
	Node
	Outcome
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	Answer     string `json:"answer"`
	Content    string `json:"content"`
}

// Decode parses one SSE data payload. Missing or malformed data objects are
// treated as empty rather than rejected; only an unreadable envelope or a
// missing event name is an error.
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode dify event: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("dify event without event name: %s", truncate(string(payload), 120))
	}
	var data eventData
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &data)
	}
	if env.WorkflowRunID == "" && (env.Event == EventWorkflowStarted || env.Event == EventWorkflowFinished) {
		// Some engine versions only send the run id as data.id.
		env.WorkflowRunID = data.ID
	}

	switch env.Event {
	case EventWorkflowStarted:
		return &WorkflowStarted{Meta: env.Meta, WorkflowID: data.WorkflowID}, nil
	case EventNodeStarted:
		return &NodeStarted{Meta: env.Meta, Node: data.Node}, nil
	case EventNodeFinished:
		return &NodeFinished{Meta: env.Meta, Node: data.Node, Outcome: data.Outcome}, nil
	case EventWorkflowFinished:
		return &WorkflowFinished{Meta: env.Meta, Outcome: data.Outcome}, nil
	case EventMessage, EventAgentMessage:
		return &Message{
			Meta:    env.Meta,
			Agent:   env.Event == EventAgentMessage,
			Delta:   env.Answer,
			Answer:  data.Answer,
			Content: data.Content,
		}, nil
	case EventMessageEnd:
		return &MessageEnd{Meta: env.Meta}, nil
	case EventError:
		return &ErrorEvent{Meta: env.Meta, Status: env.Status, Code: env.Code, Message: env.Message}, nil
	}
	return &Unknown{Meta: env.Meta, Name: env.Event, Node: data.Node}, nil
}

// looseString accepts JSON strings and numbers.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Booleans and objects carry no usable status.
		*s = ""
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*s = looseString(strconv.FormatInt(i, 10))
		return nil
	}
	*s = looseString(n.String())
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
