package agenttask

import (
	"time"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

// Stage is the tracked progress of one pipeline stage in one conversation.
type Stage struct {
	Key           stage.Key    `json:"key" yaml:"key"`
	Label         string       `json:"label" yaml:"label"`
	Status        stage.Status `json:"status" yaml:"status"`
	Order         int          `json:"order" yaml:"order"`
	StartedAt     *time.Time   `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	EndedAt       *time.Time   `json:"endedAt,omitempty" yaml:"ended_at,omitempty"`
	LastNodeTitle string       `json:"lastNodeTitle,omitempty" yaml:"last_node_title,omitempty"`
	LastNodeType  string       `json:"lastNodeType,omitempty" yaml:"last_node_type,omitempty"`
	LastNodeID    string       `json:"lastNodeId,omitempty" yaml:"last_node_id,omitempty"`
	LastEventAt   *time.Time   `json:"lastEventAt,omitempty" yaml:"last_event_at,omitempty"`
}

// AgentTask is the stage state of one conversation. Version increases by one
// on every successful write and guards concurrent updates.
type AgentTask struct {
	ConversationID  string     `json:"conversationId" yaml:"conversation_id"`
	UserID          string     `json:"userId" yaml:"user_id"`
	ContextID       string     `json:"contextId,omitempty" yaml:"context_id,omitempty"`
	Mode            stage.Mode `json:"mode" yaml:"mode"`
	Stages          []Stage    `json:"stages" yaml:"stages"`
	CurrentStageKey stage.Key  `json:"currentStageKey" yaml:"current_stage_key"`
	WorkflowRunID   string     `json:"workflowRunId,omitempty" yaml:"workflow_run_id,omitempty"`
	LastEventAt     time.Time  `json:"lastEventAt" yaml:"last_event_at"`
	CreatedAt       time.Time  `json:"createdAt" yaml:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" yaml:"updated_at"`
	Version         int64      `json:"version" yaml:"version"`
}

// NodeInfo identifies the engine node that produced an update.
type NodeInfo struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Update is one classified engine event to fold into a conversation's state.
type Update struct {
	ConversationID string
	UserID         string
	ContextID      string
	Mode           stage.Mode
	StageKey       stage.Key
	Status         stage.Status
	Node           NodeInfo
	WorkflowRunID  string
	// Reset starts a new run: every stage goes back to pending first.
	Reset bool
}

// DefaultStages returns the all-pending stage list for mode.
func DefaultStages(mode stage.Mode) []Stage {
	defs := stage.StagesFor(mode)
	stages := make([]Stage, len(defs))
	for i, d := range defs {
		stages[i] = Stage{
			Key:    d.Key,
			Label:  d.Label,
			Status: stage.StatusPending,
			Order:  i,
		}
	}
	return stages
}

// Stage returns the tracked stage for key, or nil.
func (t *AgentTask) Stage(key stage.Key) *Stage {
	for i := range t.Stages {
		if t.Stages[i].Key == key {
			return &t.Stages[i]
		}
	}
	return nil
}

// Clone returns a deep copy of t.
func (t *AgentTask) Clone() *AgentTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Stages = make([]Stage, len(t.Stages))
	for i, s := range t.Stages {
		s.StartedAt = cloneTime(s.StartedAt)
		s.EndedAt = cloneTime(s.EndedAt)
		s.LastEventAt = cloneTime(s.LastEventAt)
		c.Stages[i] = s
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
