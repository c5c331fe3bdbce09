package agenttask

import (
	"time"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

// Apply folds u into task and returns the new state. task may be nil for a
// conversation without state yet; it is never modified.
//
// Observing a stage implies every earlier catalog stage has finished, so
// earlier stages still pending are back-filled to success. A pending update
// carries no progress and never downgrades a stage that has already started.
func Apply(task *AgentTask, u Update, now time.Time) *AgentTask {
	mode := stage.ParseMode(string(u.Mode))

	next := task.Clone()
	if next == nil {
		next = &AgentTask{
			ConversationID:  u.ConversationID,
			UserID:          u.UserID,
			ContextID:       u.ContextID,
			Mode:            mode,
			Stages:          DefaultStages(mode),
			CurrentStageKey: u.StageKey,
			WorkflowRunID:   u.WorkflowRunID,
			CreatedAt:       now,
		}
	}
	if len(next.Stages) == 0 || u.Reset {
		next.Stages = DefaultStages(mode)
	}

	idx, known := stage.StageIndex(mode, u.StageKey)
	target := next.Stage(u.StageKey)
	if target == nil {
		order := len(next.Stages)
		if known {
			order = idx
		}
		next.Stages = append(next.Stages, Stage{
			Key:    u.StageKey,
			Label:  stage.Label(mode, u.StageKey),
			Status: stage.StatusPending,
			Order:  order,
		})
		target = &next.Stages[len(next.Stages)-1]
	}

	if known {
		for _, def := range stage.StagesFor(mode)[:idx] {
			prev := next.Stage(def.Key)
			if prev == nil || prev.Status != stage.StatusPending {
				continue
			}
			prev.Status = stage.StatusSuccess
			prev.StartedAt = orNow(prev.StartedAt, now)
			prev.EndedAt = orNow(prev.EndedAt, now)
			prev.LastEventAt = at(now)
		}
	}

	switch u.Status {
	case stage.StatusRunning:
		target.StartedAt = orNow(target.StartedAt, now)
	case stage.StatusSuccess, stage.StatusFailed:
		target.StartedAt = orNow(target.StartedAt, now)
		target.EndedAt = at(now)
	}
	if u.Status != stage.StatusPending || target.Status == stage.StatusPending {
		target.Status = u.Status
	}
	if target.Status == "" {
		target.Status = stage.StatusPending
	}
	target.LastEventAt = at(now)
	if u.Node.Title != "" {
		target.LastNodeTitle = u.Node.Title
	}
	if u.Node.Type != "" {
		target.LastNodeType = u.Node.Type
	}
	if u.Node.ID != "" {
		target.LastNodeID = u.Node.ID
	}

	next.CurrentStageKey = u.StageKey
	next.LastEventAt = now
	next.UpdatedAt = now
	if u.WorkflowRunID != "" {
		next.WorkflowRunID = u.WorkflowRunID
	}
	if next.ContextID == "" {
		next.ContextID = u.ContextID
	}
	if next.Mode == "" {
		next.Mode = mode
	}
	if next.UserID == "" {
		next.UserID = u.UserID
	}
	return next
}

func at(t time.Time) *time.Time {
	return &t
}

func orNow(t *time.Time, now time.Time) *time.Time {
	if t != nil {
		return t
	}
	return at(now)
}
