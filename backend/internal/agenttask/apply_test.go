package agenttask

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func tick(n int) time.Time { return t0.Add(time.Duration(n) * time.Second) }

func statuses(task *AgentTask) map[stage.Key]stage.Status {
	out := make(map[stage.Key]stage.Status, len(task.Stages))
	for _, s := range task.Stages {
		out[s.Key] = s.Status
	}
	return out
}

func TestApply_CreatesLazily(t *testing.T) {
	task := Apply(nil, Update{
		ConversationID: "c1",
		UserID:         "u1",
		ContextID:      "standard_sourcing",
		Mode:           stage.ModeStandard,
		StageKey:       stage.KeyReceive,
		Status:         stage.StatusSuccess,
		WorkflowRunID:  "run-1",
	}, tick(0))

	assert.Equal(t, "c1", task.ConversationID)
	assert.Equal(t, "u1", task.UserID)
	assert.Equal(t, stage.ModeStandard, task.Mode)
	assert.Equal(t, "run-1", task.WorkflowRunID)
	assert.Equal(t, stage.KeyReceive, task.CurrentStageKey)
	require.Len(t, task.Stages, 6)
	assert.Equal(t, stage.StatusSuccess, task.Stage(stage.KeyReceive).Status)
	assert.Equal(t, stage.StatusPending, task.Stage(stage.KeyPreliminary).Status)
	assert.Equal(t, tick(0), *task.Stage(stage.KeyReceive).EndedAt)
	assert.Equal(t, tick(0), task.CreatedAt)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	before := Apply(nil, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyReceive, Status: stage.StatusSuccess}, tick(0))
	snapshot := before.Clone()

	_ = Apply(before, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyResult, Status: stage.StatusSuccess}, tick(1))
	assert.Equal(t, snapshot, before)
}

func TestApply_BackfillMonotonicity(t *testing.T) {
	var task *AgentTask
	keys := []stage.Key{stage.KeyPreliminary, stage.KeyCheck, stage.KeyResult}
	for i, key := range keys {
		task = Apply(task, Update{
			ConversationID: "c1",
			Mode:           stage.ModeCasual,
			StageKey:       key,
			Status:         stage.StatusSuccess,
		}, tick(i))

		idx, _ := stage.StageIndex(stage.ModeCasual, key)
		for _, def := range stage.StagesFor(stage.ModeCasual)[:idx] {
			s := task.Stage(def.Key)
			assert.True(t, s.Status.IsTerminal(), "stage %s should be finished, got %s", def.Key, s.Status)
			assert.NotNil(t, s.StartedAt)
			assert.NotNil(t, s.EndedAt)
		}
	}
	assert.Equal(t, stage.StatusSuccess, task.Stage(stage.KeyResult).Status)
}

func TestApply_BackfillLeavesRunningStagesAlone(t *testing.T) {
	task := Apply(nil, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyPreliminary, Status: stage.StatusRunning}, tick(0))
	task = Apply(task, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyCheck, Status: stage.StatusRunning}, tick(1))

	assert.Equal(t, stage.StatusSuccess, task.Stage(stage.KeyReceive).Status)
	assert.Equal(t, stage.StatusRunning, task.Stage(stage.KeyPreliminary).Status)
	assert.Nil(t, task.Stage(stage.KeyPreliminary).EndedAt)
	assert.Equal(t, stage.StatusSuccess, task.Stage(stage.KeyDeep).Status)
	assert.Equal(t, stage.StatusRunning, task.Stage(stage.KeyCheck).Status)
	for _, key := range []stage.Key{stage.KeyReceive, stage.KeyPreliminary, stage.KeyDeep} {
		assert.NotEqual(t, stage.StatusPending, task.Stage(key).Status, key)
	}
}

func TestApply_NoRegressionWithoutReset(t *testing.T) {
	task := Apply(nil, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyDeep, Status: stage.StatusFailed}, tick(0))
	require.Equal(t, stage.StatusFailed, task.Stage(stage.KeyDeep).Status)

	task = Apply(task, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyDeep, Status: stage.StatusPending}, tick(1))
	assert.Equal(t, stage.StatusFailed, task.Stage(stage.KeyDeep).Status)
	assert.Equal(t, tick(1), *task.Stage(stage.KeyDeep).LastEventAt)

	task = Apply(task, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyPreliminary, Status: stage.StatusPending}, tick(2))
	assert.Equal(t, stage.StatusSuccess, task.Stage(stage.KeyPreliminary).Status)
	assert.Equal(t, stage.KeyPreliminary, task.CurrentStageKey)

	for _, s := range task.Stages {
		if s.Order < 3 {
			assert.NotEqual(t, stage.StatusPending, s.Status, s.Key)
		}
	}
}

func TestApply_RunningThenSuccessTimestamps(t *testing.T) {
	task := Apply(nil, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyDeep, Status: stage.StatusRunning,
		Node: NodeInfo{ID: "n1", Title: "深度调研", Type: "llm"}}, tick(0))
	deep := task.Stage(stage.KeyDeep)
	assert.Equal(t, tick(0), *deep.StartedAt)
	assert.Nil(t, deep.EndedAt)

	task = Apply(task, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyDeep, Status: stage.StatusSuccess}, tick(5))
	deep = task.Stage(stage.KeyDeep)
	assert.Equal(t, tick(0), *deep.StartedAt)
	assert.Equal(t, tick(5), *deep.EndedAt)
	assert.Equal(t, "深度调研", deep.LastNodeTitle)
	assert.Equal(t, "llm", deep.LastNodeType)
	assert.Equal(t, "n1", deep.LastNodeID)
}

func TestApply_EventDrivenReset(t *testing.T) {
	var task *AgentTask
	for i, def := range stage.StagesFor(stage.ModeStandard) {
		st := stage.StatusSuccess
		if i%2 == 1 {
			st = stage.StatusFailed
		}
		task = Apply(task, Update{ConversationID: "c1", Mode: stage.ModeStandard, StageKey: def.Key, Status: st}, tick(i))
	}
	for _, s := range task.Stages {
		require.True(t, s.Status.IsTerminal())
	}

	task = Apply(task, Update{
		ConversationID: "c1",
		Mode:           stage.ModeStandard,
		StageKey:       stage.KeyReceive,
		Status:         stage.StatusSuccess,
		WorkflowRunID:  "run-2",
		Reset:          true,
	}, tick(10))

	for _, s := range task.Stages {
		if s.Key == stage.KeyReceive {
			assert.Equal(t, stage.StatusSuccess, s.Status)
			assert.Equal(t, tick(10), *s.StartedAt)
			continue
		}
		assert.Equal(t, stage.StatusPending, s.Status, s.Key)
		assert.Nil(t, s.StartedAt)
	}
	assert.Equal(t, "run-2", task.WorkflowRunID)
	assert.Equal(t, stage.KeyReceive, task.CurrentStageKey)
}

func TestApply_FullHappyPath(t *testing.T) {
	updates := []Update{
		{StageKey: stage.KeyReceive, Status: stage.StatusSuccess, Reset: true},
		{StageKey: stage.KeyDeep, Status: stage.StatusSuccess, Node: NodeInfo{Title: "深度搜索"}},
		{StageKey: stage.KeyResult, Status: stage.StatusSuccess},
	}
	var task *AgentTask
	for i, u := range updates {
		u.ConversationID = "c1"
		u.Mode = stage.ModeStandard
		task = Apply(task, u, tick(i))
	}
	assert.Equal(t, stage.KeyResult, task.CurrentStageKey)
	for _, s := range task.Stages {
		assert.Equal(t, stage.StatusSuccess, s.Status, s.Key)
	}
}

func TestApply_UnknownStageIsSynthesised(t *testing.T) {
	task := Apply(nil, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyCheck, Status: stage.StatusSuccess}, tick(0))
	task = Apply(task, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: "knowledge_retrieval", Status: stage.StatusRunning}, tick(1))

	require.Len(t, task.Stages, 7)
	extra := task.Stage("knowledge_retrieval")
	require.NotNil(t, extra)
	assert.Equal(t, "knowledge_retrieval", extra.Label)
	assert.Equal(t, 6, extra.Order)
	assert.Equal(t, stage.StatusRunning, extra.Status)
	// Unknown keys do not back-fill anything.
	assert.Equal(t, stage.StatusPending, task.Stage(stage.KeyReview).Status)
	assert.Equal(t, stage.Key("knowledge_retrieval"), task.CurrentStageKey)
}

func TestApply_AggregateFieldsSetOnce(t *testing.T) {
	task := Apply(nil, Update{ConversationID: "c1", ContextID: "casual_chat", Mode: stage.ModeCasual, StageKey: stage.KeyReceive, Status: stage.StatusSuccess}, tick(0))
	task = Apply(task, Update{ConversationID: "c1", ContextID: "other", Mode: stage.ModeCasual, StageKey: stage.KeyDeep, Status: stage.StatusRunning}, tick(1))
	assert.Equal(t, "casual_chat", task.ContextID)
	assert.Equal(t, tick(1), task.LastEventAt)
	assert.Equal(t, tick(1), task.UpdatedAt)
	assert.Empty(t, task.WorkflowRunID)
}

func TestStatuses_Helper(t *testing.T) {
	task := Apply(nil, Update{ConversationID: "c1", Mode: stage.ModeCasual, StageKey: stage.KeyCheck, Status: stage.StatusRunning}, tick(0))
	assert.Equal(t, map[stage.Key]stage.Status{
		stage.KeyReceive:     stage.StatusSuccess,
		stage.KeyPreliminary: stage.StatusSuccess,
		stage.KeyDeep:        stage.StatusSuccess,
		stage.KeyCheck:       stage.StatusRunning,
		stage.KeyReview:      stage.StatusPending,
		stage.KeyResult:      stage.StatusPending,
	}, statuses(task))
}
