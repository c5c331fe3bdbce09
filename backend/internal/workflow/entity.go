// Package workflow tracks the user-facing procurement workflow of a chat
// session. It is independent of the agent pipeline in package stage and is
// advanced purely by matching assistant answer text.
package workflow

import (
	"maps"
	"slices"
	"time"
)

type Stage string

const (
	StageRequirementInput  Stage = "requirement_input"
	StageRequirementList   Stage = "requirement_list"
	StageSupplierSourcing  Stage = "supplier_sourcing"
	StageDeepSourcing      Stage = "deep_sourcing"
	StageSupplierFavorite  Stage = "supplier_favorite"
	StageSupplierInterview Stage = "supplier_interview"
)

// StageConfig describes one workflow stage. NextTrigger lists phrases that,
// found in an assistant answer, move the workflow on to the following stage.
type StageConfig struct {
	Stage       Stage    `json:"stage" yaml:"stage"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	NextTrigger []string `json:"nextTrigger,omitempty" yaml:"next_trigger,omitempty"`
}

var stageConfigs = []StageConfig{
	{
		Stage:       StageRequirementInput,
		Title:       "需求输入",
		Description: "描述采购需求，补充品类、数量、预算等关键信息",
		NextTrigger: []string{"需求已确认", "需求清单已生成"},
	},
	{
		Stage:       StageRequirementList,
		Title:       "需求清单",
		Description: "确认结构化的需求清单",
		NextTrigger: []string{"开始寻源"},
	},
	{
		Stage:       StageSupplierSourcing,
		Title:       "供应商寻源",
		Description: "按需求清单检索并初筛候选供应商",
		NextTrigger: []string{"深度寻源", "进一步筛选"},
	},
	{
		Stage:       StageDeepSourcing,
		Title:       "深度寻源",
		Description: "对候选供应商做资质、产能与价格的深入比对",
		NextTrigger: []string{"已收藏供应商"},
	},
	{
		Stage:       StageSupplierFavorite,
		Title:       "供应商收藏",
		Description: "收藏意向供应商并整理对比信息",
		NextTrigger: []string{"已安排约谈"},
	},
	{
		Stage:       StageSupplierInterview,
		Title:       "供应商约谈",
		Description: "与意向供应商沟通细节并推进合作",
	},
}

// Stages returns the ordered stage configuration.
func Stages() []StageConfig {
	out := make([]StageConfig, len(stageConfigs))
	for i, c := range stageConfigs {
		c.NextTrigger = slices.Clone(c.NextTrigger)
		out[i] = c
	}
	return out
}

func Config(s Stage) (StageConfig, bool) {
	i := indexOf(s)
	if i < 0 {
		return StageConfig{}, false
	}
	return stageConfigs[i], true
}

func indexOf(s Stage) int {
	return slices.IndexFunc(stageConfigs, func(c StageConfig) bool { return c.Stage == s })
}

// State is a session's workflow position. StageData is keyed by stage id.
// HistoryMark counts the history messages ProcessHistory has already folded
// in. Timestamps are milliseconds since the Unix epoch.
type State struct {
	CurrentStage    Stage          `json:"currentStage" yaml:"current_stage"`
	CompletedStages []Stage        `json:"completedStages" yaml:"completed_stages"`
	StageData       map[string]any `json:"stageData" yaml:"stage_data"`
	HistoryMark     int            `json:"historyMark" yaml:"history_mark,omitempty"`
	CreatedAt       int64          `json:"createdAt" yaml:"created_at"`
	UpdatedAt       int64          `json:"updatedAt" yaml:"updated_at"`
}

// NewState returns the initial state: first stage, nothing completed.
func NewState(now time.Time) State {
	ms := now.UnixMilli()
	return State{
		CurrentStage:    StageRequirementInput,
		CompletedStages: []Stage{},
		StageData:       map[string]any{},
		CreatedAt:       ms,
		UpdatedAt:       ms,
	}
}

// Valid reports whether s looks like a state this package produced.
func (s State) Valid() bool {
	if indexOf(s.CurrentStage) < 0 {
		return false
	}
	for _, st := range s.CompletedStages {
		if indexOf(st) < 0 {
			return false
		}
	}
	return true
}

func (s State) IsCompleted(stage Stage) bool {
	return slices.Contains(s.CompletedStages, stage)
}

func (s State) clone() State {
	out := s
	out.CompletedStages = slices.Clone(s.CompletedStages)
	if out.CompletedStages == nil {
		out.CompletedStages = []Stage{}
	}
	out.StageData = maps.Clone(s.StageData)
	if out.StageData == nil {
		out.StageData = map[string]any{}
	}
	return out
}

// complete appends stages to the completed list, skipping ones already there
// so that revisiting a stage never duplicates it.
func (s *State) complete(stages ...Stage) {
	for _, st := range stages {
		if !slices.Contains(s.CompletedStages, st) {
			s.CompletedStages = append(s.CompletedStages, st)
		}
	}
}

// Message is one chat message replayed into the workflow.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

func (m Message) replayable() bool {
	return m.Role == "assistant" && !m.IsTyping
}
