package stage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
)

func TestClassifier_ByContent(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	long := strings.Repeat("这是一段没有任何关键字的较长回答文本内容。", 3)

	tests := []struct {
		name string
		text string
		mode Mode
		last Key
		want Key
	}{
		{"terminal phrase wins over early last", "这是最终的选购方案推荐", ModeCasual, KeyPreliminary, KeyResult},
		{"short text sticks", "好的", ModeCasual, KeyDeep, KeyDeep},
		{"empty text keeps last", "", ModeCasual, KeyCheck, KeyCheck},
		{"empty text without last", "", ModeCasual, "", KeyPreliminary},
		{"standard result phrase", "以下是供应商推荐", ModeStandard, KeyReceive, KeyResult},
		{"casual phrase ignored in standard mode", "推荐方案如下，请您参考后告诉我是否需要补充其他信息或者进一步说明", ModeStandard, KeyReceive, KeyDeep},
		{"review beats check", "我已复核并确认了报价", ModeCasual, KeyPreliminary, KeyReview},
		{"check", "正在核实价格", ModeCasual, KeyPreliminary, KeyCheck},
		{"deep", "进行深入分析", ModeCasual, KeyReceive, KeyDeep},
		{"preliminary", "先了解一下", ModeCasual, KeyDeep, KeyPreliminary},
		{"english keywords are case-insensitive", "PRELIMINARY", ModeCasual, KeyDeep, KeyDeep},
		{"long keyword-less text advances", long, ModeCasual, KeyDeep, KeyCheck},
		{"long keyword-less text stays at result", long, ModeCasual, KeyResult, KeyResult},
		{"long keyword-less text without last", long, ModeCasual, "", KeyPreliminary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ByContent(tt.text, tt.mode, tt.last))
		})
	}
}

func TestClassifier_ByEvent(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	long := strings.Repeat("这是一段没有任何关键字的较长回答文本内容。", 3)

	tests := []struct {
		name        string
		ev          dify.Event
		last        Key
		accumulated string
		want        Key
	}{
		{"workflow started", &dify.WorkflowStarted{}, KeyReview, "", KeyReceive},
		{"workflow finished", &dify.WorkflowFinished{}, KeyDeep, "", KeyResult},
		{"message answer", &dify.Message{Answer: "推荐供应商"}, KeyDeep, "", KeyResult},
		{"message content", &dify.Message{Content: "需要进一步检查"}, KeyDeep, "", KeyCheck},
		{"message falls back to accumulated", &dify.Message{Delta: "好"}, KeyReceive, "开始了解需求", KeyPreliminary},
		{"empty message uses node rules", &dify.Message{Agent: true}, KeyCheck, "", KeyCheck},
		{"long accumulated outranks node title", &dify.NodeStarted{Node: dify.Node{Title: "深度搜索"}}, KeyCheck, long + "已复核", KeyReview},
		{"node title deep", &dify.NodeFinished{Node: dify.Node{Title: "深度搜索"}}, KeyReceive, "", KeyDeep},
		{"node type sourcing", &dify.NodeStarted{Node: dify.Node{Type: "Sourcing"}}, KeyReceive, "", KeyDeep},
		{"preliminary checked before deep", &dify.NodeStarted{Node: dify.Node{Title: "需求调研"}}, KeyReceive, "", KeyPreliminary},
		{"node title check", &dify.NodeStarted{Node: dify.Node{Title: "结果校验"}}, KeyDeep, "", KeyCheck},
		{"node title review", &dify.NodeStarted{Node: dify.Node{Title: "Revise draft"}}, KeyDeep, "", KeyReview},
		{"node title result", &dify.NodeFinished{Node: dify.Node{Title: "输出报告"}}, KeyReview, "", KeyResult},
		{"unknown event with node", &dify.Unknown{Name: "iteration_started", Node: dify.Node{Title: "供应商寻源"}}, KeyReceive, "", KeyDeep},
		{"no information keeps last", &dify.MessageEnd{}, KeyCheck, "", KeyCheck},
		{"no information without last", &dify.NodeStarted{}, "", "", KeyPreliminary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ByEvent(tt.ev, tt.last, ModeStandard, tt.accumulated))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		ev   dify.Event
		want Status
	}{
		{"workflow started", &dify.WorkflowStarted{}, StatusSuccess},
		{"node started", &dify.NodeStarted{}, StatusRunning},
		{"node finished", &dify.NodeFinished{Outcome: dify.Outcome{Status: "succeeded"}}, StatusSuccess},
		{"node failed", &dify.NodeFinished{Outcome: dify.Outcome{Status: "Failed"}}, StatusFailed},
		{"node error via state", &dify.NodeFinished{Outcome: dify.Outcome{State: "ERROR"}}, StatusFailed},
		{"workflow finished without status", &dify.WorkflowFinished{}, StatusSuccess},
		{"workflow failed via status code", &dify.WorkflowFinished{Outcome: dify.Outcome{StatusCode: "error"}}, StatusFailed},
		{"message", &dify.Message{}, StatusPending},
		{"unknown", &dify.Unknown{Name: "ping"}, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.ev))
		})
	}
}

func TestClassifier_SetKeywords(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	assert.Equal(t, KeyDeep, c.ByContent("好的", ModeCasual, KeyDeep))

	kw := DefaultKeywords()
	kw.Review = []string{"好的"}
	c.SetKeywords(kw)
	assert.Equal(t, KeyReview, c.ByContent("好的", ModeCasual, KeyDeep))
}
