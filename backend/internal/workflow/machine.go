package workflow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
)

// announcement matches the bolded stage announcement the assistant emits,
// e.g. "已进入**供应商寻源**阶段".
var announcement = regexp.MustCompile(`已进入\*\*([^*]+)\*\*[阶段期]`)

// Transition causes, as recorded in metrics.
const (
	CauseAdvance      = "advance"
	CauseBack         = "back"
	CauseJump         = "jump"
	CauseReset        = "reset"
	CauseTrigger      = "trigger"
	CauseAnnouncement = "announcement"
	CauseManual       = "manual"
)

// Machine holds the pure workflow transitions. Every method takes a state and
// returns the next one; the input is never modified.
type Machine struct {
	metrics *metrics.Recorder
	now     func() time.Time
}

type MachineOption func(*Machine)

func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

func NewMachine(rec *metrics.Recorder, opts ...MachineOption) *Machine {
	m := &Machine{metrics: rec, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reset returns a fresh initial state.
func (m *Machine) Reset() State {
	s := NewState(m.now())
	m.metrics.ObserveWorkflowTransition(CauseReset, string(s.CurrentStage))
	return s
}

// Advance moves one stage forward and stores data under the stage being
// left. Nil data keeps what that stage already had. At the last stage it is a
// no-op.
func (m *Machine) Advance(s State, data any) (State, bool) {
	i := indexOf(s.CurrentStage)
	if i < 0 || i >= len(stageConfigs)-1 {
		return s, false
	}
	next := s.clone()
	if data != nil {
		next.StageData[string(s.CurrentStage)] = data
	}
	next.complete(s.CurrentStage)
	next.CurrentStage = stageConfigs[i+1].Stage
	return m.touched(next, CauseAdvance), true
}

// Back returns to the most recently completed stage, one step only.
func (m *Machine) Back(s State) (State, bool) {
	if len(s.CompletedStages) == 0 {
		return s, false
	}
	next := s.clone()
	last := len(next.CompletedStages) - 1
	next.CurrentStage = next.CompletedStages[last]
	next.CompletedStages = next.CompletedStages[:last]
	return m.touched(next, CauseBack), true
}

// Jump moves to target when it is the next stage (completing the current
// one) or an already completed stage (viewing it without touching the
// completed list). Any other target is rejected and logged.
func (m *Machine) Jump(ctx context.Context, s State, target Stage) (State, bool) {
	cur, tgt := indexOf(s.CurrentStage), indexOf(target)
	switch {
	case target == s.CurrentStage:
		return s, false
	case tgt >= 0 && tgt == cur+1:
		next := s.clone()
		next.complete(s.CurrentStage)
		next.CurrentStage = target
		return m.touched(next, CauseJump), true
	case tgt >= 0 && s.IsCompleted(target):
		next := s.clone()
		next.CurrentStage = target
		return m.touched(next, CauseJump), true
	}
	slog.WarnContext(ctx, "invalid workflow stage transition", "from", s.CurrentStage, "to", target)
	return s, false
}

// ManuallyAdvance moves forward to target, completing the current stage and
// every stage in between. Targets at or behind the current stage are
// rejected.
func (m *Machine) ManuallyAdvance(ctx context.Context, s State, target Stage, data any) (State, bool) {
	cur, tgt := indexOf(s.CurrentStage), indexOf(target)
	if tgt < 0 || tgt <= cur {
		slog.WarnContext(ctx, "workflow can only be advanced forward", "from", s.CurrentStage, "to", target)
		return s, false
	}
	next := s.clone()
	if data != nil {
		next.StageData[string(s.CurrentStage)] = data
	}
	m.jumpForward(&next, cur, tgt)
	return m.touched(next, CauseManual), true
}

// UpdateStageData replaces the data of the current stage.
func (m *Machine) UpdateStageData(s State, data any) State {
	next := s.clone()
	next.StageData[string(s.CurrentStage)] = data
	next.UpdatedAt = m.now().UnixMilli()
	return next
}

// CheckTransition applies one assistant answer. A bolded stage announcement
// naming a stage ahead of the current one jumps there; otherwise a trigger
// phrase of the current stage advances one step.
func (m *Machine) CheckTransition(s State, text string) (State, bool) {
	next := s.clone()
	cause, ok := m.step(&next, text)
	if !ok {
		return s, false
	}
	return m.touched(next, cause), true
}

// ProcessHistory replays a conversation's messages in order, considering
// only settled assistant answers, and returns the resulting state in one
// piece. Messages before s.HistoryMark were folded by an earlier call and are
// skipped, so replaying the same history twice moves nothing the second time.
// The bool reports whether the state, mark included, changed.
func (m *Machine) ProcessHistory(s State, messages []Message) (State, bool) {
	start := min(s.HistoryMark, len(messages))
	if start == len(messages) {
		return s, false
	}
	next := s.clone()
	next.HistoryMark = len(messages)
	var last string
	for _, msg := range messages[start:] {
		if !msg.replayable() {
			continue
		}
		if cause, ok := m.step(&next, msg.Content); ok {
			last = cause
		}
	}
	if last == "" {
		return next, true
	}
	return m.touched(next, last), true
}

func (m *Machine) step(s *State, text string) (string, bool) {
	cur := indexOf(s.CurrentStage)
	if cur < 0 {
		return "", false
	}
	if tgt, ok := announcedStage(text, cur); ok {
		s.StageData[string(s.CurrentStage)] = map[string]any{"aiResponse": text}
		m.jumpForward(s, cur, tgt)
		return CauseAnnouncement, true
	}
	if cur < len(stageConfigs)-1 && containsAny(text, stageConfigs[cur].NextTrigger) {
		s.StageData[string(s.CurrentStage)] = map[string]any{"aiResponse": text}
		s.complete(s.CurrentStage)
		s.CurrentStage = stageConfigs[cur+1].Stage
		return CauseTrigger, true
	}
	return "", false
}

func (m *Machine) jumpForward(s *State, from, to int) {
	for i := from; i < to; i++ {
		s.complete(stageConfigs[i].Stage)
	}
	s.CurrentStage = stageConfigs[to].Stage
}

func (m *Machine) touched(s State, cause string) State {
	s.UpdatedAt = m.now().UnixMilli()
	m.metrics.ObserveWorkflowTransition(cause, string(s.CurrentStage))
	return s
}

// announcedStage returns the index of the first stage after cur whose title
// the announcement names.
func announcedStage(text string, cur int) (int, bool) {
	match := announcement.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	title := match[1]
	for i := cur + 1; i < len(stageConfigs); i++ {
		if strings.Contains(title, stageConfigs[i].Title) {
			return i, true
		}
	}
	return 0, false
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
