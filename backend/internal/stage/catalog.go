// Package stage infers which step of the procurement agent pipeline a
// conversation is in, from engine events and answer text.
package stage

import "strings"

type Mode string

const (
	ModeCasual   Mode = "casual"
	ModeStandard Mode = "standard"
)

// ParseMode maps anything other than "standard" to casual.
func ParseMode(s string) Mode {
	if Mode(s) == ModeStandard {
		return ModeStandard
	}
	return ModeCasual
}

// ModeFromContextID derives the mode from a chat context id such as
// "casual_chat" or "standard_sourcing".
func ModeFromContextID(contextID string) Mode {
	if strings.HasPrefix(contextID, string(ModeCasual)) {
		return ModeCasual
	}
	return ModeStandard
}

type Key string

const (
	KeyReceive     Key = "receive"
	KeyPreliminary Key = "preliminary"
	KeyDeep        Key = "deep"
	KeyCheck       Key = "check"
	KeyReview      Key = "review"
	KeyResult      Key = "result"
)

// pipeline is the fixed order used when text alone suggests progress.
var pipeline = [...]Key{KeyReceive, KeyPreliminary, KeyDeep, KeyCheck, KeyReview, KeyResult}

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Definition struct {
	Key   Key    `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Order int    `json:"order" yaml:"order"`
}

var catalogs = map[Mode][]Definition{
	ModeCasual: {
		{Key: KeyReceive, Label: "接收任务", Order: 0},
		{Key: KeyPreliminary, Label: "初步调研", Order: 1},
		{Key: KeyDeep, Label: "深度调研", Order: 2},
		{Key: KeyCheck, Label: "结果检查", Order: 3},
		{Key: KeyReview, Label: "结果校对", Order: 4},
		{Key: KeyResult, Label: "选购方案", Order: 5},
	},
	ModeStandard: {
		{Key: KeyReceive, Label: "接收任务", Order: 0},
		{Key: KeyPreliminary, Label: "初步调研", Order: 1},
		{Key: KeyDeep, Label: "深度搜索", Order: 2},
		{Key: KeyCheck, Label: "结果检查", Order: 3},
		{Key: KeyReview, Label: "结果校对", Order: 4},
		{Key: KeyResult, Label: "供应商推荐", Order: 5},
	},
}

// StagesFor returns a copy of the ordered catalog for mode.
func StagesFor(mode Mode) []Definition {
	defs := catalogs[ParseMode(string(mode))]
	out := make([]Definition, len(defs))
	copy(out, defs)
	return out
}

// StageIndex returns the catalog position of key within mode.
func StageIndex(mode Mode, key Key) (int, bool) {
	for i, d := range catalogs[ParseMode(string(mode))] {
		if d.Key == key {
			return i, true
		}
	}
	return -1, false
}

// Label returns the display label of key, or the key itself when the
// catalog does not know it.
func Label(mode Mode, key Key) string {
	if i, ok := StageIndex(mode, key); ok {
		return catalogs[ParseMode(string(mode))][i].Label
	}
	return string(key)
}

func fallback(last Key) Key {
	if last == "" {
		return KeyPreliminary
	}
	return last
}

// next advances one step along the pipeline. result and keys outside the
// pipeline stay where they are.
func next(last Key) Key {
	for i, k := range pipeline {
		if k == last && i < len(pipeline)-1 {
			return pipeline[i+1]
		}
	}
	return fallback(last)
}
