package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

const events = `data: {"event":"workflow_started","conversation_id":"c","workflow_run_id":"run-1","data":{"id":"run-1"}}
data: {"event":"node_started","conversation_id":"c","workflow_run_id":"run-1","data":{"node_id":"n1","node_type":"llm","title":"需求分析"}}

{"event":"message","conversation_id":"c","answer":"已完成初步调研"}
{"event":"workflow_finished","conversation_id":"c","workflow_run_id":"run-1","data":{"status":"succeeded"}}
`

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestReplay_PrintsRowsAndFinalState(t *testing.T) {
	var out bytes.Buffer
	classifier := stage.NewClassifier(stage.DefaultKeywords())

	err := replay(strings.NewReader(events), &out, classifier, replayOptions{ContextID: "casual_chat", Now: fixedClock})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "workflow_started")
	assert.Contains(t, text, "workflow_finished")
	assert.Contains(t, text, "conversation_id: replay")
	assert.Contains(t, text, "workflow_run_id: run-1")
	assert.True(t, strings.HasPrefix(text, "  1  workflow_started"), text)
	assert.Contains(t, text, "\n  4  workflow_finished")
}

func TestReplay_Diff(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	classifier := stage.NewClassifier(stage.DefaultKeywords())

	err := replay(strings.NewReader(events), &out, classifier, replayOptions{ContextID: "casual_chat", Diff: true, Now: fixedClock})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "+++ state@1")
	assert.Contains(t, text, "+conversation_id: replay")
	assert.Contains(t, text, "@@")
}

func TestReplay_RejectsUnreadableLine(t *testing.T) {
	var out bytes.Buffer
	classifier := stage.NewClassifier(stage.DefaultKeywords())

	err := replay(strings.NewReader("{\"event\":\"message\"}\nnot json\n"), &out, classifier, replayOptions{ContextID: "casual_chat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestNewClassifier_Default(t *testing.T) {
	c, err := newClassifier("")
	require.NoError(t, err)
	assert.Equal(t, stage.KeyResult, c.ByContent("以下是供应商推荐清单", stage.ModeStandard, stage.KeyReceive))
}

func TestReplayFrom(t *testing.T) {
	classifier := stage.NewClassifier(stage.DefaultKeywords())
	opts := replayOptions{ContextID: "casual_chat", Now: fixedClock}
	dir := t.TempDir()

	good := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(good, []byte(events), 0o644))
	var out bytes.Buffer
	require.NoError(t, replayFrom(good, nil, &out, classifier, opts))
	assert.Contains(t, out.String(), "workflow_finished")

	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\n"), 0o644))
	err := replayFrom(bad, nil, &bytes.Buffer{}, classifier, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	require.NoError(t, os.Remove(bad))

	err = replayFrom(filepath.Join(dir, "missing.jsonl"), nil, &bytes.Buffer{}, classifier, opts)
	assert.ErrorIs(t, err, os.ErrNotExist)

	out.Reset()
	require.NoError(t, replayFrom("-", strings.NewReader(events), &out, classifier, opts))
	assert.Contains(t, out.String(), "workflow_started")
}
