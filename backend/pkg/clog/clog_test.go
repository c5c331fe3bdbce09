package clog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesHandler_AddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := ContextWithSlog(context.Background())
	AddConversation(ctx, "conv-1", "user-1", "")
	logger.InfoContext(ctx, "turn finished")

	out := buf.String()
	assert.Contains(t, out, `"conversation_id":"conv-1"`)
	assert.Contains(t, out, `"user_id":"user-1"`)
	assert.NotContains(t, out, `"mode"`)
}

func TestAddAttributes_MergesNestedMaps(t *testing.T) {
	ctx := ContextWithSlog(context.Background())
	AddAttributes(ctx, map[string]any{"dify": map[string]any{"event": "message"}})
	AddAttributes(ctx, map[string]any{"dify": map[string]any{"task_id": "t1"}})

	got := GetAttributes(ctx)["dify"].(map[string]any)
	assert.Equal(t, "message", got["event"])
	assert.Equal(t, "t1", got["task_id"])
}

func TestContextWithSlog_InheritsParentAttributes(t *testing.T) {
	parent := ContextWithSlog(context.Background())
	AddAttribute(parent, "user_id", "user-1")

	child := ContextWithSlog(context.WithoutCancel(parent))
	AddAttribute(child, "conversation_id", "conv-1")

	assert.Equal(t, "user-1", GetAttribute[string](child, "user_id"))
	assert.Empty(t, GetAttribute[string](parent, "conversation_id"))
}

func TestAddAttribute_WithoutSlogContextIsNoop(t *testing.T) {
	ctx := context.Background()
	AddAttribute(ctx, "k", "v")
	assert.Nil(t, GetAttributes(ctx))
	assert.Empty(t, GetAttribute[string](ctx, "k"))
}

func TestTextHandler_Layout(t *testing.T) {
	var buf bytes.Buffer
	h := NewConnectTextHandler(&buf, WithColor(false), WithLevel(slog.LevelDebug))

	record := slog.NewRecord(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), slog.LevelWarn, "not found", 0)
	record.AddAttrs(
		slog.String("procedure", "/procure.v1.AgentTaskService/GetAgentTask"),
		slog.String("code", "not_found"),
		slog.String("zeta", "last"),
		slog.String("alpha", "first"),
	)
	require.NoError(t, h.Handle(context.Background(), record))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `2026-01-02T03:04:05Z WARN /procure.v1.AgentTaskService/GetAgentTask "[not_found] not found"`, lines[0])
	assert.Equal(t, "    alpha=first", lines[1])
	assert.Equal(t, "    zeta=last", lines[2])
}

func TestTextHandler_Enabled(t *testing.T) {
	h := NewHTTPTextHandler(&bytes.Buffer{}, WithColor(false))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}
