package chat_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	agenttaskrepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat"
	chatrepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/preference"
	preferencerepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/preference/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/streamrouter"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow"
	workflowrepo "github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow/repositoryimpl"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/storage"
)

const engineConvID = "3f0c2a8e-6a41-4a5b-9d7e-1c2b3a4d5e6f"

type fakeEngine struct {
	mu       sync.Mutex
	events   []dify.Event
	requests []dify.ChatRequest
}

func (e *fakeEngine) APIKey(contextID string) string { return "key-" + contextID }

func (e *fakeEngine) StreamChatMessage(_ context.Context, apiKey string, req dify.ChatRequest, fn func(dify.Event) error) error {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	events := e.events
	e.mu.Unlock()
	if apiKey == "" {
		return &dify.APIError{StatusCode: http.StatusUnauthorized}
	}
	for _, ev := range events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *fakeEngine) lastRequest(t *testing.T) dify.ChatRequest {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.requests)
	return e.requests[len(e.requests)-1]
}

type testEnv struct {
	ts          *httptest.Server
	engine      *fakeEngine
	repo        *chatrepo.YAMLRepository
	tasks       *agenttask.Store
	router      *streamrouter.Router
	preferences *preference.Service
	workflows   *workflow.Service
	reg         *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	bus := eventbus.New()

	tasks := agenttask.NewStore(agenttaskrepo.NewYAMLRepository(local), bus, rec)
	router := streamrouter.NewRouter(stage.NewClassifier(stage.DefaultKeywords()), tasks, bus, rec)
	prefs := preference.NewService(preferencerepo.NewYAMLRepository(local))
	flows := workflow.NewService(workflowrepo.NewYAMLRepository(local), workflow.NewMachine(rec), bus)
	repo := chatrepo.NewYAMLRepository(local)
	engine := &fakeEngine{events: defaultEvents()}

	h := chat.NewHandler(repo, engine, router, prefs, rec,
		chat.WithWorkflows(flows),
		chat.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	r := chi.NewRouter()
	r.Route("/api", h.RouteHTTP)
	ts := httptest.NewServer(user.Middleware(r))
	t.Cleanup(func() {
		ts.Close()
		router.Wait()
	})
	return &testEnv{ts: ts, engine: engine, repo: repo, tasks: tasks, router: router, preferences: prefs, workflows: flows, reg: reg}
}

func defaultEvents() []dify.Event {
	meta := dify.Meta{ConversationID: engineConvID, WorkflowRunID: "run-1"}
	return []dify.Event{
		&dify.WorkflowStarted{Meta: meta},
		&dify.NodeStarted{Meta: meta, Node: dify.Node{ID: "n1", Type: "llm", Title: "需求分析"}},
		&dify.Message{Meta: meta, Delta: "需求已确认，"},
		&dify.Message{Meta: meta, Delta: "正在初步整理。"},
		&dify.MessageEnd{Meta: meta},
		&dify.WorkflowFinished{Meta: meta, Outcome: dify.Outcome{Status: "succeeded"}},
	}
}

func (e *testEnv) post(t *testing.T, userID string, body any) (*http.Response, []map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, e.ts.URL+"/api/chat/stream", bytes.NewReader(b))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(user.Header, userID)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var messages []map[string]any
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		return resp, nil
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
		messages = append(messages, m)
	}
	require.NoError(t, scanner.Err())
	return resp, messages
}

func types(messages []map[string]any) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m["type"].(string))
	}
	return out
}

func TestStream_NewConversation(t *testing.T) {
	env := newTestEnv(t)

	resp, messages := env.post(t, "user-1", chat.StreamRequest{Query: "采购一批服务器", ContextID: "standard_sourcing"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{
		chat.TypeTask,
		chat.TypeNode, chat.TypeTask,
		chat.TypeChunk, chat.TypeTask,
		chat.TypeChunk, chat.TypeTask,
		chat.TypeTask,
		chat.TypeTask,
		chat.TypeEnd,
	}, types(messages))

	assert.Equal(t, "需求分析", messages[1]["nodeName"])
	assert.Equal(t, "需求已确认，", messages[3]["content"])

	first := messages[0]["payload"].(map[string]any)
	assert.Equal(t, "receive", first["stageKey"])
	assert.Equal(t, "standard", first["mode"])
	assert.Equal(t, "workflow_started", first["event"])

	convID := messages[len(messages)-1]["conversationId"].(string)
	require.NotEmpty(t, convID)
	assert.False(t, chat.IsEngineID(convID))
	assert.Equal(t, convID, first["conversationId"])

	conv, err := env.repo.GetConversation(t.Context(), convID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", conv.UserID)
	assert.Equal(t, stage.ModeStandard, conv.Mode)
	assert.Equal(t, "sourcing", conv.Tab)
	assert.Equal(t, "采购一批服务器...", conv.Name)
	assert.Equal(t, engineConvID, conv.EngineConversationID)

	msgs, err := env.repo.ListMessages(t.Context(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "采购一批服务器", msgs[0].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "需求已确认，正在初步整理。", msgs[1].Content)

	req := env.engine.lastRequest(t)
	assert.Empty(t, req.ConversationID)
	assert.Equal(t, "user-1", req.User)

	env.router.Wait()
	task, err := env.tasks.Get(t.Context(), convID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, stage.KeyResult, task.CurrentStageKey)
	assert.Equal(t, "run-1", task.WorkflowRunID)

	assert.InDelta(t, 1, counterValue(t, env.reg, "procure_chat_turns_total"), 0)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestStream_ContinuesByEngineID(t *testing.T) {
	env := newTestEnv(t)

	_, messages := env.post(t, "user-1", chat.StreamRequest{Query: "采购一批服务器", ContextID: "casual_chat"})
	convID := messages[len(messages)-1]["conversationId"].(string)

	_, messages = env.post(t, "user-1", chat.StreamRequest{Query: "继续", ConversationID: engineConvID, ContextID: "casual_chat"})
	require.NotEmpty(t, messages)
	assert.Equal(t, chat.TypeEnd, messages[len(messages)-1]["type"])
	assert.Equal(t, convID, messages[len(messages)-1]["conversationId"])
	assert.Equal(t, engineConvID, env.engine.lastRequest(t).ConversationID)

	msgs, err := env.repo.ListMessages(t.Context(), convID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestStream_OtherUsersConversationIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, messages := env.post(t, "user-1", chat.StreamRequest{Query: "采购", ContextID: "casual_chat"})
	convID := messages[len(messages)-1]["conversationId"].(string)

	_, messages = env.post(t, "user-2", chat.StreamRequest{Query: "继续", ConversationID: convID, ContextID: "casual_chat"})
	require.Len(t, messages, 1)
	assert.Equal(t, chat.TypeError, messages[0]["type"])
	assert.Equal(t, "conversation not found", messages[0]["error"])
}

func TestStream_EngineErrorEndsTheStream(t *testing.T) {
	env := newTestEnv(t)
	env.engine.events = []dify.Event{
		&dify.WorkflowStarted{},
		&dify.ErrorEvent{Status: 400, Code: "invalid_param", Message: "query too long"},
		&dify.MessageEnd{},
	}

	_, messages := env.post(t, "user-1", chat.StreamRequest{Query: "采购", ContextID: "casual_chat"})
	assert.Equal(t, []string{chat.TypeTask, chat.TypeError}, types(messages))
	assert.Equal(t, "query too long", messages[1]["error"])
}

func TestStream_FeedsWorkflowSession(t *testing.T) {
	env := newTestEnv(t)

	_, messages := env.post(t, "user-1", chat.StreamRequest{
		Query:             "采购一批服务器",
		ContextID:         "standard_sourcing",
		WorkflowSessionID: "session-1",
	})
	require.GreaterOrEqual(t, len(messages), 2)
	wf := messages[len(messages)-2]
	assert.Equal(t, chat.TypeWorkflow, wf["type"])
	assert.Equal(t, true, wf["changed"])
	assert.Equal(t, string(workflow.StageRequirementList), wf["state"].(map[string]any)["currentStage"])

	st, err := env.workflows.Load(t.Context(), "user-1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StageRequirementList, st.CurrentStage)
}

func TestStream_EnhancesQueryWithPreferences(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.preferences.Update(t.Context(), "user-1", map[string]any{
		"procurementPreferences": map[string]any{"deliveryLocation": "上海"},
	})
	require.NoError(t, err)

	_, messages := env.post(t, "user-1", chat.StreamRequest{Query: "采购笔记本", ContextID: "casual_chat"})
	convID := messages[len(messages)-1]["conversationId"].(string)

	req := env.engine.lastRequest(t)
	assert.Contains(t, req.Query, "收货地址 - 上海")
	assert.Contains(t, req.Inputs, "user_context")

	msgs, err := env.repo.ListMessages(t.Context(), convID)
	require.NoError(t, err)
	assert.Equal(t, "采购笔记本", msgs[0].Content)
	assert.Equal(t, req.Query, msgs[0].EnhancedQuery)
	assert.Equal(t, int64(2), msgs[0].PreferenceVersion)
}

func TestStream_RejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "", chat.StreamRequest{Query: "采购", ContextID: "casual_chat"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.post(t, "user-1", chat.StreamRequest{Query: "  ", ContextID: "casual_chat"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.post(t, "user-1", chat.StreamRequest{Query: "采购"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
