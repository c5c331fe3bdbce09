package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/preference"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/streamrouter"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/clog"
)

// Engine streams one chat turn from the workflow engine.
type Engine interface {
	APIKey(contextID string) string
	StreamChatMessage(ctx context.Context, apiKey string, req dify.ChatRequest, fn func(dify.Event) error) error
}

type StreamRequest struct {
	Query string `json:"query"`
	// ConversationID is either a local id or an engine conversation id.
	ConversationID string `json:"conversationId,omitempty"`
	ContextID      string `json:"contextId"`
	// WorkflowSessionID, when set, feeds the final answer to that client
	// workflow session.
	WorkflowSessionID string `json:"workflowSessionId,omitempty"`
}

// Chat turn outcomes reported to metrics.
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

type Handler struct {
	repo        Repository
	engine      Engine
	router      *streamrouter.Router
	preferences *preference.Service
	workflows   *workflow.Service
	metrics     *metrics.Recorder
	now         func() time.Time
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithWorkflows enables feeding answers into client workflow sessions.
func WithWorkflows(s *workflow.Service) Option {
	return func(h *Handler) { h.workflows = s }
}

func NewHandler(repo Repository, engine Engine, router *streamrouter.Router, preferences *preference.Service, rec *metrics.Recorder, opts ...Option) *Handler {
	h := &Handler{
		repo:        repo,
		engine:      engine,
		router:      router,
		preferences: preferences,
		metrics:     rec,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RouteHTTP registers POST /chat/stream. The route writes its own body and
// must not be mounted behind the cerr JSON middleware.
func (h *Handler) RouteHTTP(r chi.Router) {
	r.Post("/chat/stream", h.stream)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := user.Require(ctx)
	if err != nil {
		cerr.WriteHTTPError(ctx, w, err)
		return
	}
	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.WriteHTTPError(ctx, w, cerr.NewError(cerr.InvalidArgument, "invalid request body", err))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" || req.ContextID == "" {
		cerr.WriteHTTPError(ctx, w, cerr.NewError(cerr.InvalidArgument, "query and contextId are required", nil))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		cerr.WriteHTTPError(ctx, w, cerr.NewError(cerr.Internal, "streaming not supported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := &eventWriter{w: w, flusher: flusher}
	mode, outcome := h.turn(ctx, userID, req, out)
	h.metrics.ObserveChatTurn(mode, outcome)
}

func (h *Handler) turn(ctx context.Context, userID string, req StreamRequest, out *eventWriter) (mode string, outcome string) {
	mode = string(stage.ModeFromContextID(req.ContextID))
	pref, err := h.preferences.Get(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load preference, using defaults", "error", err)
		pref = preference.Default(userID)
	}

	conv, err := h.conversation(ctx, userID, req)
	if err != nil {
		return mode, h.fail(ctx, out, err)
	}
	mode = string(conv.Mode)
	clog.AddConversation(ctx, conv.ID, userID, mode)

	query := preference.EnhanceQuery(req.Query, pref)
	inputs := preference.BuildInputs(pref)
	if sc := preference.BuildSystemContext(pref); sc != "" {
		inputs["user_context"] = sc
	}

	msg := NewMessage(conv, RoleUser, req.Query, h.now())
	msg.PreferenceVersion = pref.Version
	if query != req.Query {
		msg.EnhancedQuery = query
	}
	if err := h.repo.AppendMessage(ctx, msg); err != nil {
		return mode, h.fail(ctx, out, err)
	}

	turn := h.router.NewTurn(ctx, streamrouter.TurnParams{
		ConversationID: conv.ID,
		UserID:         userID,
		ContextID:      req.ContextID,
		Mode:           conv.Mode,
	})
	defer turn.Close()

	var engineConvID string
	err = h.engine.StreamChatMessage(ctx, h.engine.APIKey(req.ContextID), dify.ChatRequest{
		Inputs:         inputs,
		Query:          query,
		ConversationID: conv.EngineConversationID,
		User:           userID,
	}, func(ev dify.Event) error {
		if id := ev.EventMeta().ConversationID; id != "" {
			engineConvID = id
		}
		switch e := ev.(type) {
		case *dify.ErrorEvent:
			return e
		case *dify.Message:
			if e.Delta != "" {
				if err := out.chunk(e.Delta); err != nil {
					return err
				}
			}
		case *dify.NodeStarted:
			name := e.Node.Title
			if name == "" {
				name = e.Node.Type
			}
			if err := out.node(name); err != nil {
				return err
			}
		}
		return out.task(turn.Handle(ev))
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "chat turn aborted by client")
			return mode, outcomeCanceled
		}
		return mode, h.fail(ctx, out, err)
	}

	if engineConvID != "" && conv.EngineConversationID == "" {
		conv.EngineConversationID = engineConvID
		conv.UpdatedAt = h.now()
		if err := h.repo.UpdateConversation(ctx, conv); err != nil {
			slog.ErrorContext(ctx, "failed to save engine conversation id", "error", err)
		}
	}
	answer := turn.Accumulated()
	if err := h.repo.AppendMessage(ctx, NewMessage(conv, RoleAssistant, answer, h.now())); err != nil {
		slog.ErrorContext(ctx, "failed to save assistant message", "error", err)
	}

	if h.workflows != nil && req.WorkflowSessionID != "" {
		st, changed, err := h.workflows.Feed(ctx, userID, req.WorkflowSessionID, answer)
		if err != nil {
			slog.ErrorContext(ctx, "failed to feed workflow session", "session_id", req.WorkflowSessionID, "error", err)
		} else if err := out.send(workflowMessage{Type: TypeWorkflow, State: st, Changed: changed}); err != nil {
			return mode, outcomeCanceled
		}
	}

	if err := out.send(endMessage{Type: TypeEnd, ConversationID: conv.ID}); err != nil {
		return mode, outcomeCanceled
	}
	return mode, outcomeOK
}

// conversation resolves the request's conversation, creating one when the
// request names none. Conversations of other users are reported as missing.
func (h *Handler) conversation(ctx context.Context, userID string, req StreamRequest) (*Conversation, error) {
	if req.ConversationID == "" {
		conv := NewConversation(userID, req.ContextID, req.Query, h.now())
		if err := h.repo.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
		return conv, nil
	}

	var (
		conv *Conversation
		err  error
	)
	if IsEngineID(req.ConversationID) {
		conv, err = h.repo.FindByEngineID(ctx, req.ConversationID)
	} else {
		conv, err = h.repo.GetConversation(ctx, req.ConversationID)
	}
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, cerr.NewError(cerr.NotFound, "conversation not found", nil)
	}
	return conv, nil
}

// fail logs err and reports it on the stream.
func (h *Handler) fail(ctx context.Context, out *eventWriter, err error) string {
	slog.ErrorContext(ctx, "chat turn failed", "error", err)
	if sendErr := out.fail(clientMessage(err)); sendErr != nil {
		return outcomeCanceled
	}
	return outcomeError
}

func clientMessage(err error) string {
	var engineErr *dify.ErrorEvent
	if errors.As(err, &engineErr) && engineErr.Message != "" {
		return engineErr.Message
	}
	var ce *cerr.Error
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return "workflow engine request failed"
}
