package agenttask

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/jsoncodec"
)

const (
	ServiceName = "procure.v1.AgentTaskService"

	GetAgentTaskProcedure   = "/" + ServiceName + "/GetAgentTask"
	ListAgentTasksProcedure = "/" + ServiceName + "/ListAgentTasks"
	WatchAgentTaskProcedure = "/" + ServiceName + "/WatchAgentTask"
)

type GetAgentTaskRequest struct {
	ConversationID string `json:"conversationId"`
}

type GetAgentTaskResponse struct {
	// Task is null until the conversation's first engine event lands.
	Task *AgentTask `json:"task"`
}

type ListAgentTasksRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type ListAgentTasksResponse struct {
	Tasks []*AgentTask `json:"tasks"`
	Total int          `json:"total"`
}

type WatchAgentTaskRequest struct {
	ConversationID string `json:"conversationId"`
}

// WatchAgentTaskResponse carries either a live stage event or a persisted
// state snapshot.
type WatchAgentTaskResponse struct {
	Event *TaskEvent `json:"event,omitempty"`
	Task  *AgentTask `json:"task,omitempty"`
}

type Server struct {
	store    *Store
	eventBus *eventbus.Bus
}

func NewServer(store *Store, eventBus *eventbus.Bus) *Server {
	return &Server{store: store, eventBus: eventBus}
}

// NewHandler mounts the service under its procedure prefix.
func NewHandler(s *Server, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, jsoncodec.WithHandlerOption())
	get := connect.NewUnaryHandler(GetAgentTaskProcedure, s.GetAgentTask, opts...)
	list := connect.NewUnaryHandler(ListAgentTasksProcedure, s.ListAgentTasks, opts...)
	watch := connect.NewServerStreamHandler(WatchAgentTaskProcedure, s.WatchAgentTask, opts...)
	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetAgentTaskProcedure:
			get.ServeHTTP(w, r)
		case ListAgentTasksProcedure:
			list.ServeHTTP(w, r)
		case WatchAgentTaskProcedure:
			watch.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *Server) GetAgentTask(ctx context.Context, req *connect.Request[GetAgentTaskRequest]) (*connect.Response[GetAgentTaskResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.ConversationID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "conversationId is required", nil)
	}
	task, err := s.store.Get(ctx, req.Msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GetAgentTaskResponse{Task: task}), nil
}

func (s *Server) ListAgentTasks(ctx context.Context, req *connect.Request[ListAgentTasksRequest]) (*connect.Response[ListAgentTasksResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Limit < 0 || req.Msg.Offset < 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "limit and offset must not be negative", nil)
	}
	tasks, total, err := s.store.List(ctx, userID, req.Msg.Limit, req.Msg.Offset)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*AgentTask{}
	}
	return connect.NewResponse(&ListAgentTasksResponse{Tasks: tasks, Total: total}), nil
}

// WatchAgentTask sends the current state, then every live stage event and
// persisted state of the conversation until the client goes away.
func (s *Server) WatchAgentTask(ctx context.Context, req *connect.Request[WatchAgentTaskRequest], stream *connect.ServerStream[WatchAgentTaskResponse]) error {
	userID, err := user.Require(ctx)
	if err != nil {
		return err
	}
	conversationID := req.Msg.ConversationID
	if conversationID == "" {
		return cerr.NewError(cerr.InvalidArgument, "conversationId is required", nil)
	}

	// Subscribe before reading the snapshot so no update falls in between.
	subID, ch := s.eventBus.Subscribe(64)
	defer s.eventBus.Unsubscribe(subID)

	task, err := s.store.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if task != nil {
		if err := stream.Send(&WatchAgentTaskResponse{Task: task}); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if event.ConversationID != conversationID || event.UserID != userID {
				continue
			}
			var msg WatchAgentTaskResponse
			switch payload := event.Payload.(type) {
			case TaskEvent:
				msg.Event = &payload
			case *AgentTask:
				msg.Task = payload
			default:
				continue
			}
			if err := stream.Send(&msg); err != nil {
				return err
			}
		}
	}
}
