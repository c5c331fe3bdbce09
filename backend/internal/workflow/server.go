package workflow

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/jsoncodec"
)

const (
	ServiceName = "procure.v1.WorkflowService"

	ListStagesProcedure      = "/" + ServiceName + "/ListStages"
	GetStateProcedure        = "/" + ServiceName + "/GetState"
	AdvanceProcedure         = "/" + ServiceName + "/Advance"
	BackProcedure            = "/" + ServiceName + "/Back"
	JumpProcedure            = "/" + ServiceName + "/Jump"
	ResetProcedure           = "/" + ServiceName + "/Reset"
	CheckTransitionProcedure = "/" + ServiceName + "/CheckTransition"
	ProcessHistoryProcedure  = "/" + ServiceName + "/ProcessHistory"
	ManuallyAdvanceProcedure = "/" + ServiceName + "/ManuallyAdvance"
	UpdateStageDataProcedure = "/" + ServiceName + "/UpdateStageData"
)

type ListStagesRequest struct{}

type ListStagesResponse struct {
	Stages []StageConfig `json:"stages"`
}

// SessionRequest addresses one session's workflow. Target, Data, Text and
// Messages are read by the operations that need them.
type SessionRequest struct {
	SessionID string    `json:"sessionId"`
	Target    Stage     `json:"target,omitempty"`
	Data      any       `json:"data,omitempty"`
	Text      string    `json:"text,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

type StateResponse struct {
	State State `json:"state"`
	// Changed reports whether the call moved the workflow.
	Changed bool `json:"changed"`
}

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

// NewHandler mounts the service under its procedure prefix.
func NewHandler(s *Server, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, jsoncodec.WithHandlerOption())
	handlers := map[string]http.Handler{
		ListStagesProcedure:      connect.NewUnaryHandler(ListStagesProcedure, s.ListStages, opts...),
		GetStateProcedure:        connect.NewUnaryHandler(GetStateProcedure, s.GetState, opts...),
		AdvanceProcedure:         connect.NewUnaryHandler(AdvanceProcedure, s.Advance, opts...),
		BackProcedure:            connect.NewUnaryHandler(BackProcedure, s.Back, opts...),
		JumpProcedure:            connect.NewUnaryHandler(JumpProcedure, s.Jump, opts...),
		ResetProcedure:           connect.NewUnaryHandler(ResetProcedure, s.Reset, opts...),
		CheckTransitionProcedure: connect.NewUnaryHandler(CheckTransitionProcedure, s.CheckTransition, opts...),
		ProcessHistoryProcedure:  connect.NewUnaryHandler(ProcessHistoryProcedure, s.ProcessHistory, opts...),
		ManuallyAdvanceProcedure: connect.NewUnaryHandler(ManuallyAdvanceProcedure, s.ManuallyAdvance, opts...),
		UpdateStageDataProcedure: connect.NewUnaryHandler(UpdateStageDataProcedure, s.UpdateStageData, opts...),
	}
	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) ListStages(_ context.Context, _ *connect.Request[ListStagesRequest]) (*connect.Response[ListStagesResponse], error) {
	return connect.NewResponse(&ListStagesResponse{Stages: Stages()}), nil
}

func (s *Server) GetState(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	userID, err := s.validate(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	st, err := s.service.Load(ctx, userID, req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&StateResponse{State: st}), nil
}

func (s *Server) Advance(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	return s.apply(ctx, req.Msg, func(st State) (State, bool) {
		return s.service.machine.Advance(st, req.Msg.Data)
	})
}

func (s *Server) Back(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	return s.apply(ctx, req.Msg, s.service.machine.Back)
}

func (s *Server) Jump(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	return s.apply(ctx, req.Msg, func(st State) (State, bool) {
		return s.service.machine.Jump(ctx, st, req.Msg.Target)
	})
}

func (s *Server) Reset(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	userID, err := s.validate(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	st, err := s.service.Reset(ctx, userID, req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&StateResponse{State: st, Changed: true}), nil
}

func (s *Server) CheckTransition(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	return s.apply(ctx, req.Msg, func(st State) (State, bool) {
		return s.service.machine.CheckTransition(st, req.Msg.Text)
	})
}

func (s *Server) ProcessHistory(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	return s.apply(ctx, req.Msg, func(st State) (State, bool) {
		return s.service.machine.ProcessHistory(st, req.Msg.Messages)
	})
}

func (s *Server) ManuallyAdvance(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	return s.apply(ctx, req.Msg, func(st State) (State, bool) {
		return s.service.machine.ManuallyAdvance(ctx, st, req.Msg.Target, req.Msg.Data)
	})
}

func (s *Server) UpdateStageData(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[StateResponse], error) {
	return s.apply(ctx, req.Msg, func(st State) (State, bool) {
		return s.service.machine.UpdateStageData(st, req.Msg.Data), true
	})
}

func (s *Server) apply(ctx context.Context, msg *SessionRequest, fn func(State) (State, bool)) (*connect.Response[StateResponse], error) {
	userID, err := s.validate(ctx, msg)
	if err != nil {
		return nil, err
	}
	st, changed, err := s.service.Apply(ctx, userID, msg.SessionID, fn)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&StateResponse{State: st, Changed: changed}), nil
}

func (s *Server) validate(ctx context.Context, msg *SessionRequest) (string, error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return "", err
	}
	if msg.SessionID == "" {
		return "", cerr.NewError(cerr.InvalidArgument, "sessionId is required", nil)
	}
	return userID, nil
}
