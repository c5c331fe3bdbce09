package preference

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/jsoncodec"
)

const (
	ServiceName = "procure.v1.PreferenceService"

	GetPreferenceProcedure    = "/" + ServiceName + "/GetPreference"
	UpdatePreferenceProcedure = "/" + ServiceName + "/UpdatePreference"
	ResetPreferenceProcedure  = "/" + ServiceName + "/ResetPreference"
	SubmitFeedbackProcedure   = "/" + ServiceName + "/SubmitFeedback"
)

type GetPreferenceRequest struct{}

type UpdatePreferenceRequest struct {
	// Patch is a partial preference document, deep-merged into the stored one.
	Patch map[string]any `json:"patch"`
}

type ResetPreferenceRequest struct{}

type PreferenceResponse struct {
	Preference *Preference `json:"preference"`
}

type SubmitFeedbackRequest struct {
	Feedback Feedback `json:"feedback"`
}

type SubmitFeedbackResponse struct {
	Preference  *Preference `json:"preference"`
	Adjustments []string    `json:"adjustments"`
	Message     string      `json:"message"`
}

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

func NewHandler(s *Server, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, jsoncodec.WithHandlerOption())
	handlers := map[string]http.Handler{
		GetPreferenceProcedure:    connect.NewUnaryHandler(GetPreferenceProcedure, s.GetPreference, opts...),
		UpdatePreferenceProcedure: connect.NewUnaryHandler(UpdatePreferenceProcedure, s.UpdatePreference, opts...),
		ResetPreferenceProcedure:  connect.NewUnaryHandler(ResetPreferenceProcedure, s.ResetPreference, opts...),
		SubmitFeedbackProcedure:   connect.NewUnaryHandler(SubmitFeedbackProcedure, s.SubmitFeedback, opts...),
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

func (s *Server) GetPreference(ctx context.Context, _ *connect.Request[GetPreferenceRequest]) (*connect.Response[PreferenceResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.service.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&PreferenceResponse{Preference: p}), nil
}

func (s *Server) UpdatePreference(ctx context.Context, req *connect.Request[UpdatePreferenceRequest]) (*connect.Response[PreferenceResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.service.Update(ctx, userID, req.Msg.Patch)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&PreferenceResponse{Preference: p}), nil
}

func (s *Server) ResetPreference(ctx context.Context, _ *connect.Request[ResetPreferenceRequest]) (*connect.Response[PreferenceResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.service.Reset(ctx, userID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&PreferenceResponse{Preference: p}), nil
}

func (s *Server) SubmitFeedback(ctx context.Context, req *connect.Request[SubmitFeedbackRequest]) (*connect.Response[SubmitFeedbackResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	p, adjustments, err := s.service.SubmitFeedback(ctx, userID, req.Msg.Feedback)
	if err != nil {
		return nil, err
	}
	msg := "感谢您的反馈，我们会持续改进"
	if req.Msg.Feedback.Satisfied() {
		msg = "感谢您的肯定！"
	}
	if adjustments == nil {
		adjustments = []string{}
	}
	return connect.NewResponse(&SubmitFeedbackResponse{Preference: p, Adjustments: adjustments, Message: msg}), nil
}
