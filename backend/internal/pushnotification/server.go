package pushnotification

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/config"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushsubscription"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/jsoncodec"
)

const (
	ServiceName = "procure.v1.PushNotificationService"

	GetVapidPublicKeyProcedure          = "/" + ServiceName + "/GetVapidPublicKey"
	RegisterPushSubscriptionProcedure   = "/" + ServiceName + "/RegisterPushSubscription"
	UnregisterPushSubscriptionProcedure = "/" + ServiceName + "/UnregisterPushSubscription"
	SendTestNotificationProcedure       = "/" + ServiceName + "/SendTestNotification"
)

type GetVapidPublicKeyRequest struct{}

type GetVapidPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type RegisterPushSubscriptionRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dhKey"`
	AuthKey   string `json:"authKey"`
}

type RegisterPushSubscriptionResponse struct {
	Subscription *pushsubscription.Subscription `json:"subscription"`
}

type UnregisterPushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

type UnregisterPushSubscriptionResponse struct{}

type SendTestNotificationRequest struct{}

type SendTestNotificationResponse struct {
	Sent int `json:"sent"`
}

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   *Sender
	now      func() time.Time
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
		now:      time.Now,
	}
}

func NewHandler(s *Server, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, jsoncodec.WithHandlerOption())
	handlers := map[string]http.Handler{
		GetVapidPublicKeyProcedure:          connect.NewUnaryHandler(GetVapidPublicKeyProcedure, s.GetVapidPublicKey, opts...),
		RegisterPushSubscriptionProcedure:   connect.NewUnaryHandler(RegisterPushSubscriptionProcedure, s.RegisterPushSubscription, opts...),
		UnregisterPushSubscriptionProcedure: connect.NewUnaryHandler(UnregisterPushSubscriptionProcedure, s.UnregisterPushSubscription, opts...),
		SendTestNotificationProcedure:       connect.NewUnaryHandler(SendTestNotificationProcedure, s.SendTestNotification, opts...),
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

func (s *Server) GetVapidPublicKey(_ context.Context, _ *connect.Request[GetVapidPublicKeyRequest]) (*connect.Response[GetVapidPublicKeyResponse], error) {
	if s.vapidEnv.PublicKey == "" {
		return nil, cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil)
	}
	return connect.NewResponse(&GetVapidPublicKeyResponse{PublicKey: s.vapidEnv.PublicKey}), nil
}

func (s *Server) RegisterPushSubscription(ctx context.Context, req *connect.Request[RegisterPushSubscriptionRequest]) (*connect.Response[RegisterPushSubscriptionResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Endpoint == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil)
	}
	if req.Msg.P256dhKey == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "p256dhKey is required", nil)
	}
	if req.Msg.AuthKey == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "authKey is required", nil)
	}

	now := s.now()
	// Re-registering an endpoint refreshes its keys in place.
	sub, err := s.repo.FindByEndpoint(ctx, userID, req.Msg.Endpoint)
	switch {
	case err == nil:
		sub.P256dhKey = req.Msg.P256dhKey
		sub.AuthKey = req.Msg.AuthKey
		sub.UpdatedAt = now
	case cerr.IsCode(err, cerr.NotFound):
		sub = &pushsubscription.Subscription{
			ID:        ulid.Make().String(),
			UserID:    userID,
			Endpoint:  req.Msg.Endpoint,
			P256dhKey: req.Msg.P256dhKey,
			AuthKey:   req.Msg.AuthKey,
			CreatedAt: now,
			UpdatedAt: now,
		}
	default:
		return nil, err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}
	return connect.NewResponse(&RegisterPushSubscriptionResponse{Subscription: sub}), nil
}

func (s *Server) UnregisterPushSubscription(ctx context.Context, req *connect.Request[UnregisterPushSubscriptionRequest]) (*connect.Response[UnregisterPushSubscriptionResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Endpoint == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "endpoint is required", nil)
	}
	sub, err := s.repo.FindByEndpoint(ctx, userID, req.Msg.Endpoint)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, userID, sub.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&UnregisterPushSubscriptionResponse{}), nil
}

func (s *Server) SendTestNotification(ctx context.Context, _ *connect.Request[SendTestNotificationRequest]) (*connect.Response[SendTestNotificationResponse], error) {
	userID, err := user.Require(ctx)
	if err != nil {
		return nil, err
	}
	sent := s.sender.SendToUser(ctx, userID, &NotificationPayload{
		Title: "采购助手",
		Body:  "推送通知已开启",
	})
	return connect.NewResponse(&SendTestNotificationResponse{Sent: sent}), nil
}
