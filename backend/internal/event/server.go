package event

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/eventbus"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/jsoncodec"
)

const (
	ServiceName = "procure.v1.EventService"

	SubscribeEventsProcedure = "/" + ServiceName + "/SubscribeEvents"
)

type SubscribeEventsRequest struct {
	// EventTypes limits the stream to these types. Empty means all.
	EventTypes []eventbus.Type `json:"eventTypes,omitempty"`
	// ConversationID limits the stream to one conversation or workflow session.
	ConversationID string `json:"conversationId,omitempty"`
}

type Server struct {
	eventBus *eventbus.Bus
}

func NewServer(eventBus *eventbus.Bus) *Server {
	return &Server{eventBus: eventBus}
}

func NewHandler(s *Server, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, jsoncodec.WithHandlerOption())
	return SubscribeEventsProcedure, connect.NewServerStreamHandler(SubscribeEventsProcedure, s.SubscribeEvents, opts...)
}

// SubscribeEvents streams the calling user's bus events until the client
// goes away. Events of other users are never sent.
func (s *Server) SubscribeEvents(ctx context.Context, req *connect.Request[SubscribeEventsRequest], stream *connect.ServerStream[eventbus.Event]) error {
	userID, err := user.Require(ctx)
	if err != nil {
		return err
	}

	subID, ch := s.eventBus.Subscribe(64)
	defer s.eventBus.Unsubscribe(subID)

	typeFilter := make(map[eventbus.Type]struct{}, len(req.Msg.EventTypes))
	for _, et := range req.Msg.EventTypes {
		typeFilter[et] = struct{}{}
	}
	conversationID := req.Msg.ConversationID

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if event.UserID != userID {
				continue
			}
			if len(typeFilter) > 0 {
				if _, match := typeFilter[event.Type]; !match {
					continue
				}
			}
			if conversationID != "" && event.ConversationID != conversationID {
				continue
			}
			if err := stream.Send(event); err != nil {
				return err
			}
		}
	}
}
