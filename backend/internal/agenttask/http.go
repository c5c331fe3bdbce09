package agenttask

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
)

type readResponse struct {
	Success bool       `json:"success"`
	Data    *AgentTask `json:"data"`
}

// RouteHTTP registers the REST read endpoint used by the chat client:
// GET /agent-tasks/{conversationId}. Responses and errors are rendered by
// the cerr chi middleware.
func (s *Server) RouteHTTP(r chi.Router) {
	r.Get("/agent-tasks/{conversationId}", s.getHTTP)
}

func (s *Server) getHTTP(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := user.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	task, err := s.store.Get(ctx, chi.URLParam(r, "conversationId"), userID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, readResponse{Success: true, Data: task})
}
