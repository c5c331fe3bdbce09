package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/chat"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/config"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/event"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/preference"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushnotification"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/user"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/workflow"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/clog"
)

type Server struct {
	server                 *http.Server
	env                    *config.BaseEnv
	gatherer               prometheus.Gatherer
	agentTaskServer        *agenttask.Server
	workflowServer         *workflow.Server
	preferenceServer       *preference.Server
	pushNotificationServer *pushnotification.Server
	eventServer            *event.Server
	chatHandler            *chat.Handler
}

func NewServer(
	env *config.BaseEnv,
	gatherer prometheus.Gatherer,
	agentTaskServer *agenttask.Server,
	workflowServer *workflow.Server,
	preferenceServer *preference.Server,
	pushNotificationServer *pushnotification.Server,
	eventServer *event.Server,
	chatHandler *chat.Handler,
) *Server {
	return &Server{
		env:                    env,
		gatherer:               gatherer,
		agentTaskServer:        agentTaskServer,
		workflowServer:         workflowServer,
		preferenceServer:       preferenceServer,
		pushNotificationServer: pushNotificationServer,
		eventServer:            eventServer,
		chatHandler:            chatHandler,
	}
}

// Handler builds the full HTTP handler: REST routes under /api, connect
// services, health checks and metrics, behind CORS and the API key check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(clog.SlogChiMiddleware())
		// The chat stream writes its own body.
		s.chatHandler.RouteHTTP(r)
		r.Group(func(r chi.Router) {
			r.Use(cerr.NewConvertConnectErrorChiMiddleware())
			s.agentTaskServer.RouteHTTP(r)
		})
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.WriteHTTPError(r.Context(), w, cerr.NewError(cerr.NotFound, "not found", nil))
		})
	})

	mux := http.NewServeMux()

	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(
		agenttask.ServiceName,
		workflow.ServiceName,
		preference.ServiceName,
		pushnotification.ServiceName,
		event.ServiceName,
	)))

	handlerOpts := connect.WithInterceptors(s.interceptors()...)

	mux.Handle(agenttask.NewHandler(s.agentTaskServer, handlerOpts))
	mux.Handle(workflow.NewHandler(s.workflowServer, handlerOpts))
	mux.Handle(preference.NewHandler(s.preferenceServer, handlerOpts))
	mux.Handle(pushnotification.NewHandler(s.pushNotificationServer, handlerOpts))
	mux.Handle(event.NewHandler(s.eventServer, handlerOpts))

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(user.Middleware(mux)))
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of
// every request, so cancelling it also ends open streams.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(s.Handler(), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for health endpoints.
		if r.URL.Path == "/health" || r.URL.Path == "/"+grpchealth.HealthV1ServiceName+"/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
