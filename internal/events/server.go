// Package events hosts the realtime notification service that sits behind
// the gateway's /events streaming route: the event bus, the WebSocket
// subscription endpoint, and the publish ingress backends call to emit a
// notification after a mutation.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskgate/internal/eventbus"
	"taskgate/internal/platform/httpjson"
	"taskgate/internal/platform/middleware"
	"taskgate/internal/proxy"
	"taskgate/internal/subscriptions"
	dErrors "taskgate/pkg/domainerrors"
)

// Actions a backend may report instead of a pre-composed message.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// publishRequest is the ingress body for emitting a notification. Message
// takes precedence; when it is empty the message is composed from the
// action, the task, and the acting user's identity headers.
type publishRequest struct {
	Message string            `json:"message"`
	TeamID  string            `json:"teamId"`
	Action  string            `json:"action"`
	Task    *eventbus.TaskRef `json:"task"`
}

// Server is the events service HTTP surface. Requests arrive through the
// gateway, which has already verified the token and injected the trusted
// identity headers.
type Server struct {
	router  chi.Router
	bus     *eventbus.Bus
	manager *subscriptions.Manager
	logger  *slog.Logger
}

// NewServer wires the bus, the subscription manager, and the routes.
func NewServer(bus *eventbus.Bus, logger *slog.Logger, reg prometheus.Gatherer) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		bus:     bus,
		manager: subscriptions.NewManager(bus, logger),
		logger:  logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recovery(logger))
	s.router.Use(middleware.Logger(logger))

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.router.Method(http.MethodGet, "/events", s.manager)
	s.router.Post("/events/publish", s.handlePublish)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close tears down every open subscription stream. Hijacked WebSocket
// connections are invisible to http.Server.Shutdown, so the caller must
// invoke this before draining the server.
func (s *Server) Close() {
	s.manager.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "events",
	})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	identity, ok := proxy.ParseTrustedHeaders(r.Header)
	if !ok {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing identity"))
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.TeamID == "" {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "teamId is required"))
		return
	}
	if identity.TeamID != "" && req.TeamID != identity.TeamID {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeForbidden, "not authorized to publish to this team"))
		return
	}

	message := req.Message
	if message == "" {
		composed, err := composeMessage(identity, req)
		if err != nil {
			httpjson.WriteError(w, err)
			return
		}
		message = composed
	}

	n := eventbus.Notification{
		ID:      uuid.NewString(),
		Message: message,
		TeamID:  req.TeamID,
		Task:    req.Task,
	}
	// A deleted task no longer resolves, so subscribers get task: null.
	if req.Action == ActionDeleted {
		n.Task = nil
	}

	s.bus.Publish(n)
	s.logger.InfoContext(r.Context(), "notification published",
		"notification_id", n.ID,
		"team_id", n.TeamID,
		"user_id", identity.UserID)

	httpjson.Write(w, http.StatusCreated, n)
}

func composeMessage(identity proxy.TrustedHeaders, req publishRequest) (string, error) {
	if req.Task == nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "message or task is required")
	}
	actor := identity.Email
	if actor == "" {
		actor = identity.UserID
	}
	switch req.Action {
	case ActionCreated:
		return fmt.Sprintf("%s created a new task: %s", actor, req.Task.Title), nil
	case ActionUpdated:
		return fmt.Sprintf("%s updated task %q to %s", actor, req.Task.Title, req.Task.Status), nil
	case ActionDeleted:
		return fmt.Sprintf("%s deleted task: %s", actor, req.Task.Title), nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown action")
	}
}
