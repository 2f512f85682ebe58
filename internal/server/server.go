package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dukerupert/huddle/internal/connectivity"
	"github.com/dukerupert/huddle/internal/controller"
	"github.com/dukerupert/huddle/internal/handler"
	"github.com/dukerupert/huddle/internal/loader"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/middleware"
	"github.com/dukerupert/huddle/internal/proposal"
	"github.com/dukerupert/huddle/internal/store"
	ws "github.com/dukerupert/huddle/internal/websocket"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Monitor  *connectivity.Monitor
	Loader   *loader.Loader
	Mirror   *store.Mirror
	Sessions *controller.Sessions
	Service  *proposal.Service
	Hub      *ws.Hub
	Metrics  *metrics.Metrics
	// FallbackToken is used for requests without an Authorization header.
	FallbackToken string
	// OriginPatterns are extra origins allowed to open the websocket.
	OriginPatterns []string
}

type Server struct {
	hub           *ws.Hub
	metrics       *metrics.Metrics
	statusH       *handler.StatusHandler
	groupH        *handler.GroupHandler
	activityH     *handler.ActivityHandler
	proposalH     *handler.ProposalHandler
	limiter       *middleware.ActionLimiter
	fallbackToken string
	origins       []string
	logger        *slog.Logger
}

func New(d Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	// Connectivity changes reach every connected client.
	d.Monitor.OnChange(func(up bool) {
		d.Hub.Publish(ws.EntityConnectivity, ws.ActionChanged, "", map[string]bool{"connected": up})
	})

	return &Server{
		hub:           d.Hub,
		metrics:       d.Metrics,
		statusH:       handler.NewStatusHandler(d.Monitor, d.Mirror, logger.With("component", "status")),
		groupH:        handler.NewGroupHandler(d.Sessions, d.Loader, d.Mirror, logger.With("component", "groups")),
		activityH:     handler.NewActivityHandler(d.Sessions, d.Service, d.Hub, logger.With("component", "activities")),
		proposalH:     handler.NewProposalHandler(d.Sessions, d.Service, d.Hub, logger.With("component", "proposals")),
		limiter:       middleware.NewActionLimiter(30, time.Minute),
		fallbackToken: d.FallbackToken,
		origins:       d.OriginPatterns,
		logger:        logger,
	}
}

// ActionLimiter returns the write limiter for its sweep loop.
func (s *Server) ActionLimiter() *middleware.ActionLimiter {
	return s.limiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.origins))

	// API routes need an identity
	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	outerMux.Handle("/api/", middleware.RequireIdentity(s.fallbackToken)(apiMux))

	var h http.Handler = outerMux
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	h = chimw.Recoverer(h)
	h = chimw.RequestID(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) throttled(h http.HandlerFunc) http.Handler {
	return middleware.ThrottleActions(s.limiter)(h)
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.statusH.Status)

	// Groups
	mux.HandleFunc("GET /api/groups", s.groupH.List)
	mux.HandleFunc("GET /api/groups/{id}/members", s.groupH.Members)
	mux.HandleFunc("GET /api/groups/{id}/image", s.groupH.Image)

	// Activities
	mux.HandleFunc("GET /api/activities", s.activityH.List)
	mux.HandleFunc("GET /api/calendar", s.activityH.Calendar)
	mux.Handle("POST /api/activities", s.throttled(s.activityH.Create))

	// Proposals
	mux.HandleFunc("GET /api/proposals/{id}/submissions", s.proposalH.Submissions)
	mux.Handle("POST /api/proposals/{id}/submissions", s.throttled(s.proposalH.Submit))
	mux.Handle("POST /api/proposals/{id}/resolve", s.throttled(s.proposalH.Resolve))
}
