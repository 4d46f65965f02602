// Package server exposes an agent engine over HTTP.
//
// Routes:
//
//	POST /chat                    {"message": "...", "session_id": "..."}
//	POST /sessions/{id}/approve   {"granted": true}
//	POST /sessions/{id}/reset
//	GET  /sessions/{id}
//	GET  /sessions
//	GET  /graph
//	GET  /health
//	GET  /metrics
//
// Fatal run failures answer 500 with a generic body; the detail goes to
// the log and to the session's recorded errors.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/randalmurphal/agentflow/pkg/agent"
	"github.com/randalmurphal/agentflow/pkg/flowgraph"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service is the engine surface the server needs. *agent.Engine
// implements it.
type Service interface {
	Process(ctx context.Context, sessionID, input string) (agent.Result, error)
	Approve(ctx context.Context, sessionID string, granted bool) error
	Reset(ctx context.Context, sessionID string) error
	Snapshot(ctx context.Context, sessionID string) (agent.StateRecord, error)
	Sessions(ctx context.Context) ([]checkpoint.Info, error)
	Graph() flowgraph.Description
}

var _ Service = (*agent.Engine)(nil)

// Server routes HTTP requests to a Service.
type Server struct {
	svc     Service
	logger  *slog.Logger
	metrics *metrics
	gather  prometheus.Gatherer
	handler http.Handler
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	logger   *slog.Logger
	origins  []string
	registry *prometheus.Registry
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins. Default: all.
func WithCORSOrigins(origins ...string) Option {
	return func(c *serverConfig) { c.origins = origins }
}

// WithRegistry sets the Prometheus registry that holds the server's
// metrics and backs /metrics. Default: a fresh registry with the Go and
// process collectors.
func WithRegistry(r *prometheus.Registry) Option {
	return func(c *serverConfig) { c.registry = r }
}

// New creates a server for svc.
func New(svc Service, opts ...Option) *Server {
	cfg := serverConfig{
		logger:  slog.Default(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
		cfg.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s := &Server{
		svc:     svc,
		logger:  cfg.logger,
		metrics: newMetrics(cfg.registry),
		gather:  cfg.registry,
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.routes())
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Post("/chat", s.chat)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Get("/{id}", s.getSession)
		r.Post("/{id}/approve", s.approve)
		r.Post("/{id}/reset", s.reset)
	})
	r.Get("/graph", s.graph)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	return r
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.observeRequest(r.Method, route, ww.Status(), time.Since(start))
		s.logger.Debug("request handled",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", float64(time.Since(start).Microseconds())/1000,
		)
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type approveRequest struct {
	Granted *bool `json:"granted"`
}

type errorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	res, err := s.svc.Process(r.Context(), req.SessionID, req.Message)
	s.respond(w, req.SessionID, res, err)
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req approveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Granted == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `"granted" is required`, SessionID: id})
		return
	}

	if err := s.svc.Approve(r.Context(), id, *req.Granted); err != nil {
		if errors.Is(err, agent.ErrNoPendingApproval) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), SessionID: id})
			return
		}
		s.internalError(w, id, "approve failed", err)
		return
	}

	res, err := s.svc.Process(r.Context(), id, "")
	s.respond(w, id, res, err)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Reset(r.Context(), id); err != nil {
		s.internalError(w, id, "reset failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.svc.Snapshot(r.Context(), id)
	if errors.Is(err, agent.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found", SessionID: id})
		return
	}
	if err != nil {
		s.internalError(w, id, "load session failed", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.svc.Sessions(r.Context())
	if err != nil {
		s.internalError(w, "", "list sessions failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos, "count": len(infos)})
}

func (s *Server) graph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Graph())
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respond writes a run outcome. Fatal failures keep their detail out of
// the body.
func (s *Server) respond(w http.ResponseWriter, sessionID string, res agent.Result, err error) {
	if errors.Is(err, agent.ErrEmptySessionID) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.metrics.observeTurn(agent.StatusTerminated)
		s.internalError(w, sessionID, "agent run failed", err)
		return
	}
	s.metrics.observeTurn(res.Status)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) internalError(w http.ResponseWriter, sessionID, msg string, err error) {
	s.logger.Error(msg, "session_id", sessionID, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", SessionID: sessionID})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
