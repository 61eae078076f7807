package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/manifold/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Supervisor is the part of the process tree the control surface needs.
type Supervisor interface {
	Tree() domain.TreeInfo
	Nodes() []domain.NodeInfo
	Node(id domain.NodeID) (domain.NodeInfo, bool)
	Live() int
	ShuttingDown() bool
	Shutdown()
}

// Server serves introspection and control endpoints for one supervisor.
type Server struct {
	Supervisor Supervisor
	Streams    *StreamManager

	gatherer prometheus.Gatherer
	version  string
	logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithMetrics serves /metrics from g.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams serves /events from sm. Feed it with sm.Hooks().
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for sup.
func NewHandler(sup Supervisor, opts ...Option) http.Handler {
	server := &Server{
		Supervisor: sup,
		version:    "dev",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec())
	})
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/tree", server.GetTree)
	r.Get("/nodes", server.ListNodes)
	r.Get("/nodes/{id}", server.GetNode)
	r.Post("/shutdown", server.PostShutdown)
	if server.Streams != nil {
		r.Get("/events", server.SubscribeEvents)
	}
	if server.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.Supervisor.ShuttingDown() {
		status = "shutting_down"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"live":   s.Supervisor.Live(),
	})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	} else if err != nil {
		s.logger.Error("openapi document unavailable", "error", err)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "manifold",
		"version":     s.version,
		"api_version": apiVersion,
	})
}

// GetTree handles the GET /tree request.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Supervisor.Tree())
}

// ListNodes handles the GET /nodes request.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Supervisor.Nodes())
}

// GetNode handles the GET /nodes/{id} request.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	var id domain.NodeID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid format for parameter id: %s", err), http.StatusBadRequest)
		return
	}
	info, ok := s.Supervisor.Node(id)
	if !ok {
		http.Error(w, fmt.Sprintf("Node %d not found", id), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// PostShutdown handles the POST /shutdown request. Shutdown is asynchronous.
func (s *Server) PostShutdown(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("shutdown requested over http", "remote", r.RemoteAddr)
	s.Supervisor.Shutdown()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting_down"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
