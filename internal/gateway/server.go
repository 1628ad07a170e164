// Package gateway exposes the agent runtime over HTTP: session management
// endpoints, the SSE chat stream, and the operational surface (health,
// metrics, entry page).
package gateway

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ownagent/ownagent/internal/auth"
	"github.com/ownagent/ownagent/internal/observability"
	"github.com/ownagent/ownagent/internal/sessions"
)

//go:embed static/index.html
var indexHTML []byte

// Config bundles the gateway's collaborators.
type Config struct {
	Addr    string
	Manager *sessions.Manager
	Auth    *auth.Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP front of the agent runtime.
type Server struct {
	addr    string
	manager *sessions.Manager
	auth    *auth.Service
	logger  *slog.Logger
	metrics *observability.Metrics

	httpServer   *http.Server
	httpListener net.Listener
}

// NewServer builds a server. Manager is required; Auth, Logger, and Metrics
// may be nil.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    cfg.Addr,
		manager: cfg.Manager,
		auth:    cfg.Auth,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Handler returns the full route table wrapped in the logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /sessions", s.authed(s.handleListSessions))
	mux.Handle("POST /sessions/new", s.authed(s.handleNewSession))
	mux.Handle("POST /sessions/{id}/load", s.authed(s.handleLoadSession))
	mux.Handle("DELETE /sessions/{id}", s.authed(s.handleDeleteSession))
	mux.Handle("POST /chat", s.authed(s.handleChat))

	if s.auth.Store() != nil {
		mux.Handle("GET /auth/users", s.admin(s.handleListUsers))
	}

	return LoggingMiddleware(s.logger, s.metrics)(mux)
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return auth.Middleware(s.auth, s.logger)(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return auth.Middleware(s.auth, s.logger)(auth.RequireRole(auth.RoleAdmin)(h))
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, useful when Start was given ":0".
func (s *Server) Addr() string {
	if s.httpListener == nil {
		return s.addr
	}
	return s.httpListener.Addr().String()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx := ctx
	var cancel context.CancelFunc
	if shutdownCtx == nil {
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.httpListener = nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
