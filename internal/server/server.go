// Package server exposes the daemon's HTTP JSON API: account CRUD, vendor
// operations, async batches, settings and the audit log.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/user/fleetdeck/internal/audit"
	"github.com/user/fleetdeck/internal/store"
	"github.com/user/fleetdeck/internal/upstream"
)

// TokenSource is the slice of the token manager the API layer needs: forced
// refreshes and cache cleanup after account removal.
type TokenSource interface {
	EnsureValid(ctx context.Context, id string, force bool) (string, error)
	Forget(id string)
}

// Server is the daemon's HTTP server.
type Server struct {
	store      *store.Store
	ops        *upstream.Client
	tokens     TokenSource
	auditLog   *audit.Log
	apiKeyHash string

	tasks      *taskRegistry
	opMetrics  *opTracker
	started    time.Time
	httpServer *http.Server
	router     chi.Router
}

// Option configures optional server behavior.
type Option func(*Server)

// WithAPIKey requires X-Api-Key on every request when key is non-empty.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		if key != "" {
			s.apiKeyHash = hashAPIKey(key)
		}
	}
}

// WithAudit records an audit entry for every vendor-facing operation.
func WithAudit(l *audit.Log) Option {
	return func(s *Server) { s.auditLog = l }
}

// New creates a Server. ops must share the given store so account mirrors
// and seat bookkeeping land in the same database the API reads.
func New(s *store.Store, ops *upstream.Client, tokens TokenSource, bindAddr string, opts ...Option) *Server {
	srv := &Server{
		store:     s,
		ops:       ops,
		tokens:    tokens,
		opMetrics: newOpTracker(),
		started:   time.Now(),
	}
	srv.tasks = newTaskRegistry(srv)
	for _, opt := range opts {
		opt(srv)
	}
	srv.router = srv.buildRouter()
	srv.httpServer = &http.Server{
		Addr:    bindAddr,
		Handler: srv.router,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(structuredLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/accounts", s.handleListAccounts)
		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/accounts/{id}", s.handleGetAccount)
		r.Delete("/accounts/{id}", s.handleDeleteAccount)
		r.Post("/accounts/{id}/refresh", s.handleRefreshToken)
		r.Get("/accounts/{id}/user", s.handleGetUser)
		r.Get("/accounts/{id}/plan", s.handleGetPlanStatus)
		r.Get("/accounts/{id}/credits", s.handleGetCreditEntries)
		r.Post("/accounts/{id}/seats", s.handleUpdateSeats)
		r.Post("/accounts/{id}/credits/reset", s.handleResetCredits)
		r.Post("/accounts/{id}/plan", s.handleUpdatePlan)
		r.Post("/accounts/{id}/plan/cancel", s.handleCancelPlan)
		r.Post("/accounts/{id}/plan/resume", s.handleResumePlan)
		r.Post("/accounts/{id}/plan/subscribe", s.handleSubscribePlan)
		r.Post("/accounts/{id}/controls", s.handleUpsertControls)
		r.Get("/accounts/{id}/models", s.handleGetModels)
		r.Post("/accounts/{id}/authtoken", s.handleOneTimeAuthToken)

		r.Post("/batches", s.handleStartBatch)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)

		r.Get("/audit", s.handleAuditLog)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handlePrometheusMetrics)

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Close force-closes the listener.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Middleware

func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
