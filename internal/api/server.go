// Package api provides the HTTP API server and handlers for the repowatch service.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/repowatchapp/repowatch-server/internal/git"
	"github.com/repowatchapp/repowatch-server/internal/http/response"
	"github.com/repowatchapp/repowatch-server/internal/journal"
	"github.com/repowatchapp/repowatch-server/internal/monitor"
	"github.com/repowatchapp/repowatch-server/internal/sse"
)

// defaultChangesLimit caps how many journal entries a single request returns
// when no explicit limit is given.
const defaultChangesLimit = 50

// maxChangesLimit is the hard ceiling on the limit query parameter.
const maxChangesLimit = 500

// Server holds dependencies for HTTP handlers.
type Server struct {
	repo       *git.Repo
	monitor    *monitor.Monitor
	journal    *journal.Journal
	sseManager *sse.Manager
	sseHandler *sse.Handler
	router     *chi.Mux
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(repo *git.Repo, mon *monitor.Monitor, jrnl *journal.Journal, sseManager *sse.Manager, sseHandler *sse.Handler, logger *slog.Logger) *Server {
	s := &Server{
		repo:       repo,
		monitor:    mon,
		journal:    jrnl,
		sseManager: sseManager,
		sseHandler: sseHandler,
		router:     chi.NewRouter(),
		logger:     logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check.
	s.router.Get("/health", s.handleHealthCheck)

	// API v1.
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleGetStatus)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/changes", s.handleListChanges)
		r.Get("/stream", s.sseHandler.ServeHTTP)
	})
}

// handleHealthCheck returns server health status with component checks.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	components := make(map[string]string)
	overall := "healthy"

	if s.journal != nil {
		if _, err := s.journal.Count(); err != nil {
			components["journal"] = "unhealthy"
			overall = "unhealthy"
		} else {
			components["journal"] = "healthy"
		}
	} else {
		components["journal"] = "not configured"
	}

	if s.monitor != nil && s.monitor.Available() {
		components["monitor"] = "available"
	} else {
		components["monitor"] = "unavailable"
	}

	if s.sseManager != nil {
		components["sse"] = "healthy"
	} else {
		components["sse"] = "not configured"
	}

	response.Success(w, map[string]any{
		"status":     overall,
		"components": components,
	}, s.logger)
}

// handleGetStatus returns the repository path and current monitor state.
func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"worktree": s.repo.Worktree(),
		"monitor":  s.monitor.Status(),
	}
	if s.sseManager != nil {
		status["clients"] = s.sseManager.ClientCount()
	}
	response.Success(w, status, s.logger)
}

// handleRefresh resynchronizes the monitor's watch set against the current
// tracked-file list. Call after operations that change which files are
// tracked.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.Refresh(); err != nil {
		s.logger.Error("refresh failed", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, s.monitor.Status(), s.logger)
}

// handleListChanges returns recent change notifications, newest first.
func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	limit := defaultChangesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.BadRequest(w, "limit must be a positive integer", s.logger)
			return
		}
		limit = min(parsed, maxChangesLimit)
	}

	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, map[string]any{
		"changes": entries,
		"count":   len(entries),
	}, s.logger)
}
