package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/job-matcher/internal/db"
	"github.com/jonathan/job-matcher/internal/scheduler"
	"github.com/jonathan/job-matcher/internal/types"
)

// Store is the persistence surface the API handlers use.
type Store interface {
	Ping(ctx context.Context) error
	GetPreference(ctx context.Context, userID uuid.UUID) (*types.UserPreference, error)
	SavePreference(ctx context.Context, pref *types.UserPreference) error
	ListMatchesForUser(ctx context.Context, userID uuid.UUID, minScore float64, limit, offset int) ([]types.Match, error)
	CountMatchesForUser(ctx context.Context, userID uuid.UUID) (int, error)
	GetMatch(ctx context.Context, matchID uuid.UUID) (*types.Match, error)
	UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, status types.MatchStatus) error
	RescoreMatch(ctx context.Context, matchID uuid.UUID, score float64) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	ListJobs(ctx context.Context, filters db.JobFilters) ([]types.Job, error)
}

// Trigger is the scheduler surface exposed over the API.
type Trigger interface {
	TriggerNow(userID uuid.UUID) error
	ForceUpdateAll(ctx context.Context) (int, error)
	Status() scheduler.Status
}

// Config holds server configuration
type Config struct {
	Port int
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	store      Store
	trigger    Trigger
	scorer     scheduler.Scorer
	logger     *zap.Logger
}

// New creates a new server instance
func New(cfg Config, store Store, trigger Trigger, scorer scheduler.Scorer, logger *zap.Logger) *Server {
	s := &Server{
		store:   store,
		trigger: trigger,
		scorer:  scorer,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Scheduler control
	mux.HandleFunc("POST /scheduler/run", s.handleForceUpdateAll)
	mux.HandleFunc("POST /scheduler/run/{user_id}", s.handleTriggerUser)
	mux.HandleFunc("GET /scheduler/status", s.handleSchedulerStatus)

	// Preference endpoints
	mux.HandleFunc("GET /users/{id}/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /users/{id}/preferences", s.handleSavePreferences)

	// Match endpoints
	mux.HandleFunc("GET /users/{id}/matches", s.handleListMatches)
	mux.HandleFunc("PATCH /matches/{id}/status", s.handleUpdateMatchStatus)
	mux.HandleFunc("POST /matches/{id}/rescore", s.handleRescoreMatch)

	// Job endpoints
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the configured routes, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
