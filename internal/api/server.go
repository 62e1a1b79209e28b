package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/drill/internal/provision"
	"github.com/MikeSquared-Agency/drill/internal/session"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

// Engine is the session engine surface exposed over HTTP.
type Engine interface {
	Start(ctx context.Context, traineeID, scenarioID string) (*session.TrainingSession, provision.Connection, error)
	Get(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error)
	LiveTranscript(ctx context.Context, id uuid.UUID) ([]transcript.Message, error)
	MarkConnected(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error)
	IngestSegment(ctx context.Context, id uuid.UUID, seg transcript.Segment) (transcript.Message, transcript.Result, error)
	End(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*session.TrainingSession, error)
	RetryEvaluation(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error)
	LiveCount() int
}

type ProvisionHealth interface {
	Configured() bool
	TransportURL() string
}

type Romanizer interface {
	Romanize(ctx context.Context, text string) (string, error)
}

type RetryQueue interface {
	PublishRetry(ctx context.Context, sessionID string) error
}

// Bus is the event bus connection, reported on the status route.
type Bus interface {
	Connected() bool
}

// Deps are the collaborators behind the routes. Romanizer, RetryQueue and
// Bus are optional.
type Deps struct {
	Engine     Engine
	Provision  ProvisionHealth
	Romanizer  Romanizer
	RetryQueue RetryQueue
	Bus        Bus
	Logger     *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

func NewServer(port int, apiToken string, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: logger,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))

		r.Get("/drill/status", s.status)
		r.Get("/provision/health", s.provisionHealth)
		r.Get("/scenarios", s.listScenarios)
		r.Get("/scenarios/{id}", s.getScenario)
		r.Post("/transliterate", s.transliterate)

		r.Post("/sessions", s.startSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/transcript", s.getTranscript)
			r.Post("/connected", s.markConnected)
			r.Post("/segments", s.ingestSegment)
			r.Post("/end", s.endSession)
			r.Post("/cancel", s.cancelSession)
			r.Post("/evaluation/retry", s.retryEvaluation)
		})
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	bus := "disabled"
	if s.deps.Bus != nil {
		bus = "disconnected"
		if s.deps.Bus.Connected() {
			bus = "connected"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":         "drill",
		"status":        "ok",
		"live_sessions": s.deps.Engine.LiveCount(),
		"async_retry":   s.deps.RetryQueue != nil,
		"nats":          bus,
	})
}

func (s *Server) provisionHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Provision == nil || !s.deps.Provision.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":              "unavailable",
			"transportConfigured": false,
			"message":             "room transport credentials are not configured",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"transportConfigured": true,
		"transportUrl":        s.deps.Provision.TransportURL(),
		"message":             "room provisioning is ready",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
