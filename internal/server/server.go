// Package server exposes journal runs over HTTP: a trigger endpoint, the
// latest assembled journal, and a live event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/scribe/pkg/models"
)

// Runner executes one journal run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, period models.Period) (*models.JournalDocument, error)
}

// Server is the HTTP front of the engine.
type Server struct {
	runner Runner
	events *EventStream

	mu     sync.RWMutex
	latest *models.JournalDocument

	httpServer *http.Server
}

// New creates a Server around runner. events may be nil when no stream is
// wanted; a fresh one is created so the endpoint always works.
func New(runner Runner, events *EventStream) *Server {
	if events == nil {
		events = NewEventStream()
	}
	return &Server{runner: runner, events: events}
}

// Events returns the stream so callers can wire it into the pipeline.
func (s *Server) Events() *EventStream {
	return s.events
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/runs", s.handleRun)
	r.Get("/api/journal", s.handleJournal)
	r.Get("/api/events", s.events.ServeHTTP)
	r.Get("/api/health", s.handleHealth)

	return r
}

// runRequest selects the period for a triggered run. Zero values default to
// the current work week.
type runRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Day   bool      `json:"day,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	// An empty body means "current work week".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	period := s.resolvePeriod(req)
	if !period.Valid() {
		writeError(w, http.StatusBadRequest, "invalid period")
		return
	}

	doc, err := s.runner.Run(r.Context(), period)
	if err != nil {
		log.Error().Err(err).Msg("Triggered run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.latest = doc
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) resolvePeriod(req runRequest) models.Period {
	switch {
	case !req.Start.IsZero() || !req.End.IsZero():
		return models.Period{Start: req.Start, End: req.End}
	case req.Day:
		return models.Day(time.Now())
	default:
		return models.WorkWeek(time.Now())
	}
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	doc := s.latest
	s.mu.RUnlock()

	if doc == nil {
		writeError(w, http.StatusNotFound, "no journal generated yet")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.events.SubscriberCount(),
	})
}

// ListenAndServe blocks until ctx is cancelled, then drains connections.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
