// Package api exposes the txq submission and administration surface
// over HTTP. Every route is JSON in, JSON out; errors carry a
// structured body so callers can branch without parsing messages.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/engine"
)

// Server holds the handlers over one Engine.
type Server struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server over the engine.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler assembles the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", s.eng.Metrics().Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transactions", s.submitTransaction)
		r.Post("/transactions/run-now", s.runNowTransaction)
		r.Get("/transactions/{txID}", s.getTransaction)

		r.Get("/stats", s.stats)

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", s.listQueues)
			r.Post("/", s.addQueue)
			r.Post("/migrate", s.migrateWorkers)
			r.Post("/balance", s.balanceWorkers)
			r.Post("/move", s.moveTasks)

			r.Route("/{queue}", func(r chi.Router) {
				r.Delete("/", s.removeQueue)
				r.Post("/pause", s.pauseQueue)
				r.Post("/resume", s.resumeQueue)
				r.Post("/scale", s.scaleQueue)
				r.Get("/peek", s.peekQueue)
				r.Get("/inflight", s.listInFlight)
				r.Post("/reclaim", s.reclaimQueue)

				r.Route("/dlq", func(r chi.Router) {
					r.Get("/", s.listDLQ)
					r.Get("/count", s.countDLQ)
					r.Post("/replay", s.replayDLQ)
					r.Post("/retry/{txID}", s.retryDLQ)
					r.Delete("/{txID}", s.deleteDLQ)
				})
			})
		})
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.eng.IsRunning(),
	})
}

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Queue   string `json:"queue,omitempty"`
	Backlog int64  `json:"backlog,omitempty"`
	Max     int64  `json:"max,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response write failed", slog.String("error", err.Error()))
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.respond(w, code, errorBody{Error: msg})
}

// fail maps domain errors to status codes. A full queue gets a 429
// with the structured backlog numbers so producers can back off.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var full *txq.QueueFullError
	switch {
	case errors.As(err, &full):
		s.respond(w, http.StatusTooManyRequests, errorBody{
			Error:   full.Error(),
			Queue:   full.Queue,
			Backlog: full.Backlog,
			Max:     full.Max,
		})
	case errors.Is(err, txq.ErrQueueNotFound),
		errors.Is(err, txq.ErrTransactionNotFound),
		errors.Is(err, txq.ErrDeadEntryNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, txq.ErrQueueExists):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, txq.ErrHostStopped):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", slog.String("error", err.Error()))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode unmarshals the request body into v, rejecting unknown fields.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
