package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listDLQ(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	max := intQuery(r, "max", 50)

	entries, err := s.eng.DLQ().List(r.Context(), name, max)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, entries)
}

func (s *Server) countDLQ(w http.ResponseWriter, r *http.Request) {
	count, err := s.eng.DLQ().Count(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int64{"count": count})
}

type replayRequest struct {
	Max int `json:"max"`
}

// replayDLQ drains dead-letter entries back into the queue's lowest
// lane. An absent or non-positive max replays up to 100.
func (s *Server) replayDLQ(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if r.ContentLength > 0 {
		if err := s.decode(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Max <= 0 {
		req.Max = 100
	}

	replayed, err := s.eng.DLQ().Replay(r.Context(), chi.URLParam(r, "queue"), req.Max)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"replayed": replayed})
}

// retryDLQ re-admits one entry by job id at top priority.
func (s *Server) retryDLQ(w http.ResponseWriter, r *http.Request) {
	j, err := s.eng.DLQ().Retry(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "txID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, j)
}

func (s *Server) deleteDLQ(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.DLQ().Delete(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "txID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
