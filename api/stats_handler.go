package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.eng.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, stats)
}

// listInFlight returns the queue's claimed jobs ordered by nearest
// lease expiry.
func (s *Server) listInFlight(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.eng.Reclaimer().ListInFlight(r.Context(), chi.URLParam(r, "queue"), intQuery(r, "max", 50))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, jobs)
}

// reclaimQueue forces an immediate sweep of expired leases on one queue.
func (s *Server) reclaimQueue(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := s.eng.Reclaimer().ReclaimExpired(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"reclaimed": reclaimed})
}
