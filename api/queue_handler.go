package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/queue"
)

// queueInfo is one queue in the list response: its declaration plus
// the live worker count.
type queueInfo struct {
	queue.Descriptor
	LiveWorkers int `json:"liveWorkers"`
}

func (s *Server) listQueues(w http.ResponseWriter, r *http.Request) {
	live := s.eng.Host().ListQueues()
	descs := s.eng.Registry().List()
	out := make([]queueInfo, 0, len(descs))
	for _, desc := range descs {
		out = append(out, queueInfo{Descriptor: desc, LiveWorkers: live[desc.Name]})
	}
	s.respond(w, http.StatusOK, out)
}

type addQueueRequest struct {
	Name    string `json:"name"`
	Workers int    `json:"workers"`
}

func (s *Server) addQueue(w http.ResponseWriter, r *http.Request) {
	var req addQueueRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := s.eng.Host().AddQueue(req.Name, req.Workers, s.eng.Router()); err != nil {
		s.fail(w, err)
		return
	}
	desc, _ := s.eng.Registry().Get(req.Name)
	s.respond(w, http.StatusCreated, desc)
}

func (s *Server) removeQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Host().RemoveQueue(chi.URLParam(r, "queue")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pauseQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	if err := s.eng.PauseQueue(r.Context(), name); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"queue": name, "paused": true})
}

func (s *Server) resumeQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	if err := s.eng.ResumeQueue(r.Context(), name); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"queue": name, "paused": false})
}

type scaleRequest struct {
	Workers int `json:"workers"`
}

func (s *Server) scaleQueue(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Workers < 0 {
		s.respondError(w, http.StatusBadRequest, "workers must not be negative")
		return
	}

	name := chi.URLParam(r, "queue")
	if err := s.eng.Host().ScaleQueue(name, req.Workers); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"queue": name, "workers": req.Workers})
}

type migrateRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

func (s *Server) migrateWorkers(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.eng.Host().MigrateWorkers(req.From, req.To, req.Count); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, s.eng.Host().ListQueues())
}

func (s *Server) balanceWorkers(w http.ResponseWriter, _ *http.Request) {
	s.eng.Host().BalanceWorkers()
	s.respond(w, http.StatusOK, s.eng.Host().ListQueues())
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Max  int    `json:"max"`
}

func (s *Server) moveTasks(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Max <= 0 {
		req.Max = 100
	}
	moved, err := s.eng.Manager().MoveTasks(r.Context(), req.From, req.To, req.Max)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"moved": moved})
}

// peekQueue returns up to max jobs from one lane without removing them.
func (s *Server) peekQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	lane := intQuery(r, "lane", 0)
	max := intQuery(r, "max", 20)

	raws, err := s.eng.Backlog().Peek(r.Context(), name, lane, max)
	if err != nil {
		s.fail(w, err)
		return
	}
	jobs := make([]*job.Job, 0, len(raws))
	for _, raw := range raws {
		j, err := job.Decode(raw)
		if err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	s.respond(w, http.StatusOK, jobs)
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
