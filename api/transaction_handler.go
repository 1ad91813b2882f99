package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
)

// submitRequest is the wire form of one transaction submission.
type submitRequest struct {
	Operation      job.Operation   `json:"operation"`
	Entity         string          `json:"entity"`
	Payload        json.RawMessage `json:"payload"`
	Queue          string          `json:"queue"`
	Priority       *int            `json:"priority"`
	MaxRetries     int             `json:"maxRetries"`
	NotBefore      time.Time       `json:"notBefore"`
	CallbackURL    string          `json:"callbackUrl"`
	CallbackSecret string          `json:"callbackSecret"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

func (r *submitRequest) validate() string {
	switch r.Operation {
	case job.OpCreate, job.OpUpdate, job.OpDelete:
	default:
		return "operation must be CREATE, UPDATE or DELETE"
	}
	if r.Entity == "" {
		return "entity is required"
	}
	return ""
}

// submitResponse acknowledges an admitted transaction.
type submitResponse struct {
	ID    id.ID     `json:"id"`
	Queue string    `json:"queue"`
	State job.State `json:"state"`
}

func (s *Server) submitTransaction(w http.ResponseWriter, r *http.Request) {
	s.admit(w, r, false)
}

// runNowTransaction admits a transaction at top priority with no
// deferral, bypassing any NotBefore in the request.
func (s *Server) runNowTransaction(w http.ResponseWriter, r *http.Request) {
	s.admit(w, r, true)
}

func (s *Server) admit(w http.ResponseWriter, r *http.Request, runNow bool) {
	var req submitRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	var opts []job.Option
	if req.Priority != nil {
		opts = append(opts, job.WithPriority(*req.Priority))
	}
	if req.MaxRetries > 0 {
		opts = append(opts, job.WithMaxRetries(req.MaxRetries))
	}
	if !req.NotBefore.IsZero() {
		opts = append(opts, job.WithNotBefore(req.NotBefore))
	}
	if req.CallbackURL != "" {
		opts = append(opts, job.WithCallback(req.CallbackURL, req.CallbackSecret))
	}
	if req.IdempotencyKey != "" {
		opts = append(opts, job.WithIdempotencyKey(req.IdempotencyKey))
	}
	if runNow {
		opts = append(opts,
			job.WithPriority(job.MinPriority),
			job.WithNotBefore(time.Now().UTC()),
		)
	}

	j := job.New(req.Operation, req.Entity, req.Payload, opts...)
	lane, err := s.eng.Submit(r.Context(), j, req.Queue)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, submitResponse{ID: j.ID, Queue: lane, State: j.State})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := id.ParseTx(chi.URLParam(r, "txID"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid transaction id: "+err.Error())
		return
	}

	rec, err := s.eng.Status().Get(r.Context(), txID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, rec)
}
