// Package job defines the unit of asynchronous work, a transaction against
// the academic store, together with its lifecycle states and the Result
// contract between processors and the worker loop.
package job

import (
	"encoding/json"
	"time"

	"github.com/siga-labs/txq/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is waiting in a backlog lane.
	StateQueued State = "queued"
	// StateProcessing means a worker is currently executing the job.
	StateProcessing State = "processing"
	// StateCompleted means the job's effect was applied to the store.
	StateCompleted State = "completed"
	// StateSkipped means the job was terminal-skipped for a business
	// reason (bad payload, duplicate create, missing target, FK conflict).
	StateSkipped State = "skipped"
	// StateError means the job exhausted its retries and was dead-lettered.
	StateError State = "error"
)

// Operation is the write semantics a job carries.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Entity kind tags. Each selects the processor that applies the job.
// The values are part of the wire contract with submitting services.
const (
	EntityAula               string = "Aula"
	EntityMateria            string = "Materia"
	EntityDocente            string = "Docente"
	EntityEstudiante         string = "Estudiante"
	EntityNivel              string = "Nivel"
	EntityGrupoMateria       string = "GrupoMateria"
	EntityPeriodoAcademico   string = "PeriodoAcademico"
	EntityPlanDeEstudio      string = "PlanDeEstudio"
	EntityInscripcion        string = "Inscripcion"
	EntityDetalleInscripcion string = "DetalleInscripcion"
)

// Priority bounds. 0 is the highest lane, MaxPriority the lowest.
const (
	MinPriority = 0
	MaxPriority = 2
)

// Job is one unit of asynchronous work. It is owned by exactly one lane
// (queue × priority) at any instant and moves between the backlog, the
// in-flight set and the dead-letter list, never more than one at a time.
type Job struct {
	ID             id.ID           `json:"id"`
	Operation      Operation       `json:"operation"`
	Entity         string          `json:"entity"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	State          State           `json:"state"`
	Attempt        int             `json:"attempt"`
	Priority       int             `json:"priority"`
	MaxRetries     int             `json:"max_retries"`
	NotBefore      time.Time       `json:"not_before"`
	CreatedAt      time.Time       `json:"created_at"`
	CallbackURL    string          `json:"callback_url,omitempty"`
	CallbackSecret string          `json:"callback_secret,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	FinalizedAt    *time.Time      `json:"finalized_at,omitempty"`
}

// Option configures a new Job.
type Option func(*Job)

// WithPriority sets the lane priority, clamped to [MinPriority, MaxPriority].
func WithPriority(p int) Option {
	return func(j *Job) { j.Priority = ClampPriority(p) }
}

// WithMaxRetries overrides the queue's retry ceiling for this job.
func WithMaxRetries(n int) Option {
	return func(j *Job) { j.MaxRetries = n }
}

// WithNotBefore defers execution until the given time.
func WithNotBefore(t time.Time) Option {
	return func(j *Job) { j.NotBefore = t }
}

// WithCallback sets the outcome webhook target and its HMAC signing secret.
func WithCallback(url, secret string) Option {
	return func(j *Job) {
		j.CallbackURL = url
		j.CallbackSecret = secret
	}
}

// WithIdempotencyKey attaches the caller-supplied deduplication token.
func WithIdempotencyKey(key string) Option {
	return func(j *Job) { j.IdempotencyKey = key }
}

// New creates a queued Job with a fresh tx id and normal priority.
func New(op Operation, entity string, payload json.RawMessage, opts ...Option) *Job {
	now := time.Now().UTC()
	j := &Job{
		ID:        id.NewTx(),
		Operation: op,
		Entity:    entity,
		Payload:   payload,
		State:     StateQueued,
		Priority:  1,
		NotBefore: now,
		CreatedAt: now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ClampPriority forces p into the supported lane range.
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// EffectiveMaxRetries returns the job's own ceiling when set (> 0),
// otherwise the queue default.
func (j *Job) EffectiveMaxRetries(queueDefault int) int {
	if j.MaxRetries > 0 {
		return j.MaxRetries
	}
	return queueDefault
}

// Deferred reports whether the job may not run yet.
func (j *Job) Deferred(now time.Time) bool {
	return j.NotBefore.After(now)
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateSkipped || s == StateError
}

// Encode serializes the job for a backlog lane.
func (j *Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// Decode parses a serialized job from a backlog lane.
func Decode(raw []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
