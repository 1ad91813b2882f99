package dlq

import (
	"encoding/json"
	"time"

	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
)

// Entry represents a transaction that exhausted its retry budget, or
// was diverted by the deadletter admission policy, and now sits in the
// dead-letter list for inspection or replay.
type Entry struct {
	ID        id.ID           `json:"id"`
	JobID     id.ID           `json:"jobId"`
	Entity    string          `json:"entity"`
	Operation job.Operation   `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempt   int             `json:"attempt"`
	Error     string          `json:"error"`
	FailedAt  time.Time       `json:"failedAt"`

	// Callback routing survives dead-lettering so a replayed job can
	// still notify its caller.
	CallbackURL    string `json:"callbackUrl,omitempty"`
	CallbackSecret string `json:"callbackSecret,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// NewEntry captures a failed job as a dead-letter entry.
func NewEntry(j *job.Job, cause string) *Entry {
	return &Entry{
		ID:             id.NewDead(),
		JobID:          j.ID,
		Entity:         j.Entity,
		Operation:      j.Operation,
		Payload:        j.Payload,
		Attempt:        j.Attempt,
		Error:          cause,
		FailedAt:       time.Now().UTC(),
		CallbackURL:    j.CallbackURL,
		CallbackSecret: j.CallbackSecret,
		IdempotencyKey: j.IdempotencyKey,
	}
}

// Job rebuilds a queued job from the entry. The job keeps its original
// id so status polling stays continuous across a replay.
func (e *Entry) Job() *job.Job {
	return &job.Job{
		ID:             e.JobID,
		Entity:         e.Entity,
		Operation:      e.Operation,
		Payload:        e.Payload,
		State:          job.StateQueued,
		Priority:       job.MaxPriority,
		CreatedAt:      time.Now().UTC(),
		CallbackURL:    e.CallbackURL,
		CallbackSecret: e.CallbackSecret,
		IdempotencyKey: e.IdempotencyKey,
	}
}

// Encode serializes the entry for the dead-letter list.
func (e *Entry) Encode() ([]byte, error) { return json.Marshal(e) }

// DecodeEntry parses a raw dead-letter list element.
func DecodeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
