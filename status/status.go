// Package status tracks the lifecycle record of each transaction for
// polling and audit. It is observability state, never scheduling truth:
// the backlog decides what runs, this package only reports where a
// transaction stands.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
)

// ErrNotFound is returned when no record exists for a transaction id.
// It wraps txq.ErrTransactionNotFound.
var ErrNotFound = fmt.Errorf("txq/status: %w", txq.ErrTransactionNotFound)

// Record is the stored lifecycle snapshot of one transaction.
type Record struct {
	ID          id.ID         `json:"id"`
	Entity      string        `json:"entity"`
	Operation   job.Operation `json:"operation"`
	Queue       string        `json:"queue"`
	State       job.State     `json:"state"`
	Attempt     int           `json:"attempt"`
	LastError   string        `json:"lastError,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	FinalizedAt *time.Time    `json:"finalizedAt,omitempty"`
}

// Store is the status record contract.
type Store interface {
	// Add creates the record for a freshly admitted job, state queued.
	Add(ctx context.Context, queue string, j *job.Job) error

	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, txID id.ID) (*Record, error)

	// UpdateState moves the record to state and records the attempt count
	// and error text. Missing records are created on the fly so a status
	// write never blocks job progress.
	UpdateState(ctx context.Context, txID id.ID, state job.State, attempt int, errMsg string) error

	// MarkFinalized stamps the terminal completion time.
	MarkFinalized(ctx context.Context, txID id.ID, at time.Time) error
}

func newRecord(queue string, j *job.Job) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        j.ID,
		Entity:    j.Entity,
		Operation: j.Operation,
		Queue:     queue,
		State:     job.StateQueued,
		Attempt:   j.Attempt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func encodeRecord(r *Record) ([]byte, error) { return json.Marshal(r) }

func decodeRecord(raw []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
