package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/status"
)

// Submission is one transaction to enqueue.
type Submission struct {
	Operation      job.Operation   `json:"operation"`
	Entity         string          `json:"entity"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Queue          string          `json:"queue,omitempty"`
	Priority       *int            `json:"priority,omitempty"`
	MaxRetries     int             `json:"maxRetries,omitempty"`
	NotBefore      time.Time       `json:"notBefore"`
	CallbackURL    string          `json:"callbackUrl,omitempty"`
	CallbackSecret string          `json:"callbackSecret,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// Ack acknowledges an admitted transaction.
type Ack struct {
	ID    id.ID     `json:"id"`
	Queue string    `json:"queue"`
	State job.State `json:"state"`
}

// Submit enqueues a transaction. A full queue with the reject policy
// returns *txq.QueueFullError.
func (c *Client) Submit(ctx context.Context, sub Submission) (*Ack, error) {
	var ack Ack
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", sub, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// SubmitNow enqueues a transaction at top priority with no deferral.
func (c *Client) SubmitNow(ctx context.Context, sub Submission) (*Ack, error) {
	var ack Ack
	if err := c.do(ctx, http.MethodPost, "/v1/transactions/run-now", sub, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Status returns the lifecycle record of a transaction.
func (c *Client) Status(ctx context.Context, txID id.ID) (*status.Record, error) {
	var rec status.Record
	if err := c.do(ctx, http.MethodGet, pathEscape("v1", "transactions", txID.String()), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
