package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/siga-labs/txq/dlq"
	"github.com/siga-labs/txq/engine"
	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/queue"
)

// Stats returns every queue's depth snapshot.
func (c *Client) Stats(ctx context.Context) ([]engine.QueueStats, error) {
	var stats []engine.QueueStats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ListQueues returns the declared queues.
func (c *Client) ListQueues(ctx context.Context) ([]queue.Descriptor, error) {
	var descs []queue.Descriptor
	if err := c.do(ctx, http.MethodGet, "/v1/queues", nil, &descs); err != nil {
		return nil, err
	}
	return descs, nil
}

// AddQueue declares a new queue with the given worker count.
func (c *Client) AddQueue(ctx context.Context, name string, workers int) error {
	body := map[string]any{"name": name, "workers": workers}
	return c.do(ctx, http.MethodPost, "/v1/queues", body, nil)
}

// RemoveQueue drains and deletes a queue.
func (c *Client) RemoveQueue(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, pathEscape("v1", "queues", name), nil, nil)
}

// PauseQueue stops workers from dequeueing the queue.
func (c *Client) PauseQueue(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, pathEscape("v1", "queues", name, "pause"), nil, nil)
}

// ResumeQueue re-enables dequeueing.
func (c *Client) ResumeQueue(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, pathEscape("v1", "queues", name, "resume"), nil, nil)
}

// ScaleQueue sets a queue's worker count.
func (c *Client) ScaleQueue(ctx context.Context, name string, workers int) error {
	body := map[string]any{"workers": workers}
	return c.do(ctx, http.MethodPost, pathEscape("v1", "queues", name, "scale"), body, nil)
}

// ListDLQ returns up to max dead-letter entries for the queue.
func (c *Client) ListDLQ(ctx context.Context, name string, max int) ([]*dlq.Entry, error) {
	var entries []*dlq.Entry
	path := pathEscape("v1", "queues", name, "dlq") + fmt.Sprintf("?max=%d", max)
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountDLQ returns the dead-letter depth of the queue.
func (c *Client) CountDLQ(ctx context.Context, name string) (int64, error) {
	var out map[string]int64
	if err := c.do(ctx, http.MethodGet, pathEscape("v1", "queues", name, "dlq", "count"), nil, &out); err != nil {
		return 0, err
	}
	return out["count"], nil
}

// ReplayDLQ drains up to max dead-letter entries back into the queue.
func (c *Client) ReplayDLQ(ctx context.Context, name string, max int) (int, error) {
	var out map[string]int
	body := map[string]any{"max": max}
	if err := c.do(ctx, http.MethodPost, pathEscape("v1", "queues", name, "dlq", "replay"), body, &out); err != nil {
		return 0, err
	}
	return out["replayed"], nil
}

// RetryDLQ re-admits one dead-letter entry at top priority.
func (c *Client) RetryDLQ(ctx context.Context, name string, txID id.ID) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodPost, pathEscape("v1", "queues", name, "dlq", "retry", txID.String()), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// DeleteDLQ removes one dead-letter entry.
func (c *Client) DeleteDLQ(ctx context.Context, name string, txID id.ID) error {
	return c.do(ctx, http.MethodDelete, pathEscape("v1", "queues", name, "dlq", txID.String()), nil, nil)
}

// Reclaim forces an immediate sweep of expired in-flight leases.
func (c *Client) Reclaim(ctx context.Context, name string) (int, error) {
	var out map[string]int
	if err := c.do(ctx, http.MethodPost, pathEscape("v1", "queues", name, "reclaim"), nil, &out); err != nil {
		return 0, err
	}
	return out["reclaimed"], nil
}
