// Package client provides a Go client for a remote txq instance over
// its HTTP API.
//
// Usage:
//
//	c := client.New("http://txq.internal:8080")
//
//	ack, err := c.Submit(ctx, client.Submission{
//	    Operation: job.OpCreate,
//	    Entity:    job.EntityAula,
//	    Payload:   payload,
//	    Queue:     "aulas",
//	})
//
//	rec, err := c.Status(ctx, ack.ID)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/siga-labs/txq"
)

// Client talks to one txq HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL (scheme and host, no
// trailing path).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("txq/client: server returned %d: %s", e.StatusCode, e.Message)
}

// errorBody mirrors the server's error response shape.
type errorBody struct {
	Error   string `json:"error"`
	Queue   string `json:"queue"`
	Backlog int64  `json:"backlog"`
	Max     int64  `json:"max"`
}

// do performs one request and decodes the response into out (when
// non-nil). A 429 comes back as *txq.QueueFullError so callers can
// apply backpressure with errors.As, any other non-2xx as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("txq/client: encode request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("txq/client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("txq/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if resp.StatusCode == http.StatusTooManyRequests && eb.Queue != "" {
			return &txq.QueueFullError{Queue: eb.Queue, Backlog: eb.Backlog, Max: eb.Max}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("txq/client: decode response: %w", err)
	}
	return nil
}

func pathEscape(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
