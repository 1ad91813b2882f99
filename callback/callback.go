// Package callback delivers signed webhook notifications about finished
// transactions. Delivery is best effort; the worker decides what a
// failed delivery means for the job.
package callback

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/siga-labs/txq/job"
)

// Status is the outcome reported to the caller.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
	StatusSkip  Status = "SKIP"
)

// StatusFor maps a processor result to the reported callback status.
func StatusFor(r job.Result) Status {
	switch {
	case r.IsSkip():
		return StatusSkip
	case r.IsRetry():
		return StatusError
	default:
		return StatusOK
	}
}

// Notification is the JSON body posted to the callback URL.
type Notification struct {
	TransactionID string          `json:"transactionId"`
	Status        Status          `json:"status"`
	Entity        string          `json:"entity"`
	Operation     job.Operation   `json:"operation"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Attempt       int             `json:"attempt"`
	At            time.Time       `json:"at"`
	Error         string          `json:"error,omitempty"`
}

// Sender posts notifications.
type Sender struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures the Sender.
type Option func(*Sender)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.client = c }
}

// WithTimeout sets the per-delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) { s.timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// NewSender creates a Sender with a 10s delivery timeout.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client:  http.DefaultClient,
		logger:  slog.Default(),
		timeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Notify posts the job's outcome to its callback URL. The body is
// signed with the job's secret when one is set, and the idempotency key
// travels along so the receiver can dedupe redeliveries. Jobs without a
// callback URL report delivered without any request.
func (s *Sender) Notify(ctx context.Context, j *job.Job, status Status, errMsg string) (bool, error) {
	if j.CallbackURL == "" {
		return true, nil
	}

	n := Notification{
		TransactionID: j.ID.String(),
		Status:        status,
		Entity:        j.Entity,
		Operation:     j.Operation,
		Payload:       j.Payload,
		Attempt:       j.Attempt,
		At:            time.Now().UTC(),
		Error:         errMsg,
	}
	body, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("txq/callback: encode notification for %s: %w", j.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("txq/callback: build request for %s: %w", j.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if j.CallbackSecret != "" {
		req.Header.Set("X-Signature", Signature(body, j.CallbackSecret))
	}
	if j.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", j.IdempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("callback delivery failed",
			slog.String("job_id", j.ID.String()),
			slog.String("url", j.CallbackURL),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("txq/callback: deliver %s: %w", j.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("callback rejected",
			slog.String("job_id", j.ID.String()),
			slog.String("url", j.CallbackURL),
			slog.Int("status_code", resp.StatusCode),
		)
		return false, fmt.Errorf("txq/callback: deliver %s: receiver returned %d", j.ID, resp.StatusCode)
	}
	return true, nil
}

// Signature computes the header value for a body: "sha256=" followed by
// the hex HMAC-SHA256 of the body under secret.
func Signature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature for body under secret.
// Receivers can use it to authenticate notifications.
func Verify(body []byte, secret, sig string) bool {
	return hmac.Equal([]byte(Signature(body, secret)), []byte(sig))
}
