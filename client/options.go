package client

import "net/http"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, e.g. one with a timeout or
// instrumented transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
