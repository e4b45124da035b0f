// Package remote provides the outbound HTTP client shared by the document
// registry fetcher and the push-notification provider, including the
// classification of upstream responses into the sync error taxonomy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds every outbound call. No operation in this core
	// blocks indefinitely.
	defaultTimeout = 30 * time.Second

	// maxResponseBody caps how much of an upstream response is read.
	maxResponseBody = 32 << 20 // 32 MiB

	// clientHeader identifies this client to the upstream, which authorizes
	// on it in addition to the bearer token.
	clientHeader = "bioalergia-sync/1.0"
)

// Client is a timeout-bounded HTTP client that attaches the identifying
// client header plus any configured forwarding headers to every request.
type Client struct {
	http    *http.Client
	headers map[string]string
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithForwardingHeaders sets headers added to every request, e.g. the
// workspace and resource identifiers required by the upstream.
func WithForwardingHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithTransport injects a custom transport, used by tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// NewClient creates a client with the fixed default timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues an authenticated GET and returns the raw response body.
// Responses are classified: 401 yields an AuthError, 404 a NotFoundError,
// any other non-2xx a TransportError.
func (c *Client) Get(ctx context.Context, url, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("building request: %w", err)}
	}
	return c.do(req, bearer)
}

// PostJSON issues an authenticated POST with a JSON body and decodes the
// JSON response into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, url, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Err: fmt.Errorf("encoding request body: %w", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req, bearer)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Err: fmt.Errorf("decoding response body: %w", err)}
	}
	return nil
}

func (c *Client) do(req *http.Request, bearer string) ([]byte, error) {
	req.Header.Set("User-Agent", clientHeader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are transport failures.
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading response body: %w", err)}
	}

	if err := classifyStatus(resp.StatusCode, req.URL.Path, body); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyStatus maps an upstream status code onto the error taxonomy.
func classifyStatus(status int, resource string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return &AuthError{Status: status, Message: truncate(body)}
	case status == http.StatusNotFound:
		return &NotFoundError{Resource: resource}
	default:
		return &TransportError{Status: status, Err: fmt.Errorf("%s", truncate(body))}
	}
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
