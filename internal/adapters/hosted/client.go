// Package hosted talks to the hosted backend: a GoTrue-style identity API under
// /auth/v1 and a PostgREST-style resource API under /rest/v1.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 * 1024 * 1024

// defaultTimeout applies when no http.Client is supplied.
const defaultTimeout = 15 * time.Second

// StatusError is a non-2xx response. apperr.Wrap classifies it by StatusCode.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hosted backend returned %d", e.Code)
	}
	return e.Message
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

// Client sends throttled requests to the hosted backend.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a Client for baseURL authenticated with the project's anon key.
// PRE: baseURL is an absolute URL
func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request describes one call.
type request struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	token   string // bearer token; empty uses the anon key
	body    any
	rawBody []byte
}

// response is a successful reply.
type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends req and returns the response, or a *StatusError for non-2xx replies.
func (c *Client) do(ctx context.Context, req request) (response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, err
		}
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	switch {
	case req.rawBody != nil:
		body = bytes.NewReader(req.rawBody)
	case req.body != nil:
		b, err := json.Marshal(req.body)
		if err != nil {
			return response{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	hr.Header.Set("apikey", c.anonKey)
	token := req.token
	if token == "" {
		token = c.anonKey
	}
	hr.Header.Set("Authorization", "Bearer "+token)
	hr.Header.Set("Accept", "application/json")
	if body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(hr)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	slog.Debug("hosted_request", "method", req.method, "path", req.path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response{}, &StatusError{Code: resp.StatusCode, Message: errorMessage(b)}
	}
	return response{status: resp.StatusCode, header: resp.Header, body: b}, nil
}

// errorBody covers the error shapes both APIs return.
type errorBody struct {
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
	Details          string `json:"details"`
}

func errorMessage(b []byte) string {
	var eb errorBody
	if err := json.Unmarshal(b, &eb); err != nil {
		return strings.TrimSpace(string(b))
	}
	for _, s := range []string{eb.Message, eb.Msg, eb.ErrorDescription, eb.Error, eb.Details} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
