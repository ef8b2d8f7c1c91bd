// Package api is an HTTP client for the auth endpoints. Every request goes
// through the client's cookie jar, the equivalent of a browser sending
// requests with credentials included.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/authgate/authgate-go/internal/model"
)

var ErrNoJar = errors.New("api: a cookie jar is required")

// Client talks to an authgate server.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*http.Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *http.Client) {
		c.Timeout = d
	}
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *http.Client) {
		c.Transport = rt
	}
}

// New creates a Client for the server at baseURL. jar holds the session
// cookie between calls.
func New(baseURL string, jar http.CookieJar, opts ...Option) (*Client, error) {
	if jar == nil {
		return nil, ErrNoJar
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: unsupported scheme %q", u.Scheme)
	}

	hc := &http.Client{Jar: jar, Timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(hc)
	}

	return &Client{base: u, http: hc}, nil
}

// Signup calls POST /api/auth/signup.
func (c *Client) Signup(ctx context.Context, req model.SignupRequest) (model.Envelope, error) {
	return c.do(ctx, http.MethodPost, "/api/auth/signup", req)
}

// Login calls POST /api/auth/login.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (model.Envelope, error) {
	return c.do(ctx, http.MethodPost, "/api/auth/login", req)
}

// Logout calls POST /api/auth/logout.
func (c *Client) Logout(ctx context.Context) (model.Envelope, error) {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil)
}

// Me calls GET /api/auth/me.
func (c *Client) Me(ctx context.Context) (model.Envelope, error) {
	return c.do(ctx, http.MethodGet, "/api/auth/me", nil)
}

// do sends one request. Any response carrying a JSON envelope is returned
// without error, whatever its status; only transport failures and
// undecodable bodies are errors.
func (c *Client) do(ctx context.Context, method, path string, body any) (model.Envelope, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return model.Envelope{}, fmt.Errorf("api: encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), rdr)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env model.Envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return model.Envelope{}, fmt.Errorf("api: %s %s: status %d: decode envelope: %w", method, path, resp.StatusCode, err)
	}
	env.StatusCode = resp.StatusCode

	return env, nil
}
