// Package remote is the HTTP client for the wacrm server API.
package remote

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

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"wacrm/internal/api"
	"wacrm/internal/auth"
)

// ErrNoCredentials is returned when no API token could be obtained.
var ErrNoCredentials = errors.New("no API credentials")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type Client struct {
	baseURL    *url.URL
	http       *http.Client
	creds      auth.CredentialProvider
	log        *zap.Logger
	maxTries   uint
	newBackOff func() backoff.BackOff
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMaxTries bounds the attempts of retried reads. 1 disables retries.
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = max(n, 1) }
}

// WithRetryBackOff replaces the exponential backoff used between retries.
func WithRetryBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = newBackOff }
}

func New(baseURL string, creds auth.CredentialProvider, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:  u,
		http:     &http.Client{Timeout: 30 * time.Second},
		creds:    creds,
		log:      zap.NewNop(),
		maxTries: 3,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxInterval = 2 * time.Second
			return bo
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("remote")
	return c, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func jsonRequest(method, path string, in any) (request, error) {
	req := request{method: method, path: path}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return request{}, fmt.Errorf("failed to encode request: %w", err)
		}
		req.body = bytes.NewReader(data)
		req.contentType = "application/json"
	}
	return req, nil
}

// do sends one request and decodes a 2xx JSON answer into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.baseURL
	u.Path = u.Path + r.path
	u.RawQuery = r.query.Encode()

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoCredentials, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope api.Response
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &envelope) != nil || envelope.Message == "" {
			envelope.Message = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", r.path, err)
	}
	return nil
}

// retry runs op with exponential backoff. Client errors are not retried.
func retry[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return v, backoff.Permanent(err)
		}
		if errors.Is(err, ErrNoCredentials) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("retrying request", zap.Error(err), zap.Duration("in", next))
		}),
	)
}
