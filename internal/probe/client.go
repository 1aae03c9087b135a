// Package probe performs bounded live calls against a deployed environment.
// Every call is correlation-tagged so results can be cross-referenced with
// server-side logs. Transport failures (timeouts, refused connections) are
// reported as transient errors; application-level non-2xx responses are
// normal results interpreted by the caller.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
	"github.com/google/uuid"
)

const (
	correlationHeader = "X-Correlation-ID"
	defaultUserAgent  = "release-gate/1.0"

	// maxBodyCapture bounds how much of a response body is retained for
	// reports and logs.
	maxBodyCapture = 1 << 20
)

// Response captures one probe call. StatusCode 0 never occurs: transport
// failures return an error instead of a Response.
type Response struct {
	StatusCode    int
	Header        http.Header
	Body          []byte
	DurationMs    int64
	CorrelationID string
}

// Client represents a probe client bound to one deployed environment
type Client struct {
	baseURL     string
	bearerToken string
	userAgent   string
	httpClient  *http.Client
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-call transport timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBearerToken attaches an Authorization header to every probe call
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.bearerToken = token
	}
}

// WithUserAgent overrides the default user agent
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new probe client for the given base URL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the environment root this client probes.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithoutAuth returns a client identical to c but sending no Authorization
// header, for checks that verify unauthenticated behavior.
func (c *Client) WithoutAuth() *Client {
	anon := *c
	anon.bearerToken = ""
	return &anon
}

// Probe performs one bounded HTTP call. The context carries the caller's
// deadline; a timeout or connection failure returns a TransientNetworkError,
// while any HTTP status (including 5xx) is a normal Response.
func (c *Client) Probe(ctx context.Context, method, path string, body []byte) (*Response, error) {
	return c.Do(ctx, method, path, body, nil)
}

// Do is Probe with extra request headers, for probes that need to shape the
// request (CORS preflight, content negotiation). Extra headers are applied
// last and may override the defaults, except the correlation ID.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, extra http.Header) (*Response, error) {
	log := logger.GetLogger()
	correlationID := uuid.NewString()
	url := c.url(path)

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	if len(body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	for k, vals := range extra {
		httpReq.Header.Del(k)
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set(correlationHeader, correlationID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		log.Debugw("Probe transport failure",
			"method", method,
			"url", url,
			"correlation_id", correlationID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, apperrors.NewTransientNetworkError(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	captured, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyCapture))
	if err != nil {
		return nil, apperrors.NewTransientNetworkError(fmt.Sprintf("read %s %s", method, path), err)
	}

	log.Debugw("Probe completed",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"correlation_id", correlationID,
		"duration_ms", duration.Milliseconds())

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          captured,
		DurationMs:    duration.Milliseconds(),
		CorrelationID: correlationID,
	}, nil
}

// Get performs a GET probe against the given path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Probe(ctx, http.MethodGet, path, nil)
}

// GetJSON performs a GET probe and decodes a 2xx body into out. Non-2xx
// responses are returned undecoded for the caller to interpret.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) (*Response, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return resp, nil
}

// Health fetches and decodes the platform health endpoint. The decoded
// payload is nil when the endpoint did not answer 200 or the body was not
// the expected document.
func (c *Client) Health(ctx context.Context) (*Response, *types.HealthCheck, error) {
	resp, err := c.Get(ctx, "/health")
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil, nil
	}
	var hc types.HealthCheck
	if err := json.Unmarshal(resp.Body, &hc); err != nil {
		return resp, nil, nil
	}
	return resp, &hc, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
