package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NomadCrew/release-gate/types"
)

// Client talks to a deploy-API control plane over HTTP. The API shape is
// the minimal service/reference surface:
//
//	GET  /v1/services/{service}            -> ServiceStatus
//	GET  /v1/services/{service}/references -> []Reference
//	PUT  /v1/services/{service}/reference  -> point service at a reference
//	POST /v1/services/{service}/restart    -> restart on current reference
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the timeout on the default HTTP client
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a control plane client for the given API base URL.
func NewClient(apiURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ ControlPlane = (*Client)(nil)

// GetServiceStatus returns the current state of a service.
func (c *Client) GetServiceStatus(ctx context.Context, service string) (types.ServiceStatus, error) {
	var status types.ServiceStatus
	err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/services/%s", c.apiURL, service), nil, &status)
	if err != nil {
		return types.ServiceStatus{}, fmt.Errorf("failed to get status for %s: %w", service, err)
	}
	return status, nil
}

// UpdateServiceReference points the service at the given reference.
func (c *Client) UpdateServiceReference(ctx context.Context, service, reference string) error {
	body := map[string]string{"reference": reference}
	err := c.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("%s/v1/services/%s/reference", c.apiURL, service), body, nil)
	if err != nil {
		return fmt.Errorf("failed to update reference for %s: %w", service, err)
	}
	return nil
}

// ListReferences returns the known references for a service, newest first.
func (c *Client) ListReferences(ctx context.Context, service string) ([]types.Reference, error) {
	var refs []types.Reference
	err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/services/%s/references", c.apiURL, service), nil, &refs)
	if err != nil {
		return nil, fmt.Errorf("failed to list references for %s: %w", service, err)
	}
	return refs, nil
}

// Restart restarts the service on its current reference.
func (c *Client) Restart(ctx context.Context, service string) error {
	err := c.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/services/%s/restart", c.apiURL, service), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to restart %s: %w", service, err)
	}
	return nil
}

// doJSON performs one request with the API key header, encoding body and
// decoding the response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("control plane returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
