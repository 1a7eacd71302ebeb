// Package client talks to the ops endpoints of a running nd3d.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is an HTTP client for the nd3d ops server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Health is the body of GET /health
type Health struct {
	Status  string `json:"status" yaml:"status"`
	Version string `json:"version" yaml:"version"`
}

// QueueStatus is the body of GET /v1/queue
type QueueStatus struct {
	Depth     int    `json:"depth" yaml:"depth"`
	Current   string `json:"current,omitempty" yaml:"current,omitempty"`
	Stage     string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Completed int    `json:"completed" yaml:"completed"`
	Failed    int    `json:"failed" yaml:"failed"`
	Closed    bool   `json:"closed" yaml:"closed"`
}

// New creates a new client. addr may be a URL or a listen address such as ":9090".
func New(addr string) *Client {
	return NewWithHTTPClient(addr, &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewWithHTTPClient creates a new client with a custom HTTP client
func NewWithHTTPClient(addr string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    BaseURL(addr),
		httpClient: httpClient,
	}
}

// BaseURL turns a listen address into a URL a client can dial
func BaseURL(addr string) string {
	base := addr
	if strings.HasPrefix(base, ":") {
		base = "localhost" + base
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimSuffix(base, "/")
}

// Health fetches the daemon health. A stopping daemon answers 503, which is
// returned as a Health value, not an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", &h, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &h, nil
}

// Queue fetches the queue snapshot
func (c *Client) Queue(ctx context.Context) (*QueueStatus, error) {
	var st QueueStatus
	if err := c.get(ctx, "/v1/queue", &st, http.StatusOK); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}, accept ...int) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
