package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/flowgrid/internal/capability"
)

// maxBody bounds how much of a response body is read.
const maxBody = 10 << 20

// Client is a capability.HTTPClient on top of net/http.
type Client struct {
	http *http.Client
}

var _ capability.HTTPClient = (*Client)(nil)

// NewClient returns a client with pooled connections. A zero timeout means no
// client-wide deadline; nodes may still set their own.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}}
}

// Request executes req. The body is decoded as JSON when possible.
func (c *Client) Request(ctx context.Context, req capability.HTTPRequest) (*capability.HTTPResponse, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &capability.HTTPResponse{Status: resp.StatusCode, Body: raw}
	var decoded any
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
		out.JSON = decoded
	}
	return out, nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
