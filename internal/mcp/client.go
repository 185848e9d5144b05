// Package mcp is the client for the integration server that exposes
// third-party tools over a small HTTP surface: GET /mcp/tools lists them and
// POST /mcp/call invokes one.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where the integration server listens by default.
const DefaultBaseURL = "http://127.0.0.1:8791"

const defaultTimeout = 30 * time.Second

// Invoker lists and calls integration tools. Responses are the decoded JSON
// body annotated with http_status and http_ok.
type Invoker interface {
	ListTools(ctx context.Context) (map[string]any, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Headers    map[string]string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the integration server over HTTP.
type Client struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config) *Client {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		headers: cfg.Headers,
		client:  httpClient,
		logger:  slog.Default().With("component", "mcp", "url", base),
	}
}

// BaseURL is the normalized server address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) ListTools(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mcp/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, fmt.Errorf("marshal call: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp/call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	parsed := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("HTTP %d: decode response: %w", resp.StatusCode, err)
		}
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		c.logger.Debug("integration server returned error", "path", req.URL.Path, "status", resp.StatusCode)
	}
	parsed["http_status"] = resp.StatusCode
	parsed["http_ok"] = ok
	return parsed, nil
}
