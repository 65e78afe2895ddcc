// Package client provides an HTTP client for the luserve API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/luserve/luserve/internal/nlp"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/recognizer"
)

// RequestIDHeader carries the caller's request ID.
const RequestIDHeader = "X-Request-ID"

// Client is an HTTP client for the luserve API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. Zero means no limit.
	MaxIdleConns int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive)
	// connection will remain idle before closing itself.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://127.0.0.1:5000",
		Timeout:         30 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// Recognition is the body of GET /recognize/<query>.
type Recognition struct {
	Cats map[string]float64 `json:"cats"`
	Ents []nlp.Entity       `json:"ents"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string                  `json:"status"`
	Recognizer recognizer.HealthStatus `json:"recognizer"`
}

// APIError is an error envelope returned by the server.
type APIError struct {
	Status  int               `json:"-"`
	Err     string            `json:"error"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Err
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Recognize calls GET /recognize/<query>.
func (c *Client) Recognize(ctx context.Context, query string) (*Recognition, error) {
	var resp Recognition
	if err := c.get(ctx, "/recognize/"+url.PathEscape(query), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecognizeDetailed calls POST /v1/recognize.
func (c *Client) RecognizeDetailed(ctx context.Context, query string) (*recognizer.Result, error) {
	var resp recognizer.Result
	if err := c.post(ctx, "/v1/recognize", map[string]string{"query": query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Models returns the loaded model descriptions.
func (c *Client) Models(ctx context.Context) ([]recognizer.ModelInfo, error) {
	var resp struct {
		Models []recognizer.ModelInfo `json:"models"`
	}
	if err := c.get(ctx, "/v1/models", &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Reload asks the server to reload its models.
func (c *Client) Reload(ctx context.Context) ([]recognizer.ModelInfo, error) {
	var resp struct {
		Models []recognizer.ModelInfo `json:"models"`
	}
	if err := c.post(ctx, "/v1/models/reload", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Health checks if the API is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready reports whether the server is ready to recognize. A 503 from
// /readyz is not an error.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	err := c.get(ctx, "/readyz", nil)
	if err == nil {
		return true, nil
	}
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusServiceUnavailable {
		return false, nil
	}
	return false, err
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request. A request ID stored in the context is forwarded
// so server logs can be correlated with the caller's.
func (c *Client) do(req *http.Request, result any) error {
	if id := logger.RequestIDFrom(req.Context()); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
