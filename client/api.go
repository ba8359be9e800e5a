// Package client talks to a running detective engine: the JSON API for
// audits and interrogations, and the live signaling endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/detective_engine/pkg/audit"
	"example.com/detective_engine/pkg/config"
	"example.com/detective_engine/pkg/gemini"
)

// APIError is a non-2xx answer from the service. Input carries the text
// the server echoed back so the caller can offer a retry.
type APIError struct {
	StatusCode int
	Kind       string `json:"kind"`
	Message    string `json:"error"`
	Input      string `json:"input,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

// Client is an HTTP API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 150 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Analyze submits a narrative for audit.
func (c *Client) Analyze(ctx context.Context, text string) (*audit.Report, error) {
	var report audit.Report
	if err := c.do(ctx, http.MethodPost, "/api/analyze", map[string]string{"text": text}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Interrogate asks a suspect one question in the context of history.
func (c *Client) Interrogate(ctx context.Context, suspectID string, history []gemini.Message, message string) (string, error) {
	req := map[string]any{
		"suspect_id": suspectID,
		"history":    history,
		"message":    message,
	}
	var resp struct {
		Reply string `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/interrogate", req, &resp); err != nil {
		return "", err
	}
	return resp.Reply, nil
}

// Suspects lists the interrogation roster.
func (c *Client) Suspects(ctx context.Context) ([]config.Suspect, error) {
	var suspects []config.Suspect
	if err := c.do(ctx, http.MethodGet, "/api/suspects", nil, &suspects); err != nil {
		return nil, err
	}
	return suspects, nil
}

// Health returns the number of live sessions on a healthy server.
func (c *Client) Health(ctx context.Context) (int, error) {
	var health struct {
		Status       string `json:"status"`
		LiveSessions int    `json:"live_sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return 0, err
	}
	if health.Status != "ok" {
		return 0, fmt.Errorf("server unhealthy: %s", health.Status)
	}
	return health.LiveSessions, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
