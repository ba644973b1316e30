// ABOUTME: HTTP client for the nexus-gateway request/response channel
// ABOUTME: Used by nexusctl; wraps the envelope and error kinds

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
)

// Client talks to a gateway over the request/response channel.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client. token may be empty for anonymous calls.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Metadata is the envelope trailer the gateway attaches to every response.
type Metadata struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError is a gateway-reported failure.
type APIError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"-"`
	Status    int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Kind, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// LoginResult is the response to Login.
type LoginResult struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Workflow describes one executable workflow.
type Workflow struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Run mirrors the gateway's run payload.
type Run struct {
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	Version    int            `json:"version"`
	Status     string         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
}

// Terminal reports whether the run can change no further.
func (r *Run) Terminal() bool {
	switch r.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Login creates a session for the user and returns its token.
func (c *Client) Login(ctx context.Context, userID string, tenantID string) (*LoginResult, error) {
	body := map[string]any{"user_id": userID}
	if tenantID != "" {
		body["tenant_id"] = tenantID
	}
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Workflows lists the registered workflows.
func (c *Client) Workflows(ctx context.Context) ([]Workflow, error) {
	var result struct {
		Workflows []Workflow `json:"workflows"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/workflows", nil, &result); err != nil {
		return nil, err
	}
	return result.Workflows, nil
}

// Execute starts a workflow run. async returns as soon as the run is
// recorded instead of waiting for a terminal state.
func (c *Client) Execute(ctx context.Context, workflow string, inputs map[string]any, async bool) (*Run, error) {
	body := map[string]any{"inputs": inputs, "async": async}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/api/workflows/"+workflow+"/execute", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun fetches a run by ID.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun requests cancellation and returns the resulting state.
func (c *Client) CancelRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodDelete, "/api/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// WatchRun polls until the run reaches a terminal state or ctx ends.
func (c *Client) WatchRun(ctx context.Context, runID string, interval time.Duration) (*Run, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: %s", resp.Status)
	}
	return nil
}

// do performs one enveloped request. data decodes into out on success;
// failures come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env struct {
		Success  bool            `json:"success"`
		Data     json.RawMessage `json:"data"`
		Metadata Metadata        `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding response (%s): %w", resp.Status, err)
	}

	if !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: env.Metadata.RequestID}
		if err := json.Unmarshal(env.Data, apiErr); err != nil {
			apiErr.Kind = "unknown"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}
