// ABOUTME: SSE event tailing for the nexusctl events command
// ABOUTME: Parses the stream line protocol and tracks the last event ID

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Event is one item from the gateway's event stream.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// StreamEvents tails /api/events, invoking fn for each event until ctx
// ends or the connection drops. since resumes after a known event ID;
// pattern filters by event type.
func (c *Client) StreamEvents(ctx context.Context, since, pattern string, fn func(*Event) error) error {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	if pattern != "" {
		query.Set("pattern", pattern)
	}
	path := "/api/events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// The stream outlives the client's default timeout
	streaming := &http.Client{}
	resp, err := streaming.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream failed: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				var evt Event
				if err := json.Unmarshal([]byte(data), &evt); err == nil {
					if err := fn(&evt); err != nil {
						return err
					}
				}
				data = ""
			}
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return ctx.Err()
}
