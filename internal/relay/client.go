// Package relay sends submission events to a hosted webhook relay that
// speaks the Svix message API.
package relay

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
)

// ErrNotConfigured is returned by Create when no API token was supplied.
var ErrNotConfigured = errors.New("webhook relay is not configured")

// Message is one event published to an application's subscribers.
type Message struct {
	EventType string `json:"eventType"`
	EventID   string `json:"eventId,omitempty"`
	Payload   any    `json:"payload"`
}

// MessageOut is the relay's acknowledgement.
type MessageOut struct {
	ID        string `json:"id"`
	EventType string `json:"eventType"`
	EventID   string `json:"eventId"`
}

// Client publishes messages to the relay.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a relay Client. httpClient should be the guarded
// outbound client.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = "https://api.svix.com"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Create publishes msg to the application appID.
func (c *Client) Create(ctx context.Context, appID string, msg Message) (*MessageOut, error) {
	if c.token == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode relay message: %w", err)
	}

	endpoint := c.baseURL + "/api/v1/app/" + url.PathEscape(appID) + "/msg/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if msg.EventID != "" {
		req.Header.Set("Idempotency-Key", msg.EventID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send relay message: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out MessageOut
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("decode relay response: %w", err)
		}
	}
	return &out, nil
}
