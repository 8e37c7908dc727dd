package services

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

	"github.com/mla-quiz/medref/internal/models"
)

// ControlClient talks to a running gateway's control surface
type ControlClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewControlClient creates a new control client. token may be empty when the gateway has no secret.
func NewControlClient(baseURL, token string) *ControlClient {
	return &ControlClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// SyncResponse is the reply to a sync trigger
type SyncResponse struct {
	Results []models.SyncResult `json:"results"`
}

// SubmissionsResponse lists pending submissions including dead letters
type SubmissionsResponse struct {
	Submissions []models.PendingSubmission `json:"submissions"`
}

// Sync triggers a replay with the given tag
func (c *ControlClient) Sync(ctx context.Context, tag string) (*SyncResponse, error) {
	var result SyncResponse
	path := "/_sw/sync?tag=" + url.QueryEscape(tag)
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to sync: %w", err)
	}
	return &result, nil
}

// Status fetches the gateway's offline status
func (c *ControlClient) Status(ctx context.Context) (*models.OfflineStatus, error) {
	var status models.OfflineStatus
	if err := c.do(ctx, http.MethodGet, "/_sw/status", nil, &status); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &status, nil
}

// Submissions lists the pending submission queue
func (c *ControlClient) Submissions(ctx context.Context) (*SubmissionsResponse, error) {
	var result SubmissionsResponse
	if err := c.do(ctx, http.MethodGet, "/_sw/submissions", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return &result, nil
}

// Send posts a control message and decodes the reply into out
func (c *ControlClient) Send(ctx context.Context, msg models.ControlMessage, out any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, "/_sw/message", data, out); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *ControlClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
