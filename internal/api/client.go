// Package api is the REST client for the session service. Every call carries
// the bearer token; a non-2xx response is a uniform error with the server's
// human-readable message.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mzelenov/backstage/internal/auth"
	"github.com/mzelenov/backstage/internal/domain"
)

// Client is a session service API client.
type Client struct {
	BaseURL    string
	Tokens     auth.TokenSource
	HTTPClient *http.Client
}

func NewClient(baseURL string, tokens auth.TokenSource) *Client {
	return &Client{
		BaseURL:    baseURL,
		Tokens:     tokens,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the JSON wrapper every endpoint returns.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// SessionState is the authoritative snapshot returned by the server:
// session metadata plus the active roster.
type SessionState struct {
	Session      domain.Session       `json:"session"`
	Participants []domain.Participant `json:"participants"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.Tokens.Token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(respBody, &env)
		if env.Message == "" {
			env.Message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("session service error %d: %s", resp.StatusCode, env.Message)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("bad response envelope: %w", err)
	}
	return env.Data, nil
}

// GetSession fetches the authoritative session snapshot with its roster.
func (c *Client) GetSession(ctx context.Context, id domain.SessionID) (*SessionState, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/sessions/"+string(id), nil)
	if err != nil {
		return nil, err
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("bad session payload: %w", err)
	}
	return &state, nil
}

func (c *Client) JoinSession(ctx context.Context, id domain.SessionID) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/sessions/"+string(id)+"/join", nil)
	return err
}

func (c *Client) LeaveSession(ctx context.Context, id domain.SessionID) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/sessions/"+string(id)+"/leave", nil)
	return err
}

func (c *Client) StartSession(ctx context.Context, id domain.SessionID) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/sessions/"+string(id)+"/start", nil)
	return err
}

func (c *Client) EndSession(ctx context.Context, id domain.SessionID) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/sessions/"+string(id)+"/end", nil)
	return err
}

func (c *Client) MuteParticipant(ctx context.Context, id domain.SessionID, uid domain.UserID) error {
	_, err := c.doRequest(ctx, http.MethodPost,
		"/api/sessions/"+string(id)+"/participants/"+string(uid)+"/mute", nil)
	return err
}

func (c *Client) UnmuteParticipant(ctx context.Context, id domain.SessionID, uid domain.UserID) error {
	_, err := c.doRequest(ctx, http.MethodPost,
		"/api/sessions/"+string(id)+"/participants/"+string(uid)+"/unmute", nil)
	return err
}

func (c *Client) RemoveParticipant(ctx context.Context, id domain.SessionID, uid domain.UserID) error {
	_, err := c.doRequest(ctx, http.MethodDelete,
		"/api/sessions/"+string(id)+"/participants/"+string(uid), nil)
	return err
}
