// Package chat provides a client for the chat server's REST endpoints and
// its WebSocket event stream.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// Client is a chat API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new chat client. An empty token is loaded from
// CHAT_TOKEN or the token file in the config directory.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CHAT_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".chat")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	if c.Token == "" {
		c.Token = os.Getenv("CHAT_TOKEN")
	}
	if c.Token == "" {
		_ = c.LoadToken()
	}
	return c
}

// LoadToken reads the saved token from the config directory.
func (c *Client) LoadToken() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "token"))
	if err != nil {
		return err
	}
	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken writes the current token to the config directory.
func (c *Client) SaveToken() error {
	if err := os.MkdirAll(c.ConfigDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.ConfigDir, "token"), []byte(c.Token+"\n"), 0o600)
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, authed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chat error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Node        string `json:"node"`
	Connections int    `json:"connections"`
	Checks      map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
}

// Health checks server health. A degraded server is reported as an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/health", nil, false)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PresenceResponse reports a user's presence.
type PresenceResponse struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// Presence looks up whether a user is online.
func (c *Client) Presence(ctx context.Context, userID string) (*PresenceResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/presence/"+url.PathEscape(userID), nil, true)
	if err != nil {
		return nil, err
	}

	var resp PresenceResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WebRTCConfig fetches the ICE servers to use for calls.
func (c *Client) WebRTCConfig(ctx context.Context) (webrtc.Configuration, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/front/config/webrtc", nil, true)
	if err != nil {
		return webrtc.Configuration{}, err
	}

	var resp struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return webrtc.Configuration{}, err
	}
	return webrtc.Configuration{ICEServers: resp.ICEServers}, nil
}

// socketURL returns the WebSocket endpoint with the token attached.
func (c *Client) socketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {c.Token}}.Encode()
	return u.String(), nil
}
