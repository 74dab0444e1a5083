// Package remote is a stateless wrapper around the patcher daemon's HTTP
// API. Every call is an independent request with its own deadline against
// a shared client.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kvantos/patchbay/internal/domain"
)

// DefaultBaseURL is where the supervised daemon listens.
const DefaultBaseURL = "http://localhost:8080"

const (
	healthTimeout = 5 * time.Second
	configTimeout = 10 * time.Second
	updateTimeout = 10 * time.Second
	statusTimeout = 5 * time.Second
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

// Health reports whether the daemon answers GET /health with a 2xx. It
// never returns an error: any transport failure means "down".
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// GetConfig fetches the daemon's current configuration.
func (c *Client) GetConfig(ctx context.Context) (domain.AppConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, configTimeout)
	defer cancel()

	var cfg domain.AppConfig
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config", nil)
	if err != nil {
		return cfg, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// SetConfig pushes a configuration to the daemon.
func (c *Client) SetConfig(ctx context.Context, cfg domain.AppConfig) error {
	ctx, cancel := context.WithTimeout(ctx, configTimeout)
	defer cancel()

	if err := c.postJSON(ctx, "/config", cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// StartUpdate asks the daemon to begin an update run with the given
// configuration. The daemon answers before the run finishes; progress is
// observed through Status.
func (c *Client) StartUpdate(ctx context.Context, cfg domain.AppConfig) error {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	body := struct {
		Config domain.AppConfig `json:"config"`
	}{Config: cfg}

	if err := c.postJSON(ctx, "/update", body); err != nil {
		return fmt.Errorf("failed to start update: %w", err)
	}
	return nil
}

// Status fetches the current update snapshot. A transport failure is
// returned as an error; a body that fails to decode yields (nil, nil) -
// "no snapshot available right now" - and the caller decides what either
// outcome means.
func (c *Client) Status(ctx context.Context) (*domain.ProgressData, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data domain.ProgressData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, nil
	}
	return &data, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("daemon rejected request: %s", resp.Status)
	}
	return nil
}
