// Package console renders the state of a running server for operators.
package console

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/api"
)

// Client makes REST calls to a running server.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient targets baseURL, e.g. "http://127.0.0.1:8080".
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Sessions fetches /api/whatsapp/sessions.
func (c *Client) Sessions(ctx context.Context) (*api.ListSessionsResponse, error) {
	var out api.ListSessionsResponse
	if err := c.get(ctx, "/api/whatsapp/sessions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches /api/health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.get(ctx, "/api/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return errors.Errorf("GET %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", path)
}
