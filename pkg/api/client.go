package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/marmos91/hsync/pkg/api/handlers"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/session"
)

// Error is a non-2xx answer from the admin API.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("admin API: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("admin API: %s", e.Detail)
}

// Client reads the admin API of a running server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API at baseURL, e.g. "http://127.0.0.1:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (*protocol.StatusInfo, error) {
	var info protocol.StatusInfo
	if err := c.get(ctx, "/api/v1/status", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Sessions fetches GET /api/v1/sessions.
func (c *Client) Sessions(ctx context.Context) ([]session.Info, error) {
	var list []session.Info
	if err := c.get(ctx, "/api/v1/sessions", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Session fetches GET /api/v1/sessions/{id}.
func (c *Client) Session(ctx context.Context, id string) (*session.Info, error) {
	var info session.Info
	if err := c.get(ctx, "/api/v1/sessions/"+id, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) get(ctx context.Context, path string, data any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read admin API response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var p handlers.Problem
		if json.Unmarshal(body, &p) == nil && p.Detail != "" {
			return &Error{StatusCode: resp.StatusCode, Detail: p.Detail}
		}
		return &Error{StatusCode: resp.StatusCode}
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode admin API response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, data)
}
