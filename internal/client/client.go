// Package client talks to a daybook server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/daybook/internal/model"
)

const (
	DefaultServerURL = "http://127.0.0.1:37780"
	httpTimeout      = 10 * time.Second
)

// Mutation is the request body of the mutation routes.
type Mutation struct {
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	Day         int             `json:"day"`
	Type        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	Activity    string          `json:"activity,omitempty"`
	Description string          `json:"description,omitempty"`
	Start       string          `json:"start,omitempty"`
	End         string          `json:"end,omitempty"`
	Location    *model.Location `json:"location,omitempty"`
	Variable    string          `json:"variable,omitempty"`
	Value       string          `json:"value,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// Result is the success envelope of a mutation.
type Result struct {
	Message string             `json:"message"`
	Outcome string             `json:"outcome"`
	ID      string             `json:"id,omitempty"`
	Day     *model.DayDocument `json:"day,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Health is the server's /api/health report. Idempotency is set when the
// server replays requests carrying an Idempotency-Key.
type Health struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	DB          bool   `json:"db"`
	Idempotency bool   `json:"idempotency"`
}

// Client talks to the daybook server.
type Client struct {
	http      *http.Client
	serverURL string
	token     string

	mu     sync.Mutex
	replay *bool
}

// New creates a client for serverURL authenticating with token. An empty
// serverURL uses DefaultServerURL.
func New(serverURL, token string) *Client {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
		token:     token,
	}
}

// Create sends a create mutation. When the server reports replay the request
// carries an Idempotency-Key and one that fails in transport is sent once more
// under the same key. Without replay it is sent exactly once, since the first
// attempt may have been applied.
func (c *Client) Create(ctx context.Context, m Mutation) (*Result, error) {
	return c.mutate(ctx, http.MethodPost, "/api/activity/new", m)
}

func (c *Client) Edit(ctx context.Context, m Mutation) (*Result, error) {
	return c.mutate(ctx, http.MethodPatch, "/api/activity/edit", m)
}

func (c *Client) Delete(ctx context.Context, m Mutation) (*Result, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/activity/delete", m)
}

func (c *Client) mutate(ctx context.Context, method, path string, m Mutation) (*Result, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var key string
	if method == http.MethodPost && c.replays(ctx) {
		key = uuid.NewString()
	}
	var res Result
	err = c.do(ctx, method, path, key, body, &res)
	var apiErr *APIError
	if err != nil && key != "" && !errors.As(err, &apiErr) && ctx.Err() == nil {
		err = c.do(ctx, method, path, key, body, &res)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Day returns one day's document.
func (c *Client) Day(ctx context.Context, year, month, day int) (*model.DayDocument, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(month))
	q.Set("day", strconv.Itoa(day))

	var doc model.DayDocument
	if err := c.do(ctx, http.MethodGet, "/api/activity/day?"+q.Encode(), "", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Range returns the documents between from and to (YYYY-MM-DD, inclusive).
func (c *Client) Range(ctx context.Context, from, to string) ([]model.DayDocument, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var out struct {
		Days []model.DayDocument `json:"days"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/activity/range?"+q.Encode(), "", nil, &out); err != nil {
		return nil, err
	}
	return out.Days, nil
}

// User returns the caller's palette and mention names.
func (c *Client) User(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/api/user", "", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// replays reports whether the server stores idempotent responses. A failed
// lookup counts as no and is asked again next time.
func (c *Client) replays(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replay != nil {
		return *c.replay
	}
	h, err := c.Health(ctx)
	if err != nil {
		return false
	}
	c.replay = &h.Idempotency
	return h.Idempotency
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, r)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
