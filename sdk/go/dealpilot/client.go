// Package dealpilot is a Go client for the DealPilot job API.
package dealpilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

// DefaultHTTPTimeout is used by clients created without an explicit timeout.
const DefaultHTTPTimeout = 15 * time.Second

// Job statuses reported by the daemon.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Client wraps the HTTP interactions with the DealPilot REST API.
type Client struct {
	baseURL *url.URL
	http    *resty.Client
	dialer  *websocket.Dialer
	token   string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient routes requests through an existing http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = resty.NewWithClient(hc).SetBaseURL(c.baseURL.String())
		}
	}
}

// WithToken sends token as a bearer credential on every request and stream.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTimeout overrides DefaultHTTPTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

// TaskSubmission is the payload required to create a job.
type TaskSubmission struct {
	ID      string         `json:"id,omitempty"`
	Persona string         `json:"persona"`
	Params  map[string]any `json:"params,omitempty"`
}

// LogEntry is one progress line.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Task is the daemon's view of a job.
type Task struct {
	ID         string         `json:"id"`
	Persona    string         `json:"persona"`
	Params     map[string]any `json:"params,omitempty"`
	Status     string         `json:"status"`
	Logs       []LogEntry     `json:"logs,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Terminal reports whether the job has finished.
func (t *Task) Terminal() bool {
	return t != nil && (t.Status == StatusSuccess || t.Status == StatusFailed)
}

// Stats aggregates job counts.
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Success         int   `json:"success"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// Event is a message from the daemon's event stream.
type Event struct {
	Type      string         `json:"type"`
	TaskID    string         `json:"task_id"`
	Persona   string         `json:"persona,omitempty"`
	Message   string         `json:"message,omitempty"`
	Status    string         `json:"status,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ListFilter narrows List and Stats.
type ListFilter struct {
	Statuses  []string
	Persona   string
	Query     string
	Limit     int
	Offset    int
	Ascending bool
	HasResult *bool
}

func (f ListFilter) values() map[string]string {
	params := make(map[string]string)
	if len(f.Statuses) > 0 {
		params["status"] = strings.Join(f.Statuses, ",")
	}
	if f.Persona != "" {
		params["persona"] = f.Persona
	}
	if f.Query != "" {
		params["q"] = f.Query
	}
	if f.Limit > 0 {
		params["limit"] = strconv.Itoa(f.Limit)
	}
	if f.Offset > 0 {
		params["offset"] = strconv.Itoa(f.Offset)
	}
	if f.Ascending {
		params["order"] = "asc"
	}
	if f.HasResult != nil {
		params["has_result"] = strconv.FormatBool(*f.HasResult)
	}
	return params
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("dealpilot api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("dealpilot api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// NewClient instantiates a client for the DealPilot API.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(rawURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", rawURL)
	}
	c := &Client{
		baseURL: parsed,
		http: resty.New().
			SetBaseURL(parsed.String()).
			SetTimeout(DefaultHTTPTimeout),
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.http.SetHeader("Accept", "application/json")
	if c.token != "" {
		c.http.SetAuthToken(c.token)
	}
	return c, nil
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, submission TaskSubmission) (*Task, error) {
	var out Task
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(submission).
		SetResult(&out).
		Post("/api/v1/tasks")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches a job by id.
func (c *Client) Get(ctx context.Context, id string) (*Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("dealpilot: task id is required")
	}
	var out Task
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/api/v1/tasks/{id}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns jobs matching filter.
func (c *Client) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filter.values()).
		SetResult(&out).
		Get("/api/v1/tasks")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Stats returns job counts matching filter.
func (c *Client) Stats(ctx context.Context, filter ListFilter) (Stats, error) {
	var out Stats
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filter.values()).
		SetResult(&out).
		Get("/api/v1/tasks/stats")
	if err := check(resp, err); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// Wait polls Get until the job is terminal or ctx ends.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		current, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Terminal() {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stream opens the event stream and calls fn for every event until ctx ends,
// fn returns an error, or the server closes the stream. An empty taskID
// streams every job.
func (c *Client) Stream(ctx context.Context, taskID string, fn func(Event) error) error {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if taskID != "" {
		u.RawQuery = url.Values{"task_id": {taskID}}.Encode()
	}
	var header http.Header
	if c.token != "" {
		header = http.Header{"Authorization": {"Bearer " + c.token}}
	}
	conn, _, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	body := resp.Body()
	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
