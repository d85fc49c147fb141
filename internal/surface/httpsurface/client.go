// Package httpsurface drives a remote automation runner over HTTP.
package httpsurface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"DealPilot/internal/surface"
)

const defaultTimeout = 5 * time.Minute

// Config describes the runner endpoint.
type Config struct {
	BaseURL   string
	APIKey    string
	Device    string
	SessionID string
	Timeout   time.Duration
	// AppIDs maps display names such as "Zomato" to package ids. Apps
	// without an entry are rejected so a Fallback can take over.
	AppIDs map[string]string
}

// Client submits goals to POST {base}/v1/jobs and waits for the reply.
type Client struct {
	http      *resty.Client
	device    string
	sessionID string
	appIDs    map[string]string
}

type jobRequest struct {
	AppID       string `json:"app_id,omitempty"`
	App         string `json:"app,omitempty"`
	Instruction string `json:"instruction"`
	Device      string `json:"device,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

type jobResponse struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// ErrUnknownApp means no app id is mapped for the goal's app.
var ErrUnknownApp = errors.New("no app id mapped")

// NewClient creates a runner client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("runner base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	ids := make(map[string]string, len(cfg.AppIDs))
	for name, id := range cfg.AppIDs {
		ids[strings.ToLower(name)] = id
	}
	return &Client{http: client, device: cfg.Device, sessionID: cfg.SessionID, appIDs: ids}, nil
}

// RunGoal implements surface.Surface.
func (c *Client) RunGoal(ctx context.Context, goal surface.Goal) (string, error) {
	req := jobRequest{
		App:         goal.App,
		Instruction: goal.Text,
		Device:      c.device,
		SessionID:   c.sessionID,
	}
	if goal.App != "" {
		id, ok := c.appIDs[strings.ToLower(goal.App)]
		if !ok {
			return "", surface.Failure(goal.App, fmt.Errorf("%w: %s", ErrUnknownApp, goal.App))
		}
		req.AppID = id
	}

	var result jobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/jobs")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", surface.Failure(goal.App, err)
	}
	if resp.IsError() {
		return "", surface.Failure(goal.App, fmt.Errorf("runner returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())))
	}
	switch strings.ToLower(result.Status) {
	case "completed", "success", "succeeded":
	default:
		msg := result.Error
		if msg == "" {
			msg = "job " + result.Status
		}
		return "", surface.Failure(goal.App, errors.New(msg))
	}
	return outputText(result.Output), nil
}

// outputText returns string outputs unquoted and structured outputs verbatim.
func outputText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
