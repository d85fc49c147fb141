// Package command runs goals through a local automation executable, such as
// an on-device agent wrapper, passing the goal as JSON on stdin.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"DealPilot/internal/surface"
)

// Config describes the local executable.
type Config struct {
	Executable string
	Args       []string
	WorkingDir string
	Timeout    time.Duration
}

// Client executes one process per goal and returns its stdout.
type Client struct {
	executable string
	args       []string
	workingDir string
	timeout    time.Duration
}

// NewClient creates a command surface.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Executable) == "" {
		return nil, errors.New("executable is required")
	}
	return &Client{
		executable: cfg.Executable,
		args:       append([]string(nil), cfg.Args...),
		workingDir: cfg.WorkingDir,
		timeout:    cfg.Timeout,
	}, nil
}

// RunGoal implements surface.Surface.
func (c *Client) RunGoal(ctx context.Context, goal surface.Goal) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"app":       goal.App,
		"goal":      goal.Text,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return "", surface.Failure(goal.App, fmt.Errorf("encode goal: %w", err))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.executable, c.args...)
	if c.workingDir != "" {
		cmd.Dir = c.workingDir
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return "", ctxErr
		}
		return "", surface.Failure(goal.App, fmt.Errorf("run %s: %v, stderr=%s", c.executable, err, strings.TrimSpace(stderr.String())))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ResolvePath joins a relative executable path onto baseDir.
func ResolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" || !strings.ContainsRune(path, filepath.Separator) {
		return path
	}
	return filepath.Join(baseDir, path)
}
