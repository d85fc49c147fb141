// Package surface defines the automation surface: the external device or
// agent runner that executes a natural-language goal inside an app and
// returns whatever text the agent produced.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	xerrors "DealPilot/internal/errors"
	"DealPilot/pkg/logger"
)

// Goal is one instruction for the automation agent.
type Goal struct {
	App  string `json:"app"`
	Text string `json:"goal"`
}

// Surface executes goals. Implementations wrap their failures with
// PLATFORM_SURFACE_ERROR via Failure.
type Surface interface {
	RunGoal(ctx context.Context, goal Goal) (string, error)
}

// Func adapts a function to Surface.
type Func func(ctx context.Context, goal Goal) (string, error)

// RunGoal implements Surface.
func (f Func) RunGoal(ctx context.Context, goal Goal) (string, error) {
	return f(ctx, goal)
}

// Resetter is implemented by surfaces that can return the device to its
// home screen between polling cycles.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Failure wraps err as a PLATFORM_SURFACE_ERROR for app. Context
// cancellation is passed through untouched so callers can stop promptly.
func Failure(app string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if xerrors.HasCode(err, xerrors.CodePlatformSurface) {
		return err
	}
	return xerrors.Wrap(xerrors.CodePlatformSurface, err, fmt.Sprintf("surface call for %s failed", app),
		xerrors.WithMetadata("app", app))
}

// Fallback runs goals on Primary and retries once on Secondary when the
// primary fails, e.g. a cloud runner backed by a local device.
type Fallback struct {
	Primary   Surface
	Secondary Surface
	Logger    *slog.Logger
}

// RunGoal implements Surface.
func (f *Fallback) RunGoal(ctx context.Context, goal Goal) (string, error) {
	out, err := f.Primary.RunGoal(ctx, goal)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil || f.Secondary == nil {
		return "", Failure(goal.App, err)
	}
	log := f.Logger
	if log == nil {
		log = logger.Named("surface")
	}
	log.Warn("primary surface failed, switching to fallback", "app", goal.App, "error", err)
	out, err2 := f.Secondary.RunGoal(ctx, goal)
	if err2 != nil {
		return "", Failure(goal.App, errors.Join(err, err2))
	}
	return out, nil
}

// Reset forwards to whichever side supports it.
func (f *Fallback) Reset(ctx context.Context) error {
	if r, ok := f.Primary.(Resetter); ok {
		return r.Reset(ctx)
	}
	if r, ok := f.Secondary.(Resetter); ok {
		return r.Reset(ctx)
	}
	_, err := f.RunGoal(ctx, HomeGoal)
	return err
}

// HomeGoal returns a device to its launcher between polling cycles.
var HomeGoal = Goal{Text: "Press the system Home button immediately. Do not swipe and do not open the keyboard."}

// GoHome resets s, using Reset when available and HomeGoal otherwise.
func GoHome(ctx context.Context, s Surface) error {
	if r, ok := s.(Resetter); ok {
		return r.Reset(ctx)
	}
	_, err := s.RunGoal(ctx, HomeGoal)
	return err
}
