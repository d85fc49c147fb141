package platform

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/surface"
	"DealPilot/pkg/logger"
)

// Adapter executes goals on a named platform and returns the raw agent text.
type Adapter interface {
	Search(ctx context.Context, platform string, q Query) (string, error)
	Order(ctx context.Context, platform string, q Query, target string) (string, error)
}

// Recorder receives surface call outcomes, for metrics.
type Recorder interface {
	ObserveSurfaceCall(platform, action string, took time.Duration, err error)
}

// RetryPolicy bounds retries of retryable surface failures.
type RetryPolicy struct {
	MaxRetries  uint64
	BaseDelay   time.Duration
	MaxDuration time.Duration
}

// SurfaceAdapter is the single Adapter for every variant.
type SurfaceAdapter struct {
	surface   surface.Surface
	variant   Variant
	templates *Templates
	retry     RetryPolicy
	recorder  Recorder
	logger    *slog.Logger
}

// Option customises a SurfaceAdapter.
type Option func(*SurfaceAdapter)

// WithTemplates replaces the built-in goal templates.
func WithTemplates(t *Templates) Option {
	return func(a *SurfaceAdapter) {
		if t != nil {
			a.templates = t
		}
	}
}

// WithRetry enables bounded retries for searches.
func WithRetry(p RetryPolicy) Option {
	return func(a *SurfaceAdapter) {
		a.retry = p
	}
}

// WithRecorder attaches a call recorder.
func WithRecorder(r Recorder) Option {
	return func(a *SurfaceAdapter) {
		a.recorder = r
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *SurfaceAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewSurfaceAdapter builds an adapter for variant over s.
func NewSurfaceAdapter(s surface.Surface, variant Variant, opts ...Option) (*SurfaceAdapter, error) {
	a := &SurfaceAdapter{surface: s, variant: variant, logger: logger.Named("platform")}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.templates == nil {
		t, err := BuiltinTemplates(variant)
		if err != nil {
			return nil, err
		}
		a.templates = t
	}
	return a, nil
}

// Variant returns the adapter's variant.
func (a *SurfaceAdapter) Variant() Variant { return a.variant }

// Search runs the search goal. Retryable surface failures are retried with
// exponential backoff within the policy bounds.
func (a *SurfaceAdapter) Search(ctx context.Context, platform string, q Query) (string, error) {
	goal, err := a.templates.SearchGoal(platform, q)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "render search goal")
	}
	var out string
	err = retry.Do(ctx, a.backoff(), func(ctx context.Context) error {
		var callErr error
		out, callErr = a.call(ctx, platform, "search", goal)
		if callErr != nil && xerrors.RetryableError(callErr) {
			a.logger.Warn("search attempt failed", "platform", platform, "item", q.Item, "error", callErr)
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	return out, err
}

// Order runs the order goal exactly once; orders are never retried.
func (a *SurfaceAdapter) Order(ctx context.Context, platform string, q Query, target string) (string, error) {
	goal, err := a.templates.OrderGoal(platform, q, target)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "render order goal")
	}
	return a.call(ctx, platform, "order", goal)
}

func (a *SurfaceAdapter) call(ctx context.Context, platform, action, goal string) (string, error) {
	start := time.Now()
	out, err := a.surface.RunGoal(ctx, surface.Goal{App: platform, Text: goal})
	err = surface.Failure(platform, err)
	if a.recorder != nil {
		a.recorder.ObserveSurfaceCall(platform, action, time.Since(start), err)
	}
	return out, err
}

func (a *SurfaceAdapter) backoff() retry.Backoff {
	base := a.retry.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if a.retry.MaxDuration > 0 {
		b = retry.WithMaxDuration(a.retry.MaxDuration, b)
	}
	return retry.WithMaxRetries(a.retry.MaxRetries, b)
}
