// Package clock holds the cancellable wait used between automation calls.
package clock

import (
	"context"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d and returns ctx.Err() if the context ends first.
// Non-positive durations only check the context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recorder is a SleepFunc for tests that records requested waits without blocking.
type Recorder struct {
	Waits []time.Duration
}

// Sleep records d and checks ctx.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.Waits = append(r.Waits, d)
	return ctx.Err()
}
