package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not return promptly")
	}
}

func TestSleepZero(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Sleep(context.Background(), time.Second)
	_ = r.Sleep(context.Background(), 2*time.Second)
	if len(r.Waits) != 2 || r.Waits[1] != 2*time.Second {
		t.Fatalf("unexpected waits %v", r.Waits)
	}
}
