package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/surface"
)

type callRecorder struct {
	mu    sync.Mutex
	calls []string
	errs  int
}

func (r *callRecorder) ObserveSurfaceCall(platform, action string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, platform+":"+action)
	if err != nil {
		r.errs++
	}
}

func TestSurfaceAdapterRetriesSearch(t *testing.T) {
	var goals []surface.Goal
	s := surface.Func(func(_ context.Context, g surface.Goal) (string, error) {
		goals = append(goals, g)
		if len(goals) == 1 {
			return "", errors.New("device busy")
		}
		return `{"title":"Margherita","price":"₹199"}`, nil
	})
	rec := &callRecorder{}
	a, err := NewSurfaceAdapter(s, VariantFood,
		WithRetry(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}),
		WithRecorder(rec))
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}

	out, err := a.Search(context.Background(), "Zomato", Query{Item: "Pizza"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if out == "" || len(goals) != 2 || goals[0].App != "Zomato" {
		t.Fatalf("unexpected calls: %+v", goals)
	}
	if len(rec.calls) != 2 || rec.errs != 1 {
		t.Fatalf("unexpected recorder state: %+v", rec)
	}
}

func TestSurfaceAdapterGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	s := surface.Func(func(context.Context, surface.Goal) (string, error) {
		calls++
		return "", errors.New("offline")
	})
	a, _ := NewSurfaceAdapter(s, VariantCommerce, WithRetry(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}))

	_, err := a.Search(context.Background(), "Amazon", Query{Item: "kettle"})
	if !xerrors.HasCode(err, xerrors.CodePlatformSurface) {
		t.Fatalf("expected surface error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", calls)
	}
}

func TestSurfaceAdapterNeverRetriesOrders(t *testing.T) {
	calls := 0
	s := surface.Func(func(context.Context, surface.Goal) (string, error) {
		calls++
		return "", errors.New("checkout crashed")
	})
	a, _ := NewSurfaceAdapter(s, VariantFood, WithRetry(RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}))

	if _, err := a.Order(context.Background(), "Swiggy", Query{Item: "Pizza"}, "Farmhouse"); err == nil {
		t.Fatalf("expected order error")
	}
	if calls != 1 {
		t.Fatalf("order must run once, ran %d times", calls)
	}
}

func TestSurfaceAdapterStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := surface.Func(func(ctx context.Context, _ surface.Goal) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	a, _ := NewSurfaceAdapter(s, VariantRide, WithRetry(RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}))
	if _, err := a.Search(ctx, "Uber", Query{Pickup: "A", Drop: "B"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
