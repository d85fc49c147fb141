package surface

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "DealPilot/internal/errors"
)

func TestPoolSerialisesSingleSurface(t *testing.T) {
	var active, peak atomic.Int32
	s := Func(func(ctx context.Context, goal Goal) (string, error) {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return goal.App, nil
	})
	pool, err := NewPool(s)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Run(context.Background(), Goal{App: "Zomato"}); err != nil {
				t.Errorf("run: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("expected strictly sequential use, peak=%d", peak.Load())
	}
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	pool, err := NewPool(Func(func(context.Context, Goal) (string, error) { return "", nil }))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	lease.Release()
	lease.Release()
	second, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	second.Release()
}

func TestPoolDistinctLeases(t *testing.T) {
	a := Func(func(context.Context, Goal) (string, error) { return "a", nil })
	b := Func(func(context.Context, Goal) (string, error) { return "b", nil })
	pool, err := NewPool(a, b)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	l1, _ := pool.Acquire(context.Background())
	l2, _ := pool.Acquire(context.Background())
	o1, _ := l1.RunGoal(context.Background(), Goal{})
	o2, _ := l2.RunGoal(context.Background(), Goal{})
	if o1 == o2 {
		t.Fatalf("leases share a surface: %s", o1)
	}
	l1.Release()
	l2.Release()
}

func TestNewPoolEmpty(t *testing.T) {
	if _, err := NewPool(); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

func TestFallback(t *testing.T) {
	primary := Func(func(context.Context, Goal) (string, error) { return "", errors.New("cloud down") })
	secondary := Func(func(_ context.Context, g Goal) (string, error) { return "local:" + g.App, nil })
	fb := &Fallback{Primary: primary, Secondary: secondary}
	out, err := fb.RunGoal(context.Background(), Goal{App: "Uber"})
	if err != nil || out != "local:Uber" {
		t.Fatalf("unexpected fallback result %q, %v", out, err)
	}

	fb.Secondary = Func(func(context.Context, Goal) (string, error) { return "", errors.New("adb offline") })
	_, err = fb.RunGoal(context.Background(), Goal{App: "Uber"})
	if !xerrors.HasCode(err, xerrors.CodePlatformSurface) {
		t.Fatalf("expected surface error, got %v", err)
	}
	if !xerrors.RetryableError(err) {
		t.Fatalf("surface errors should be retryable")
	}
}

func TestFailurePassesCancellation(t *testing.T) {
	if err := Failure("x", context.Canceled); !errors.Is(err, context.Canceled) || xerrors.HasCode(err, xerrors.CodePlatformSurface) {
		t.Fatalf("cancellation must not be wrapped: %v", err)
	}
}
