package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisQueueDeliversAndRequeues(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queue := NewRedisQueueWithClient(client, "test:jobs", 50*time.Millisecond)
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, id := range []string{"a", "b"} {
		if err := queue.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{})
	handler := func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		seen[id]++
		if id == "b" && seen[id] == 1 {
			return errors.New("transient")
		}
		if seen["a"] == 1 && seen["b"] == 2 {
			close(done)
		}
		return nil
	}

	go func() {
		_ = queue.Consume(ctx, 1, handler)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("timed out, seen=%v", seen)
	}
	cancel()
}
