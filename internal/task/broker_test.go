package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Publish(Event{Type: EventLog, TaskID: "job", Message: "hello"})

	for i, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			if ev.TaskID != "job" || ev.Timestamp.IsZero() {
				t.Fatalf("subscriber %d got unexpected event %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(Event{Type: EventLog, TaskID: "job"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	if b.Dropped() != 4 {
		t.Fatalf("expected 4 dropped events, got %d", b.Dropped())
	}
	if len(ch) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(ch))
	}
}

func TestBrokerUnsubscribeOnContextDone(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}

	b.Close()
	if _, err := b.Subscribe(context.Background()); !errors.Is(err, ErrBrokerClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}
