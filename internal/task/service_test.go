package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestServiceRegistryLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(NewMemoryStore(), nil, 1)
	events, err := svc.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	id, err := svc.CreateTask(ctx, "Foodie", map[string]any{"food_item": "Pizza"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.SetStatus(ctx, id, StatusRunning, nil); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := svc.AppendLog(ctx, id, "Checking Zomato"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.SetStatus(ctx, id, StatusSuccess, map[string]any{"platform": "Zomato"}); err != nil {
		t.Fatalf("success: %v", err)
	}
	if err := svc.SetStatus(ctx, id, StatusFailed, nil); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf("expected terminal status to be final, got %v", err)
	}

	got := collect(t, events, 3)
	if got[0].Type != EventStart || got[0].Persona != "foodie" {
		t.Fatalf("unexpected start event: %+v", got[0])
	}
	if got[1].Type != EventLog || got[1].Message[0] != '[' {
		t.Fatalf("unexpected log event: %+v", got[1])
	}
	if got[2].Type != EventComplete || got[2].Status != StatusSuccess || got[2].Result["platform"] != "Zomato" {
		t.Fatalf("unexpected complete event: %+v", got[2])
	}

	task, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != StatusSuccess || len(task.Logs) != 1 || task.Attempts != 1 {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestServiceSetStatusFailedCarriesCode(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil, 1)
	id, err := svc.CreateTask(ctx, "coordinator", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = svc.SetStatus(ctx, id, StatusFailed, map[string]any{
		"error":      "nobody replied",
		"error_code": "ORCHESTRATION_ABORTED",
	})
	if err != nil {
		t.Fatalf("failed: %v", err)
	}
	task, _ := svc.Get(ctx, id)
	if task.Status != StatusFailed || task.ErrorCode != "ORCHESTRATION_ABORTED" || task.LastError != "nobody replied" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if err := svc.SetStatus(ctx, id, StatusPending, nil); err == nil {
		t.Fatalf("expected pending transition to be rejected")
	}
}

func TestServiceSubmitIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue(4)
	svc := NewService(NewMemoryStore(), queue, 2)

	first, err := svc.Enqueue(ctx, Request{ID: "fixed", Persona: "shopper", Params: map[string]any{"product": "mouse"}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := svc.Enqueue(ctx, Request{ID: "fixed", Persona: "shopper"})
	if err != nil {
		t.Fatalf("enqueue again: %v", err)
	}
	if first.ID != second.ID || queue.Len() != 1 {
		t.Fatalf("expected single queued job, got %d", queue.Len())
	}
	if _, err := svc.Submit(ctx, "  ", nil); err == nil {
		t.Fatalf("expected validation error for empty persona")
	}
}

func TestServiceSubmitMarksPublishFailure(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue(1)
	_ = queue.Close()
	store := NewMemoryStore()
	svc := NewService(store, queue, 1)

	if _, err := svc.Submit(ctx, "rider", nil); err == nil {
		t.Fatalf("expected publish error")
	}
	tasks, err := svc.List(ctx, WithStatuses(StatusFailed))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ErrorCode != string(CodeTaskPublish) {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestServiceWaitUntilCompleted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc := NewService(NewMemoryStore(), nil, 1)
	id, _ := svc.CreateTask(ctx, "traveller", nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = svc.SetStatus(ctx, id, StatusRunning, nil)
		_ = svc.SetStatus(ctx, id, StatusSuccess, map[string]any{"ok": true})
	}()

	task, err := svc.WaitUntilCompleted(ctx, id, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if task.Status != StatusSuccess {
		t.Fatalf("unexpected status %s", task.Status)
	}
	stats, err := svc.Stats(ctx)
	if err != nil || stats.Success != 1 {
		t.Fatalf("unexpected stats %+v err=%v", stats, err)
	}
}
