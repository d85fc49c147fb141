package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	xerrors "DealPilot/internal/errors"
)

// ErrBrokerClosed 表示事件通道已关闭。
var ErrBrokerClosed = xerrors.New(xerrors.CodeInitializationFailure, "event broker closed", xerrors.WithRetryable(false))

// EventType 区分广播事件的种类。
type EventType string

const (
	EventStart    EventType = "start"
	EventLog      EventType = "log"
	EventComplete EventType = "complete"
)

// Event 是推送给订阅者的任务事件。
type Event struct {
	Type      EventType      `json:"type"`
	TaskID    string         `json:"task_id"`
	Persona   string         `json:"persona,omitempty"`
	Message   string         `json:"message,omitempty"`
	Status    Status         `json:"status,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Registry 是编排核心对外暴露的任务登记与日志通道。
type Registry interface {
	CreateTask(ctx context.Context, persona string, params map[string]any) (string, error)
	AppendLog(ctx context.Context, taskID, message string) error
	SetStatus(ctx context.Context, taskID string, status Status, result map[string]any) error
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Broker 将事件非阻塞地扇出给所有订阅者。
// 订阅者缓冲区写满时丢弃该订阅者的事件。
type Broker struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewBroker 创建 Broker，buffer 为每个订阅者的缓冲大小。
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{subs: make(map[uint64]chan Event), buffer: buffer}
}

// Subscribe 注册订阅者，ctx 结束时自动注销并关闭通道。
func (b *Broker) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()
	return ch, nil
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish 投递事件；不会阻塞调用方。
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers 返回当前订阅者数量。
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped 返回因缓冲区满而丢弃的事件数。
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Close 关闭所有订阅通道。
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
