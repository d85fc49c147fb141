package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"DealPilot/pkg/logger"
)

// LogSink 接收编排核心产生的进度消息。
type LogSink interface {
	Log(ctx context.Context, message string)
}

// NopSink 丢弃所有消息。
type NopSink struct{}

// Log 实现 LogSink。
func (NopSink) Log(context.Context, string) {}

// SinkFunc 将函数适配为 LogSink。
type SinkFunc func(ctx context.Context, message string)

// Log 实现 LogSink。
func (f SinkFunc) Log(ctx context.Context, message string) { f(ctx, message) }

// Logf 格式化消息后写入 sink，sink 为 nil 时静默丢弃。
func Logf(ctx context.Context, sink LogSink, format string, args ...any) {
	if sink == nil {
		return
	}
	sink.Log(ctx, fmt.Sprintf(format, args...))
}

// RecordingSink 在内存中保存消息，供测试与无头运行读取。
type RecordingSink struct {
	mu       sync.Mutex
	messages []string
}

// Log 实现 LogSink。
func (r *RecordingSink) Log(_ context.Context, message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
}

// Messages 返回已记录消息的副本。
func (r *RecordingSink) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type registrySink struct {
	registry Registry
	taskID   string
}

// RegistrySink 返回一个把消息追加到指定任务日志的 sink。
func RegistrySink(registry Registry, taskID string) LogSink {
	if registry == nil {
		return NopSink{}
	}
	return registrySink{registry: registry, taskID: taskID}
}

func (s registrySink) Log(ctx context.Context, message string) {
	if err := s.registry.AppendLog(ctx, s.taskID, message); err != nil {
		logger.L().Warn("追加任务日志失败",
			slog.String("task_id", s.taskID),
			slog.Any("error", err),
		)
	}
}
