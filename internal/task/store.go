package task

import (
	"context"

	xerrors "DealPilot/internal/errors"
)

// Store 抽象了任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Claim 将待处理任务切换为运行中并累加尝试次数。
	Claim(ctx context.Context, id string) (*Task, error)
	AppendLog(ctx context.Context, id string, entry LogEntry) error
	MarkSucceeded(ctx context.Context, id string, result map[string]any) error
	// MarkFailed 记录失败；terminal 为 false 时任务回到 pending 等待重投。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result map[string]any, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}
