package task

import "context"

// RecoveryHandler 定义了在任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因给出降级结果。
	// 返回非 nil 结果时任务以该结果标记为成功；返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (map[string]any, error)
}

// RecoveryFunc 将函数适配为 RecoveryHandler。
type RecoveryFunc func(ctx context.Context, task *Task, cause error) (map[string]any, error)

// Recover 实现 RecoveryHandler。
func (f RecoveryFunc) Recover(ctx context.Context, task *Task, cause error) (map[string]any, error) {
	return f(ctx, task, cause)
}
