package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/observability/alerting"
	"DealPilot/pkg/logger"
)

// Executor 执行一个已领取的任务。返回的结果在失败时也会作为诊断信息写入任务。
type Executor interface {
	Execute(ctx context.Context, task *Task, sink LogSink) (map[string]any, error)
}

// ExecutorFunc 将函数适配为 Executor。
type ExecutorFunc func(ctx context.Context, task *Task, sink LogSink) (map[string]any, error)

// Execute 实现 Executor。
func (f ExecutorFunc) Execute(ctx context.Context, task *Task, sink LogSink) (map[string]any, error) {
	return f(ctx, task, sink)
}

// JobObserver 接收任务结束时的观测数据。
type JobObserver interface {
	ObserveJob(persona string, status Status, took time.Duration)
}

// Processor 负责从队列消费任务并交给 Executor 执行。
type Processor struct {
	executor    Executor
	service     *Service
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	observer    JobObserver
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithJobObserver 配置任务指标采集。
func WithJobObserver(observer JobObserver) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, service *Service, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		service:     service,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

// Handle 处理单个任务，供同步执行与测试使用。
func (p *Processor) Handle(ctx context.Context, taskID string) error {
	return p.handle(ctx, taskID)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.service == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.service.claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskExhausted) {
			p.logDebug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "claim")
		return err
	}

	started := time.Now()
	sink := RegistrySink(p.service, task.ID)
	result, execErr := p.executor.Execute(ctx, task, sink)
	if execErr != nil {
		status, err := p.handleExecutionFailure(ctx, task, result, execErr)
		p.observe(task, status, started)
		return err
	}

	if err := p.service.complete(ctx, task.ID, result); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", task.ID))
		if stdErrors.Is(err, ErrTaskCompleted) {
			return nil
		}
		return err
	}
	p.observe(task, StatusSuccess, started)
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", task.ID),
		slog.String("persona", task.Persona),
		slog.Int("attempts", task.Attempts),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, result map[string]any, execErr error) (Status, error) {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	if stdErrors.Is(execErr, context.Canceled) {
		code = xerrors.CodeCancelled
	}
	retryable := xerrors.RetryableError(execErr) && ctx.Err() == nil
	terminal := task.Attempts >= task.MaxRetries || !retryable

	if !retryable && p.recovery != nil {
		fallback, recErr := p.recovery.Recover(ctx, task, execErr)
		switch {
		case recErr != nil:
			wrapped := xerrors.Wrap(CodeTaskCompensate, recErr, "任务补偿失败")
			logger.L().Error("执行补偿逻辑失败", slog.Any("error", wrapped), slog.String("task_id", task.ID))
			p.emitAlert(ctx, task, CodeTaskCompensate, wrapped, "compensate")
		case fallback != nil:
			if err := p.service.complete(ctx, task.ID, fallback); err != nil {
				logger.L().Error("记录降级结果失败", slog.Any("error", err), slog.String("task_id", task.ID))
				return StatusFailed, err
			}
			logger.Audit().Warn("任务降级完成",
				slog.String("task_id", task.ID),
				slog.String("persona", task.Persona),
				slog.String("cause", execErr.Error()),
			)
			return StatusSuccess, nil
		}
	}

	// 终态写入使用独立 ctx，避免任务被取消后状态无法落库。
	storeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if storeErr := p.service.fail(storeCtx, task, code, execErr.Error(), result, terminal); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", task.ID))
		return StatusFailed, storeErr
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("persona", task.Persona),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	if terminal || xerrors.ShouldAlert(execErr) {
		p.emitAlert(storeCtx, task, code, execErr, stage)
	}

	if !terminal {
		if p.producer == nil {
			return StatusPending, nil
		}
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return StatusPending, xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", task.ID))
		}
		p.logDebug("任务已重新排队", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
		return StatusPending, nil
	}
	return StatusFailed, nil
}

func (p *Processor) observe(task *Task, status Status, started time.Time) {
	if p.observer == nil || status == StatusPending {
		return
	}
	p.observer.ObserveJob(task.Persona, status, time.Since(started))
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger == nil {
		return
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	p.logger.Debug(msg, args...)
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		message = cause.Error()
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		Persona:    task.Persona,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
