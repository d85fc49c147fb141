package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "DealPilot/internal/errors"
	"DealPilot/pkg/logger"
)

// Request 描述一次任务提交。ID 为空时自动生成；同一 ID 重复提交返回已有任务。
type Request struct {
	ID      string         `json:"id,omitempty"`
	Persona string         `json:"persona"`
	Params  map[string]any `json:"params,omitempty"`
}

// Service 负责任务的创建、查询与事件广播，并实现 Registry。
type Service struct {
	store      Store
	producer   Producer
	broker     *Broker
	maxRetries int
	now        func() time.Time
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithBroker 指定事件广播器。
func WithBroker(broker *Broker) ServiceOption {
	return func(s *Service) {
		if broker != nil {
			s.broker = broker
		}
	}
}

// NewService 构造任务服务。producer 为 nil 时只能通过 Registry 接口在进程内执行任务。
func NewService(store Store, producer Producer, maxRetries int, opts ...ServiceOption) *Service {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	s := &Service{store: store, producer: producer, maxRetries: maxRetries, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.broker == nil {
		s.broker = NewBroker(0)
	}
	return s
}

// Broker 返回事件广播器。
func (s *Service) Broker() *Broker {
	return s.broker
}

// Submit 创建任务并推送到队列。
func (s *Service) Submit(ctx context.Context, persona string, params map[string]any) (*Task, error) {
	return s.Enqueue(ctx, Request{Persona: persona, Params: params})
}

// Enqueue 按请求创建任务并推送到队列。
func (s *Service) Enqueue(ctx context.Context, req Request) (*Task, error) {
	if s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务队列未初始化")
	}
	task, created, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	if !created {
		return task, nil
	}
	if err := s.producer.Publish(ctx, task.ID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("task_id", task.ID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		_ = s.fail(ctx, task, CodeTaskPublish, wrapped.Error(), nil, true)
		return nil, wrapped
	}
	logger.Audit().Info("任务入队成功",
		slog.String("task_id", task.ID),
		slog.String("persona", task.Persona),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

// CreateTask 实现 Registry，登记任务但不入队。
func (s *Service) CreateTask(ctx context.Context, persona string, params map[string]any) (string, error) {
	task, _, err := s.create(ctx, Request{Persona: persona, Params: params})
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

func (s *Service) create(ctx context.Context, req Request) (*Task, bool, error) {
	persona := strings.ToLower(strings.TrimSpace(req.Persona))
	if persona == "" {
		return nil, false, xerrors.New(CodeTaskValidation, "persona 不能为空")
	}
	if s.store == nil {
		return nil, false, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}

	taskID := strings.TrimSpace(req.ID)
	if taskID != "" {
		existing, err := s.store.Get(ctx, taskID)
		if err == nil {
			return existing, false, nil
		}
		if !stdErrors.Is(err, ErrTaskNotFound) {
			return nil, false, err
		}
	} else {
		taskID = uuid.NewString()
	}

	task := &Task{
		ID:         taskID,
		Persona:    persona,
		Params:     cloneMap(req.Params),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			if existing, getErr := s.store.Get(ctx, taskID); getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	s.broker.Publish(Event{
		Type:      EventStart,
		TaskID:    task.ID,
		Persona:   task.Persona,
		Timestamp: s.now(),
	})
	return task, true, nil
}

// AppendLog 实现 Registry，追加进度日志并广播。
func (s *Service) AppendLog(ctx context.Context, taskID, message string) error {
	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	entry := LogEntry{At: s.now(), Message: message}
	if err := s.store.AppendLog(ctx, taskID, entry); err != nil {
		return err
	}
	logger.L().Info(message, slog.String("task_id", taskID))
	s.broker.Publish(Event{
		Type:      EventLog,
		TaskID:    taskID,
		Message:   entry.String(),
		Timestamp: entry.At,
	})
	return nil
}

// SetStatus 实现 Registry。running 等同于领取任务；success/failed 为终态且只能写入一次。
func (s *Service) SetStatus(ctx context.Context, taskID string, status Status, result map[string]any) error {
	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	switch status {
	case StatusRunning:
		_, err := s.claim(ctx, taskID)
		return err
	case StatusSuccess:
		return s.complete(ctx, taskID, result)
	case StatusFailed:
		task, err := s.store.Get(ctx, taskID)
		if err != nil {
			return err
		}
		code, message := failureFromResult(result)
		return s.fail(ctx, task, code, message, result, true)
	default:
		return xerrors.New(CodeTaskValidation, fmt.Sprintf("不支持的状态变更: %s", status))
	}
}

// Subscribe 实现 Registry。
func (s *Service) Subscribe(ctx context.Context) (<-chan Event, error) {
	return s.broker.Subscribe(ctx)
}

func (s *Service) claim(ctx context.Context, taskID string) (*Task, error) {
	return s.store.Claim(ctx, taskID)
}

func (s *Service) complete(ctx context.Context, taskID string, result map[string]any) error {
	if err := s.store.MarkSucceeded(ctx, taskID, result); err != nil {
		return err
	}
	s.broker.Publish(Event{
		Type:      EventComplete,
		TaskID:    taskID,
		Status:    StatusSuccess,
		Result:    cloneMap(result),
		Timestamp: s.now(),
	})
	return nil
}

func (s *Service) fail(ctx context.Context, task *Task, code xerrors.Code, message string, result map[string]any, terminal bool) error {
	if err := s.store.MarkFailed(ctx, task.ID, code, message, result, terminal); err != nil {
		return err
	}
	if !terminal {
		return nil
	}
	payload := cloneMap(result)
	if payload == nil {
		payload = make(map[string]any, 2)
	}
	if _, ok := payload["error"]; !ok {
		payload["error"] = message
	}
	payload["error_code"] = string(code)
	s.broker.Publish(Event{
		Type:      EventComplete,
		TaskID:    task.ID,
		Persona:   task.Persona,
		Status:    StatusFailed,
		Result:    payload,
		Timestamp: s.now(),
	})
	return nil
}

func failureFromResult(result map[string]any) (xerrors.Code, string) {
	code := CodeTaskProcessing
	message := xerrors.AttributesOf(code).Message
	if raw, ok := result["error_code"].(string); ok && raw != "" {
		code = xerrors.Code(raw)
	}
	if raw, ok := result["error"].(string); ok && raw != "" {
		message = raw
	}
	return code, message
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 释放资源。
func (s *Service) Close() error {
	s.broker.Close()
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询任务直到进入终态或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Registry = (*Service)(nil)
