// Package app 负责按配置装配守护进程与命令行共用的组件。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"DealPilot/internal/api"
	"DealPilot/internal/auth"
	"DealPilot/internal/config"
	"DealPilot/internal/coordinator"
	"DealPilot/internal/observability/alerting"
	"DealPilot/internal/observability/metrics"
	"DealPilot/internal/persona"
	"DealPilot/internal/platform"
	"DealPilot/internal/storage/mysql"
	"DealPilot/internal/storage/redis"
	"DealPilot/internal/surface"
	"DealPilot/internal/surface/command"
	"DealPilot/internal/surface/httpsurface"
	"DealPilot/internal/task"
	"DealPilot/pkg/logger"
)

// InitLogger 按配置初始化全局日志。
func InitLogger(cfg config.LoggingConfig) error {
	rotation := logger.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	}
	return logger.Init(logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.Outputs,
		Rotation:    rotation,
		Audit: logger.AuditConfig{
			Enabled:        cfg.AuditPath != "",
			Path:           cfg.AuditPath,
			RotationConfig: rotation,
		},
	})
}

// Engine 是执行任务所需的最小组件集合：执行面池、报价缓存与 persona 调度器。
type Engine struct {
	Pool       *surface.Pool
	Dispatcher *persona.Dispatcher
	Metrics    *metrics.Registry
	closers    []func() error
}

// Close 释放缓存连接等资源。
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// NewEngine 构造执行面池与调度器。extra 会追加在默认选项之后。
func NewEngine(ctx context.Context, cfg *config.Config, extra ...persona.Option) (*Engine, error) {
	pool, err := NewSurfacePool(cfg.Surface)
	if err != nil {
		return nil, err
	}
	engine := &Engine{Pool: pool}
	if cfg.Metrics.Enabled {
		engine.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	opts := []persona.Option{persona.WithLogger(logger.Named("persona"))}
	cache, closeCache, err := NewQuoteCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		opts = append(opts, persona.WithCache(cache))
	}
	if closeCache != nil {
		engine.closers = append(engine.closers, closeCache)
	}
	if engine.Metrics != nil {
		opts = append(opts, persona.WithRecorder(engine.Metrics))
	}
	opts = append(opts, extra...)

	pcfg, err := PersonaConfig(cfg)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	dispatcher, err := persona.NewDispatcher(pool, pcfg, opts...)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	engine.Dispatcher = dispatcher
	return engine, nil
}

// PersonaConfig 将配置文件映射为 persona.Config。
func PersonaConfig(cfg *config.Config) (persona.Config, error) {
	out := persona.DefaultConfig()
	p := cfg.Personas
	out.Platforms = map[string][]string{
		persona.Shopper:  p.Shopper,
		persona.Foodie:   p.Foodie,
		persona.Rider:    p.Rider,
		persona.Pharmacy: p.Pharmacy,
		persona.Flight:   p.Flight,
		persona.Stay:     p.Stay,
	}
	out.ItemCooldown = p.ItemCooldown.Std()
	out.VendorCooldown = p.VendorCooldown.Std()
	out.Retry = platform.RetryPolicy{
		MaxRetries:  uint64(max(cfg.Surface.Retry.MaxRetries, 0)),
		BaseDelay:   cfg.Surface.Retry.BaseDelay.Std(),
		MaxDuration: cfg.Surface.Retry.MaxDuration.Std(),
	}
	out.ChatApp = cfg.Coordinator.ChatApp

	c := cfg.Coordinator
	mode, err := coordinator.ParsePollMode(c.Policy)
	if err != nil {
		return persona.Config{}, err
	}
	out.Coordinator = coordinator.Config{
		Policy:             coordinator.PollPolicy{Mode: mode, MaxCycles: c.MaxCycles, HardCeiling: c.HardCeiling},
		EchoPrefix:         c.EchoPrefix,
		InviteDelay:        c.InviteDelay.Std(),
		PollDelay:          c.PollDelay.Std(),
		Dormancy:           c.Dormancy.Std(),
		OrderCooldown:      c.OrderCooldown.Std(),
		ResetBetweenCycles: c.ResetBetweenCycles,
	}
	if err := out.Coordinator.Policy.Validate(); err != nil {
		return persona.Config{}, err
	}
	return out, nil
}

// NewSurfacePool 按驱动构造 PoolSize 个执行面。
func NewSurfacePool(cfg config.SurfaceConfig) (*surface.Pool, error) {
	size := max(cfg.PoolSize, 1)
	members := make([]surface.Surface, 0, size)
	for i := 0; i < size; i++ {
		member, err := newSurface(cfg, i)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return surface.NewPool(members...)
}

func newSurface(cfg config.SurfaceConfig, index int) (surface.Surface, error) {
	newHTTP := func() (surface.Surface, error) {
		return httpsurface.NewClient(httpsurface.Config{
			BaseURL:   cfg.HTTP.BaseURL,
			APIKey:    cfg.HTTP.APIKey,
			Device:    cfg.HTTP.Device,
			SessionID: fmt.Sprintf("dealpilot-%d", index),
			Timeout:   cfg.HTTP.Timeout.Std(),
			AppIDs:    cfg.HTTP.AppIDs,
		})
	}
	newCommand := func() (surface.Surface, error) {
		return command.NewClient(command.Config{
			Executable: cfg.Command.Executable,
			Args:       cfg.Command.Args,
			WorkingDir: cfg.Command.WorkingDir,
			Timeout:    cfg.Command.Timeout.Std(),
		})
	}

	switch strings.ToLower(cfg.Driver) {
	case "http":
		return newHTTP()
	case "command", "":
		return newCommand()
	case "fallback":
		primary, err := newHTTP()
		if err != nil {
			return nil, err
		}
		secondary, err := newCommand()
		if err != nil {
			return nil, err
		}
		return &surface.Fallback{Primary: primary, Secondary: secondary, Logger: logger.Named("surface")}, nil
	default:
		return nil, fmt.Errorf("不支持的执行面: %s", cfg.Driver)
	}
}

// NewQuoteCache 按驱动返回报价缓存；none 时返回 nil。
func NewQuoteCache(ctx context.Context, cfg *config.Config) (platform.QuoteCache, func() error, error) {
	switch strings.ToLower(cfg.Cache.Driver) {
	case "none":
		return nil, nil, nil
	case "memory", "":
		return platform.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL.Std()), nil, nil
	case "redis":
		cache, err := redis.NewQuoteCache(ctx, redis.Config{
			Address:   cfg.Storage.Redis.Address,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Cache.KeyPrefix,
			TTL:       cfg.Cache.TTL.Std(),
		})
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Close, nil
	default:
		return nil, nil, fmt.Errorf("不支持的缓存: %s", cfg.Cache.Driver)
	}
}

// NewStore 按驱动构造任务存储。
func NewStore(ctx context.Context, cfg config.TaskStoreConfig) (task.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory", "":
		return task.NewMemoryStore(), nil
	case "mysql":
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
			AutoMigrate:     cfg.AutoMigrate,
		})
		if err != nil {
			return nil, err
		}
		store, err := task.NewMySQLStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("不支持的任务存储: %s", cfg.Driver)
	}
}

// NewQueue 按驱动构造任务队列。
func NewQueue(ctx context.Context, cfg *config.Config) (task.Queue, error) {
	q := cfg.TaskQueue
	switch strings.ToLower(q.Driver) {
	case "memory", "":
		return task.NewMemoryQueue(q.Buffer), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Storage.Redis.Address,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			Queue:     q.RedisKey,
			BlockWait: q.BlockWait.Std(),
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      q.AMQPURL,
			Queue:    q.AMQPQueue,
			Prefetch: q.Prefetch,
			Durable:  true,
		})
	default:
		return nil, fmt.Errorf("不支持的任务队列: %s", q.Driver)
	}
}

// NewAlerter 组合已启用的告警渠道；全部关闭时返回 nil。
func NewAlerter(cfg config.AlertingConfig) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.LogNotifier {
		notifiers = append(notifiers, &alerting.LogNotifier{})
	}
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout.Std()))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

// Daemon 组合任务服务、处理器与 API 服务。
type Daemon struct {
	cfg       *config.Config
	engine    *Engine
	service   *task.Service
	processor *task.Processor
	server    *api.Server
}

// NewDaemon 按配置装配全部组件。
func NewDaemon(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	authService, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	engine, err := NewEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(ctx, cfg.Storage.TaskStore)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	queue, err := NewQueue(ctx, cfg)
	if err != nil {
		_ = store.Close()
		_ = engine.Close()
		return nil, err
	}

	service := task.NewService(store, queue, cfg.TaskQueue.MaxRetries)
	procOpts := []task.ProcessorOption{
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithProcessorLogger(logger.Named("processor")),
		task.WithRecoveryHandler(persona.NoDealRecovery()),
	}
	if alerter := NewAlerter(cfg.Alerting); alerter != nil {
		procOpts = append(procOpts, task.WithAlertDispatcher(alerter))
	}
	if engine.Metrics != nil {
		procOpts = append(procOpts, task.WithJobObserver(engine.Metrics))
	}
	processor := task.NewProcessor(engine.Dispatcher, service, queue, queue, procOpts...)

	serverOpts := []api.Option{
		api.WithPersonas(engine.Dispatcher.Personas()...),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout.Std()),
		api.WithAuth(authService),
	}
	if engine.Metrics != nil {
		serverOpts = append(serverOpts, api.WithMetrics(engine.Metrics, cfg.Metrics.Path))
	}
	return &Daemon{
		cfg:       cfg,
		engine:    engine,
		service:   service,
		processor: processor,
		server:    api.NewServer(cfg.Server.Address, service, serverOpts...),
	}, nil
}

// Service 返回任务服务。
func (d *Daemon) Service() *task.Service { return d.service }

// Run 启动任务处理器与 API 服务，阻塞直到 ctx 结束。
func (d *Daemon) Run(ctx context.Context) error {
	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := d.processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	logger.L().Info("DealPilot 守护进程已启动",
		slog.String("address", d.cfg.Server.Address),
		slog.String("task_store", d.cfg.Storage.TaskStore.Driver),
		slog.String("task_queue", d.cfg.TaskQueue.Driver),
		slog.String("surface", d.cfg.Surface.Driver),
		slog.Int("surface_pool", d.engine.Pool.Size()),
		slog.Int("api_tokens", len(d.cfg.Auth.Tokens)+len(d.cfg.Auth.ReadOnlyTokens)),
	)
	err := d.server.Start(ctx)
	processorCancel()
	select {
	case <-done:
	case <-time.After(d.cfg.Server.ShutdownTimeout.Std()):
		logger.L().Warn("等待任务处理器退出超时")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close 释放存储、队列与缓存。
func (d *Daemon) Close() error {
	return errors.Join(d.service.Close(), d.engine.Close())
}
