package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 是所有环境变量覆盖项的前缀。
const EnvPrefix = "DEALPILOT_"

// Config 描述了 DealPilot 在启动阶段需要加载的核心配置。
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Storage     StorageConfig     `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	TaskQueue   TaskQueueConfig   `json:"task_queue" yaml:"task_queue" envPrefix:"TASK_QUEUE_"`
	Surface     SurfaceConfig     `json:"surface" yaml:"surface" envPrefix:"SURFACE_"`
	Cache       CacheConfig       `json:"cache" yaml:"cache" envPrefix:"CACHE_"`
	Coordinator CoordinatorConfig `json:"coordinator" yaml:"coordinator" envPrefix:"COORDINATOR_"`
	Personas    PersonasConfig    `json:"personas" yaml:"personas" envPrefix:"PERSONAS_"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging" envPrefix:"LOG_"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
	Alerting    AlertingConfig    `json:"alerting" yaml:"alerting" envPrefix:"ALERT_"`
	Auth        AuthConfig        `json:"auth" yaml:"auth" envPrefix:"AUTH_"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address         string   `json:"address" yaml:"address" env:"ADDRESS"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// StorageConfig 统一描述任务存储与 Redis 的连接信息。
type StorageConfig struct {
	TaskStore TaskStoreConfig `json:"task_store" yaml:"task_store" envPrefix:"TASK_STORE_"`
	Redis     RedisConfig     `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
}

// TaskStoreConfig 选择任务状态的存储实现，支持 memory 与 mysql。
type TaskStoreConfig struct {
	Driver          string   `json:"driver" yaml:"driver" env:"DRIVER"`
	DSN             string   `json:"dsn" yaml:"dsn" env:"DSN"`
	MaxOpenConns    int      `json:"max_open_conns" yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int      `json:"max_idle_conns" yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool     `json:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig 描述共享 Redis 实例，任务队列与报价缓存共用。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address" env:"ADDRESS"`
	Password string `json:"password" yaml:"password" env:"PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"DB"`
}

// TaskQueueConfig 描述任务队列与工作池。
type TaskQueueConfig struct {
	Driver     string   `json:"driver" yaml:"driver" env:"DRIVER"`
	Buffer     int      `json:"buffer" yaml:"buffer" env:"BUFFER"`
	Workers    int      `json:"workers" yaml:"workers" env:"WORKERS"`
	MaxRetries int      `json:"max_retries" yaml:"max_retries" env:"MAX_RETRIES"`
	RedisKey   string   `json:"redis_key" yaml:"redis_key" env:"REDIS_KEY"`
	BlockWait  Duration `json:"block_wait" yaml:"block_wait" env:"BLOCK_WAIT"`
	AMQPURL    string   `json:"amqp_url" yaml:"amqp_url" env:"AMQP_URL"`
	AMQPQueue  string   `json:"amqp_queue" yaml:"amqp_queue" env:"AMQP_QUEUE"`
	Prefetch   int      `json:"prefetch" yaml:"prefetch" env:"PREFETCH"`
}

// SurfaceConfig 描述自动化执行面（远程 runner 或本地命令）。
type SurfaceConfig struct {
	Driver   string        `json:"driver" yaml:"driver" env:"DRIVER"`
	PoolSize int           `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	HTTP     HTTPSurface   `json:"http" yaml:"http" envPrefix:"HTTP_"`
	Command  CommandConfig `json:"command" yaml:"command" envPrefix:"COMMAND_"`
	Retry    RetryConfig   `json:"retry" yaml:"retry" envPrefix:"RETRY_"`
}

// HTTPSurface 远程自动化 runner 的连接参数。
type HTTPSurface struct {
	BaseURL string            `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	APIKey  string            `json:"api_key" yaml:"api_key" env:"API_KEY"`
	Device  string            `json:"device" yaml:"device" env:"DEVICE"`
	Timeout Duration          `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
	AppIDs  map[string]string `json:"app_ids" yaml:"app_ids" env:"APP_IDS"`
}

// CommandConfig 本地命令执行面，目标以 JSON 写入 stdin。
type CommandConfig struct {
	Executable string   `json:"executable" yaml:"executable" env:"EXECUTABLE"`
	Args       []string `json:"args" yaml:"args" env:"ARGS"`
	WorkingDir string   `json:"working_dir" yaml:"working_dir" env:"WORKING_DIR"`
	Timeout    Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
}

// RetryConfig 控制平台调用的指数退避重试。
type RetryConfig struct {
	MaxRetries  int      `json:"max_retries" yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay   Duration `json:"base_delay" yaml:"base_delay" env:"BASE_DELAY"`
	MaxDuration Duration `json:"max_duration" yaml:"max_duration" env:"MAX_DURATION"`
}

// CacheConfig 控制报价缓存，memory / redis / none。
type CacheConfig struct {
	Driver    string   `json:"driver" yaml:"driver" env:"DRIVER"`
	TTL       Duration `json:"ttl" yaml:"ttl" env:"TTL"`
	Size      int      `json:"size" yaml:"size" env:"SIZE"`
	KeyPrefix string   `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
}

// CoordinatorConfig 控制邀请、轮询与批量下单阶段。
type CoordinatorConfig struct {
	Policy             string   `json:"policy" yaml:"policy" env:"POLICY"`
	MaxCycles          int      `json:"max_cycles" yaml:"max_cycles" env:"MAX_CYCLES"`
	HardCeiling        int      `json:"hard_ceiling" yaml:"hard_ceiling" env:"HARD_CEILING"`
	Dormancy           Duration `json:"dormancy" yaml:"dormancy" env:"DORMANCY"`
	PollDelay          Duration `json:"poll_delay" yaml:"poll_delay" env:"POLL_DELAY"`
	InviteDelay        Duration `json:"invite_delay" yaml:"invite_delay" env:"INVITE_DELAY"`
	OrderCooldown      Duration `json:"order_cooldown" yaml:"order_cooldown" env:"ORDER_COOLDOWN"`
	EchoPrefix         int      `json:"echo_prefix" yaml:"echo_prefix" env:"ECHO_PREFIX"`
	ResetBetweenCycles bool     `json:"reset_between_cycles" yaml:"reset_between_cycles" env:"RESET_BETWEEN_CYCLES"`
	ChatApp            string   `json:"chat_app" yaml:"chat_app" env:"CHAT_APP"`
}

// PersonasConfig 列出每个场景的平台，顺序即平局时的优先级。
type PersonasConfig struct {
	Shopper        []string `json:"shopper" yaml:"shopper" env:"SHOPPER"`
	Foodie         []string `json:"foodie" yaml:"foodie" env:"FOODIE"`
	Rider          []string `json:"rider" yaml:"rider" env:"RIDER"`
	Pharmacy       []string `json:"pharmacy" yaml:"pharmacy" env:"PHARMACY"`
	Flight         []string `json:"flight" yaml:"flight" env:"FLIGHT"`
	Stay           []string `json:"stay" yaml:"stay" env:"STAY"`
	ItemCooldown   Duration `json:"item_cooldown" yaml:"item_cooldown" env:"ITEM_COOLDOWN"`
	VendorCooldown Duration `json:"vendor_cooldown" yaml:"vendor_cooldown" env:"VENDOR_COOLDOWN"`
}

// LoggingConfig 对应 pkg/logger.Config。
type LoggingConfig struct {
	Level      string   `json:"level" yaml:"level" env:"LEVEL"`
	Format     string   `json:"format" yaml:"format" env:"FORMAT"`
	Outputs    []string `json:"outputs" yaml:"outputs" env:"OUTPUTS"`
	MaxSizeMB  int      `json:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int      `json:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int      `json:"max_age_days" yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	AuditPath  string   `json:"audit_path" yaml:"audit_path" env:"AUDIT_PATH"`
}

// MetricsConfig 控制 Prometheus 指标暴露。
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Path      string `json:"path" yaml:"path" env:"PATH"`
	Namespace string `json:"namespace" yaml:"namespace" env:"NAMESPACE"`
}

// AlertingConfig 控制终态失败的告警通知。
type AlertingConfig struct {
	LogNotifier    bool     `json:"log" yaml:"log" env:"LOG"`
	WebhookURL     string   `json:"webhook_url" yaml:"webhook_url" env:"WEBHOOK_URL"`
	WebhookTimeout Duration `json:"webhook_timeout" yaml:"webhook_timeout" env:"WEBHOOK_TIMEOUT"`
}

// AuthConfig 配置 API 静态令牌，条目形如 "name:token"，两个列表都为空时不启用认证。
type AuthConfig struct {
	Tokens         []string `json:"tokens" yaml:"tokens" env:"TOKENS"`
	ReadOnlyTokens []string `json:"readonly_tokens" yaml:"readonly_tokens" env:"READONLY_TOKENS"`
}

// Load 负责解析指定路径的配置文件，扩展名为 .json 时按 JSON 解析，否则按 YAML。
// 路径为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := decode(path, content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(content, cfg)
	}
	return yaml.Unmarshal(content, cfg)
}

// Default 返回只包含默认值的配置。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(".")
	return &cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = Duration(5 * time.Second)
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 1
	}
	// 下单类任务默认不重试，避免重复下单。
	if c.TaskQueue.MaxRetries <= 0 {
		c.TaskQueue.MaxRetries = 1
	}
	if c.TaskQueue.RedisKey == "" {
		c.TaskQueue.RedisKey = "dealpilot:jobs"
	}
	if c.TaskQueue.AMQPQueue == "" {
		c.TaskQueue.AMQPQueue = "dealpilot.jobs"
	}

	if c.Surface.Driver == "" {
		if c.Surface.HTTP.BaseURL != "" {
			c.Surface.Driver = "http"
		} else {
			c.Surface.Driver = "command"
		}
	}
	if c.Surface.PoolSize <= 0 {
		c.Surface.PoolSize = 1
	}
	if c.Surface.HTTP.Timeout <= 0 {
		c.Surface.HTTP.Timeout = Duration(5 * time.Minute)
	}
	if c.Surface.Command.Executable == "" {
		c.Surface.Command.Executable = "droidrun"
	}
	if c.Surface.Command.WorkingDir == "" {
		c.Surface.Command.WorkingDir = baseDir
	} else if !filepath.IsAbs(c.Surface.Command.WorkingDir) {
		c.Surface.Command.WorkingDir = filepath.Join(baseDir, c.Surface.Command.WorkingDir)
	}
	if c.Surface.Command.Timeout <= 0 {
		c.Surface.Command.Timeout = Duration(5 * time.Minute)
	}
	if c.Surface.Retry.MaxRetries < 0 {
		c.Surface.Retry.MaxRetries = 0
	}
	if c.Surface.Retry.BaseDelay <= 0 {
		c.Surface.Retry.BaseDelay = Duration(2 * time.Second)
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(10 * time.Minute)
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 256
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "dealpilot:quote:"
	}

	if c.Coordinator.Policy == "" {
		c.Coordinator.Policy = "bounded"
	}
	if c.Coordinator.MaxCycles <= 0 {
		c.Coordinator.MaxCycles = 3
	}
	if c.Coordinator.Dormancy <= 0 {
		c.Coordinator.Dormancy = Duration(10 * time.Second)
	}
	if c.Coordinator.PollDelay <= 0 {
		c.Coordinator.PollDelay = Duration(2 * time.Second)
	}
	if c.Coordinator.OrderCooldown <= 0 {
		c.Coordinator.OrderCooldown = Duration(5 * time.Second)
	}
	if c.Coordinator.EchoPrefix <= 0 {
		c.Coordinator.EchoPrefix = 15
	}
	if c.Coordinator.ChatApp == "" {
		c.Coordinator.ChatApp = "WhatsApp"
	}

	p := &c.Personas
	if len(p.Shopper) == 0 {
		p.Shopper = []string{"Amazon", "Flipkart"}
	}
	if len(p.Foodie) == 0 {
		p.Foodie = []string{"Zomato", "Swiggy"}
	}
	if len(p.Rider) == 0 {
		p.Rider = []string{"Uber", "Ola"}
	}
	if len(p.Pharmacy) == 0 {
		p.Pharmacy = []string{"Apollo 24|7", "PharmEasy", "Tata 1mg"}
	}
	if len(p.Flight) == 0 {
		p.Flight = []string{"MakeMyTrip", "Goibibo"}
	}
	if len(p.Stay) == 0 {
		p.Stay = []string{"Booking.com", "Agoda"}
	}
	if p.ItemCooldown <= 0 {
		p.ItemCooldown = Duration(2 * time.Second)
	}
	if p.VendorCooldown <= 0 {
		p.VendorCooldown = Duration(3 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "dealpilot"
	}

	if c.Alerting.WebhookTimeout <= 0 {
		c.Alerting.WebhookTimeout = Duration(5 * time.Second)
	}
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.TaskStore.Driver {
	case "memory":
	case "mysql":
		if c.Storage.TaskStore.DSN == "" {
			errs = append(errs, errors.New("storage.task_store.dsn 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的任务存储: %s", c.Storage.TaskStore.Driver))
	}

	switch c.TaskQueue.Driver {
	case "memory":
	case "redis":
		if c.Storage.Redis.Address == "" {
			errs = append(errs, errors.New("redis 队列需要 storage.redis.address"))
		}
	case "rabbitmq":
		if c.TaskQueue.AMQPURL == "" {
			errs = append(errs, errors.New("rabbitmq 队列需要 task_queue.amqp_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的任务队列: %s", c.TaskQueue.Driver))
	}

	switch c.Surface.Driver {
	case "http", "fallback":
		if c.Surface.HTTP.BaseURL == "" {
			errs = append(errs, errors.New("surface.http.base_url 不能为空"))
		}
	case "command":
	default:
		errs = append(errs, fmt.Errorf("不支持的执行面: %s", c.Surface.Driver))
	}

	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if c.Storage.Redis.Address == "" {
			errs = append(errs, errors.New("redis 缓存需要 storage.redis.address"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的缓存: %s", c.Cache.Driver))
	}

	switch c.Coordinator.Policy {
	case "bounded":
	case "until_complete":
		if c.Coordinator.HardCeiling <= 0 {
			errs = append(errs, errors.New("until_complete 策略必须设置 coordinator.hard_ceiling"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的轮询策略: %s", c.Coordinator.Policy))
	}
	return errors.Join(errs...)
}
