package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"DealPilot/internal/deal"
	xerrors "DealPilot/internal/errors"
	"DealPilot/pkg/logger"
)

// Config 描述报价缓存所需的 Redis 连接。
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// QuoteCache 将成功报价以 JSON 形式写入 Redis，跨进程共享。
type QuoteCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewQuoteCache 建立连接并校验可用性。
func NewQuoteCache(ctx context.Context, cfg Config) (*QuoteCache, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	c := NewQuoteCacheWithClient(client, cfg.KeyPrefix, cfg.TTL)
	c.owned = true
	return c, nil
}

// NewQuoteCacheWithClient 复用已有客户端，Close 不会关闭它。
func NewQuoteCacheWithClient(client *goredis.Client, prefix string, ttl time.Duration) *QuoteCache {
	if prefix == "" {
		prefix = "dealpilot:quote:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &QuoteCache{client: client, prefix: prefix, ttl: ttl}
}

// Get 读取缓存。未命中或数据损坏均视为未命中。
func (c *QuoteCache) Get(ctx context.Context, key string) (deal.Quote, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.L().Warn("读取报价缓存失败", slog.String("key", key), slog.Any("error", err))
		}
		return deal.Quote{}, false
	}
	var q deal.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		logger.L().Warn("报价缓存内容无法解析", slog.String("key", key), slog.Any("error", err))
		return deal.Quote{}, false
	}
	return q, true
}

// Set 写入缓存并设置过期时间。
func (c *QuoteCache) Set(ctx context.Context, key string, q deal.Quote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化报价失败")
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入报价缓存失败")
	}
	return nil
}

// Close 关闭自行创建的连接。
func (c *QuoteCache) Close() error {
	if c == nil || !c.owned {
		return nil
	}
	return c.client.Close()
}
