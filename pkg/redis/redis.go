package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"staffclock/backend/config"
)

// Client Redis 客户端封装
// 用于按员工+日期的分布式锁以及接口限流
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// ── 分布式锁 ──

const lockPrefix = "lock:"

// ErrLockNotAcquired 在等待时间内未能拿到锁
var ErrLockNotAcquired = errors.New("获取锁超时")

// releaseScript 仅当 value 仍为自己的 token 时才删除，避免误删他人续上的锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 已持有的锁
type Lock struct {
	client *Client
	key    string
	token  string
}

// AcquireLock 以 SET NX PX 抢锁，失败后按固定间隔重试直到 ctx 结束或超过 wait
func (c *Client) AcquireLock(ctx context.Context, name string, ttl, wait time.Duration) (*Lock, error) {
	key := lockPrefix + name
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("Redis 加锁失败: %w", err)
		}
		if ok {
			return &Lock{client: c, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Release 释放锁；锁已过期时静默返回
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Err(); err != nil {
		l.client.logger.Warn("释放 Redis 锁失败", zap.String("key", l.key), zap.Error(err))
		return err
	}
	return nil
}

// ── 限流 ──

// slidingWindowScript 基于有序集合的滑动窗口计数
// KEYS[1] = 限流 key
// ARGV[1] = 当前时间（毫秒） ARGV[2] = 窗口（毫秒） ARGV[3] = 上限 ARGV[4] = 本次请求成员
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
local count = redis.call("ZCARD", key)
if count >= limit then
	return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return 1
`)

// CheckRateLimit 滑动窗口内请求数未超过 limit 时返回 true
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, c.rdb,
		[]string{key}, now, window.Milliseconds(), limit, uuid.NewString(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("Redis 限流检查失败: %w", err)
	}
	return res == 1, nil
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
