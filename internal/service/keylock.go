package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "staffclock/backend/pkg/errors"
	"staffclock/backend/pkg/redis"
)

// KeyLocker 按 key 串行化临界区。
// 考勤的"先查最新一条再写入"不是原子操作，同一员工同一天的判定必须互斥。
type KeyLocker interface {
	// Lock 拿到锁后返回释放函数；超时返回 pkgerrors.ErrBusy
	Lock(ctx context.Context, key string) (func(), error)
}

// attendanceLockKey 锁粒度：员工 + 日期
func attendanceLockKey(employeeID, date string) string {
	return "attendance:" + employeeID + ":" + date
}

// ── 进程内实现 ──

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
	wait  time.Duration
}

type localEntry struct {
	ch   chan struct{} // 容量 1，持有即占位
	refs int
}

// NewLocalLocker 单实例部署时使用的进程内锁
func NewLocalLocker(wait time.Duration) KeyLocker {
	return &localLocker{locks: make(map[string]*localEntry), wait: wait}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.release(key, e)
		}, nil
	case <-timer.C:
		l.release(key, e)
		return nil, pkgerrors.ErrBusy
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
}

// release 没有等待者时回收条目
func (l *localLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// ── Redis 实现 ──

type redisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisLocker 多实例部署时使用的分布式锁；ttl 兜底防止持有者崩溃后死锁
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration, logger *zap.Logger) KeyLocker {
	return &redisLocker{rdb: rdb, ttl: ttl, wait: wait, logger: logger}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.rdb.AcquireLock(ctx, key, l.ttl, l.wait)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, pkgerrors.ErrBusy
		}
		l.logger.Error("获取分布式锁失败", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrBusy, err)
	}
	return func() {
		// 释放使用独立 ctx，请求取消后也要归还锁
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
