package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"staffclock/backend/pkg/redis"
	"staffclock/backend/pkg/response"
)

// RateLimit 基于 Redis 滑动窗口的速率限制中间件
// limit: 窗口内允许的最大请求数
// window: 滑动窗口时长
// rdb 为 nil 或 Redis 出错时降级为进程内令牌桶（按 IP）
func RateLimit(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	local := newLocalLimiter(limit, window)

	return func(c *gin.Context) {
		var allowed bool
		if rdb != nil {
			key := fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.FullPath())
			ok, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
			if err != nil {
				logger.Warn("Redis 限流失败，降级为本地限流", zap.Error(err))
				allowed = local.allow(c.ClientIP())
			} else {
				allowed = ok
			}
		} else {
			allowed = local.allow(c.ClientIP())
		}

		if !allowed {
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}

// ── 进程内降级限流 ──

const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	every     rate.Limit
	burst     int
	lastSweep time.Time
}

func newLocalLimiter(limit int, window time.Duration) *localLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &localLimiter{
		visitors:  make(map[string]*visitor),
		every:     rate.Every(window / time.Duration(limit)),
		burst:     limit,
		lastSweep: time.Now(),
	}
}

func (l *localLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	// 顺带清理长时间未出现的 IP，避免 map 无限增长
	if now.Sub(l.lastSweep) > visitorIdleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}
