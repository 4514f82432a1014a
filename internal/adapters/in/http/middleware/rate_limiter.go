package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TokenBucket 令牌桶，令牌按浮点累积，避免高频调用时补充量被截断为 0
type TokenBucket struct {
	capacity   float64   // 桶容量
	tokens     float64   // 当前令牌数
	rate       float64   // 每秒产生令牌数
	lastRefill time.Time // 上次填充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建令牌桶
func NewTokenBucket(capacity, rate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		rate:       rate,
		lastRefill: time.Now(),
	}
}

// Allow 尝试获取一个令牌
func (tb *TokenBucket) Allow() bool {
	return tb.allowAt(time.Now())
}

func (tb *TokenBucket) allowAt(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastRefill)
}

// RateLimiterConfig 限流器配置
type RateLimiterConfig struct {
	IPQPS     float64       // 单 IP 每秒请求数
	BurstSize int           // 突发大小
	IdleTTL   time.Duration // 超过该时间未使用的桶会被清理
}

// RateLimiter 按客户端 IP 限流
type RateLimiter struct {
	config    RateLimiterConfig
	ipBuckets sync.Map // IP -> *TokenBucket
}

// NewRateLimiter 创建限流器
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = time.Hour
	}
	return &RateLimiter{config: config}
}

// getIPBucket 获取或创建 IP 限流桶
func (rl *RateLimiter) getIPBucket(ip string) *TokenBucket {
	if bucket, ok := rl.ipBuckets.Load(ip); ok {
		return bucket.(*TokenBucket)
	}
	bucket := NewTokenBucket(float64(rl.config.BurstSize), rl.config.IPQPS)
	actual, _ := rl.ipBuckets.LoadOrStore(ip, bucket)
	return actual.(*TokenBucket)
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.getIPBucket(ip).Allow()
}

// Middleware Gin 中间件，超限返回 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Cleanup 清理长时间未使用的桶
func (rl *RateLimiter) Cleanup() {
	now := time.Now()
	rl.ipBuckets.Range(func(key, value interface{}) bool {
		if value.(*TokenBucket).idleSince(now) > rl.config.IdleTTL {
			rl.ipBuckets.Delete(key)
		}
		return true
	})
}

// Run 周期性清理，ctx 结束时返回
func (rl *RateLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}
