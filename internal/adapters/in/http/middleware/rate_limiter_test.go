package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(2, 10)
	now := tb.lastRefill

	assert.True(t, tb.allowAt(now))
	assert.True(t, tb.allowAt(now))
	assert.False(t, tb.allowAt(now))

	// 10/s，100ms 后恰好补一个
	assert.True(t, tb.allowAt(now.Add(100*time.Millisecond)))
	assert.False(t, tb.allowAt(now.Add(100*time.Millisecond)))
}

func TestMiddlewareLimitsPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateLimiterConfig{IPQPS: 0.001, BurstSize: 2})
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{IPQPS: 1, BurstSize: 1, IdleTTL: time.Millisecond})
	rl.Allow("1.1.1.1")
	b := rl.getIPBucket("1.1.1.1")
	b.mu.Lock()
	b.lastRefill = time.Now().Add(-time.Second)
	b.mu.Unlock()

	rl.Cleanup()
	_, ok := rl.ipBuckets.Load("1.1.1.1")
	assert.False(t, ok)
}
