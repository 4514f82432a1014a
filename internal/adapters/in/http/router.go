package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EthanQC/warpong/internal/adapters/in/http/middleware"
	"github.com/EthanQC/warpong/internal/ports/in"
	"github.com/EthanQC/warpong/pkg/zlog"
)

// RouterOptions 组装路由所需依赖，Limiter/Metrics 可为 nil
type RouterOptions struct {
	Accounts in.AccountUseCase
	Realtime http.Handler
	Stats    func() map[string]any
	Metrics  http.Handler
	Limiter  *middleware.RateLimiter
}

var endpoints = []string{
	"/api/users",
	"/api/register",
	"/api/login",
	"/api/location",
	"/api/messages/:from/:to",
	"/ws",
}

// NewRouter 构建 gin 引擎
func NewRouter(opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), zlog.GinLogger())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "warpong API is running", "endpoints": endpoints})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Stats != nil {
		router.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, opts.Stats())
		})
	}
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	level := gin.WrapF(zlog.LevelHTTPHandler())
	router.GET("/log/level", level)
	router.PUT("/log/level", level)

	if opts.Realtime != nil {
		router.GET("/ws", gin.WrapH(opts.Realtime))
	}

	api := router.Group("/")
	if opts.Limiter != nil {
		api.Use(opts.Limiter.Middleware())
	}
	NewAccountHandler(opts.Accounts).RegisterRoutes(api)

	return router
}
