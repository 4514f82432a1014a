package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpAdapter "github.com/EthanQC/warpong/internal/adapters/in/http"
	"github.com/EthanQC/warpong/internal/adapters/in/http/middleware"
	"github.com/EthanQC/warpong/internal/adapters/in/ws"
	"github.com/EthanQC/warpong/internal/adapters/out/db"
	"github.com/EthanQC/warpong/internal/adapters/out/file"
	"github.com/EthanQC/warpong/internal/adapters/out/memory"
	"github.com/EthanQC/warpong/internal/adapters/out/mongo"
	"github.com/EthanQC/warpong/internal/adapters/out/mq"
	redisCache "github.com/EthanQC/warpong/internal/adapters/out/redis"
	"github.com/EthanQC/warpong/internal/application"
	"github.com/EthanQC/warpong/internal/config"
	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
	"github.com/EthanQC/warpong/pkg/jwt"
	"github.com/EthanQC/warpong/pkg/zlog"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	os.Setenv("APP_ENV", cfg.Env)

	// 初始化日志
	zlog.MustInitGlobal(cfg.Log)
	defer zap.L().Sync()

	logger := zap.L()
	logger.Info("warpong starting",
		zap.String("env", cfg.Env),
		zap.String("storage", cfg.Storage.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化存储
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to init storage", zap.Error(err))
	}

	// 审计事件
	publisher := newPublisher(cfg.Kafka)

	tokens, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal("Failed to init jwt", zap.Error(err))
	}

	// 实时通道
	registry := memory.NewPresenceRegistry()
	hub := ws.NewHub()
	metrics := application.NewMetrics()
	realtime := application.NewRealtimeService(storage, registry, hub, publisher, metrics, cfg.Storage.OpTimeout)
	wsServer := ws.NewServer(hub, realtime, ws.OptionsFrom(cfg.Realtime))

	accounts := application.NewAccountService(storage, tokens, publisher, application.AccountOptions{
		DefaultLocation: entity.Location{Lat: cfg.Account.DefaultLat, Lng: cfg.Account.DefaultLng},
		AvatarTemplate:  cfg.Account.AvatarTemplate,
		BcryptCost:      cfg.Account.BcryptCost,
		OpTimeout:       cfg.Storage.OpTimeout,
	})

	// 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := zlog.RegisterMetrics(reg); err != nil {
		logger.Fatal("Failed to register log metrics", zap.Error(err))
	}
	if err := metrics.Register(reg, registry, hub); err != nil {
		logger.Fatal("Failed to register realtime metrics", zap.Error(err))
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			IPQPS:     cfg.Server.RateLimit,
			BurstSize: cfg.Server.RateBurst,
		})
		go limiter.Run(ctx, 5*time.Minute)
	}

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpAdapter.NewRouter(httpAdapter.RouterOptions{
		Accounts: accounts,
		Realtime: wsServer,
		Stats: func() map[string]any {
			stats := map[string]any{"online_users": realtime.OnlineUsers()}
			for k, v := range wsServer.GetStats() {
				stats[k] = v
			}
			return stats
		},
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Limiter: limiter,
	})

	// 启动HTTP服务器
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	// 升级后的连接不受 http.Server.Shutdown 管理
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Realtime shutdown error", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		logger.Warn("Publisher close error", zap.Error(err))
	}
	if err := storage.Close(shutdownCtx); err != nil {
		logger.Warn("Storage close error", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

// openStorage 按 driver 选择后端，配置了 redis 时外包一层用户缓存
func openStorage(ctx context.Context, cfg *config.Config) (out.Storage, error) {
	var (
		storage out.Storage
		err     error
	)

	switch cfg.Storage.Driver {
	case "mysql":
		gdb, openErr := db.OpenMySQL(cfg.Storage.DSN)
		if openErr != nil {
			return nil, openErr
		}
		storage, err = db.NewStore(gdb)
	case "mongo":
		connCtx, cancel := context.WithTimeout(ctx, cfg.Storage.OpTimeout)
		storage, err = mongo.Connect(connCtx, cfg.Storage.URI, cfg.Storage.Database)
		cancel()
	default:
		storage, err = file.NewStore(cfg.Storage.Path)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr == "" {
		return storage, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Storage.OpTimeout)
	defer cancel()
	client, err := redisCache.NewClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		storage.Close(ctx)
		return nil, err
	}
	zap.L().Info("user cache enabled", zap.String("addr", cfg.Redis.Addr))
	return redisCache.NewCachedStorage(storage, client, cfg.Redis.UserTTL), nil
}

func newPublisher(cfg config.KafkaConfig) out.EventPublisher {
	if len(cfg.Brokers) == 0 {
		return mq.NopPublisher{}
	}
	zap.L().Info("kafka publisher enabled",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return mq.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}
