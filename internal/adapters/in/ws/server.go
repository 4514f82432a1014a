package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/config"
	"github.com/EthanQC/warpong/internal/ports/in"
)

// Options 连接参数
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration // 必须小于 PongWait
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     30 * time.Second,
	}
}

// OptionsFrom 从配置读取，缺省项取默认值
func OptionsFrom(cfg config.RealtimeConfig) Options {
	o := DefaultOptions()
	if cfg.SendBuffer > 0 {
		o.SendBuffer = cfg.SendBuffer
	}
	if cfg.MaxMessageSize > 0 {
		o.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.WriteWait > 0 {
		o.WriteWait = cfg.WriteWait
	}
	if cfg.PongWait > 0 {
		o.PongWait = cfg.PongWait
	}
	if cfg.PingPeriod > 0 && cfg.PingPeriod < o.PongWait {
		o.PingPeriod = cfg.PingPeriod
	}
	return o
}

// Server WebSocket 入口，每条连接一个读协程一个写协程
type Server struct {
	hub      *Hub
	realtime in.RealtimeUseCase
	opts     Options
	upgrader websocket.Upgrader
	active   sync.WaitGroup
}

func NewServer(hub *Hub, realtime in.RealtimeUseCase, opts Options) *Server {
	return &Server{
		hub:      hub,
		realtime: realtime,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP 升级连接，登录由客户端第一帧 login 完成
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade error", zap.Error(err))
		return
	}

	conn := newConn(ws, r.RemoteAddr, s.opts, s.hub)
	conn.session = s.realtime.Open(conn)
	s.active.Add(1)
	conn.onDone = s.active.Done
	s.hub.Register(conn)
	conn.logger.Info("connection opened")

	go conn.writePump()
	go conn.readPump()
}

// Shutdown 关闭所有连接并等待离线处理完成
func (s *Server) Shutdown(ctx context.Context) error {
	n := s.hub.CloseAll()
	zap.L().Info("closing realtime connections", zap.Int("count", n))

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats 连接统计
func (s *Server) GetStats() map[string]int64 {
	return s.hub.GetStats()
}
