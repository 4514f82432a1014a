package ws

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
)

// Hub 连接管理器，按连接 ID 索引，与登录状态无关
type Hub struct {
	conns map[entity.ConnID]out.Connection
	mu    sync.RWMutex

	// 统计
	totalConns  int64
	totalFrames int64
	dropped     int64
}

var _ out.ConnectionManager = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{conns: make(map[entity.ConnID]out.Connection)}
}

func (h *Hub) Register(conn out.Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[conn.ID()]; ok {
		old.Close()
	}
	h.conns[conn.ID()] = conn
	atomic.AddInt64(&h.totalConns, 1)

	zap.L().Debug("connection registered",
		zap.String("conn_id", string(conn.ID())),
		zap.String("remote", conn.RemoteAddr()),
		zap.Int("active", len(h.conns)))
	return nil
}

// Unregister 移除并关闭连接，重复调用无副作用
func (h *Hub) Unregister(id entity.ConnID) error {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	active := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	conn.Close()
	zap.L().Debug("connection unregistered",
		zap.String("conn_id", string(id)),
		zap.Int("active", active))
	return nil
}

func (h *Hub) SendTo(id entity.ConnID, message []byte) error {
	h.mu.RLock()
	conn, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s not found", id)
	}
	if err := conn.Send(message); err != nil {
		atomic.AddInt64(&h.dropped, 1)
		return err
	}
	atomic.AddInt64(&h.totalFrames, 1)
	return nil
}

func (h *Hub) Broadcast(message []byte, except entity.ConnID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for id, conn := range h.conns {
		if id == except {
			continue
		}
		if err := conn.Send(message); err != nil {
			atomic.AddInt64(&h.dropped, 1)
			zap.L().Debug("broadcast dropped", zap.String("conn_id", string(id)), zap.Error(err))
			continue
		}
		n++
	}
	atomic.AddInt64(&h.totalFrames, int64(n))
	return n
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll 关闭全部连接，注销由各连接的读协程完成
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	conns := make([]out.Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

// GetStats 获取统计信息
func (h *Hub) GetStats() map[string]int64 {
	h.mu.RLock()
	active := int64(len(h.conns))
	h.mu.RUnlock()

	return map[string]int64{
		"active_connections": active,
		"total_connections":  atomic.LoadInt64(&h.totalConns),
		"total_frames":       atomic.LoadInt64(&h.totalFrames),
		"dropped_frames":     atomic.LoadInt64(&h.dropped),
	}
}
