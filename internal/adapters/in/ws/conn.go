package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/in"
	"github.com/EthanQC/warpong/internal/ports/out"
	"github.com/EthanQC/warpong/pkg/zlog"
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

// Conn 一条 WebSocket 连接，写操作只在 writePump 中进行
type Conn struct {
	id     entity.ConnID
	conn   *websocket.Conn
	remote string
	opts   Options

	send   chan []byte
	mu     sync.RWMutex // 保护 send 的关闭
	closed int32

	hub     out.ConnectionManager
	session in.Session
	ctx     context.Context // 携带连接级 logger
	logger  *zap.Logger
	onDone  func()
}

var _ out.Connection = (*Conn)(nil)

func newConn(ws *websocket.Conn, remote string, opts Options, hub out.ConnectionManager) *Conn {
	id := entity.NewConnID()
	ctx := zlog.With(context.Background(), zap.String("conn_id", string(id)), zap.String("remote", remote))
	return &Conn{
		id:     id,
		conn:   ws,
		remote: remote,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		hub:    hub,
		ctx:    ctx,
		logger: zlog.C(ctx),
	}
}

func (c *Conn) ID() entity.ConnID  { return c.id }
func (c *Conn) RemoteAddr() string { return c.remote }

// Send 非阻塞写入，缓冲满时直接丢弃
func (c *Conn) Send(message []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrConnClosed
	}
	select {
	case c.send <- message:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close 关闭发送缓冲，writePump 随后发 close 帧并断开
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.send)
	return nil
}

func (c *Conn) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// readPump 顺序读取客户端帧交给 session，退出时清理
func (c *Conn) readPump() {
	defer c.cleanup()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.session.HandleFrame(c.ctx, message)
	}
}

// writePump 发送缓冲中的帧并定时 ping
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// cleanup 先从 hub 注销，再交给 session 处理离线
func (c *Conn) cleanup() {
	c.hub.Unregister(c.id)
	c.Close()
	c.conn.Close()
	c.session.Close(c.ctx)

	c.logger.Info("connection closed", zap.String("username", c.session.Username()))
	if c.onDone != nil {
		c.onDone()
	}
}
