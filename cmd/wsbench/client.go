package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// frame 与服务端一致的 {type,data,ts}
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Ts   int64           `json:"ts,omitempty"`
}

// client 一个压测用户，写操作加锁，读在单独协程
type client struct {
	id       int
	username string
	conn     *websocket.Conn
	stats    *Stats

	mu      sync.Mutex
	pending []time.Time // 等待 message-sent 的发送时间，FIFO
}

func usernameFor(prefix string, id int) string {
	return fmt.Sprintf("%s%d", prefix, id)
}

func dial(ctx context.Context, id int, cfg Config, stats *Stats) (*client, error) {
	stats.add(&stats.Attempts, 1)
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	start := time.Now()
	ws, _, err := dialer.DialContext(ctx, cfg.Target, nil)
	if err != nil {
		stats.add(&stats.Failed, 1)
		stats.recordError(err)
		return nil, err
	}
	stats.recordConn(time.Since(start))
	stats.add(&stats.Connected, 1)
	stats.add(&stats.Current, 1)

	return &client{
		id:       id,
		username: usernameFor(cfg.UserPrefix, id),
		conn:     ws,
		stats:    stats,
	}, nil
}

func (c *client) write(typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(frame{Type: typ, Data: raw, Ts: time.Now().UnixMilli()})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}
	if typ == "send-message" {
		c.pending = append(c.pending, time.Now())
	}
	c.stats.add(&c.stats.Sent, 1)
	return nil
}

func (c *client) login() error {
	return c.write("login", c.username)
}

func (c *client) sendLocation(rng *rand.Rand) error {
	return c.write("send-location", map[string]float64{
		"lat": rng.Float64()*180 - 90,
		"lng": rng.Float64()*360 - 180,
	})
}

func (c *client) sendMessage(to string, payload string) error {
	return c.write("send-message", map[string]string{"to": to, "message": payload})
}

// readLoop 读到错误为止，统计各类服务端帧
func (c *client) readLoop(idle time.Duration) {
	for {
		c.conn.SetReadDeadline(time.Now().Add(idle))
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.stats.add(&c.stats.Disconnects, 1)
			}
			return
		}
		c.stats.add(&c.stats.Received, 1)

		var f frame
		if json.Unmarshal(raw, &f) != nil {
			continue
		}
		switch f.Type {
		case "user-online":
			var name string
			if json.Unmarshal(f.Data, &name) == nil && name == c.username {
				c.stats.add(&c.stats.LoginsOK, 1)
			}
			c.stats.add(&c.stats.PresenceSeen, 1)
		case "user-offline", "user-location":
			c.stats.add(&c.stats.PresenceSeen, 1)
		case "message-sent":
			c.ack(f.Data)
		case "error":
			c.stats.add(&c.stats.ServerErrors, 1)
			var p struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(f.Data, &p) == nil {
				c.stats.recordError(fmt.Errorf("server: %s", strings.TrimSpace(p.Error)))
			}
		}
	}
}

func (c *client) ack(data json.RawMessage) {
	c.mu.Lock()
	var sentAt time.Time
	if len(c.pending) > 0 {
		sentAt = c.pending[0]
		c.pending = c.pending[1:]
	}
	c.mu.Unlock()

	var p struct {
		Success bool `json:"success"`
	}
	if json.Unmarshal(data, &p) != nil || !p.Success {
		c.stats.add(&c.stats.AckFailed, 1)
		return
	}
	c.stats.add(&c.stats.Acked, 1)
	if !sentAt.IsZero() {
		c.stats.recordAck(time.Since(sentAt))
	}
}

func (c *client) close() {
	c.mu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	c.conn.Close()
}
