package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/EthanQC/warpong/internal/adapters/out/file"
	"github.com/EthanQC/warpong/internal/adapters/out/memory"
	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/domain/protocol"
	"github.com/EthanQC/warpong/internal/ports/out"
)

type fakeConn struct {
	id     entity.ConnID
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: entity.ConnID(id)} }

func (c *fakeConn) ID() entity.ConnID  { return c.id }
func (c *fakeConn) RemoteAddr() string { return "test:" + string(c.id) }

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) ofType(t *testing.T, typ protocol.Type) []protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var envs []protocol.Envelope
	for _, f := range c.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Type == typ {
			envs = append(envs, env)
		}
	}
	return envs
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type fakeHub struct {
	mu    sync.Mutex
	conns map[entity.ConnID]out.Connection
}

func newFakeHub() *fakeHub { return &fakeHub{conns: make(map[entity.ConnID]out.Connection)} }

func (h *fakeHub) Register(c out.Connection) error {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
	return nil
}

func (h *fakeHub) Unregister(id entity.ConnID) error {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	return nil
}

func (h *fakeHub) SendTo(id entity.ConnID, msg []byte) error {
	h.mu.Lock()
	c, ok := h.conns[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("connection %s not found", id)
	}
	return c.Send(msg)
}

func (h *fakeHub) Broadcast(msg []byte, except entity.ConnID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, c := range h.conns {
		if id == except {
			continue
		}
		if c.Send(msg) == nil {
			n++
		}
	}
	return n
}

func (h *fakeHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// flakyStorage 按开关注入存储错误
type flakyStorage struct {
	out.Storage
	failAppend   bool
	failLocation bool
}

var errInjected = errors.New("injected failure")

func (f *flakyStorage) AppendMessage(ctx context.Context, m *entity.Message) error {
	if f.failAppend {
		return errInjected
	}
	return f.Storage.AppendMessage(ctx, m)
}

func (f *flakyStorage) SetLocation(ctx context.Context, username string, loc entity.Location) error {
	if f.failLocation {
		return errInjected
	}
	return f.Storage.SetLocation(ctx, username, loc)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []out.DomainEvent
}

func (p *fakePublisher) Publish(_ context.Context, evt out.DomainEvent) error {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ts []string
	for _, e := range p.events {
		ts = append(ts, e.Type)
	}
	return ts
}

type harness struct {
	store     *flakyStorage
	registry  *memory.PresenceRegistry
	hub       *fakeHub
	publisher *fakePublisher
	rt        *RealtimeService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t)))

	fs, err := file.NewStore(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	h := &harness{
		store:     &flakyStorage{Storage: fs},
		registry:  memory.NewPresenceRegistry(),
		hub:       newFakeHub(),
		publisher: &fakePublisher{},
	}
	h.rt = NewRealtimeService(h.store, h.registry, h.hub, h.publisher, NewMetrics(), time.Second)
	return h
}

// connect 模拟 ws 适配器：注册到连接管理器并打开会话
func (h *harness) connect(id string) (*fakeConn, *Session) {
	c := newFakeConn(id)
	_ = h.hub.Register(c)
	return c, h.rt.Open(c).(*Session)
}

// disconnect 与 ws 适配器一致：先注销连接，再关闭会话
func (h *harness) disconnect(c *fakeConn, s *Session) {
	_ = h.hub.Unregister(c.ID())
	s.Close(context.Background())
}

func (h *harness) seedUser(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, h.store.CreateUser(context.Background(), &entity.User{
		ID: "id-" + username, Username: username, PasswordHash: "x", Status: entity.StatusOffline,
	}))
}

func frame(t *testing.T, typ protocol.Type, data any) []byte {
	t.Helper()
	raw, err := protocol.Encode(typ, data)
	require.NoError(t, err)
	return raw
}
