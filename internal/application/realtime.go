package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/domain/session"
	"github.com/EthanQC/warpong/internal/ports/in"
	"github.com/EthanQC/warpong/internal/ports/out"
)

// RealtimeService 实时会话工厂，持有共享的在线表、存储与投递引擎
type RealtimeService struct {
	storage   out.Storage
	registry  out.PresenceRegistry
	delivery  *Delivery
	publisher out.EventPublisher
	clock     *Clock
	metrics   *Metrics
	opTimeout time.Duration
}

var _ in.RealtimeUseCase = (*RealtimeService)(nil)

// NewRealtimeService publisher 与 metrics 可为 nil
func NewRealtimeService(
	storage out.Storage,
	registry out.PresenceRegistry,
	conns out.ConnectionManager,
	publisher out.EventPublisher,
	metrics *Metrics,
	opTimeout time.Duration,
) *RealtimeService {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &RealtimeService{
		storage:   storage,
		registry:  registry,
		delivery:  NewDelivery(conns, registry, metrics),
		publisher: publisher,
		clock:     NewClock(),
		metrics:   metrics,
		opTimeout: opTimeout,
	}
}

// Open 新连接总是从 Anonymous 开始
func (s *RealtimeService) Open(conn out.Connection) in.Session {
	return &Session{
		svc:  s,
		conn: conn,
		sm:   session.NewStateMachine(),
	}
}

func (s *RealtimeService) OnlineUsers() []string {
	return s.registry.Online()
}

// publish 尽力发布，失败只记录
func (s *RealtimeService) publish(evtType, key string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	err := s.publisher.Publish(ctx, out.DomainEvent{
		Type:       evtType,
		Key:        key,
		Payload:    payload,
		OccurredAt: time.Now(),
	})
	if err != nil {
		zap.L().Warn("publish event failed", zap.String("type", evtType), zap.Error(err))
	}
}

func (s *RealtimeService) setStatus(ctx context.Context, username string, status entity.UserStatus) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.storage.SetStatus(ctx, username, status, time.Now()); err != nil {
		zap.L().Warn("persist status failed",
			zap.String("username", username),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
