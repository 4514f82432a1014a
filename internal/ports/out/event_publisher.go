package out

import (
	"context"
	"time"
)

// 审计事件类型
const (
	EventMessageCreated  = "message.created"
	EventPresenceChanged = "presence.changed"
	EventUserRegistered  = "user.registered"
)

// DomainEvent 发往消息队列的领域事件
type DomainEvent struct {
	Type       string         `json:"type"`
	Key        string         `json:"key"` // 分区键，一般为用户名
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher 事件发布，尽力而为
type EventPublisher interface {
	Publish(ctx context.Context, evt DomainEvent) error
	Close() error
}
