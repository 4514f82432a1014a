package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/EthanQC/warpong/internal/ports/out"
)

// messageWriter kafka.Writer 的最小子集，测试时替换
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 使用 segmentio/kafka-go 实现 EventPublisher，按 Key 分区
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

var _ out.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher 创建异步写入的 KafkaPublisher
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt out.DomainEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event failed: %w", evt.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "timestamp", Value: []byte(evt.OccurredAt.UTC().Format(time.RFC3339))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event failed: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher 未配置 Kafka 时使用
type NopPublisher struct{}

var _ out.EventPublisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, out.DomainEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
