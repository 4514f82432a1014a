package entity

import (
	"time"

	"github.com/google/uuid"
)

// ConversationLimit 会话历史默认返回条数
const ConversationLimit = 50

// Message 私聊消息，创建后不可变
type Message struct {
	ID        string    `json:"id" bson:"id"`
	From      string    `json:"from" bson:"from"`
	To        string    `json:"to" bson:"to"`
	Body      string    `json:"message" bson:"message"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	IsRead    bool      `json:"isRead,omitempty" bson:"isRead,omitempty"`
}

// Between 是否属于 a 与 b 的双向会话
func (m *Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// NewMessageID 生成消息 ID
func NewMessageID() string { return uuid.NewString() }
