package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type 帧类型
type Type string

const (
	// 客户端 -> 服务端
	TypeLogin        Type = "login"
	TypeSendLocation Type = "send-location"
	TypeSendMessage  Type = "send-message"

	// 服务端 -> 客户端
	TypeUserOnline   Type = "user-online"
	TypeUserOffline  Type = "user-offline"
	TypeUserLocation Type = "user-location"
	TypeNewMessage   Type = "new-message"
	TypeMessageSent  Type = "message-sent"
	TypeError        Type = "error"
)

var ErrMalformed = errors.New("malformed frame")

// Envelope 统一的 JSON 帧
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Ts   int64           `json:"ts,omitempty"`
}

// LocationPayload send-location / user-location
type LocationPayload struct {
	Username string  `json:"username"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// SendMessagePayload send-message
type SendMessagePayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// NewMessagePayload new-message
type NewMessagePayload struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentPayload message-sent
type MessageSentPayload struct {
	Success bool `json:"success"`
}

// ErrorPayload error
type ErrorPayload struct {
	Error string `json:"error"`
}

// Encode 序列化一帧，ts 取当前毫秒
func Encode(t Type, data any) ([]byte, error) {
	env := Envelope{Type: t, Ts: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode 解析客户端帧
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &env, nil
}

// DecodeUsername login 的 data 可以是字符串，也兼容 {"username": "..."}
func DecodeUsername(data json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var obj struct {
			Username string `json:"username"`
		}
		if err2 := json.Unmarshal(data, &obj); err2 != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		name = obj.Username
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty username", ErrMalformed)
	}
	return name, nil
}

// DecodeData 把 data 解到具体结构
func DecodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
