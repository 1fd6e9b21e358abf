// Package messaging 将生成生命周期事件发布到 Redis Stream
package messaging

import (
	"encoding/json"
	"time"
)

// Message 流消息信封
type Message struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id"`
	UserID         string            `json:"user_id,omitempty"`
	Payload        json.RawMessage   `json:"payload"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType, conversationID, userID string, payload any, createdAt time.Time) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:             id,
		Type:           msgType,
		ConversationID: conversationID,
		UserID:         userID,
		Payload:        payloadBytes,
		CreatedAt:      createdAt,
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流名称
type Stream string

// StreamGenerationEvents 默认的生命周期事件流
const StreamGenerationEvents Stream = "stream:chat:generation"
