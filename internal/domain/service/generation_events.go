package service

import (
	"context"
	"time"
)

// GenerationEventType 生成生命周期事件类型
type GenerationEventType string

const (
	GenerationStarted   GenerationEventType = "generation.started"
	GenerationCompleted GenerationEventType = "generation.completed"
	GenerationCancelled GenerationEventType = "generation.cancelled"
	GenerationFailed    GenerationEventType = "generation.failed"
)

// GenerationEvent 生成生命周期事件
type GenerationEvent struct {
	Type           GenerationEventType `json:"type"`
	ConversationID string              `json:"conversationId"`
	BranchID       string              `json:"branchId"`
	MessageID      string              `json:"messageId,omitempty"`
	UserID         string              `json:"userId,omitempty"`
	Provider       string              `json:"provider"`
	Model          string              `json:"model"`
	Mode           string              `json:"mode"`
	TokensUsed     int                 `json:"tokensUsed,omitempty"`
	Error          string              `json:"error,omitempty"`
	OccurredAt     time.Time           `json:"occurredAt"`
}

// GenerationEventPublisher 生命周期事件发布，尽力而为
type GenerationEventPublisher interface {
	PublishGenerationEvent(ctx context.Context, event *GenerationEvent) error
}
