package repository

import (
	"context"

	"z-chat-ai-api/internal/domain/entity"
)

// MessageRepository 对话消息仓储
// 同一条消息的写入需按调用顺序串行落库，每次写入都携带完整的当前状态
type MessageRepository interface {
	// Create 创建消息，ID 为空时由实现生成
	Create(ctx context.Context, msg *entity.Message) error
	// Update 局部更新消息
	Update(ctx context.Context, id string, patch *entity.MessagePatch) error
	// GetByID 获取消息，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Message, error)
	// ListByConversation 按创建顺序列出分支上的消息
	ListByConversation(ctx context.Context, conversationID, branchID string, pagination Pagination) (*PagedResult[*entity.Message], error)
}

// GenerationStateRepository 取消标记与生成进行中状态
type GenerationStateRepository interface {
	GetCancellationFlag(ctx context.Context, conversationID string) (bool, error)
	SetCancellationFlag(ctx context.Context, conversationID string) error
	ClearCancellationFlag(ctx context.Context, conversationID string) error
	SetGenerationState(ctx context.Context, conversationID string, inProgress bool, messageID string) error
	// GetGenerationState 不存在时返回 InProgress=false 的状态
	GetGenerationState(ctx context.Context, conversationID string) (*entity.GenerationState, error)
}
