package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/repository"
)

// ErrMessageNotFound 更新的消息不存在
var ErrMessageNotFound = errors.New("message not found")

// MessageRepository 消息仓储实现
type MessageRepository struct {
	client *Client
}

// NewMessageRepository 创建消息仓储
func NewMessageRepository(client *Client) *MessageRepository {
	return &MessageRepository{client: client}
}

// Create 创建消息
func (r *MessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	ctx, span := tracer.Start(ctx, "postgres.MessageRepository.Create")
	defer span.End()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.BranchID == "" {
		msg.BranchID = entity.DefaultBranchID
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(msg).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Update 局部更新消息
func (r *MessageRepository) Update(ctx context.Context, id string, patch *entity.MessagePatch) error {
	ctx, span := tracer.Start(ctx, "postgres.MessageRepository.Update")
	defer span.End()

	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Message{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update message %s: %w", id, ErrMessageNotFound)
	}
	return nil
}

// GetByID 根据 ID 获取消息
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	ctx, span := tracer.Start(ctx, "postgres.MessageRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var msg entity.Message
	if err := db.First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// ListByConversation 按创建顺序列出分支上的消息
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID, branchID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Message], error) {
	ctx, span := tracer.Start(ctx, "postgres.MessageRepository.ListByConversation")
	defer span.End()

	if branchID == "" {
		branchID = entity.DefaultBranchID
	}
	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Message{}).Where("conversation_id = ? AND branch_id = ?", conversationID, branchID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	var msgs []*entity.Message
	if err := query.Order("created_at ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&msgs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return repository.NewPagedResult(msgs, total, pagination), nil
}
