package repository

import (
	"context"

	"z-chat-ai-api/internal/domain/entity"
)

// UsageRepository 额度记录仓储
type UsageRepository interface {
	// Get 获取记录，不存在时返回 nil, nil
	Get(ctx context.Context, userID string) (*entity.UsageRecord, error)
	// GetForUpdate 在事务内加行锁读取，不存在时返回 nil, nil
	GetForUpdate(ctx context.Context, userID string) (*entity.UsageRecord, error)
	// Save 插入或覆盖记录
	Save(ctx context.Context, record *entity.UsageRecord) error
}
