package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"z-chat-ai-api/internal/domain/entity"
)

// UsageRepository 额度记录仓储实现
type UsageRepository struct {
	client *Client
}

// NewUsageRepository 创建额度仓储
func NewUsageRepository(client *Client) *UsageRepository {
	return &UsageRepository{client: client}
}

// Get 获取额度记录
func (r *UsageRepository) Get(ctx context.Context, userID string) (*entity.UsageRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.Get")
	defer span.End()

	return r.get(ctx, getDB(ctx, r.client.db), userID)
}

// GetForUpdate 以 SELECT ... FOR UPDATE 读取，需在事务内调用
func (r *UsageRepository) GetForUpdate(ctx context.Context, userID string) (*entity.UsageRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.GetForUpdate")
	defer span.End()

	db := getDB(ctx, r.client.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.get(ctx, db, userID)
}

func (r *UsageRepository) get(_ context.Context, db *gorm.DB, userID string) (*entity.UsageRecord, error) {
	var rec entity.UsageRecord
	if err := db.First(&rec, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}
	return &rec, nil
}

// Save 插入或覆盖额度记录
func (r *UsageRepository) Save(ctx context.Context, record *entity.UsageRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.Save")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_tier", "credits_used", "credits_limit", "dollars_spent",
			"max_spending_dollars", "searches_used", "reset_at", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}
