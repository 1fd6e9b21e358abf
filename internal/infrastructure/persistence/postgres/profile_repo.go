package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"z-chat-ai-api/internal/domain/entity"
)

// ProfileRepository 用户偏好、提供商密钥与附件元数据
type ProfileRepository struct {
	client *Client
}

// NewProfileRepository 创建资料仓储
func NewProfileRepository(client *Client) *ProfileRepository {
	return &ProfileRepository{client: client}
}

// GetUserPreferences 不存在时返回零值偏好
func (r *ProfileRepository) GetUserPreferences(ctx context.Context, userID string) (*entity.UserPreferences, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.GetUserPreferences")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var prefs entity.UserPreferences
	if err := db.First(&prefs, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &entity.UserPreferences{UserID: userID}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get user preferences: %w", err)
	}
	return &prefs, nil
}

// GetUserInstructions 用户自定义指令
func (r *ProfileRepository) GetUserInstructions(ctx context.Context, userID string) (string, error) {
	prefs, err := r.GetUserPreferences(ctx, userID)
	if err != nil {
		return "", err
	}
	return prefs.CustomInstructions, nil
}

// SaveUserPreferences 插入或覆盖用户偏好
func (r *ProfileRepository) SaveUserPreferences(ctx context.Context, prefs *entity.UserPreferences) error {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.SaveUserPreferences")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(prefs).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save user preferences: %w", err)
	}
	return nil
}

// GetAPIKeyForProvider 未配置时返回空字符串
func (r *ProfileRepository) GetAPIKeyForProvider(ctx context.Context, userID, provider string) (string, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.GetAPIKeyForProvider")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var cred entity.ProviderCredential
	if err := db.First(&cred, "user_id = ? AND provider = ?", userID, provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		span.RecordError(err)
		return "", fmt.Errorf("failed to get provider credential: %w", err)
	}
	return cred.APIKey, nil
}

// SaveCredential 插入或覆盖用户密钥
func (r *ProfileRepository) SaveCredential(ctx context.Context, cred *entity.ProviderCredential) error {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.SaveCredential")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if cred.APIKey == "" {
		err := db.Where("user_id = ? AND provider = ?", cred.UserID, cred.Provider).Delete(&entity.ProviderCredential{}).Error
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to delete provider credential: %w", err)
		}
		return nil
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "updated_at"}),
	}).Create(cred).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save provider credential: %w", err)
	}
	return nil
}

// GetMetadata 附件元数据，不存在时返回 nil, nil
func (r *ProfileRepository) GetMetadata(ctx context.Context, storageRef string) (*entity.AttachmentMetadata, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.GetMetadata")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var meta entity.AttachmentMetadata
	if err := db.First(&meta, "storage_ref = ?", storageRef).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get attachment metadata: %w", err)
	}
	return &meta, nil
}
