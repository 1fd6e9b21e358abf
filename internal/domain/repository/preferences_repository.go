package repository

import (
	"context"

	"z-chat-ai-api/internal/domain/entity"
)

// PreferencesRepository 用户偏好仓储
type PreferencesRepository interface {
	// GetUserPreferences 不存在时返回零值偏好
	GetUserPreferences(ctx context.Context, userID string) (*entity.UserPreferences, error)
	GetUserInstructions(ctx context.Context, userID string) (string, error)
	SaveUserPreferences(ctx context.Context, prefs *entity.UserPreferences) error
}

// CredentialRepository 用户密钥仓储
type CredentialRepository interface {
	// GetAPIKeyForProvider 未配置时返回空字符串
	GetAPIKeyForProvider(ctx context.Context, userID, provider string) (string, error)
	// SaveCredential 插入或覆盖，APIKey 为空时删除
	SaveCredential(ctx context.Context, cred *entity.ProviderCredential) error
}

// AttachmentRepository 附件元数据仓储
type AttachmentRepository interface {
	// GetMetadata 不存在时返回 nil, nil
	GetMetadata(ctx context.Context, storageRef string) (*entity.AttachmentMetadata, error)
}
