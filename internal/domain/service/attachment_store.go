package service

import (
	"context"

	"z-chat-ai-api/internal/domain/entity"
)

// AttachmentStore 附件访问
// ResolvePublicURL 每次调用都重新解析，返回的 URL 可能很快过期，调用方不得缓存
type AttachmentStore interface {
	ResolvePublicURL(ctx context.Context, storageRef string) (string, error)
	GetAttachmentMetadata(ctx context.Context, storageRef string) (*entity.AttachmentMetadata, error)
}
