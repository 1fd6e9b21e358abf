// Package attachment 解析附件存储引用并读取附件元数据
package attachment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/repository"
)

// ErrNoPublicBaseURL 未配置公开访问地址
var ErrNoPublicBaseURL = errors.New("attachment public base url is not configured")

const metadataTTL = 10 * time.Minute

// MetadataCache 元数据缓存
type MetadataCache interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, out any, loader func(ctx context.Context) (any, error)) (bool, error)
}

// Store 附件存储
type Store struct {
	baseURL string
	ttl     time.Duration
	repo    repository.AttachmentRepository
	cache   MetadataCache
	group   singleflight.Group
	now     func() time.Time
}

// NewStore 创建附件存储，cache 可为 nil
func NewStore(cfg *config.Config, repo repository.AttachmentRepository, cache MetadataCache) *Store {
	return &Store{
		baseURL: strings.TrimRight(cfg.Storage.Attachments.PublicBaseURL, "/"),
		ttl:     cfg.Storage.Attachments.SignedURLTTL,
		repo:    repo,
		cache:   cache,
		now:     time.Now,
	}
}

// ResolvePublicURL 每次调用生成新的 URL，不做缓存
func (s *Store) ResolvePublicURL(_ context.Context, storageRef string) (string, error) {
	if s.baseURL == "" {
		return "", ErrNoPublicBaseURL
	}
	ref := strings.TrimLeft(strings.TrimSpace(storageRef), "/")
	if ref == "" {
		return "", fmt.Errorf("empty storage reference")
	}

	segments := strings.Split(ref, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	u := s.baseURL + "/" + strings.Join(segments, "/")
	if s.ttl > 0 {
		u += "?expires=" + strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	}
	return u, nil
}

// GetAttachmentMetadata 读取元数据，并发的相同查询只访问一次仓储
func (s *Store) GetAttachmentMetadata(ctx context.Context, storageRef string) (*entity.AttachmentMetadata, error) {
	if s.repo == nil {
		return nil, nil
	}
	if s.cache != nil {
		var meta entity.AttachmentMetadata
		found, err := s.cache.GetOrLoad(ctx, "attachment:meta:"+storageRef, metadataTTL, &meta, func(ctx context.Context) (any, error) {
			return s.load(ctx, storageRef)
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return &meta, nil
	}

	v, err, _ := s.group.Do(storageRef, func() (any, error) {
		return s.load(ctx, storageRef)
	})
	if err != nil || v == nil {
		return nil, err
	}
	meta := *(v.(*entity.AttachmentMetadata))
	return &meta, nil
}

// load 未找到时返回无类型 nil
func (s *Store) load(ctx context.Context, storageRef string) (any, error) {
	meta, err := s.repo.GetMetadata(ctx, storageRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachment metadata: %w", err)
	}
	if meta == nil {
		return nil, nil
	}
	return meta, nil
}
