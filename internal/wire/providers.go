package wire

import (
	"context"

	"z-chat-ai-api/internal/application/chat"
	"z-chat-ai-api/internal/application/credit"
	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/internal/infrastructure/catalog"
	"z-chat-ai-api/internal/infrastructure/messaging"
	"z-chat-ai-api/internal/infrastructure/persistence/postgres"
	"z-chat-ai-api/internal/infrastructure/persistence/redis"
	"z-chat-ai-api/internal/interfaces/http/handler"
	"z-chat-ai-api/internal/interfaces/http/router"
	"z-chat-ai-api/pkg/logger"
)

// App API 网关依赖容器
type App struct {
	Router       *router.Router
	Catalog      *catalog.FileCatalog
	Orchestrator *chat.Orchestrator
}

// Admin 运维命令依赖容器
type Admin struct {
	PgClient *postgres.Client
	Catalog  *catalog.FileCatalog
	Gate     *credit.Gate
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres, cfg.App.Env == "development")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideCatalog 加载模型元数据表
func ProvideCatalog(ctx context.Context, cfg *config.Config) (*catalog.FileCatalog, error) {
	if cfg.LLM.CatalogPath == "" {
		logger.Warn(ctx, "model catalog path not configured, using empty catalog")
		return catalog.New(), nil
	}
	return catalog.Load(cfg.LLM.CatalogPath)
}

// ProvideEventPublisher 未启用 Redis Stream 时返回 nil，编排器跳过事件发布
func ProvideEventPublisher(client *redis.Client, cfg *config.Config) service.GenerationEventPublisher {
	if !cfg.Messaging.RedisStream.Enabled {
		return nil
	}
	return messaging.NewProducer(client.Redis(), cfg.Messaging.RedisStream)
}

// ProvideHealthHandler 就绪检查覆盖 postgres 与 redis
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rdb *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    rdb,
	})
}
