//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"z-chat-ai-api/internal/application/chat"
	"z-chat-ai-api/internal/application/credit"
	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/repository"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/internal/infrastructure/attachment"
	"z-chat-ai-api/internal/infrastructure/catalog"
	"z-chat-ai-api/internal/infrastructure/llm"
	"z-chat-ai-api/internal/infrastructure/persistence/postgres"
	"z-chat-ai-api/internal/infrastructure/persistence/redis"
	"z-chat-ai-api/internal/interfaces/http/handler"
	"z-chat-ai-api/internal/interfaces/http/middleware"
	"z-chat-ai-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		DomainSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeAdmin 初始化运维命令所需依赖（仅 PostgreSQL）
func InitializeAdmin(ctx context.Context, cfg *config.Config) (*Admin, func(), error) {
	wire.Build(
		RepoSet,
		ProvideCatalog,
		wire.Bind(new(service.ModelCatalog), new(*catalog.FileCatalog)),
		credit.NewGate,
		wire.Struct(new(Admin), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewMessageRepository,
	postgres.NewUsageRepository,
	postgres.NewProfileRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.MessageRepository), new(*postgres.MessageRepository)),
	wire.Bind(new(repository.UsageRepository), new(*postgres.UsageRepository)),
	wire.Bind(new(repository.PreferencesRepository), new(*postgres.ProfileRepository)),
	wire.Bind(new(repository.CredentialRepository), new(*postgres.ProfileRepository)),
	wire.Bind(new(repository.AttachmentRepository), new(*postgres.ProfileRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	redis.NewGenerationStateStore,
	wire.Bind(new(attachment.MetadataCache), new(*redis.Cache)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Bind(new(repository.GenerationStateRepository), new(*redis.GenerationStateStore)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideEventPublisher,
)

// DomainSet 生成编排相关
var DomainSet = wire.NewSet(
	ProvideCatalog,
	wire.Bind(new(service.ModelCatalog), new(*catalog.FileCatalog)),
	llm.NewRegistry,
	wire.Bind(new(chat.ModelRegistry), new(*llm.Registry)),
	credit.NewGate,
	wire.Bind(new(chat.CreditGate), new(*credit.Gate)),
	attachment.NewStore,
	wire.Bind(new(service.AttachmentStore), new(*attachment.Store)),
	chat.NewNormalizer,
	wire.Struct(new(chat.Dependencies), "*"),
	chat.NewOrchestrator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewGenerationHandler,
	wire.Bind(new(handler.Generator), new(*chat.Orchestrator)),
	handler.NewMessageHandler,
	handler.NewModelHandler,
	wire.Bind(new(handler.ProviderDirectory), new(*llm.Registry)),
	handler.NewAccountHandler,
	wire.Bind(new(handler.UsageReader), new(*credit.Gate)),
	wire.Bind(new(handler.ProviderChecker), new(*llm.Registry)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
