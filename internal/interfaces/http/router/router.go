// Package router 提供 HTTP 路由配置
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/interfaces/http/handler"
	"z-chat-ai-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health     *handler.HealthHandler
	Generation *handler.GenerationHandler
	Messages   *handler.MessageHandler
	Models     *handler.ModelHandler
	Account    *handler.AccountHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, middleware.DefaultSkipPaths))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

func (r *Router) setupRoutes() {
	h := r.handlers

	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		Secret:  r.cfg.Security.JWT.Secret,
		Issuer:  r.cfg.Security.JWT.Issuer,
		Enabled: r.cfg.Security.JWT.Enabled,
	}))

	// 两个生成入口共享同一配额
	limit := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:  r.cfg.Security.RateLimit.Enabled,
		Limit:    r.cfg.Security.RateLimit.GenerationsPerMinute,
		Window:   time.Minute,
		Endpoint: "generate",
	}, r.limiter)

	conversations := v1.Group("/conversations/:id")
	{
		conversations.POST("/generate", limit, h.Generation.Generate)
		conversations.POST("/generate/sync", limit, h.Generation.GenerateSync)
		conversations.POST("/stop", h.Generation.Stop)
		conversations.GET("/generation", h.Generation.State)
		conversations.GET("/messages", h.Messages.ListMessages)
	}

	providers := v1.Group("/providers")
	{
		providers.GET("", h.Models.ListProviders)
		providers.GET("/:provider/default-model", h.Models.DefaultModel)
		providers.GET("/:provider/models", h.Models.ListModels)
	}

	v1.GET("/usage", h.Account.GetUsage)
	v1.GET("/preferences", h.Account.GetPreferences)
	v1.PUT("/preferences", h.Account.UpdatePreferences)
	v1.PUT("/credentials/:provider", h.Account.PutCredential)
}
